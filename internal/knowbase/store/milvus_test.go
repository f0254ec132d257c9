package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/knowbase-io/knowbase/internal/knowbase/store"
	"github.com/knowbase-io/knowbase/internal/model"
)

func scored(similarities ...float32) []model.SimilarQuestion {
	out := make([]model.SimilarQuestion, len(similarities))
	for i, s := range similarities {
		out[i] = model.SimilarQuestion{ID: int64(i + 1), Similarity: s}
	}
	return out
}

func similarities(results []model.SimilarQuestion) []float32 {
	out := make([]float32, len(results))
	for i, r := range results {
		out[i] = r.Similarity
	}
	return out
}

func TestFilterBySimilarityStrictThreshold(t *testing.T) {
	// 0.5 itself does not pass, the comparison is strict.
	results := store.FilterBySimilarity(scored(0.9, 0.6, 0.5, 0.3), 3)
	assert.Equal(t, []float32{0.9, 0.6}, similarities(results))
}

func TestFilterBySimilarityTruncatesToLimit(t *testing.T) {
	results := store.FilterBySimilarity(scored(0.99, 0.95, 0.9, 0.85), 3)
	assert.Equal(t, []float32{0.99, 0.95, 0.9}, similarities(results))
}

func TestFilterBySimilarityDefaultLimit(t *testing.T) {
	results := store.FilterBySimilarity(scored(0.99, 0.95, 0.9, 0.85), 0)
	assert.Len(t, results, store.DefaultSearchLimit)
}

func TestFilterBySimilarityAllBelowThreshold(t *testing.T) {
	results := store.FilterBySimilarity(scored(0.5, 0.4, 0.1), 3)
	assert.Empty(t, results)
}

func TestFilterBySimilarityPreservesOrder(t *testing.T) {
	results := store.FilterBySimilarity(scored(0.9, 0.6), 3)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(2), results[1].ID)
}
