package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/knowbase-io/knowbase/internal/knowbase/metrics"
	"github.com/knowbase-io/knowbase/internal/knowbase/store"
	"github.com/knowbase-io/knowbase/internal/model"
	"github.com/knowbase-io/knowbase/pkg/llm"
)

// SearchService runs similarity search over stored questions: embed the
// query, search the vector store, and resolve citation details. Read-only,
// safe for concurrent use.
type SearchService struct {
	embedder  llm.EmbeddingProvider
	questions store.QuestionStore
	citations store.CitationStore
}

// NewSearchService creates a SearchService.
func NewSearchService(embedder llm.EmbeddingProvider, questions store.QuestionStore, citations store.CitationStore) *SearchService {
	return &SearchService{
		embedder:  embedder,
		questions: questions,
		citations: citations,
	}
}

// Search embeds the query and returns stored questions above the similarity
// cutoff, with citation details attached. Missing citation ids are omitted.
func (s *SearchService) Search(ctx context.Context, query string, limit int) ([]model.SimilarQuestion, error) {
	start := time.Now()

	embedding, err := s.embedder.EmbedSingle(ctx, query)
	metrics.Get().RecordEmbedding(err)
	if err != nil {
		logger.Warnw("failed to embed search query", "error", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	results, err := s.SearchByEmbedding(ctx, embedding, limit)
	if err != nil {
		return nil, err
	}

	logger.Debugw("similarity search completed",
		"query_length", len(query),
		"results", len(results),
		"duration", time.Since(start).String())
	return results, nil
}

// SearchByEmbedding searches with a precomputed query embedding.
func (s *SearchService) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]model.SimilarQuestion, error) {
	results, err := s.questions.Search(ctx, embedding, limit)
	metrics.Get().RecordSearch(len(results), err)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	for i := range results {
		results[i].CitationDetails = s.resolveCitations(ctx, results[i].CitationIDs)
	}

	return results, nil
}

// resolveCitations looks up citation rows and converts them to details.
// Lookup failures degrade to an empty detail list rather than failing the
// search.
func (s *SearchService) resolveCitations(ctx context.Context, ids []string) []model.CitationDetail {
	if len(ids) == 0 {
		return []model.CitationDetail{}
	}

	rows, err := s.citations.GetByIDs(ctx, ids)
	if err != nil {
		logger.Warnw("failed to resolve citations", "error", err.Error(), "citation_count", len(ids))
		return []model.CitationDetail{}
	}

	details := make([]model.CitationDetail, 0, len(rows))
	for _, row := range rows {
		content := row.Content
		if content == "" {
			content = "No content available"
		}
		username := row.Username
		if username == "" {
			username = "Unknown User"
		}
		details = append(details, model.CitationDetail{
			Permalink: row.Permalink,
			Content:   content,
			Timestamp: row.Timestamp,
			Username:  username,
		})
	}

	return details
}
