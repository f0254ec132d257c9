package store

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/knowbase-io/knowbase/internal/model"
	"github.com/knowbase-io/knowbase/pkg/component/milvus"
	"github.com/knowbase-io/knowbase/pkg/utils/json"
)

// SimilarityThreshold is the fixed cutoff for similarity search. Only rows
// strictly above it are returned.
const SimilarityThreshold = 0.5

// DefaultSearchLimit is used when a search limit is unset or non-positive.
const DefaultSearchLimit = 3

const (
	fieldQuestion    = "question"
	fieldAnswer      = "answer"
	fieldCitationIDs = "citation_ids"
)

// MilvusQuestionStore stores questions in a Milvus collection, with the
// question text, answer, and citation id list carried as scalar fields
// alongside the embedding.
type MilvusQuestionStore struct {
	client     *milvus.Client
	collection string
	dimension  int
}

// NewMilvusQuestionStore creates a question store backed by the given
// collection.
func NewMilvusQuestionStore(client *milvus.Client, collection string, dimension int) *MilvusQuestionStore {
	return &MilvusQuestionStore{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}
}

// EnsureCollection creates the questions collection if it does not exist.
func (s *MilvusQuestionStore) EnsureCollection(ctx context.Context) error {
	schema := &milvus.CollectionSchema{
		Name:        s.collection,
		Description: "Knowledge base question-answer pairs",
		Dimension:   s.dimension,
		MetaFields: []milvus.MetaField{
			{Name: fieldQuestion, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: fieldAnswer, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: fieldCitationIDs, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
		},
	}
	return s.client.CreateCollection(ctx, schema)
}

// Create stores a question with its embedding and returns the row id.
func (s *MilvusQuestionStore) Create(ctx context.Context, q *model.StoredQuestion) (int64, error) {
	if len(q.Embedding) != s.dimension {
		return 0, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(q.Embedding), s.dimension)
	}

	citationIDs, err := json.Marshal(q.CitationIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal citation ids: %w", err)
	}

	data := &milvus.InsertData{
		Embeddings: [][]float32{q.Embedding},
		Metadata: map[string][]any{
			fieldQuestion:    {q.Question},
			fieldAnswer:      {q.Answer},
			fieldCitationIDs: {string(citationIDs)},
		},
	}

	ids, err := s.client.Insert(ctx, s.collection, data)
	if err != nil {
		return 0, fmt.Errorf("failed to insert question: %w", err)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("insert returned no id")
	}

	q.ID = ids[0]
	return ids[0], nil
}

// Search runs a vector search and applies the similarity cutoff. Milvus
// returns hits ordered by descending cosine similarity, so filtering keeps
// the order intact.
func (s *MilvusQuestionStore) Search(ctx context.Context, embedding []float32, limit int) ([]model.SimilarQuestion, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	hits, err := s.client.Search(ctx, s.collection, embedding, limit,
		[]string{fieldQuestion, fieldAnswer, fieldCitationIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to search questions: %w", err)
	}

	results := make([]model.SimilarQuestion, 0, len(hits))
	for _, hit := range hits {
		results = append(results, s.toSimilarQuestion(hit))
	}

	return FilterBySimilarity(results, limit), nil
}

// FilterBySimilarity keeps results strictly above SimilarityThreshold and
// truncates to limit. The input is expected in descending similarity order,
// which the filter preserves.
func FilterBySimilarity(results []model.SimilarQuestion, limit int) []model.SimilarQuestion {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	kept := make([]model.SimilarQuestion, 0, len(results))
	for _, r := range results {
		if r.Similarity <= SimilarityThreshold {
			continue
		}
		kept = append(kept, r)
		if len(kept) == limit {
			break
		}
	}
	return kept
}

// List returns stored questions for browsing.
func (s *MilvusQuestionStore) List(ctx context.Context, offset, limit int) ([]model.StoredQuestion, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.client.Query(ctx, s.collection, "id >= 0",
		[]string{fieldQuestion, fieldAnswer, fieldCitationIDs}, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	questions := make([]model.StoredQuestion, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, model.StoredQuestion{
			ID:          row.ID,
			Question:    metaString(row.Metadata, fieldQuestion),
			Answer:      metaString(row.Metadata, fieldAnswer),
			CitationIDs: parseCitationIDs(metaString(row.Metadata, fieldCitationIDs)),
		})
	}

	return questions, nil
}

// Count returns the number of stored questions.
func (s *MilvusQuestionStore) Count(ctx context.Context) (int64, error) {
	return s.client.GetCollectionStats(ctx, s.collection)
}

func (s *MilvusQuestionStore) toSimilarQuestion(hit milvus.SearchResult) model.SimilarQuestion {
	return model.SimilarQuestion{
		ID:          hit.ID,
		Question:    metaString(hit.Metadata, fieldQuestion),
		Answer:      metaString(hit.Metadata, fieldAnswer),
		CitationIDs: parseCitationIDs(metaString(hit.Metadata, fieldCitationIDs)),
		Similarity:  hit.Score,
	}
}

func metaString(metadata map[string]any, key string) string {
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}

func parseCitationIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}
