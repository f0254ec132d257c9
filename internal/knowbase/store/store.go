package store

import (
	"context"

	"github.com/knowbase-io/knowbase/internal/model"
)

// QuestionStore persists question-answer pairs with their embeddings and
// serves vector similarity search over them.
type QuestionStore interface {
	// Create stores a question and returns its assigned id.
	Create(ctx context.Context, q *model.StoredQuestion) (int64, error)

	// Search returns stored questions whose cosine similarity to the query
	// embedding is strictly greater than SimilarityThreshold, ordered by
	// descending similarity and truncated to limit. Citation details are
	// not resolved here.
	Search(ctx context.Context, embedding []float32, limit int) ([]model.SimilarQuestion, error)

	// List returns stored questions for browsing, without embeddings.
	List(ctx context.Context, offset, limit int) ([]model.StoredQuestion, error)

	// Count returns the number of stored questions.
	Count(ctx context.Context) (int64, error)
}

// CitationStore persists citations.
type CitationStore interface {
	// Create stores a citation. The id must be set by the caller.
	Create(ctx context.Context, citation *model.Citation) error

	// Get returns a citation by id.
	Get(ctx context.Context, id string) (*model.Citation, error)

	// GetByIDs returns the citations for the given ids. Ids with no
	// matching row are omitted from the result, not reported as errors.
	GetByIDs(ctx context.Context, ids []string) ([]model.Citation, error)

	// Count returns the number of stored citations.
	Count(ctx context.Context) (int64, error)
}
