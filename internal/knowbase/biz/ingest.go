package biz

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kart-io/logger"

	"github.com/knowbase-io/knowbase/internal/knowbase/metrics"
	"github.com/knowbase-io/knowbase/internal/knowbase/store"
	"github.com/knowbase-io/knowbase/internal/model"
	"github.com/knowbase-io/knowbase/pkg/llm"
)

// CitationResolver resolves a 1-based message index of a thread into a
// citation: permalink, author display name, timestamp, and plaintext content.
type CitationResolver interface {
	Resolve(ctx context.Context, index int) (*model.Citation, error)
}

// CitationResolverFunc adapts a function to the CitationResolver interface.
type CitationResolverFunc func(ctx context.Context, index int) (*model.Citation, error)

// Resolve calls f.
func (f CitationResolverFunc) Resolve(ctx context.Context, index int) (*model.Citation, error) {
	return f(ctx, index)
}

// ThreadResolver resolves citations from the thread messages themselves,
// without platform permalinks. Used when no chat platform context exists.
func ThreadResolver(messages []model.ChatMessage) CitationResolver {
	return CitationResolverFunc(func(_ context.Context, index int) (*model.Citation, error) {
		if index < 1 || index > len(messages) {
			return nil, fmt.Errorf("%w: message index %d out of range", ErrCitationResolutionFailed, index)
		}
		msg := messages[index-1]
		return &model.Citation{
			Content:   msg.Text,
			Timestamp: msg.Timestamp,
			Username:  msg.User,
		}, nil
	})
}

// IngestReport summarizes one thread ingestion.
type IngestReport struct {
	PairsExtracted   int `json:"pairsExtracted"`
	QuestionsStored  int `json:"questionsStored"`
	CitationsStored  int `json:"citationsStored"`
	CitationsSkipped int `json:"citationsSkipped"`
	PairsSkipped     int `json:"pairsSkipped"`
}

// Ingestor turns chat threads into stored questions and citations.
type Ingestor struct {
	parser    *ThreadParser
	embedder  llm.EmbeddingProvider
	questions store.QuestionStore
	citations store.CitationStore
}

// NewIngestor creates an Ingestor.
func NewIngestor(parser *ThreadParser, embedder llm.EmbeddingProvider, questions store.QuestionStore, citations store.CitationStore) *Ingestor {
	return &Ingestor{
		parser:    parser,
		embedder:  embedder,
		questions: questions,
		citations: citations,
	}
}

// Ingest parses the thread and persists every extracted pair. Failures skip
// the smallest possible unit of work: a failed citation resolution skips
// that citation only, a failed embedding skips that pair only. A parser
// failure yields zero pairs and a zero report, not an error.
func (ing *Ingestor) Ingest(ctx context.Context, messages []model.ChatMessage, resolver CitationResolver) *IngestReport {
	report := &IngestReport{}

	pairs, err := ing.parser.Parse(ctx, messages)
	if err != nil {
		logger.Warnw("thread parsing failed, ingesting nothing", "error", err.Error())
		metrics.Get().RecordIngestion(0, 0, 0, err)
		return report
	}
	report.PairsExtracted = len(pairs)

	if len(pairs) == 0 {
		metrics.Get().RecordIngestion(0, 0, 0, nil)
		return report
	}

	if resolver == nil {
		resolver = ThreadResolver(messages)
	}

	for _, pair := range pairs {
		if err := ing.ingestPair(ctx, pair, resolver, report); err != nil {
			logger.Warnw("skipping pair", "error", err.Error(), "question", pair.Question)
			report.PairsSkipped++
		}
	}

	metrics.Get().RecordIngestion(report.QuestionsStored, report.CitationsStored, report.CitationsSkipped, nil)
	logger.Infow("thread ingested",
		"pairs", report.PairsExtracted,
		"questions_stored", report.QuestionsStored,
		"citations_stored", report.CitationsStored,
		"citations_skipped", report.CitationsSkipped)
	return report
}

func (ing *Ingestor) ingestPair(ctx context.Context, pair model.QuestionAnswerPair, resolver CitationResolver, report *IngestReport) error {
	embedding, err := ing.embedder.EmbedSingle(ctx, pair.Question)
	metrics.Get().RecordEmbedding(err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	// A pair with zero resolvable citations is still stored.
	citationIDs := make([]string, 0, len(pair.Citations))
	for _, index := range pair.Citations {
		citation, err := resolver.Resolve(ctx, index)
		if err != nil {
			logger.Warnw("skipping citation", "error", err.Error(), "index", index)
			report.CitationsSkipped++
			continue
		}

		if citation.ID == "" {
			citation.ID = uuid.NewString()
		}
		if err := ing.citations.Create(ctx, citation); err != nil {
			logger.Warnw("failed to store citation", "error", err.Error(), "index", index)
			report.CitationsSkipped++
			continue
		}

		citationIDs = append(citationIDs, citation.ID)
		report.CitationsStored++
	}

	stored := &model.StoredQuestion{
		Question:    pair.Question,
		Answer:      pair.Answer,
		CitationIDs: citationIDs,
		Embedding:   embedding,
	}
	if _, err := ing.questions.Create(ctx, stored); err != nil {
		return fmt.Errorf("failed to store question: %w", err)
	}

	report.QuestionsStored++
	return nil
}
