package biz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowbase-io/knowbase/internal/knowbase/biz"
	"github.com/knowbase-io/knowbase/internal/model"
)

var apiDownThread = []model.ChatMessage{
	{User: "alice", Text: "Is the API down?", Timestamp: "1719238400.000100"},
	{User: "bob", Text: "Yes, until noon UTC", Timestamp: "1719238460.000200"},
}

const apiDownReply = `{"qa_pairs":[{"question":"Is the API currently unavailable?","answer":"The API is down until noon UTC","citations":[1,2]}]}`

func TestIngestStoresQuestionAndCitations(t *testing.T) {
	chat := &scriptedChat{replies: []string{apiDownReply}}
	questions := &fakeQuestionStore{}
	citations := newFakeCitationStore()
	ing := biz.NewIngestor(biz.NewThreadParser(chat), &fakeEmbedder{vector: []float32{0.5}}, questions, citations)

	report := ing.Ingest(context.Background(), apiDownThread, nil)

	assert.Equal(t, 1, report.PairsExtracted)
	assert.Equal(t, 1, report.QuestionsStored)
	assert.Equal(t, 2, report.CitationsStored)
	assert.Equal(t, 0, report.CitationsSkipped)

	require.Len(t, questions.created, 1)
	stored := questions.created[0]
	assert.Equal(t, "Is the API currently unavailable?", stored.Question)
	assert.Equal(t, "The API is down until noon UTC", stored.Answer)
	assert.Len(t, stored.CitationIDs, 2)
	assert.Len(t, citations.rows, 2)

	first, err := citations.Get(context.Background(), stored.CitationIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Username)
	assert.Equal(t, "Is the API down?", first.Content)
}

func TestIngestZeroPairsWritesNothing(t *testing.T) {
	chat := &scriptedChat{replies: []string{`{"qa_pairs":[]}`}}
	questions := &fakeQuestionStore{}
	citations := newFakeCitationStore()
	ing := biz.NewIngestor(biz.NewThreadParser(chat), &fakeEmbedder{vector: []float32{0.5}}, questions, citations)

	report := ing.Ingest(context.Background(), apiDownThread, nil)

	assert.Equal(t, 0, report.PairsExtracted)
	assert.Empty(t, questions.created)
	assert.Empty(t, citations.rows)
}

func TestIngestParserFailureWritesNothing(t *testing.T) {
	chat := &scriptedChat{errs: []error{errors.New("gateway timeout")}}
	questions := &fakeQuestionStore{}
	ing := biz.NewIngestor(biz.NewThreadParser(chat), &fakeEmbedder{vector: []float32{0.5}}, questions, newFakeCitationStore())

	report := ing.Ingest(context.Background(), apiDownThread, nil)

	assert.Equal(t, 0, report.QuestionsStored)
	assert.Empty(t, questions.created)
}

func TestIngestCitationFailureSkipsCitationOnly(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"qa_pairs":[{"question":"Is the API currently unavailable?","answer":"The API is down until noon UTC","citations":[1,7]}]}`,
	}}
	questions := &fakeQuestionStore{}
	citations := newFakeCitationStore()
	ing := biz.NewIngestor(biz.NewThreadParser(chat), &fakeEmbedder{vector: []float32{0.5}}, questions, citations)

	// Index 7 is out of range for a two message thread.
	report := ing.Ingest(context.Background(), apiDownThread, nil)

	assert.Equal(t, 1, report.QuestionsStored)
	assert.Equal(t, 1, report.CitationsStored)
	assert.Equal(t, 1, report.CitationsSkipped)

	require.Len(t, questions.created, 1)
	assert.Len(t, questions.created[0].CitationIDs, 1)
}

func TestIngestZeroResolvableCitationsStillStoresPair(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"qa_pairs":[{"question":"Is the API currently unavailable?","answer":"The API is down until noon UTC","citations":[9]}]}`,
	}}
	questions := &fakeQuestionStore{}
	ing := biz.NewIngestor(biz.NewThreadParser(chat), &fakeEmbedder{vector: []float32{0.5}}, questions, newFakeCitationStore())

	report := ing.Ingest(context.Background(), apiDownThread, nil)

	assert.Equal(t, 1, report.QuestionsStored)
	require.Len(t, questions.created, 1)
	assert.Empty(t, questions.created[0].CitationIDs)
}

func TestIngestEmbeddingFailureSkipsPair(t *testing.T) {
	chat := &scriptedChat{replies: []string{apiDownReply}}
	questions := &fakeQuestionStore{}
	citations := newFakeCitationStore()
	ing := biz.NewIngestor(biz.NewThreadParser(chat), &fakeEmbedder{err: errors.New("quota exceeded")}, questions, citations)

	report := ing.Ingest(context.Background(), apiDownThread, nil)

	assert.Equal(t, 1, report.PairsExtracted)
	assert.Equal(t, 1, report.PairsSkipped)
	assert.Equal(t, 0, report.QuestionsStored)
	assert.Empty(t, questions.created)
	assert.Empty(t, citations.rows)
}
