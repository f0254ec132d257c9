package biz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowbase-io/knowbase/internal/knowbase/biz"
	"github.com/knowbase-io/knowbase/internal/model"
	"github.com/knowbase-io/knowbase/pkg/llm"
)

func newTestEngine(chat *scriptedChat, questions *fakeQuestionStore) *biz.AnswerEngine {
	search := biz.NewSearchService(&fakeEmbedder{vector: []float32{0.1, 0.2}}, questions, newFakeCitationStore())
	return biz.NewAnswerEngine(chat, search, nil, biz.EngineConfig{})
}

func TestAnswerDirectAnswer(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"type":"answer","content":"Deploys run nightly.","sources":["https://example.slack.com/archives/C01/p1","https://example.slack.com/archives/C01/p2"]}`,
	}}

	result := newTestEngine(chat, &fakeQuestionStore{}).Answer(context.Background(), "When do deploys run?")

	assert.True(t, result.HasAnswer)
	assert.Equal(t, "Deploys run nightly.", result.Answer)
	assert.Len(t, result.Sources, 2)
	assert.Equal(t, 1, chat.calls)
}

func TestAnswerMalformedExhaustsAttempts(t *testing.T) {
	chat := &scriptedChat{replies: []string{"garbage", "still garbage", "more garbage"}}

	result := newTestEngine(chat, &fakeQuestionStore{}).Answer(context.Background(), "Is the API down?")

	assert.False(t, result.HasAnswer)
	assert.Equal(t, "I couldn't find a relevant answer to your question after multiple attempts.", result.Answer)
	assert.Equal(t, 3, chat.calls)
}

func TestAnswerMalformedAppendsCorrection(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		"not json at all",
		`{"type":"answer","content":"Recovered."}`,
	}}

	result := newTestEngine(chat, &fakeQuestionStore{}).Answer(context.Background(), "How do I reset?")

	require.True(t, result.HasAnswer)
	assert.Equal(t, 2, chat.calls)

	second := chat.history[1]
	require.Len(t, second, 4)
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	assert.Equal(t, "not json at all", second[2].Content)
	assert.Equal(t, "You didn't respond with valid JSON. Please try again.", second[3].Content)
}

func TestAnswerWrongShapeAppendsFormatCorrection(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"type":"haiku","content":"five seven five"}`,
		`{"type":"no_answer","reason":"nothing relevant stored"}`,
	}}

	result := newTestEngine(chat, &fakeQuestionStore{}).Answer(context.Background(), "What is the poem policy?")

	assert.False(t, result.HasAnswer)
	assert.Equal(t, "I don't know\n\nnothing relevant stored", result.Answer)

	second := chat.history[1]
	require.Len(t, second, 4)
	assert.Equal(t, "You didn't respond in the correct JSON format. Please try again.", second[3].Content)
}

func TestAnswerNotQuestion(t *testing.T) {
	chat := &scriptedChat{replies: []string{`{"type":"not_question"}`}}

	result := newTestEngine(chat, &fakeQuestionStore{}).Answer(context.Background(), "hello there")

	assert.False(t, result.HasAnswer)
	assert.Equal(t, "No question found", result.Answer)
}

func TestAnswerTransportFailure(t *testing.T) {
	chat := &scriptedChat{errs: []error{errors.New("connection refused")}}

	result := newTestEngine(chat, &fakeQuestionStore{}).Answer(context.Background(), "Is storage encrypted?")

	assert.False(t, result.HasAnswer)
	assert.Equal(t, "I couldn't process your question. Please try again.", result.Answer)
	assert.Equal(t, 1, chat.calls)
}

func TestAnswerEmptyReplyIsFatal(t *testing.T) {
	chat := &scriptedChat{replies: []string{"   "}}

	result := newTestEngine(chat, &fakeQuestionStore{}).Answer(context.Background(), "Is storage encrypted?")

	assert.False(t, result.HasAnswer)
	assert.Equal(t, "I couldn't process your question. Please try again.", result.Answer)
	assert.Equal(t, 1, chat.calls)
}

func TestAnswerSearchWithNoResults(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"type":"search_similar_questions","query":"api outage","limit":3}`,
	}}

	result := newTestEngine(chat, &fakeQuestionStore{}).Answer(context.Background(), "Is the API down?")

	assert.False(t, result.HasAnswer)
	assert.Equal(t, "I couldn't find any relevant information for your question.", result.Answer)
	assert.Equal(t, 1, chat.calls)
}

func TestAnswerSearchThenAnswer(t *testing.T) {
	questions := &fakeQuestionStore{searchResults: []model.SimilarQuestion{
		{ID: 1, Question: "Is the API down?", Answer: "Down until noon UTC", Similarity: 0.92},
	}}
	chat := &scriptedChat{replies: []string{
		`{"type":"search_similar_questions","query":"api outage"}`,
		`{"type":"answer","content":"Yes, until noon UTC.","sources":[]}`,
	}}

	result := newTestEngine(chat, questions).Answer(context.Background(), "Is the API down?")

	require.True(t, result.HasAnswer)
	assert.Equal(t, "Yes, until noon UTC.", result.Answer)
	assert.Equal(t, 2, chat.calls)

	// The second call must carry the search results as conversation context.
	second := chat.history[1]
	require.Len(t, second, 4)
	assert.Equal(t, llm.RoleUser, second[3].Role)
	assert.Contains(t, second[3].Content, "Down until noon UTC")
}

func TestAnswerEmbeddingFailureDegradesToNoResults(t *testing.T) {
	search := biz.NewSearchService(
		&fakeEmbedder{err: errors.New("embedding provider down")},
		&fakeQuestionStore{searchResults: []model.SimilarQuestion{{ID: 1, Similarity: 0.9}}},
		newFakeCitationStore(),
	)
	chat := &scriptedChat{replies: []string{
		`{"type":"search_similar_questions","query":"api outage"}`,
	}}
	engine := biz.NewAnswerEngine(chat, search, nil, biz.EngineConfig{})

	result := engine.Answer(context.Background(), "Is the API down?")

	assert.False(t, result.HasAnswer)
	assert.Equal(t, "I couldn't find any relevant information for your question.", result.Answer)
}
