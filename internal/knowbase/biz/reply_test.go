package biz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowbase-io/knowbase/internal/knowbase/biz"
)

func TestParseModelReplyAnswer(t *testing.T) {
	raw := `{"type":"answer","content":"Use the reset endpoint.","sources":["https://example.slack.com/archives/C01/p1"]}`

	reply, err := biz.ParseModelReply(raw)
	require.NoError(t, err)
	assert.Equal(t, biz.ReplyAnswer, reply.Type)
	assert.Equal(t, "Use the reset endpoint.", reply.Content)
	assert.Equal(t, []string{"https://example.slack.com/archives/C01/p1"}, reply.Sources)
}

func TestParseModelReplyNoAnswer(t *testing.T) {
	reply, err := biz.ParseModelReply(`{"type":"no_answer","reason":"nothing in the knowledge base"}`)
	require.NoError(t, err)
	assert.Equal(t, biz.ReplyNoAnswer, reply.Type)
	assert.Equal(t, "nothing in the knowledge base", reply.Reason)
}

func TestParseModelReplyNotQuestion(t *testing.T) {
	reply, err := biz.ParseModelReply(`{"type":"not_question"}`)
	require.NoError(t, err)
	assert.Equal(t, biz.ReplyNotQuestion, reply.Type)
}

func TestParseModelReplySearch(t *testing.T) {
	reply, err := biz.ParseModelReply(`{"type":"search_similar_questions","query":"api status","limit":5}`)
	require.NoError(t, err)
	assert.Equal(t, biz.ReplySearch, reply.Type)
	assert.Equal(t, "api status", reply.Query)
	assert.Equal(t, 5, reply.Limit)
}

func TestParseModelReplyInvalidJSON(t *testing.T) {
	_, err := biz.ParseModelReply("I think the answer is 42")
	assert.ErrorIs(t, err, biz.ErrModelOutputMalformed)
}

func TestParseModelReplyUnknownType(t *testing.T) {
	reply, err := biz.ParseModelReply(`{"type":"shrug","content":"whatever"}`)
	require.NoError(t, err)
	assert.Equal(t, biz.ReplyUnknown, reply.Type)
}

func TestParseModelReplyCodeFence(t *testing.T) {
	raw := "```json\n{\"type\":\"answer\",\"content\":\"fenced\"}\n```"

	reply, err := biz.ParseModelReply(raw)
	require.NoError(t, err)
	assert.Equal(t, biz.ReplyAnswer, reply.Type)
	assert.Equal(t, "fenced", reply.Content)
}
