package slackbot

import (
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowbase-io/knowbase/internal/model"
)

func richTextMessage(elements ...slack.RichTextSectionElement) *slack.Message {
	return &slack.Message{Msg: slack.Msg{
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewRichTextBlock("", slack.NewRichTextSection(elements...)),
		}},
	}}
}

func TestExtractPlaintextFromRichText(t *testing.T) {
	msg := richTextMessage(
		slack.NewRichTextSectionTextElement("is the API down? see ", nil),
		slack.NewRichTextSectionLinkElement("https://status.example.com", "status page", nil),
	)

	assert.Equal(t, "is the API down? see status page", ExtractPlaintext(msg))
}

func TestExtractPlaintextFallsBackToText(t *testing.T) {
	msg := &slack.Message{Msg: slack.Msg{Text: "  plain question  "}}
	assert.Equal(t, "plain question", ExtractPlaintext(msg))
}

func TestToChatMessages(t *testing.T) {
	thread := []slack.Message{
		{Msg: slack.Msg{User: "U01", Text: "Is the API down?", Timestamp: "1719238400.000100"}},
		{Msg: slack.Msg{User: "U02", Text: "Yes, until noon", Timestamp: "1719238460.000200"}},
	}

	messages := toChatMessages(thread)

	require.Len(t, messages, 2)
	assert.Equal(t, "U01", messages[0].User)
	assert.Equal(t, "Is the API down?", messages[0].Text)
	assert.Equal(t, "1719238460.000200", messages[1].Timestamp)
}

func TestAnswerBlocksWithSources(t *testing.T) {
	result := &model.AnswerResult{
		Answer:    "Deploys run nightly.",
		HasAnswer: true,
		Sources:   []string{"https://example.slack.com/p1", "https://example.slack.com/p2"},
	}

	blocks := answerBlocks(result)

	require.Len(t, blocks, 3)
	sources, ok := blocks[2].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Equal(t, "Sources: <https://example.slack.com/p1|#1> <https://example.slack.com/p2|#2>", sources.Text.Text)
}

func TestAnswerBlocksWithoutSources(t *testing.T) {
	blocks := answerBlocks(&model.AnswerResult{Answer: "No sources.", HasAnswer: true})
	assert.Len(t, blocks, 1)
}
