package slackbot

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/knowbase-io/knowbase/internal/model"
)

// ExtractPlaintext pulls the plain text out of a message's rich text blocks,
// falling back to the raw text field when no blocks are present.
func ExtractPlaintext(msg *slack.Message) string {
	var sb strings.Builder

	for _, block := range msg.Blocks.BlockSet {
		richText, ok := block.(*slack.RichTextBlock)
		if !ok {
			continue
		}
		for _, element := range richText.Elements {
			section, ok := element.(*slack.RichTextSection)
			if !ok {
				continue
			}
			for _, inner := range section.Elements {
				switch e := inner.(type) {
				case *slack.RichTextSectionTextElement:
					sb.WriteString(e.Text)
				case *slack.RichTextSectionLinkElement:
					if e.Text != "" {
						sb.WriteString(e.Text)
					} else {
						sb.WriteString(e.URL)
					}
				case *slack.RichTextSectionUserElement:
					sb.WriteString("<@" + e.UserID + ">")
				case *slack.RichTextSectionEmojiElement:
					sb.WriteString(":" + e.Name + ":")
				}
			}
		}
	}

	if sb.Len() > 0 {
		return strings.TrimSpace(sb.String())
	}
	return strings.TrimSpace(msg.Text)
}

// toChatMessages converts a thread of platform messages into the neutral
// chat message form handed to the thread parser.
func toChatMessages(thread []slack.Message) []model.ChatMessage {
	messages := make([]model.ChatMessage, 0, len(thread))
	for i := range thread {
		messages = append(messages, model.ChatMessage{
			User:      thread[i].User,
			Text:      ExtractPlaintext(&thread[i]),
			Timestamp: thread[i].Timestamp,
		})
	}
	return messages
}

// answerBlocks renders an answer with its numbered source links as Slack
// blocks. Sources display as "#1 #2 ..." linked to their permalinks.
func answerBlocks(result *model.AnswerResult) []slack.Block {
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, result.Answer, false, false),
			nil, nil,
		),
	}

	if len(result.Sources) == 0 {
		return blocks
	}

	links := make([]string, 0, len(result.Sources))
	for i, source := range result.Sources {
		links = append(links, fmt.Sprintf("<%s|#%d>", source, i+1))
	}

	blocks = append(blocks,
		slack.NewDividerBlock(),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "Sources: "+strings.Join(links, " "), false, false),
			nil, nil,
		),
	)
	return blocks
}
