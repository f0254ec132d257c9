package biz

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/knowbase-io/knowbase/internal/knowbase/metrics"
	"github.com/knowbase-io/knowbase/internal/model"
	"github.com/knowbase-io/knowbase/pkg/llm"
	"github.com/knowbase-io/knowbase/pkg/utils/json"
)

// citationMarkerRe matches residual [#N] markers the model may echo into
// extracted text despite the paraphrasing instruction.
var citationMarkerRe = regexp.MustCompile(`\[#\d+\]`)

const parserSystemPromptTemplate = `You are a Slack help desk QA extractor. You are given a thread of messages from a Slack channel. You must extract the question-answer pairs from the thread.

# CORE RULES
1. FORMATTING:
   - Output ONLY valid JSON using this structure:
     { "qa_pairs": [ { "question": "...", "answer": "...", "citations": [...] } ] }
   - citations is an array of message indexes (starting from 1) that contain the answer.
   - When no pairs found: { "qa_pairs": [] }

2. CONTENT PARAPHRASING:
   - Strip ALL message metadata (user names, [#N] refs, timestamps)
   - Convert relative to absolute time:
     - Current: %s
     - Example: "yesterday" means the previous calendar date
   - Generalize personal/circumstantial queries:
     - "Can I use React for my dating app?" becomes "Can React be used for dating apps?"
     - Omit if not generalizable

3. QUALITY FILTERING:
   - MUST OMIT:
     - Unanswered/unclear questions
     - Personal logistics ("When's my meeting?")
     - Duplicates
   - MUST KEEP:
     - Policy clarifications
     - Technical solutions
     - Reusable knowledge

# OUTPUT EXAMPLE
Input messages:
  [#3 Alice 2023-11-05T09:12:00Z]
  Is the API down right now?
  [#4 Bob 2023-11-05T09:14:00Z]
  Yes, until 2023-11-06T12:00Z

Output:
{
  "qa_pairs": [{
    "question": "Is the API currently unavailable?",
    "answer": "The API is down until 2023-11-06 12:00 UTC",
    "citations": [3,4]
  }]
}`

// ThreadParser extracts reusable question-answer pairs from chat threads
// with a single schema-constrained model call.
type ThreadParser struct {
	chat llm.ChatProvider

	// now is overridable for tests.
	now func() time.Time
}

// NewThreadParser creates a ThreadParser.
func NewThreadParser(chat llm.ChatProvider) *ThreadParser {
	return &ThreadParser{
		chat: chat,
		now:  time.Now,
	}
}

// FormatThread renders messages into the numbered transcript handed to the
// model. The 1-based block index is the citation index surfaced to it.
func FormatThread(messages []model.ChatMessage) string {
	blocks := make([]string, 0, len(messages))
	for i, msg := range messages {
		user := msg.User
		if user == "" {
			user = "Unknown"
		}
		text := msg.Text
		if text == "" {
			text = "No content"
		}
		blocks = append(blocks, fmt.Sprintf("[#%d %s %s]\n%s", i+1, user, msg.Timestamp, text))
	}
	return strings.Join(blocks, "\n\n")
}

// StripCitationMarkers removes [#N] markers from extracted text. No-op on
// text without markers.
func StripCitationMarkers(text string) string {
	return strings.TrimSpace(citationMarkerRe.ReplaceAllString(text, ""))
}

type qaPairsEnvelope struct {
	QAPairs []model.QuestionAnswerPair `json:"qa_pairs"`
}

// Parse extracts question-answer pairs from a thread. A reply that fails
// schema parsing yields an empty slice, never partial data. A transport
// failure is returned as an error for the caller to decide on.
func (p *ThreadParser) Parse(ctx context.Context, messages []model.ChatMessage) ([]model.QuestionAnswerPair, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	systemPrompt := fmt.Sprintf(parserSystemPromptTemplate, p.now().UTC().Format(time.RFC3339))

	start := time.Now()
	raw, err := p.chat.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: FormatThread(messages)},
	})
	metrics.Get().RecordModelCall(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	var envelope qaPairsEnvelope
	if err := json.Unmarshal([]byte(stripCodeFence(strings.TrimSpace(raw))), &envelope); err != nil {
		logger.Warnw("thread parser reply failed schema parsing", "error", err.Error())
		return nil, nil
	}

	pairs := make([]model.QuestionAnswerPair, 0, len(envelope.QAPairs))
	for _, pair := range envelope.QAPairs {
		pair.Question = StripCitationMarkers(pair.Question)
		pair.Answer = StripCitationMarkers(pair.Answer)
		if pair.Question == "" || pair.Answer == "" {
			continue
		}
		pairs = append(pairs, pair)
	}

	logger.Debugw("thread parsed", "messages", len(messages), "pairs", len(pairs))
	return pairs, nil
}
