package biz

import (
	"strings"

	"github.com/knowbase-io/knowbase/pkg/utils/json"
)

// ReplyType tags the shape of a model reply.
type ReplyType string

const (
	// ReplyAnswer is a direct answer with optional sources.
	ReplyAnswer ReplyType = "answer"
	// ReplyNoAnswer means the model declined to answer.
	ReplyNoAnswer ReplyType = "no_answer"
	// ReplyNotQuestion means the input was not a question.
	ReplyNotQuestion ReplyType = "not_question"
	// ReplySearch requests a similarity search before answering.
	ReplySearch ReplyType = "search_similar_questions"
	// ReplyUnknown is valid JSON with an unrecognized type tag.
	ReplyUnknown ReplyType = ""
)

// ModelReply is a parsed model response. Only the fields relevant to its
// Type are populated.
type ModelReply struct {
	Type    ReplyType `json:"type"`
	Content string    `json:"content"`
	Reason  string    `json:"reason"`
	Sources []string  `json:"sources"`
	Query   string    `json:"query"`
	Limit   int       `json:"limit"`
}

// ParseModelReply parses a raw model response into a tagged reply. Code
// fences around the JSON are tolerated. A response that is not valid JSON
// returns ErrModelOutputMalformed; valid JSON with an unrecognized type tag
// parses as ReplyUnknown.
func ParseModelReply(raw string) (*ModelReply, error) {
	trimmed := stripCodeFence(strings.TrimSpace(raw))

	var reply ModelReply
	if err := json.Unmarshal([]byte(trimmed), &reply); err != nil {
		return nil, ErrModelOutputMalformed
	}

	switch reply.Type {
	case ReplyAnswer, ReplyNoAnswer, ReplyNotQuestion, ReplySearch:
	default:
		reply.Type = ReplyUnknown
	}

	return &reply, nil
}

// stripCodeFence removes a surrounding markdown code fence, with or without
// a language tag.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line, e.g. "json".
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "" || !strings.ContainsAny(firstLine, "{[") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
