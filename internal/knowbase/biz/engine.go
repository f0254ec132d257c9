package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/knowbase-io/knowbase/internal/knowbase/metrics"
	"github.com/knowbase-io/knowbase/internal/model"
	"github.com/knowbase-io/knowbase/pkg/llm"
	"github.com/knowbase-io/knowbase/pkg/utils/json"
)

// DefaultMaxAttempts bounds the answer loop.
const DefaultMaxAttempts = 3

// Terminal and corrective messages of the answer loop. These are
// user-visible contract strings, not free to change.
const (
	answerNoQuestion     = "No question found"
	answerNoRelevantInfo = "I couldn't find any relevant information for your question."
	answerExhausted      = "I couldn't find a relevant answer to your question after multiple attempts."
	answerProcessFailure = "I couldn't process your question. Please try again."

	correctWrongFormat = "You didn't respond in the correct JSON format. Please try again."
	correctInvalidJSON = "You didn't respond with valid JSON. Please try again."
)

const answerSystemPrompt = `You are an AI assistant that can answer questions based on a knowledge base. You have access to a vector database of question-answer pairs. All of your answers must be directly from the search results; if you are even a little unsure, return a response with type: "no_answer".

IMPORTANT: First determine if the user's input is a question that requires information. If it's not a question (e.g., it's a greeting, statement, command, or other non-question), return a response with type: "not_question".

When responding, ALWAYS use the following JSON format:

For normal answers:
{
  "type": "answer",
  "content": "Your detailed answer in markdown format.",
  "sources": ["https://example.slack.com/...", "https://example.slack.com/..."]
}

For questions you can't answer:
{
  "type": "no_answer",
  "reason": "Explanation of why you can't answer"
}

For non-questions:
{
  "type": "not_question"
}

For searching similar questions (this initiates a search). You MUST search for similar questions before answering:
{
  "type": "search_similar_questions",
  "query": "The search query",
  "limit": 3
}

Your content for answers should include markdown formatting and MUST quote at least one source using a Markdown quote block. The search results will include citationDetails that contain permalinks, content, and the username of each citation's author. Use this content in your answer to provide more accurate information and more comprehensive quotes. ALWAYS include the username in your citation format.

Example answer format with citation content and username:
{
  "type": "answer",
  "content": "No, you cannot use this project for commercial purposes.\n\n> this is not for commercial use\n> additional context from the message\n- [(source)](https://example.slack.com/archives/C0123456789/p1719238400253229) by John Doe",
  "sources": ["https://example.slack.com/archives/C0123456789/p1719238400253229"]
}`

// EngineConfig configures the answer engine.
type EngineConfig struct {
	// MaxAttempts bounds the retry loop. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// SearchLimit is the default similarity search limit when the model
	// does not supply one.
	SearchLimit int
	// SystemPrompt overrides the built-in system instruction when set.
	SystemPrompt string
}

// AnswerEngine answers questions against the knowledge base through a
// bounded retry loop over the language model. Answer never returns an
// error; every failure path resolves to an AnswerResult with
// HasAnswer=false.
type AnswerEngine struct {
	chat   llm.ChatProvider
	search *SearchService
	cache  *AnswerCache
	cfg    EngineConfig
}

// NewAnswerEngine creates an AnswerEngine. The cache is optional.
func NewAnswerEngine(chat llm.ChatProvider, search *SearchService, cache *AnswerCache, cfg EngineConfig) *AnswerEngine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 3
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = answerSystemPrompt
	}
	return &AnswerEngine{
		chat:   chat,
		search: search,
		cache:  cache,
		cfg:    cfg,
	}
}

// loopState is the answer loop state between model calls.
type loopState struct {
	attempt  int
	messages []llm.Message
}

// searchRequest is a similarity search the loop must run before the next
// model call.
type searchRequest struct {
	query string
	limit int
}

// transition is the outcome of one step: exactly one of terminal or search
// is set, or neither when the step only appended a corrective message.
type transition struct {
	state    loopState
	terminal *model.AnswerResult
	search   *searchRequest
}

// step is the pure transition of the answer loop. Given the state after a
// model call and the raw reply, it classifies the reply and returns either
// a terminal result, a search request, or a new state carrying a
// corrective message. It performs no I/O.
func (e *AnswerEngine) step(state loopState, question, raw string) transition {
	reply, err := ParseModelReply(raw)
	if err != nil {
		logger.Debugw("model reply is not valid JSON", "attempt", state.attempt)
		return transition{state: loopState{
			attempt:  state.attempt,
			messages: appendCorrection(state.messages, raw, correctInvalidJSON),
		}}
	}

	switch reply.Type {
	case ReplyNotQuestion:
		return transition{state: state, terminal: &model.AnswerResult{Answer: answerNoQuestion, HasAnswer: false}}

	case ReplyNoAnswer:
		answer := "I don't know\n\n" + reply.Reason
		return transition{state: state, terminal: &model.AnswerResult{Answer: answer, HasAnswer: false}}

	case ReplyAnswer:
		sources := reply.Sources
		if sources == nil {
			sources = []string{}
		}
		return transition{state: state, terminal: &model.AnswerResult{
			Answer:    reply.Content,
			HasAnswer: true,
			Sources:   sources,
		}}

	case ReplySearch:
		query := reply.Query
		if query == "" {
			query = question
		}
		limit := reply.Limit
		if limit <= 0 {
			limit = e.cfg.SearchLimit
		}
		return transition{state: state, search: &searchRequest{query: query, limit: limit}}

	default:
		logger.Debugw("model reply has unrecognized type", "attempt", state.attempt)
		return transition{state: loopState{
			attempt:  state.attempt,
			messages: appendCorrection(state.messages, raw, correctWrongFormat),
		}}
	}
}

// Answer runs the bounded answer loop for one question. It drives step
// with model calls and executes the search requests it yields.
func (e *AnswerEngine) Answer(ctx context.Context, question string) *model.AnswerResult {
	if cached := e.cacheGet(ctx, question); cached != nil {
		metrics.Get().RecordAnswer(cached.HasAnswer, true, nil)
		return cached
	}

	state := loopState{messages: []llm.Message{
		{Role: llm.RoleSystem, Content: e.cfg.SystemPrompt},
		{Role: llm.RoleUser, Content: question},
	}}

	for state.attempt < e.cfg.MaxAttempts {
		state.attempt++

		start := time.Now()
		raw, err := e.chat.Chat(ctx, state.messages)
		metrics.Get().RecordModelCall(time.Since(start), err)

		// Transport failure or an empty reply is fatal for this call,
		// not a retryable attempt.
		if err != nil {
			logger.Errorw("language model call failed", "error", err.Error(), "attempt", state.attempt)
			return e.finish(ctx, question, &model.AnswerResult{Answer: answerProcessFailure, HasAnswer: false})
		}
		if strings.TrimSpace(raw) == "" {
			logger.Warnw("language model returned empty reply", "attempt", state.attempt)
			return e.finish(ctx, question, &model.AnswerResult{Answer: answerProcessFailure, HasAnswer: false})
		}

		next := e.step(state, question, raw)
		if next.terminal != nil {
			return e.finish(ctx, question, next.terminal)
		}
		state = next.state

		if next.search != nil {
			results := e.runSearch(ctx, next.search.query, next.search.limit)
			if len(results) == 0 {
				return e.finish(ctx, question, &model.AnswerResult{Answer: answerNoRelevantInfo, HasAnswer: false})
			}

			payload, merr := json.Marshal(map[string]any{"results": results})
			if merr != nil {
				logger.Errorw("failed to marshal search results", "error", merr.Error())
				return e.finish(ctx, question, &model.AnswerResult{Answer: answerProcessFailure, HasAnswer: false})
			}
			state.messages = append(state.messages,
				llm.Message{Role: llm.RoleAssistant, Content: raw},
				llm.Message{Role: llm.RoleUser, Content: string(payload)},
			)
		}
	}

	return e.finish(ctx, question, &model.AnswerResult{Answer: answerExhausted, HasAnswer: false})
}

// runSearch executes a similarity search for the answer loop. Any failure,
// including an unavailable embedding provider, degrades to no results.
func (e *AnswerEngine) runSearch(ctx context.Context, query string, limit int) []model.SimilarQuestion {
	results, err := e.search.Search(ctx, query, limit)
	if err != nil {
		logger.Warnw("similarity search degraded to empty", "error", err.Error())
		return nil
	}
	return results
}

func (e *AnswerEngine) finish(ctx context.Context, question string, result *model.AnswerResult) *model.AnswerResult {
	metrics.Get().RecordAnswer(result.HasAnswer, false, nil)
	if result.HasAnswer {
		e.cacheSet(ctx, question, result)
	}
	return result
}

func (e *AnswerEngine) cacheGet(ctx context.Context, question string) *model.AnswerResult {
	if e.cache == nil {
		return nil
	}
	result, err := e.cache.Get(ctx, question)
	if err != nil {
		return nil
	}
	return result
}

func (e *AnswerEngine) cacheSet(ctx context.Context, question string, result *model.AnswerResult) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, question, result); err != nil {
		logger.Warnw("failed to cache answer", "error", err.Error())
	}
}

func appendCorrection(messages []llm.Message, raw, correction string) []llm.Message {
	return append(messages,
		llm.Message{Role: llm.RoleAssistant, Content: raw},
		llm.Message{Role: llm.RoleUser, Content: correction},
	)
}
