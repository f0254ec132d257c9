// Package slackbot runs the Slack socket mode frontend of the knowledge
// base: it answers channel questions in threads and ingests threads marked
// with a reaction.
package slackbot

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/knowbase-io/knowbase/internal/knowbase/biz"
	"github.com/knowbase-io/knowbase/internal/model"
)

// Config configures the Slack bot.
type Config struct {
	// BotToken is the xoxb bot token.
	BotToken string
	// AppToken is the xapp app-level token for socket mode.
	AppToken string
	// ChannelID is the single watched channel.
	ChannelID string
	// Reaction marks a thread for ingestion. Default "white_check_mark".
	Reaction string
	// Backfill ingests already-marked threads from channel history on
	// startup.
	Backfill bool
	// WorkerPoolSize bounds concurrent event handlers.
	WorkerPoolSize int
}

// Bot is the Slack socket mode event loop.
type Bot struct {
	api      *slack.Client
	socket   *socketmode.Client
	engine   *biz.AnswerEngine
	ingestor *biz.Ingestor
	pool     *ants.Pool
	cfg      Config
}

// New creates a Bot.
func New(engine *biz.AnswerEngine, ingestor *biz.Ingestor, cfg Config) (*Bot, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slackbot: bot token and app token are required")
	}
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("slackbot: channel id is required")
	}
	if cfg.Reaction == "" {
		cfg.Reaction = "white_check_mark"
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 16
	}

	pool, err := ants.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("slackbot: failed to create worker pool: %w", err)
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	socket := socketmode.New(api)

	return &Bot{
		api:      api,
		socket:   socket,
		engine:   engine,
		ingestor: ingestor,
		pool:     pool,
		cfg:      cfg,
	}, nil
}

// Run starts the socket mode loop and blocks until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	defer b.pool.Release()

	if b.cfg.Backfill {
		b.submit(func() { b.backfill(ctx) })
	}

	go func() {
		if err := b.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			logger.Errorw("socket mode connection failed", "error", err.Error())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-b.socket.Events:
			if !ok {
				return nil
			}
			b.dispatch(ctx, evt)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		logger.Info("Connecting to Slack in socket mode")
	case socketmode.EventTypeConnected:
		logger.Info("Connected to Slack")
	case socketmode.EventTypeConnectionError:
		logger.Warnw("Slack connection error", "data", fmt.Sprintf("%v", evt.Data))
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			b.socket.Ack(*evt.Request)
		}
		b.handleEvent(ctx, apiEvent)
	}
}

func (b *Bot) handleEvent(ctx context.Context, apiEvent slackevents.EventsAPIEvent) {
	switch inner := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		event := *inner
		b.submit(func() { b.handleMessage(ctx, &event) })
	case *slackevents.ReactionAddedEvent:
		event := *inner
		b.submit(func() { b.handleReaction(ctx, &event) })
	}
}

// submit runs fn on the worker pool, falling back to inline execution if the
// pool rejects it.
func (b *Bot) submit(fn func()) {
	if err := b.pool.Submit(fn); err != nil {
		logger.Warnw("worker pool rejected task, running inline", "error", err.Error())
		fn()
	}
}

// handleMessage answers top-level channel messages in a thread. Thread
// replies, bot messages, and message edits are ignored.
func (b *Bot) handleMessage(ctx context.Context, event *slackevents.MessageEvent) {
	if event.Channel != b.cfg.ChannelID {
		return
	}
	if event.ThreadTimeStamp != "" || event.BotID != "" || event.SubType != "" {
		return
	}

	text := ExtractPlaintext(&slack.Message{Msg: slack.Msg{Text: event.Text, Blocks: event.Blocks}})
	if text == "" {
		return
	}

	result := b.engine.Answer(ctx, text)
	logger.Infow("answered channel message",
		"channel", event.Channel,
		"has_answer", result.HasAnswer)
	if !result.HasAnswer {
		return
	}

	_, _, err := b.api.PostMessageContext(ctx, event.Channel,
		slack.MsgOptionTS(event.TimeStamp),
		slack.MsgOptionText(result.Answer, false),
		slack.MsgOptionBlocks(answerBlocks(result)...),
	)
	if err != nil {
		logger.Errorw("failed to post answer", "error", err.Error(), "channel", event.Channel)
	}
}

// handleReaction ingests the thread under a message marked with the
// configured reaction.
func (b *Bot) handleReaction(ctx context.Context, event *slackevents.ReactionAddedEvent) {
	if event.Item.Channel != b.cfg.ChannelID || event.Reaction != b.cfg.Reaction {
		return
	}
	b.ingestThread(ctx, event.Item.Timestamp)
}

func (b *Bot) ingestThread(ctx context.Context, threadTS string) {
	thread, err := b.fetchThread(ctx, threadTS)
	if err != nil {
		logger.Errorw("failed to fetch thread", "error", err.Error(), "thread_ts", threadTS)
		return
	}
	if len(thread) == 0 {
		return
	}

	b.ingestor.Ingest(ctx, toChatMessages(thread), b.citationResolver(ctx, thread))
}

func (b *Bot) fetchThread(ctx context.Context, threadTS string) ([]slack.Message, error) {
	var thread []slack.Message
	cursor := ""
	for {
		messages, hasMore, nextCursor, err := b.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: b.cfg.ChannelID,
			Timestamp: threadTS,
			Cursor:    cursor,
		})
		if err != nil {
			return nil, err
		}
		thread = append(thread, messages...)
		if !hasMore {
			return thread, nil
		}
		cursor = nextCursor
	}
}

// citationResolver resolves thread message indexes to citations with a
// permalink and the author's display name.
func (b *Bot) citationResolver(ctx context.Context, thread []slack.Message) biz.CitationResolver {
	return biz.CitationResolverFunc(func(_ context.Context, index int) (*model.Citation, error) {
		if index < 1 || index > len(thread) {
			return nil, fmt.Errorf("message index %d out of range", index)
		}
		msg := &thread[index-1]
		if msg.Timestamp == "" {
			return nil, fmt.Errorf("message %d has no timestamp", index)
		}

		permalink, err := b.api.GetPermalinkContext(ctx, &slack.PermalinkParameters{
			Channel: b.cfg.ChannelID,
			Ts:      msg.Timestamp,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get permalink: %w", err)
		}

		content := ExtractPlaintext(msg)
		if content == "" {
			content = "No content available"
		}

		return &model.Citation{
			Permalink: permalink,
			Content:   content,
			Timestamp: msg.Timestamp,
			Username:  b.resolveUsername(ctx, msg.User),
		}, nil
	})
}

// resolveUsername looks up a user's display name, falling back to the raw
// user id on any failure.
func (b *Bot) resolveUsername(ctx context.Context, userID string) string {
	if userID == "" {
		return "Unknown User"
	}

	user, err := b.api.GetUserInfoContext(ctx, userID)
	if err != nil || user == nil {
		logger.Debugw("failed to look up user", "user", userID)
		return userID
	}
	if user.RealName != "" {
		return user.RealName
	}
	if user.Name != "" {
		return user.Name
	}
	return userID
}

// backfill scans channel history and ingests every thread already marked
// with the configured reaction.
func (b *Bot) backfill(ctx context.Context) {
	logger.Infow("backfilling marked threads", "channel", b.cfg.ChannelID)

	cursor := ""
	ingested := 0
	for {
		resp, err := b.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: b.cfg.ChannelID,
			Cursor:    cursor,
			Limit:     200,
		})
		if err != nil {
			logger.Errorw("failed to fetch channel history", "error", err.Error())
			return
		}

		for i := range resp.Messages {
			msg := &resp.Messages[i]
			if msg.Timestamp == "" || !hasReaction(msg, b.cfg.Reaction) {
				continue
			}
			b.ingestThread(ctx, msg.Timestamp)
			ingested++
		}

		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		cursor = resp.ResponseMetaData.NextCursor
	}

	logger.Infow("backfill completed", "threads", ingested)
}

func hasReaction(msg *slack.Message, name string) bool {
	for _, reaction := range msg.Reactions {
		if reaction.Name == name {
			return true
		}
	}
	return false
}
