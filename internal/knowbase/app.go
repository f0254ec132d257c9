package knowbase

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/kart-io/version"
	goredis "github.com/redis/go-redis/v9"

	"github.com/knowbase-io/knowbase/internal/knowbase/biz"
	"github.com/knowbase-io/knowbase/internal/knowbase/handler"
	"github.com/knowbase-io/knowbase/internal/knowbase/router"
	"github.com/knowbase-io/knowbase/internal/knowbase/slackbot"
	"github.com/knowbase-io/knowbase/internal/knowbase/store"
	"github.com/knowbase-io/knowbase/pkg/app"
	"github.com/knowbase-io/knowbase/pkg/component/milvus"
	"github.com/knowbase-io/knowbase/pkg/component/postgres"
	"github.com/knowbase-io/knowbase/pkg/llm"
	"github.com/knowbase-io/knowbase/pkg/llm/resilience"
)

// NewApp creates the knowbase application.
func NewApp() *app.App {
	opts := NewOptions()
	return app.NewApp(
		app.WithName("knowbase"),
		app.WithShortDescription("Slack-integrated knowledge base assistant"),
		app.WithDescription("knowbase answers channel questions from a vector knowledge base\n"+
			"of question-answer pairs and ingests new pairs from threads marked\n"+
			"with a reaction."),
		app.WithOptions(opts),
		app.WithRunFunc(func() error { return run(opts) }),
	)
}

func run(opts *Options) error {
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Infow("Starting knowbase", "version", version.Get().GitVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vector store.
	milvusClient, err := milvus.New(opts.Milvus)
	if err != nil {
		return fmt.Errorf("failed to connect to milvus: %w", err)
	}
	defer func() {
		if err := milvusClient.Close(context.Background()); err != nil {
			logger.Warnw("failed to close milvus client", "error", err.Error())
		}
	}()

	questionStore := store.NewMilvusQuestionStore(milvusClient, opts.Knowledge.Collection, opts.Knowledge.EmbeddingDim)
	if err := questionStore.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure questions collection: %w", err)
	}

	// Citation store.
	pgClient, err := postgres.New(opts.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer func() {
		if err := pgClient.Close(); err != nil {
			logger.Warnw("failed to close postgres client", "error", err.Error())
		}
	}()
	if err := pgClient.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	citationStore, err := store.NewGormCitationStore(pgClient.DB())
	if err != nil {
		return fmt.Errorf("failed to initialize citation store: %w", err)
	}

	// Model providers. Embedding calls get retry and circuit breaking; chat
	// transport failures surface directly so the answer loop can resolve
	// them to its terminal apology path.
	embedder, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	resilientEmbedder := resilience.NewResilientEmbeddingProvider(embedder, nil, nil)

	chat, err := llm.NewChatProvider(opts.Chat.Provider, opts.Chat.ToConfigMap())
	if err != nil {
		return fmt.Errorf("failed to create chat provider: %w", err)
	}

	logger.Infow("Model providers ready",
		"embedding", resilientEmbedder.Name(),
		"chat", chat.Name())

	// Answer cache.
	var cache *biz.AnswerCache
	var redisClient *goredis.Client
	if opts.Cache.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         fmt.Sprintf("%s:%d", opts.Cache.Redis.Host, opts.Cache.Redis.Port),
			Password:     opts.Cache.Redis.Password,
			DB:           opts.Cache.Redis.Database,
			MaxRetries:   opts.Cache.Redis.MaxRetries,
			PoolSize:     opts.Cache.Redis.PoolSize,
			MinIdleConns: opts.Cache.Redis.MinIdleConns,
		})
		defer redisClient.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warnw("redis unreachable, answer cache disabled", "error", err.Error())
		} else {
			cache = biz.NewAnswerCache(redisClient, &biz.AnswerCacheConfig{
				Enabled:   true,
				TTL:       opts.Cache.TTL,
				KeyPrefix: opts.Cache.KeyPrefix,
			})
			logger.Info("Answer cache enabled")
		}
		pingCancel()
	}

	// Business services.
	searchSvc := biz.NewSearchService(resilientEmbedder, questionStore, citationStore)
	parser := biz.NewThreadParser(chat)
	engine := biz.NewAnswerEngine(chat, searchSvc, cache, biz.EngineConfig{
		MaxAttempts: opts.Knowledge.MaxAttempts,
		SearchLimit: opts.Knowledge.SearchLimit,
	})
	ingestor := biz.NewIngestor(parser, resilientEmbedder, questionStore, citationStore)

	// HTTP server.
	gin.SetMode(opts.Server.Mode)
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	h := handler.New(engine, searchSvc, parser, ingestor, resilientEmbedder, questionStore, citationStore)
	router.Register(ginEngine, h)

	httpServer := &http.Server{
		Addr:    opts.Server.Addr,
		Handler: ginEngine,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infow("HTTP server listening", "addr", opts.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	// Slack bot.
	if opts.Slack.Enabled {
		bot, err := slackbot.New(engine, ingestor, slackbot.Config{
			BotToken:       opts.Slack.BotToken,
			AppToken:       opts.Slack.AppToken,
			ChannelID:      opts.Slack.ChannelID,
			Reaction:       opts.Slack.Reaction,
			Backfill:       opts.Slack.Backfill,
			WorkerPoolSize: opts.Slack.WorkerPoolSize,
		})
		if err != nil {
			return fmt.Errorf("failed to create slack bot: %w", err)
		}
		go func() {
			if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("slack bot failed: %w", err)
			}
		}()
		logger.Infow("Slack bot started", "channel", opts.Slack.ChannelID)
	}

	// Wait for shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infow("Received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Errorw("Component failed, shutting down", "error", err.Error())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("HTTP server shutdown failed", "error", err.Error())
	}

	logger.Info("knowbase stopped")
	return nil
}
