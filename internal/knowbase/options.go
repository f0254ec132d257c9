// Package knowbase provides the knowledge base service application.
package knowbase

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/knowbase-io/knowbase/pkg/component/postgres"
	logopts "github.com/knowbase-io/knowbase/pkg/options/logger"
	milvusopts "github.com/knowbase-io/knowbase/pkg/options/milvus"
)

// Options contains all knowledge base service options.
type Options struct {
	// Server contains HTTP server configuration.
	Server *ServerOptions `json:"server" mapstructure:"server"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Milvus contains vector store configuration.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// Postgres contains citation store configuration.
	Postgres *postgres.Options `json:"postgres" mapstructure:"postgres"`

	// Embedding contains embedding provider configuration.
	Embedding *LLMProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *LLMProviderOptions `json:"chat" mapstructure:"chat"`

	// Knowledge contains knowledge base behavior configuration.
	Knowledge *KnowledgeOptions `json:"knowledge" mapstructure:"knowledge"`

	// Slack contains Slack bot configuration.
	Slack *SlackOptions `json:"slack" mapstructure:"slack"`

	// Cache contains answer cache configuration.
	Cache *CacheOptions `json:"cache" mapstructure:"cache"`
}

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	// Addr is the listen address.
	Addr string `json:"addr" mapstructure:"addr"`

	// Mode is the gin mode (debug, release, test).
	Mode string `json:"mode" mapstructure:"mode"`
}

// LLMProviderOptions configures a model provider.
type LLMProviderOptions struct {
	// Provider is the registered provider name (openai, gemini).
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL is the API base address.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey authenticates against the provider.
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model is the model name.
	Model string `json:"model" mapstructure:"model"`

	// JSONMode requests JSON-object responses from chat completions.
	JSONMode bool `json:"json-mode" mapstructure:"json-mode"`

	// Timeout bounds a single provider call.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries bounds transport-level retries.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization is the optional OpenAI organization id.
	Organization string `json:"organization" mapstructure:"organization"`
}

// ToConfigMap converts the options into the provider factory config form.
func (o *LLMProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"json_mode":    o.JSONMode,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// KnowledgeOptions configures knowledge base behavior.
type KnowledgeOptions struct {
	// Collection is the Milvus collection for stored questions.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the embedding vector dimension.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// MaxAttempts bounds the answer retry loop.
	MaxAttempts int `json:"max-attempts" mapstructure:"max-attempts"`

	// SearchLimit is the default similarity search limit.
	SearchLimit int `json:"search-limit" mapstructure:"search-limit"`
}

// SlackOptions configures the Slack bot.
type SlackOptions struct {
	// Enabled toggles the Slack frontend.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// BotToken is the xoxb bot token.
	BotToken string `json:"-" mapstructure:"bot-token"`

	// AppToken is the xapp app-level token for socket mode.
	AppToken string `json:"-" mapstructure:"app-token"`

	// ChannelID is the watched channel.
	ChannelID string `json:"channel-id" mapstructure:"channel-id"`

	// Reaction marks a thread for ingestion.
	Reaction string `json:"reaction" mapstructure:"reaction"`

	// Backfill ingests already-marked threads on startup.
	Backfill bool `json:"backfill" mapstructure:"backfill"`

	// WorkerPoolSize bounds concurrent event handlers.
	WorkerPoolSize int `json:"worker-pool-size" mapstructure:"worker-pool-size"`
}

// CacheOptions configures the answer cache.
type CacheOptions struct {
	// Enabled toggles caching.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL is the cache entry lifetime.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces cache keys.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis is the Redis connection configuration.
	Redis *RedisOptions `json:"redis" mapstructure:"redis"`
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	Password     string `json:"-" mapstructure:"password"`
	Database     int    `json:"database" mapstructure:"database"`
	MaxRetries   int    `json:"max-retries" mapstructure:"max-retries"`
	PoolSize     int    `json:"pool-size" mapstructure:"pool-size"`
	MinIdleConns int    `json:"min-idle-conns" mapstructure:"min-idle-conns"`
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	embeddingOpts := &LLMProviderOptions{
		Provider:   "gemini",
		Model:      "gemini-embedding-001",
		Timeout:    60 * time.Second,
		MaxRetries: 3,
	}

	chatOpts := &LLMProviderOptions{
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		JSONMode:   true,
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}

	return &Options{
		Server: &ServerOptions{
			Addr: ":8080",
			Mode: "release",
		},
		Log:       logopts.NewOptions(),
		Milvus:    milvusopts.NewOptions(),
		Postgres:  postgres.NewOptions(),
		Embedding: embeddingOpts,
		Chat:      chatOpts,
		Knowledge: &KnowledgeOptions{
			Collection:   "questions",
			EmbeddingDim: 3072,
			MaxAttempts:  3,
			SearchLimit:  3,
		},
		Slack: &SlackOptions{
			Enabled:        false,
			Reaction:       "white_check_mark",
			WorkerPoolSize: 16,
		},
		Cache: &CacheOptions{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "knowbase:answer:",
			Redis: &RedisOptions{
				Host:         "localhost",
				Port:         6379,
				Database:     0,
				MaxRetries:   3,
				PoolSize:     10,
				MinIdleConns: 5,
			},
		},
	}
}

// AddFlags adds all service flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Server.Addr, "server.addr", o.Server.Addr, "HTTP server listen address")
	fs.StringVar(&o.Server.Mode, "server.mode", o.Server.Mode, "HTTP server mode (debug|release|test)")

	o.Log.AddFlags(fs)
	o.Milvus.AddFlags(fs, "milvus.")
	o.Postgres.AddFlags(fs, "postgres.")

	o.addProviderFlags(fs, "embedding.", o.Embedding)
	o.addProviderFlags(fs, "chat.", o.Chat)
	fs.BoolVar(&o.Chat.JSONMode, "chat.json-mode", o.Chat.JSONMode, "Request JSON-object chat responses")

	fs.StringVar(&o.Knowledge.Collection, "knowledge.collection", o.Knowledge.Collection, "Milvus collection for stored questions")
	fs.IntVar(&o.Knowledge.EmbeddingDim, "knowledge.embedding-dim", o.Knowledge.EmbeddingDim, "Embedding vector dimension")
	fs.IntVar(&o.Knowledge.MaxAttempts, "knowledge.max-attempts", o.Knowledge.MaxAttempts, "Answer loop retry bound")
	fs.IntVar(&o.Knowledge.SearchLimit, "knowledge.search-limit", o.Knowledge.SearchLimit, "Default similarity search limit")

	fs.BoolVar(&o.Slack.Enabled, "slack.enabled", o.Slack.Enabled, "Enable the Slack bot")
	fs.StringVar(&o.Slack.BotToken, "slack.bot-token", o.Slack.BotToken, "Slack bot token (prefer SLACK_BOT_TOKEN env)")
	fs.StringVar(&o.Slack.AppToken, "slack.app-token", o.Slack.AppToken, "Slack app-level token (prefer SLACK_APP_TOKEN env)")
	fs.StringVar(&o.Slack.ChannelID, "slack.channel-id", o.Slack.ChannelID, "Watched Slack channel id")
	fs.StringVar(&o.Slack.Reaction, "slack.reaction", o.Slack.Reaction, "Reaction that marks a thread for ingestion")
	fs.BoolVar(&o.Slack.Backfill, "slack.backfill", o.Slack.Backfill, "Ingest already-marked threads on startup")
	fs.IntVar(&o.Slack.WorkerPoolSize, "slack.worker-pool-size", o.Slack.WorkerPoolSize, "Concurrent Slack event handlers")

	fs.BoolVar(&o.Cache.Enabled, "cache.enabled", o.Cache.Enabled, "Enable the answer cache")
	fs.DurationVar(&o.Cache.TTL, "cache.ttl", o.Cache.TTL, "Answer cache TTL")
	fs.StringVar(&o.Cache.KeyPrefix, "cache.key-prefix", o.Cache.KeyPrefix, "Answer cache key prefix")
	fs.StringVar(&o.Cache.Redis.Host, "cache.redis.host", o.Cache.Redis.Host, "Redis host")
	fs.IntVar(&o.Cache.Redis.Port, "cache.redis.port", o.Cache.Redis.Port, "Redis port")
	fs.StringVar(&o.Cache.Redis.Password, "cache.redis.password", o.Cache.Redis.Password, "Redis password")
	fs.IntVar(&o.Cache.Redis.Database, "cache.redis.database", o.Cache.Redis.Database, "Redis database")
	fs.IntVar(&o.Cache.Redis.PoolSize, "cache.redis.pool-size", o.Cache.Redis.PoolSize, "Redis connection pool size")
}

func (o *Options) addProviderFlags(fs *pflag.FlagSet, prefix string, opts *LLMProviderOptions) {
	fs.StringVar(&opts.Provider, prefix+"provider", opts.Provider, "Provider name (openai|gemini)")
	fs.StringVar(&opts.BaseURL, prefix+"base-url", opts.BaseURL, "Provider API base URL")
	fs.StringVar(&opts.APIKey, prefix+"api-key", opts.APIKey, "Provider API key (prefer environment)")
	fs.StringVar(&opts.Model, prefix+"model", opts.Model, "Model name")
	fs.DurationVar(&opts.Timeout, prefix+"timeout", opts.Timeout, "Provider request timeout")
	fs.IntVar(&opts.MaxRetries, prefix+"max-retries", opts.MaxRetries, "Provider transport retries")
	fs.StringVar(&opts.Organization, prefix+"organization", opts.Organization, "Provider organization id")
}

// Complete fills in values taken from the environment.
func (o *Options) Complete() error {
	if err := o.Log.Complete(); err != nil {
		return err
	}
	if err := o.Postgres.Complete(); err != nil {
		return err
	}

	if o.Embedding.APIKey == "" {
		o.Embedding.APIKey = providerKeyFromEnv(o.Embedding.Provider)
	}
	if o.Chat.APIKey == "" {
		o.Chat.APIKey = providerKeyFromEnv(o.Chat.Provider)
	}

	if o.Slack.BotToken == "" {
		o.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if o.Slack.AppToken == "" {
		o.Slack.AppToken = os.Getenv("SLACK_APP_TOKEN")
	}
	return nil
}

func providerKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}

// Validate checks the options.
func (o *Options) Validate() error {
	if o.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if err := o.Log.Validate(); err != nil {
		return err
	}
	if errs := o.Milvus.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid milvus options: %v", errs)
	}
	if err := o.Postgres.Validate(); err != nil {
		return err
	}

	if o.Embedding.Provider == "" {
		return fmt.Errorf("embedding.provider is required")
	}
	if o.Chat.Provider == "" {
		return fmt.Errorf("chat.provider is required")
	}
	if o.Knowledge.EmbeddingDim <= 0 {
		return fmt.Errorf("knowledge.embedding-dim must be positive")
	}

	if o.Slack.Enabled {
		if o.Slack.BotToken == "" || o.Slack.AppToken == "" {
			return fmt.Errorf("slack.bot-token and slack.app-token are required when slack is enabled")
		}
		if o.Slack.ChannelID == "" {
			return fmt.Errorf("slack.channel-id is required when slack is enabled")
		}
	}

	return nil
}
