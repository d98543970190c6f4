package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Store     StoreConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Save      SaveConfig
	Retry     RetryConfig
	Session   SessionConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type LogConfig struct {
	Level  string
	Format string
}

// PostgresVectorDimensions is the width of the vector column created
// by the migrations. The postgres backend only accepts embeddings of
// this size.
const PostgresVectorDimensions = 1536

// StoreConfig selects the vector store backend: "chromem" keeps
// everything in process memory, "postgres" uses pgvector.
type StoreConfig struct {
	Backend string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig enables lifecycle event publishing when URL is set.
type NATSConfig struct {
	URL string
}

type LLMConfig struct {
	Provider    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Concurrency int
}

type EmbeddingConfig struct {
	Provider    string
	APIKey      string
	Model       string
	Dimensions  int
	Concurrency int
}

type SaveConfig struct {
	Mode             string
	QueueSize        int
	Workers          int
	BatchParallelism int
}

type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type SessionConfig struct {
	Enabled  bool
	MaxTurns int
	TTL      time.Duration
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		Store: StoreConfig{
			Backend: k.String("store.backend"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		LLM: LLMConfig{
			Provider:    k.String("llm.provider"),
			APIKey:      k.String("anthropic.api.key"),
			Model:       k.String("llm.model"),
			MaxTokens:   k.Int("llm.max.tokens"),
			Temperature: k.Float64("llm.temperature"),
			Concurrency: k.Int("llm.concurrency"),
		},
		Embedding: EmbeddingConfig{
			Provider:    k.String("embedding.provider"),
			APIKey:      k.String("openai.api.key"),
			Model:       k.String("embedding.model"),
			Dimensions:  k.Int("embedding.dimensions"),
			Concurrency: k.Int("embedding.concurrency"),
		},
		Save: SaveConfig{
			Mode:             k.String("save.mode"),
			QueueSize:        k.Int("save.queue.size"),
			Workers:          k.Int("save.workers"),
			BatchParallelism: k.Int("save.batch.parallelism"),
		},
		Retry: RetryConfig{
			MaxAttempts: k.Int("retry.max.attempts"),
		},
		Session: SessionConfig{
			Enabled:  k.Bool("session.enabled"),
			MaxTurns: k.Int("session.max.turns"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "chromem"
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "memcore"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "memcore"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "mock"
	}
	if cfg.LLM.Concurrency == 0 {
		cfg.LLM.Concurrency = 8
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 8
	}
	if cfg.Save.Mode == "" {
		cfg.Save.Mode = "sync"
	}
	if cfg.Save.QueueSize == 0 {
		cfg.Save.QueueSize = 256
	}
	if cfg.Save.Workers == 0 {
		cfg.Save.Workers = 2
	}
	if cfg.Save.BatchParallelism == 0 {
		cfg.Save.BatchParallelism = 4
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Session.MaxTurns == 0 {
		cfg.Session.MaxTurns = 10
	}

	// Parse durations
	cfg.Retry.InitialInterval, err = parseDuration(k.String("retry.initial.interval"), "200ms")
	if err != nil {
		return nil, fmt.Errorf("parsing retry initial interval: %w", err)
	}
	cfg.Retry.MaxInterval, err = parseDuration(k.String("retry.max.interval"), "3s")
	if err != nil {
		return nil, fmt.Errorf("parsing retry max interval: %w", err)
	}
	cfg.Session.TTL, err = parseDuration(k.String("session.ttl"), "24h")
	if err != nil {
		return nil, fmt.Errorf("parsing session ttl: %w", err)
	}

	return cfg, nil
}

func parseDuration(raw, fallback string) (time.Duration, error) {
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}
