package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Nikunikuo/EmotionMemCore/internal/api"
	"github.com/Nikunikuo/EmotionMemCore/internal/capability"
	"github.com/Nikunikuo/EmotionMemCore/internal/config"
	"github.com/Nikunikuo/EmotionMemCore/internal/database"
	"github.com/Nikunikuo/EmotionMemCore/internal/embedding"
	"github.com/Nikunikuo/EmotionMemCore/internal/events"
	"github.com/Nikunikuo/EmotionMemCore/internal/llm"
	"github.com/Nikunikuo/EmotionMemCore/internal/memory"
	iredis "github.com/Nikunikuo/EmotionMemCore/internal/redis"
	"github.com/Nikunikuo/EmotionMemCore/internal/server"
	"github.com/Nikunikuo/EmotionMemCore/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("validating config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	retry := capability.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}

	// Vector store
	var (
		repo         memory.Repository
		storeHealthy func(r *http.Request) error
	)
	switch cfg.Store.Backend {
	case "postgres":
		if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
			slog.Error("running migrations", "error", err)
			os.Exit(1)
		}
		pool, err := database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			slog.Error("connecting to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		repo, err = memory.NewPostgresRepository(pool, cfg.Embedding.Dimensions)
		if err != nil {
			slog.Error("creating postgres repository", "error", err)
			os.Exit(1)
		}
		storeHealthy = func(r *http.Request) error {
			return database.HealthCheck(r.Context(), pool)
		}
	default:
		repo, err = memory.NewChromemRepository(cfg.Embedding.Dimensions)
		if err != nil {
			slog.Error("creating embedded repository", "error", err)
			os.Exit(1)
		}
	}

	// Capabilities
	classifier, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Retry:       retry,
		Concurrency: cfg.LLM.Concurrency,
	})
	if err != nil {
		slog.Error("creating classifier", "error", err)
		os.Exit(1)
	}

	embedder, err := embedding.New(embedding.Config{
		Provider:    cfg.Embedding.Provider,
		APIKey:      cfg.Embedding.APIKey,
		Model:       cfg.Embedding.Model,
		Dimensions:  cfg.Embedding.Dimensions,
		Retry:       retry,
		Concurrency: cfg.Embedding.Concurrency,
	})
	if err != nil {
		slog.Error("creating embedder", "error", err)
		os.Exit(1)
	}

	// Session context store (optional)
	var (
		sessions     *session.Store
		redisHealthy func(r *http.Request) error
	)
	if cfg.Session.Enabled {
		redisClient, err := iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Error("connecting to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		sessions = session.NewStore(redisClient, cfg.Session.MaxTurns, cfg.Session.TTL)
		redisHealthy = func(r *http.Request) error {
			return redisClient.Ping(r.Context()).Err()
		}
	}

	// Lifecycle events (optional)
	var (
		publisher   *events.Publisher
		natsHealthy func() bool
	)
	if cfg.NATS.URL != "" {
		publisher, err = events.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		natsHealthy = publisher.Healthy
	}

	// Orchestrator
	svc := memory.NewService(repo, classifier, embedder, memory.ServiceConfig{
		Mode:             cfg.Save.Mode,
		QueueSize:        cfg.Save.QueueSize,
		Workers:          cfg.Save.Workers,
		BatchParallelism: cfg.Save.BatchParallelism,
		Sessions:         sessions,
		Events:           publisher,
	})

	handler := memory.NewHandler(svc)
	router := api.NewRouter(api.HandlerSet{
		SaveMemory:     handler.Save,
		BatchSave:      handler.BatchSave,
		SearchMemories: handler.Search,
		ListMemories:   handler.List,
		GetMemory:      handler.Get,
		DeleteMemory:   handler.Delete,
		Stats:          handler.Stats,

		StoreHealthy: storeHealthy,
		RedisHealthy: redisHealthy,
		NATSHealthy:  natsHealthy,
	})

	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Drain background saves before exiting.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Warn("draining background saves", "error", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
