package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yangwenmai/coursegen/internal/api"
	"github.com/yangwenmai/coursegen/internal/config"
	"github.com/yangwenmai/coursegen/internal/course"
	"github.com/yangwenmai/coursegen/internal/engine"
	"github.com/yangwenmai/coursegen/internal/logger"
	"github.com/yangwenmai/coursegen/internal/store"
	"github.com/yangwenmai/coursegen/internal/worker"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Open SQLite.
	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal("open db", "path", cfg.DBPath, "error", err)
	}
	defer db.Close()

	// Initialize store.
	s, err := store.New(db)
	if err != nil {
		log.Fatal("init store", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build pipeline dependencies.
	modelClient := newModelClient(cfg, log)
	videos := newVideoFinder(ctx, cfg, log)

	svc := course.NewService(
		s,
		engine.NewOutlineGenerator(modelClient),
		engine.NewContentGenerator(modelClient),
		videos,
		log,
		cfg.GenerationConcurrency,
	)

	// Start backfill worker in background.
	if cfg.BackfillInterval > 0 {
		w := worker.New(s, svc, cfg.BackfillInterval, log)
		go w.Start(ctx)
	}

	// Start API server.
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, authenticated routes will reject every request")
	}
	srv := api.New(svc, log, api.Options{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		CreateRateLimit: cfg.CreateRateLimit,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("coursegen server listening", "addr", "http://localhost:"+cfg.Port, "provider", cfg.LLMProvider, "stubs", cfg.UseStubs())
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", "error", err)
	}
}

// newModelClient selects the text-generation backend. Real providers are
// wrapped in a circuit breaker.
func newModelClient(cfg config.Config, log *logger.Logger) engine.ModelClient {
	if cfg.UseStubs() {
		log.Warn("no API key for LLM provider, using stub model", "provider", cfg.LLMProvider)
		return &engine.StubModelClient{}
	}

	var mc engine.ModelClient
	switch cfg.LLMProvider {
	case "openai":
		mc = engine.NewOpenAIClient(cfg.OpenAIKey,
			engine.WithBaseURL(cfg.OpenAIBaseURL),
			engine.WithModel(cfg.OpenAIModel),
			engine.WithOpenAITimeout(cfg.HTTPTimeout),
		)
	case "claude":
		mc = engine.NewClaudeClient(cfg.AnthropicKey,
			engine.WithClaudeModel(cfg.AnthropicModel),
			engine.WithClaudeTimeout(cfg.HTTPTimeout),
		)
	case "ollama":
		mc = engine.NewOllamaClient(cfg.OllamaURL, engine.WithOllamaModel(cfg.OllamaModel))
	default:
		mc = engine.NewGeminiClient(cfg.GeminiKey,
			engine.WithGeminiModel(cfg.GeminiModel),
			engine.WithGeminiTimeout(cfg.HTTPTimeout),
		)
	}
	log.Info("using model provider", "provider", cfg.LLMProvider)
	return engine.NewBreakerClient(cfg.LLMProvider, mc, engine.DefaultBreakerConfig(), log)
}

// newVideoFinder returns the YouTube finder, or a no-op finder when no key is
// configured or the client cannot be built.
func newVideoFinder(ctx context.Context, cfg config.Config, log *logger.Logger) engine.VideoFinder {
	if cfg.YouTubeKey == "" {
		log.Info("YOUTUBE_API_KEY not set, lessons will have no videos")
		return engine.NoopFinder{}
	}
	f, err := engine.NewYouTubeFinder(ctx, cfg.YouTubeKey, log)
	if err != nil {
		log.Warn("youtube client unavailable, lessons will have no videos", "error", err)
		return engine.NoopFinder{}
	}
	return f
}
