package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mchttp "github.com/Strob0t/MemCore/internal/adapter/http"
	"github.com/Strob0t/MemCore/internal/adapter/litellm"
	mcnats "github.com/Strob0t/MemCore/internal/adapter/nats"
	"github.com/Strob0t/MemCore/internal/adapter/otel"
	"github.com/Strob0t/MemCore/internal/adapter/postgres"
	"github.com/Strob0t/MemCore/internal/adapter/ristretto"
	"github.com/Strob0t/MemCore/internal/adapter/ws"
	"github.com/Strob0t/MemCore/internal/config"
	"github.com/Strob0t/MemCore/internal/logger"
	"github.com/Strob0t/MemCore/internal/middleware"
	"github.com/Strob0t/MemCore/internal/resilience"
	"github.com/Strob0t/MemCore/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"embedding_model", cfg.Embeddings.Model,
	)

	ctx := context.Background()

	shutdownTracer := otel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(ctx) }()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := mcnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	embedder := litellm.NewClient(cfg.Embeddings.URL, cfg.Embeddings.APIKey,
		cfg.Embeddings.Model, cfg.Embeddings.Dimensions)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	embedder.SetBreaker(breaker)

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)

	router := service.NewRouter(embedder, cache, &cfg.Memory)
	if err := router.Warmup(ctx); err != nil {
		// Reference embeddings are an accuracy optimization; keyword
		// routing alone still works.
		slog.Warn("router warmup incomplete", "error", err)
	}

	dedup := service.NewDedupEngine(store, &cfg.Memory)
	retrieval := service.NewRetrievalEngine(store, embedder, router, &cfg.Memory, &cfg.Embeddings)
	assembler := service.NewAssembler(&cfg.Budgets)
	validators := service.NewValidatorChain(&cfg.Validators)

	memorySvc := service.NewMemoryService(store, embedder, router, dedup, retrieval,
		assembler, validators, queue, hub, metrics, cfg)

	backfill := service.NewBackfillWorker(store, embedder, queue, hub, metrics,
		&cfg.Memory, &cfg.Embeddings)
	stopBackfill, err := backfill.Start(ctx)
	if err != nil {
		return fmt.Errorf("backfill worker: %w", err)
	}
	defer stopBackfill()

	// --- HTTP ---

	handlers := &mchttp.Handlers{
		Memory:  memorySvc,
		Hub:     hub,
		Pool:    pool,
		Queue:   queue,
		LLM:     embedder,
		Breaker: breaker,
	}

	r := chi.NewRouter()
	r.Use(mchttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(otel.HTTPMiddleware("memcore"))
	r.Use(mchttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	mchttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	stopBackfill()
	backfill.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
