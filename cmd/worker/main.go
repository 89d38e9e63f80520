// Package main implements the entry point for the quillboard jobs worker,
// which serves the async-job HTTP API and runs the outbox claim loop that
// executes AI jobs against boards and cards.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillboard/quillboard-api/internal/api"
	"github.com/quillboard/quillboard-api/internal/api/middleware"
	"github.com/quillboard/quillboard-api/internal/config"
	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/indexer"
	"github.com/quillboard/quillboard-api/internal/platform/gemini"
	"github.com/quillboard/quillboard-api/internal/platform/logger"
	"github.com/quillboard/quillboard-api/internal/platform/postgres"
	"github.com/quillboard/quillboard-api/internal/retrieval"
	"github.com/quillboard/quillboard-api/internal/service"
	"github.com/quillboard/quillboard-api/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := postgres.NewDB(cfg.Database.URL, appLogger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("failed to close database", "error", err)
		}
	}()

	if err := postgres.RunMigrations(db, appLogger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	scope, err := postgres.NewTenantScope(db, cfg.Database.AppRole)
	if err != nil {
		return fmt.Errorf("failed to create tenant scope: %w", err)
	}

	outboxStore := postgres.NewPostgresOutboxStore(db, appLogger)
	boardStore := postgres.NewPostgresBoardStore(db, appLogger)
	cardStore := postgres.NewPostgresCardStore(db, appLogger)
	summaryStore := postgres.NewPostgresSummaryStore(db, appLogger)
	answerStore := postgres.NewPostgresAnswerStore(db, appLogger)
	extractionStore := postgres.NewPostgresExtractionStore(db, appLogger)
	memberStore := postgres.NewPostgresMemberStore(db, appLogger)
	documentStore := postgres.NewPostgresDocumentStore(db, appLogger)

	initCtx := context.Background()
	generator, err := gemini.NewGenerator(initCtx, appLogger, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}
	embedder, err := gemini.NewEmbedder(initCtx, appLogger, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	index := indexer.New(embedder, appLogger)
	retriever := retrieval.New(embedder, appLogger)

	executors := map[domain.EventType]worker.Executor{
		domain.EventTypeCardSummary: worker.NewSummaryExecutor(
			scope, cardStore, summaryStore, documentStore, index, generator, appLogger),
		domain.EventTypeAskBoard: worker.NewAskExecutor(
			scope, boardStore, cardStore, answerStore, documentStore,
			index, retriever, generator, cfg.Worker.SyncCardLimit, appLogger),
		domain.EventTypeThreadToCard: worker.NewThreadExecutor(
			scope, extractionStore, memberStore, generator, appLogger),
	}

	poller := worker.NewPoller(db, outboxStore, executors, worker.PollerConfig{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		MaxAttempts:  cfg.Worker.MaxAttempts,
	}, appLogger)

	jobsService, err := service.NewJobsService(
		scope, boardStore, cardStore, outboxStore,
		summaryStore, answerStore, extractionStore,
		cfg.Worker.RetrievalTopK, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create jobs service: %w", err)
	}

	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to create auth middleware: %w", err)
	}

	router := api.NewRouter(authMiddleware, api.NewJobsHandler(jobsService))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	poller.Start()
	appLogger.Info("Outbox claim loop started",
		slog.Duration("poll_interval", cfg.Worker.PollInterval),
		slog.Int("batch_size", cfg.Worker.BatchSize))

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP server listening", slog.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		appLogger.Info("Shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("HTTP server failed", "error", err)
	}

	// Stop claiming new events first; in-flight events finish before the
	// HTTP listener drains.
	poller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	appLogger.Info("Worker stopped cleanly")
	return nil
}
