// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"git-analytics-service/internal/api"
	"git-analytics-service/internal/azdevops"
	"git-analytics-service/internal/config"
	"git-analytics-service/internal/export"
	"git-analytics-service/internal/ingest"
	"git-analytics-service/internal/metrics"
	"git-analytics-service/internal/seed"
	"git-analytics-service/internal/store"
	"git-analytics-service/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	db := store.NewPostgresStore(dbpool)
	client := azdevops.NewClient(cfg.AzureOrgURL, cfg.AzurePAT, logger, azdevops.Options{
		Timeout:        cfg.APITimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RateLimitDelay: cfg.RateLimitDelay,
		BatchSize:      cfg.BatchSize,
	})
	ingestor := ingest.NewIngestor(client, db, logger, cfg.BatchSize)

	if err := seed.Run(ctx, db, client, ingestor, logger, cfg.Organization, cfg.AzureOrgURL, cfg.Projects); err != nil {
		return fmt.Errorf("failed to seed organization data: %w", err)
	}
	refresher := seed.NewRefresher(client, ingestor)

	writer, err := export.NewWriter(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to create artifact writer: %w", err)
	}

	m := metrics.New()
	executor := worker.NewJobExecutor(db, ingestor, writer, logger, m)
	pollingService := worker.NewService(db, executor, logger, worker.Options{
		PollInterval:        cfg.PollInterval,
		StaleThreshold:      cfg.StaleThreshold,
		ResultRetentionDays: cfg.ResultRetentionDays,
	})

	// 6. Start the polling worker and the HTTP server
	pollingService.Start(ctx)
	defer pollingService.Stop(10 * time.Second)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(db, pollingService, refresher, logger, m.Handler()),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 7. Wait for shutdown signal or server failure
	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received. Exiting.")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "error", err)
	}

	return nil
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
