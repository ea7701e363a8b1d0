// Package main implements the entry point for the task manager worker,
// which consumes queued tasks and drives them through processing.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver

	"github.com/asyncworks/task-manager/internal/config"
	"github.com/asyncworks/task-manager/internal/messaging"
	"github.com/asyncworks/task-manager/internal/platform/logger"
	"github.com/asyncworks/task-manager/internal/platform/postgres"
	"github.com/asyncworks/task-manager/internal/worker"
)

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

	appLogger, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("worker configuration loaded",
		"task_queue", cfg.Broker.TaskQueue,
		"max_concurrent_tasks", cfg.Worker.MaxConcurrentTasks,
		"prefetch_count", cfg.Worker.PrefetchCount,
		"max_retries", cfg.Worker.MaxRetries)

	db, err := setupDatabase(cfg.Database.URL, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("error closing database connection", "error", err)
		}
	}()

	taskStore := postgres.NewTaskStore(db)
	processor := worker.NewProcessor(taskStore, cfg.Worker, appLogger)
	consumer := messaging.NewConsumer(cfg.Broker, cfg.Worker, processor, appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info("worker started")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer stopped: %w", err)
	}

	appLogger.Info("worker shutdown completed")
	return nil
}

// setupDatabase opens the task database and verifies connectivity.
func setupDatabase(databaseURL string, appLogger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	appLogger.Info("database connection established", "url", maskDatabaseURL(databaseURL))
	return db, nil
}

// maskDatabaseURL masks the password in a database URL for safe logging.
func maskDatabaseURL(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}

	if parsedURL.User != nil {
		parsedURL.User = url.UserPassword(parsedURL.User.Username(), "****")
		return parsedURL.String()
	}

	return dbURL
}
