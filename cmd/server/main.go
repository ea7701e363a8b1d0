// Package main implements the entry point for the task manager API server,
// which accepts tasks over HTTP and enqueues them for asynchronous processing.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/asyncworks/task-manager/internal/config"
	"github.com/asyncworks/task-manager/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// run wires configuration, logging, database, broker, and the HTTP server,
// then blocks until shutdown completes. Kept separate from main so every
// failure path flows through a single error return.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"task_queue", cfg.Broker.TaskQueue)

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return err
	}

	if err := runMigrations(db, appLogger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApplication(cfg, appLogger, db)
	return app.Run(ctx)
}
