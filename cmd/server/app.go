package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/asyncworks/task-manager/internal/config"
	"github.com/asyncworks/task-manager/internal/messaging"
	"github.com/asyncworks/task-manager/internal/platform/postgres"
	"github.com/asyncworks/task-manager/internal/service"
	"github.com/asyncworks/task-manager/internal/store"
)

// application holds the shared application dependencies to simplify wiring
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore   store.TaskStore
	producer    *messaging.Producer
	taskService service.TaskService
}

// newApplication creates a new application instance with all dependencies
// initialized. The configuration, logger, and database connection must be
// established before calling it.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) *application {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	app.taskStore = postgres.NewTaskStore(db)

	app.producer = messaging.NewProducer(cfg.Broker, logger)

	app.taskService = service.NewTaskService(app.taskStore, app.producer, logger)

	logger.Info("application initialized")
	return app
}

// Run starts the HTTP server and blocks until the context is cancelled and
// shutdown completes.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases application resources. Called after the HTTP server has
// stopped accepting requests.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
