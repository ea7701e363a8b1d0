// Package store provides abstractions for data persistence.
package store

import (
	"context"
	"database/sql"

	"github.com/asyncworks/task-manager/internal/domain"
)

// DBTX abstracts the database access layer. It is satisfied by both *sql.DB
// and *sql.Tx, so store implementations can run against a connection pool or
// inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TaskStore defines the persistence interface for tasks. The worker never
// mutates task rows directly; every status change goes through UpdateStatus
// or MarkProcessing.
type TaskStore interface {
	// Create persists a new task and returns it with the store-assigned
	// ID and timestamps populated.
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)

	// GetByID returns the task with the given ID, or ErrTaskNotFound.
	GetByID(ctx context.Context, id int64) (*domain.Task, error)

	// List returns tasks ordered by creation time. A non-nil status
	// restricts the result to tasks in that status.
	List(ctx context.Context, status *domain.Status) ([]*domain.Task, error)

	// UpdateStatus sets the task's status and refreshes its updated_at
	// timestamp. The result column is written only for StatusCompleted and
	// the error message only for StatusError; both are cleared otherwise.
	// Returns the updated task, or ErrTaskNotFound.
	UpdateStatus(ctx context.Context, id int64, status domain.Status, result, errorMessage string) (*domain.Task, error)

	// MarkProcessing transitions the task to StatusProcessing if and only
	// if its current status allows processing (StatusNew or StatusError).
	// The check and the write happen in a single conditional update, so two
	// concurrent deliveries of the same task cannot both pass the guard.
	// Returns ErrTaskNotProcessable when the guard rejects the transition.
	MarkProcessing(ctx context.Context, id int64) error
}
