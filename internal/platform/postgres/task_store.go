// Package postgres implements the store interfaces on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/asyncworks/task-manager/internal/domain"
	"github.com/asyncworks/task-manager/internal/platform/logger"
	"github.com/asyncworks/task-manager/internal/store"
)

// TaskStore implements store.TaskStore using PostgreSQL.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a new TaskStore backed by the given database handle.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = "id, title, description, status, result, error_message, created_at, updated_at"

// Create persists a new task and returns it with the assigned ID and timestamps.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (title, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING ` + taskColumns

	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx, query,
		task.Title,
		nullString(task.Description),
		task.Status,
		now,
	)

	created, err := scanTask(row)
	if err != nil {
		log.Error("failed to save task", "title", task.Title, "error", err)
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	return created, nil
}

// GetByID returns the task with the given ID, or store.ErrTaskNotFound.
func (s *TaskStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// List returns tasks ordered by creation time, optionally filtered by status.
func (s *TaskStore) List(ctx context.Context, status *domain.Status) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", "error", err)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close task rows", "error", err)
		}
	}()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// UpdateStatus sets the task's status and refreshes updated_at. The result
// column only holds a value while the task is completed and the error message
// only while it is failed; any other transition clears them.
func (s *TaskStore) UpdateStatus(
	ctx context.Context,
	id int64,
	status domain.Status,
	result, errorMessage string,
) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrInvalidTaskStatus)
	}

	resultCol, errorCol := terminalColumns(status, result, errorMessage)

	query := `
		UPDATE tasks
		SET status = $2, result = $3, error_message = $4, updated_at = $5
		WHERE id = $1
		RETURNING ` + taskColumns

	row := s.db.QueryRowContext(ctx, query, id, status, resultCol, errorCol, time.Now().UTC())

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("no task found to update status", "task_id", id, "status", status)
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to update task status", "task_id", id, "status", status, "error", err)
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}

	return task, nil
}

// MarkProcessing transitions the task to processing with a single conditional
// update. The status guard lives in the WHERE clause, so a concurrent
// delivery of the same task cannot also pass it.
func (s *TaskStore) MarkProcessing(ctx context.Context, id int64) error {
	query := `
		UPDATE tasks
		SET status = $2, result = NULL, error_message = NULL, updated_at = $3
		WHERE id = $1 AND status IN ($4, $5)
	`

	res, err := s.db.ExecContext(ctx, query,
		id,
		domain.StatusProcessing,
		time.Now().UTC(),
		domain.StatusNew,
		domain.StatusError,
	)
	if err != nil {
		return fmt.Errorf("failed to mark task processing: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrTaskNotProcessable
	}

	return nil
}

// terminalColumns maps a status transition to the nullable result and
// error_message column values.
func terminalColumns(status domain.Status, result, errorMessage string) (sql.NullString, sql.NullString) {
	var resultCol, errorCol sql.NullString
	switch status {
	case domain.StatusCompleted:
		resultCol = sql.NullString{String: result, Valid: result != ""}
	case domain.StatusError:
		errorCol = sql.NullString{String: errorMessage, Valid: errorMessage != ""}
	}
	return resultCol, errorCol
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task         domain.Task
		description  sql.NullString
		result       sql.NullString
		errorMessage sql.NullString
	)

	err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&task.Status,
		&result,
		&errorMessage,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.Result = result.String
	task.ErrorMessage = errorMessage.String

	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
