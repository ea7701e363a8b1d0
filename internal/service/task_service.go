// Package service implements the application's use cases on top of the
// store and messaging layers.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asyncworks/task-manager/internal/domain"
	"github.com/asyncworks/task-manager/internal/store"
)

// TaskPublisher hands a created task to the asynchronous pipeline.
type TaskPublisher interface {
	Publish(ctx context.Context, taskID int64) error
}

// TaskService exposes the task use cases consumed by the API layer.
type TaskService interface {
	// CreateTask persists a new task and enqueues it for processing.
	CreateTask(ctx context.Context, title, description string) (*domain.Task, error)

	// GetTask returns a single task by ID.
	GetTask(ctx context.Context, id int64) (*domain.Task, error)

	// ListTasks returns tasks, optionally filtered by status.
	ListTasks(ctx context.Context, status *domain.Status) ([]*domain.Task, error)
}

type taskService struct {
	store     store.TaskStore
	publisher TaskPublisher
	logger    *slog.Logger
}

// NewTaskService creates the default TaskService implementation.
func NewTaskService(taskStore store.TaskStore, publisher TaskPublisher, log *slog.Logger) TaskService {
	return &taskService{
		store:     taskStore,
		publisher: publisher,
		logger:    log.With("component", "task_service"),
	}
}

func (s *taskService) CreateTask(ctx context.Context, title, description string) (*domain.Task, error) {
	task, err := domain.NewTask(title, description)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	created, err := s.store.Create(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("task created", "task_id", created.ID, "title", created.Title)

	// The row exists before the message: a consumer can never receive an id
	// it cannot load. If publishing fails the task stays in the new status
	// and the caller sees the error.
	if err := s.publisher.Publish(ctx, created.ID); err != nil {
		s.logger.Error("failed to enqueue task", "task_id", created.ID, "error", err)
		return nil, fmt.Errorf("failed to enqueue task %d: %w", created.ID, err)
	}

	return created, nil
}

func (s *taskService) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return task, nil
}

func (s *taskService) ListTasks(ctx context.Context, status *domain.Status) ([]*domain.Task, error) {
	tasks, err := s.store.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}
