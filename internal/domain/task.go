package domain

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a task
type Status string

// Possible task status values
const (
	StatusNew        Status = "new_task"
	StatusProcessing Status = "process_task"
	StatusCompleted  Status = "completed_task"
	StatusError      Status = "error"
)

// Field length limits enforced at creation time
const (
	MaxTitleLength       = 90
	MaxDescriptionLength = 500
)

// Common validation errors for Task
var (
	ErrEmptyTaskTitle    = errors.New("task title cannot be empty")
	ErrTitleTooLong      = errors.New("task title exceeds maximum length")
	ErrDescriptionTooLong = errors.New("task description exceeds maximum length")
	ErrInvalidTaskStatus = errors.New("invalid task status")
)

// ParseStatus converts a raw string into a Status.
// Returns ErrInvalidTaskStatus if the value is not a known status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", ErrInvalidTaskStatus
	}
	return status, nil
}

// IsValid reports whether the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Processable reports whether a task in this status may transition to
// StatusProcessing. Completed tasks are terminal and are never reprocessed;
// failed tasks may be picked up again.
func (s Status) Processable() bool {
	return s == StatusNew || s == StatusError
}

// Task represents a unit of asynchronous work. It is created through the API,
// persisted by the task store, and driven through its lifecycle by the worker.
// Title and description are immutable after creation; only the pipeline
// mutates status, result and error message.
type Task struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Status       Status    `json:"status"`
	Result       string    `json:"result,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewTask creates a new Task with the given title and description.
// The task starts in StatusNew; the ID and timestamps are assigned by the
// store on insert. Returns an error if validation fails.
func NewTask(title, description string) (*Task, error) {
	task := &Task{
		Title:       title,
		Description: description,
		Status:      StatusNew,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks that the task data meets all domain requirements.
func (t *Task) Validate() error {
	if t.Title == "" {
		return ErrEmptyTaskTitle
	}
	if len(t.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if len(t.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}
	return nil
}
