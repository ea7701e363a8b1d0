package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asyncworks/task-manager/internal/domain"
	"github.com/asyncworks/task-manager/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"task not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("failed to get task 7: %w", store.ErrTaskNotFound), http.StatusNotFound},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest},
		{"invalid status", domain.ErrInvalidTaskStatus, http.StatusBadRequest},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "An unexpected error occurred"},
		{"task not found", store.ErrTaskNotFound, "Task not found"},
		{"empty title", fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyTaskTitle), "Task title cannot be empty"},
		{"title too long", domain.ErrTitleTooLong, "Task title cannot exceed 90 characters"},
		{"description too long", domain.ErrDescriptionTooLong, "Task description cannot exceed 500 characters"},
		{"invalid status", domain.ErrInvalidTaskStatus, "Invalid task status"},
		{"internal details hidden", errors.New("pq: connection refused host=10.0.0.3"), "An unexpected error occurred"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, GetSafeErrorMessage(tc.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := errors.New(
		"Key: 'CreateTaskRequest.Title' Error:Field validation for 'Title' failed on the 'required' tag")
	assert.Equal(t, "Invalid Title: required field", SanitizeValidationError(err))

	err = errors.New(
		"Key: 'CreateTaskRequest.Description' Error:Field validation for 'Description' failed on the 'max' tag")
	assert.Equal(t, "Invalid Description: too long", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("something else")))
}
