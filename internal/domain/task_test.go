package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	t.Run("valid task", func(t *testing.T) {
		t.Parallel()

		task, err := NewTask("Reindex search", "rebuild the search index")

		require.NoError(t, err)
		assert.Equal(t, "Reindex search", task.Title)
		assert.Equal(t, StatusNew, task.Status)
		assert.Empty(t, task.Result)
		assert.Empty(t, task.ErrorMessage)
	})

	t.Run("empty title", func(t *testing.T) {
		t.Parallel()

		_, err := NewTask("", "some description")

		assert.ErrorIs(t, err, ErrEmptyTaskTitle)
	})

	t.Run("title too long", func(t *testing.T) {
		t.Parallel()

		_, err := NewTask(strings.Repeat("x", MaxTitleLength+1), "")

		assert.ErrorIs(t, err, ErrTitleTooLong)
	})

	t.Run("description too long", func(t *testing.T) {
		t.Parallel()

		_, err := NewTask("ok", strings.Repeat("x", MaxDescriptionLength+1))

		assert.ErrorIs(t, err, ErrDescriptionTooLong)
	})

	t.Run("empty description is allowed", func(t *testing.T) {
		t.Parallel()

		task, err := NewTask("ok", "")

		require.NoError(t, err)
		assert.Empty(t, task.Description)
	})
}

func TestStatus_Processable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		want   bool
	}{
		{StatusNew, true},
		{StatusError, true},
		{StatusProcessing, false},
		{StatusCompleted, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.status.Processable())
		})
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	t.Run("known values", func(t *testing.T) {
		t.Parallel()

		for _, s := range []string{"new_task", "process_task", "completed_task", "error"} {
			status, err := ParseStatus(s)
			require.NoError(t, err)
			assert.True(t, status.IsValid())
		}
	})

	t.Run("unknown value", func(t *testing.T) {
		t.Parallel()

		_, err := ParseStatus("done")

		assert.ErrorIs(t, err, ErrInvalidTaskStatus)
	})
}
