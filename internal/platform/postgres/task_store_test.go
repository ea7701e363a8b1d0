package postgres

import (
	"database/sql"
	"testing"

	"github.com/asyncworks/task-manager/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestTerminalColumns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       domain.Status
		result       string
		errorMessage string
		wantResult   sql.NullString
		wantError    sql.NullString
	}{
		{
			name:       "completed keeps result only",
			status:     domain.StatusCompleted,
			result:     "Processed in 5.21s",
			wantResult: sql.NullString{String: "Processed in 5.21s", Valid: true},
		},
		{
			name:         "error keeps message only",
			status:       domain.StatusError,
			errorMessage: "Processing failed after 7.80s",
			wantError:    sql.NullString{String: "Processing failed after 7.80s", Valid: true},
		},
		{
			name:         "completed drops stale error message",
			status:       domain.StatusCompleted,
			errorMessage: "old failure",
		},
		{
			name:   "processing clears both",
			status: domain.StatusProcessing,
			result: "stale result",
		},
		{
			name:   "new clears both",
			status: domain.StatusNew,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resultCol, errorCol := terminalColumns(tc.status, tc.result, tc.errorMessage)

			assert.Equal(t, tc.wantResult, resultCol)
			assert.Equal(t, tc.wantError, errorCol)
		})
	}
}

func TestNullString(t *testing.T) {
	t.Parallel()

	assert.False(t, nullString("").Valid)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullString("x"))
}

func TestNewTaskStore(t *testing.T) {
	t.Parallel()

	s := NewTaskStore(nil)

	assert.NotNil(t, s)
}
