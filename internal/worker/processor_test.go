package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncworks/task-manager/internal/config"
	"github.com/asyncworks/task-manager/internal/domain"
	"github.com/asyncworks/task-manager/internal/store"
)

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		MinProcessTime:     time.Millisecond,
		MaxProcessTime:     2 * time.Millisecond,
		ErrorProbability:   0,
		MaxRetries:         3,
		RetryDelay:         time.Millisecond,
		MaxConcurrentTasks: 1,
		PrefetchCount:      1,
		DrainTimeout:       time.Second,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func seedTask(t *testing.T, s *mockTaskStore, status domain.Status) *domain.Task {
	t.Helper()
	task, err := domain.NewTask("demo task", "does nothing in particular")
	require.NoError(t, err)
	task.Status = status
	return s.seed(task)
}

func TestProcessor_Process_Success(t *testing.T) {
	t.Parallel()

	s := newMockTaskStore()
	task := seedTask(t, s, domain.StatusNew)

	p := NewProcessor(s, testWorkerConfig(), testLogger())

	err := p.Process(context.Background(), task.ID)
	require.NoError(t, err)

	got, err := s.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Contains(t, got.Result, "Processed in")
	assert.Empty(t, got.ErrorMessage)

	writes := s.statusWrites()
	require.Len(t, writes, 2)
	assert.Equal(t, domain.StatusProcessing, writes[0].status)
	assert.Equal(t, domain.StatusCompleted, writes[1].status)
}

func TestProcessor_Process_ForcedFailure(t *testing.T) {
	t.Parallel()

	s := newMockTaskStore()
	task := seedTask(t, s, domain.StatusNew)

	cfg := testWorkerConfig()
	cfg.ErrorProbability = 1.0
	p := NewProcessor(s, cfg, testLogger())

	err := p.Process(context.Background(), task.ID)
	require.NoError(t, err)

	got, err := s.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Contains(t, got.ErrorMessage, "Processing failed after")
	assert.Contains(t, got.ErrorMessage, "s", "message carries the processing duration")
	assert.Empty(t, got.Result)
}

func TestProcessor_Process_ReprocessesFailedTask(t *testing.T) {
	t.Parallel()

	s := newMockTaskStore()
	task := seedTask(t, s, domain.StatusError)

	p := NewProcessor(s, testWorkerConfig(), testLogger())

	require.NoError(t, p.Process(context.Background(), task.ID))

	got, err := s.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestProcessor_Process_TaskNotFound(t *testing.T) {
	t.Parallel()

	s := newMockTaskStore()
	p := NewProcessor(s, testWorkerConfig(), testLogger())

	err := p.Process(context.Background(), 404)

	require.NoError(t, err)
	assert.Empty(t, s.statusWrites())
}

func TestProcessor_Process_CompletedTaskUntouched(t *testing.T) {
	t.Parallel()

	s := newMockTaskStore()
	task := seedTask(t, s, domain.StatusCompleted)
	task.Result = "Processed in 5.00s"
	before, err := s.GetByID(context.Background(), task.ID)
	require.NoError(t, err)

	p := NewProcessor(s, testWorkerConfig(), testLogger())

	require.NoError(t, p.Process(context.Background(), task.ID))

	after, err := s.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Result, after.Result)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Empty(t, s.statusWrites())
}

func TestProcessor_Process_ConcurrentGuardLoss(t *testing.T) {
	t.Parallel()

	s := newMockTaskStore()
	task := seedTask(t, s, domain.StatusNew)

	// Another delivery wins the guard between load and transition.
	s.MarkFn = func(ctx context.Context, id int64) error {
		return store.ErrTaskNotProcessable
	}
	p := NewProcessor(s, testWorkerConfig(), testLogger())

	require.NoError(t, p.Process(context.Background(), task.ID))
	assert.Empty(t, s.statusWrites())
}

func TestProcessor_Process_Cancellation(t *testing.T) {
	t.Parallel()

	s := newMockTaskStore()
	task := seedTask(t, s, domain.StatusNew)

	cfg := testWorkerConfig()
	cfg.MinProcessTime = 300 * time.Millisecond
	cfg.MaxProcessTime = 500 * time.Millisecond
	p := NewProcessor(s, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = p.Process(ctx, task.ID)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.ErrorIs(t, runErr, context.Canceled, "cancellation must propagate")

	got, err := s.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, "Processing cancelled", got.ErrorMessage)
}

func TestProcessor_Process_RetriesTransientLoadFailure(t *testing.T) {
	t.Parallel()

	s := newMockTaskStore()
	task := seedTask(t, s, domain.StatusNew)

	var calls int
	s.GetFn = func(ctx context.Context, id int64) (*domain.Task, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		s.GetFn = nil
		return s.GetByID(ctx, id)
	}
	p := NewProcessor(s, testWorkerConfig(), testLogger())

	require.NoError(t, p.Process(context.Background(), task.ID))

	assert.Equal(t, 3, calls)
	got, err := s.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestProcessor_Process_ExhaustedRetriesRecordFailure(t *testing.T) {
	t.Parallel()

	t.Run("task never loaded", func(t *testing.T) {
		t.Parallel()

		s := newMockTaskStore()
		s.GetFn = func(ctx context.Context, id int64) (*domain.Task, error) {
			return nil, errors.New("connection reset")
		}
		p := NewProcessor(s, testWorkerConfig(), testLogger())

		// Nothing to update, so the failure is logged and swallowed.
		require.NoError(t, p.Process(context.Background(), 1))
		assert.Empty(t, s.statusWrites())
	})

	t.Run("task loaded, transition keeps failing", func(t *testing.T) {
		t.Parallel()

		s := newMockTaskStore()
		task := seedTask(t, s, domain.StatusNew)
		var marks int
		s.MarkFn = func(ctx context.Context, id int64) error {
			marks++
			return errors.New("connection reset")
		}
		p := NewProcessor(s, testWorkerConfig(), testLogger())

		require.NoError(t, p.Process(context.Background(), task.ID))

		assert.Equal(t, 3, marks, "one mark attempt per retry")
		got, err := s.GetByID(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusError, got.Status)
		assert.Contains(t, got.ErrorMessage, "Critical error:")
	})
}

func TestProcessor_ProcessingDuration_Bounds(t *testing.T) {
	t.Parallel()

	cfg := testWorkerConfig()
	cfg.MinProcessTime = 5 * time.Second
	cfg.MaxProcessTime = 10 * time.Second
	p := NewProcessor(newMockTaskStore(), cfg, testLogger())

	p.randFloat = func() float64 { return 0 }
	assert.Equal(t, cfg.MinProcessTime, p.processingDuration())

	p.randFloat = func() float64 { return 0.5 }
	assert.Equal(t, 7500*time.Millisecond, p.processingDuration())
}
