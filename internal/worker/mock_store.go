package worker

import (
	"context"
	"sync"
	"time"

	"github.com/asyncworks/task-manager/internal/domain"
	"github.com/asyncworks/task-manager/internal/store"
)

// statusWrite records one status mutation for assertions.
type statusWrite struct {
	taskID       int64
	status       domain.Status
	result       string
	errorMessage string
}

// mockTaskStore is an in-memory store.TaskStore for tests. Individual
// methods can be overridden through the Fn fields to inject failures.
type mockTaskStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*domain.Task
	writes []statusWrite

	GetFn    func(ctx context.Context, id int64) (*domain.Task, error)
	MarkFn   func(ctx context.Context, id int64) error
	UpdateFn func(ctx context.Context, id int64, status domain.Status, result, errorMessage string) (*domain.Task, error)
}

var _ store.TaskStore = (*mockTaskStore)(nil)

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{tasks: make(map[int64]*domain.Task)}
}

// seed inserts a task directly, bypassing validation.
func (m *mockTaskStore) seed(task *domain.Task) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	task.ID = m.nextID
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	m.tasks[task.ID] = task
	return task
}

func (m *mockTaskStore) statusWrites() []statusWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]statusWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

func (m *mockTaskStore) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if err := task.Validate(); err != nil {
		return nil, store.ErrInvalidEntity
	}
	cp := *task
	return m.seed(&cp), nil
}

func (m *mockTaskStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	cp := *task
	return &cp, nil
}

func (m *mockTaskStore) List(ctx context.Context, status *domain.Status) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, task := range m.tasks {
		if status == nil || task.Status == *status {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTaskStore) UpdateStatus(
	ctx context.Context,
	id int64,
	status domain.Status,
	result, errorMessage string,
) (*domain.Task, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, id, status, result, errorMessage)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	task.Status = status
	task.Result = ""
	task.ErrorMessage = ""
	switch status {
	case domain.StatusCompleted:
		task.Result = result
	case domain.StatusError:
		task.ErrorMessage = errorMessage
	}
	task.UpdatedAt = time.Now().UTC()
	m.writes = append(m.writes, statusWrite{id, status, result, errorMessage})
	cp := *task
	return &cp, nil
}

func (m *mockTaskStore) MarkProcessing(ctx context.Context, id int64) error {
	if m.MarkFn != nil {
		return m.MarkFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok || !task.Status.Processable() {
		return store.ErrTaskNotProcessable
	}
	task.Status = domain.StatusProcessing
	task.Result = ""
	task.ErrorMessage = ""
	task.UpdatedAt = time.Now().UTC()
	m.writes = append(m.writes, statusWrite{id, domain.StatusProcessing, "", ""})
	return nil
}
