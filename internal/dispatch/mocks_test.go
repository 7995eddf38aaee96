package dispatch

import (
	"context"
	"sync"
	"time"

	"tasknerd/internal/types"
)

// fakeStore is an in-memory TaskStore that counts mutations.
type fakeStore struct {
	mu     sync.Mutex
	tasks  map[int64]types.Task
	nextID int64
	calls  map[string]int

	// mutateErr fails every mutation.
	mutateErr error
	// block, when set, makes mutations wait for it to close or ctx to end.
	block   chan struct{}
	entered chan struct{}
}

func newFakeStore(tasks ...types.Task) *fakeStore {
	f := &fakeStore{tasks: make(map[int64]types.Task), nextID: 100, calls: make(map[string]int)}
	for _, t := range tasks {
		if t.Owner == "" {
			t.Owner = "alice"
		}
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeStore) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeStore) mutations() int {
	return f.count("create") + f.count("update") + f.count("delete") + f.count("set_completed")
}

func (f *fakeStore) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	block, entered, err := f.block, f.entered, f.mutateErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeStore) Get(_ context.Context, id int64, owner string) (types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get"]++
	t, ok := f.tasks[id]
	if !ok || t.Owner != owner {
		return types.Task{}, types.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeStore) List(_ context.Context, owner string) ([]types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Task
	for _, t := range f.tasks {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) Create(ctx context.Context, owner string, p types.TaskPayload) (types.Task, error) {
	if err := f.enter(ctx, "create"); err != nil {
		return types.Task{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	t := types.Task{
		ID:          f.nextID,
		Owner:       owner,
		Title:       p.Title,
		Description: p.Description,
		Priority:    p.Priority,
		DueDate:     p.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeStore) Update(ctx context.Context, id int64, owner string, c types.TaskChanges) (types.Task, error) {
	if err := f.enter(ctx, "update"); err != nil {
		return types.Task{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.Owner != owner {
		return types.Task{}, types.ErrTaskNotFound
	}
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if c.DueDate != nil {
		t.DueDate = c.DueDate
	}
	f.tasks[id] = t
	return t, nil
}

func (f *fakeStore) Delete(ctx context.Context, id int64, owner string) error {
	if err := f.enter(ctx, "delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.Owner != owner {
		return types.ErrTaskNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) SetCompleted(ctx context.Context, id int64, owner string, completed bool) (types.Task, error) {
	if err := f.enter(ctx, "set_completed"); err != nil {
		return types.Task{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.Owner != owner {
		return types.Task{}, types.ErrTaskNotFound
	}
	t.Completed = completed
	f.tasks[id] = t
	return t, nil
}
