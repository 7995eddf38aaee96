package workflow

import (
	"context"
	"sort"
	"sync"

	"tasknerd/internal/types"
)

// fakeTasks is an in-memory TaskReader.
type fakeTasks struct {
	mu      sync.Mutex
	tasks   map[int64]types.Task
	gets    int
	lists   int
	getErr  error
	listErr error
}

func newFakeTasks(tasks ...types.Task) *fakeTasks {
	f := &fakeTasks{tasks: make(map[int64]types.Task)}
	for _, t := range tasks {
		if t.Owner == "" {
			t.Owner = "alice"
		}
		if t.Priority == "" {
			t.Priority = types.PriorityMedium
		}
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeTasks) Get(_ context.Context, id int64, owner string) (types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return types.Task{}, f.getErr
	}
	t, ok := f.tasks[id]
	if !ok || t.Owner != owner {
		return types.Task{}, types.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeTasks) List(_ context.Context, owner string) ([]types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []types.Task
	for _, t := range f.tasks {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
