package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"tasknerd/internal/types"
)

// =============================================================================
// TASK STORE
// =============================================================================

type memTasks struct {
	mu        sync.Mutex
	tasks     map[int64]types.Task
	nextID    int64
	mutations int
	failNext  error
}

func newMemTasks(tasks ...types.Task) *memTasks {
	m := &memTasks{tasks: make(map[int64]types.Task)}
	for _, t := range tasks {
		if t.Owner == "" {
			t.Owner = "alice"
		}
		if t.Priority == "" {
			t.Priority = types.PriorityMedium
		}
		m.tasks[t.ID] = t
		if t.ID > m.nextID {
			m.nextID = t.ID
		}
	}
	return m
}

func (m *memTasks) mutate() error {
	m.mutations++
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	return nil
}

func (m *memTasks) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutations
}

func (m *memTasks) Get(_ context.Context, id int64, owner string) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Owner != owner {
		return types.Task{}, types.ErrTaskNotFound
	}
	return t, nil
}

func (m *memTasks) List(_ context.Context, owner string) ([]types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Task
	for _, t := range m.tasks {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTasks) Create(_ context.Context, owner string, p types.TaskPayload) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.mutate(); err != nil {
		return types.Task{}, err
	}
	m.nextID++
	t := types.Task{
		ID:          m.nextID,
		Owner:       owner,
		Title:       p.Title,
		Description: p.Description,
		Priority:    p.Priority,
		DueDate:     p.DueDate,
		CreatedAt:   time.Now(),
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memTasks) Update(_ context.Context, id int64, owner string, c types.TaskChanges) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.mutate(); err != nil {
		return types.Task{}, err
	}
	t, ok := m.tasks[id]
	if !ok || t.Owner != owner {
		return types.Task{}, types.ErrTaskNotFound
	}
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if c.DueDate != nil {
		t.DueDate = c.DueDate
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	m.tasks[id] = t
	return t, nil
}

func (m *memTasks) Delete(_ context.Context, id int64, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.mutate(); err != nil {
		return err
	}
	if t, ok := m.tasks[id]; !ok || t.Owner != owner {
		return types.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memTasks) SetCompleted(_ context.Context, id int64, owner string, completed bool) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.mutate(); err != nil {
		return types.Task{}, err
	}
	t, ok := m.tasks[id]
	if !ok || t.Owner != owner {
		return types.Task{}, types.ErrTaskNotFound
	}
	t.Completed = completed
	m.tasks[id] = t
	return t, nil
}

// =============================================================================
// STATE STORE
// =============================================================================

type memStates struct {
	mu     sync.Mutex
	states map[string]types.ConversationState
	saves  int
	// bump, when set, moves the stored version before the next Save.
	bump bool
}

func newMemStates() *memStates {
	return &memStates{states: make(map[string]types.ConversationState)}
}

func (m *memStates) Load(_ context.Context, id, owner string) (types.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return types.ConversationState{}, types.ErrConversationNotFound
	}
	if st.Owner != owner {
		return types.ConversationState{}, types.ErrConversationOwner
	}
	return st.Clone(), nil
}

func (m *memStates) Save(_ context.Context, st types.ConversationState) (types.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	cur, ok := m.states[st.ConversationID]
	if m.bump && ok {
		m.bump = false
		cur.Version++
		m.states[st.ConversationID] = cur
	}
	if ok && cur.Version != st.Version {
		return types.ConversationState{}, types.ErrStateConflict
	}
	if !ok && st.Version != 0 {
		return types.ConversationState{}, types.ErrStateConflict
	}
	st = st.Clone()
	st.Version++
	m.states[st.ConversationID] = st
	return st.Clone(), nil
}

func (m *memStates) get(id string) types.ConversationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id].Clone()
}

// =============================================================================
// SUGGESTER
// =============================================================================

type fakeSuggester struct {
	mu    sync.Mutex
	hint  types.Hint
	err   error
	calls int
}

func (f *fakeSuggester) Suggest(_ context.Context, _ string, _ types.ConversationState) (types.Hint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.hint, f.err
}
