package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// convLocks gives each conversation a one-slot semaphore. Entries are
// dropped once nobody holds or waits on them.
type convLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newConvLocks() *convLocks {
	return &convLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the conversation is free or ctx ends.
func (l *convLocks) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.drop(id, e)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.drop(id, e)
		})
	}, nil
}

func (l *convLocks) drop(id string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 && l.entries[id] == e {
		delete(l.entries, id)
	}
}

func (l *convLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
