package types

import (
	"context"
)

// TaskStore is the owner-scoped task persistence the engine consumes.
// Every call is scoped to owner; a task owned by someone else is reported as
// ErrTaskNotFound, never as a permission error.
type TaskStore interface {
	Get(ctx context.Context, taskID int64, owner string) (Task, error)
	List(ctx context.Context, owner string) ([]Task, error)
	Create(ctx context.Context, owner string, payload TaskPayload) (Task, error)
	Update(ctx context.Context, taskID int64, owner string, changes TaskChanges) (Task, error)
	Delete(ctx context.Context, taskID int64, owner string) error
	SetCompleted(ctx context.Context, taskID int64, owner string, completed bool) (Task, error)
}

// TaskReader is the read-only subset used while collecting information.
type TaskReader interface {
	Get(ctx context.Context, taskID int64, owner string) (Task, error)
	List(ctx context.Context, owner string) ([]Task, error)
}

// StateStore persists one ConversationState per conversation.
// Save must fail with ErrStateConflict when the stored version moved since Load.
type StateStore interface {
	Load(ctx context.Context, conversationID, owner string) (ConversationState, error)
	Save(ctx context.Context, state ConversationState) (ConversationState, error)
}

// Hint is a non-authoritative suggestion from a generative collaborator.
// The engine re-classifies Rephrased through the deterministic classifier;
// Intent is informational only.
type Hint struct {
	Intent     Intent  `json:"intent"`
	Rephrased  string  `json:"rephrased"`
	Confidence float64 `json:"confidence"`
}

// Suggester is the optional generative disambiguation service.
type Suggester interface {
	Suggest(ctx context.Context, message string, state ConversationState) (Hint, error)
}
