package types

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by stores and the engine.
var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrStateConflict        = errors.New("conversation state changed concurrently")
	ErrNotConfirmed         = errors.New("dispatch requires a pending confirmation")
	ErrDispatchInFlight     = errors.New("a mutation is already in flight for this conversation")
	ErrOwnerRequired        = errors.New("owner is required")
	ErrConversationOwner    = errors.New("conversation belongs to another owner")
)

// ValidationError reports a single invalid field value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a task id that does not exist for the caller.
type NotFoundError struct {
	TaskID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %d not found", e.TaskID)
}

// Unwrap lets errors.Is(err, ErrTaskNotFound) match.
func (e *NotFoundError) Unwrap() error { return ErrTaskNotFound }

// ToolExecutionError wraps a failure of an external task store call.
type ToolExecutionError struct {
	Op  string
	Err error
}

func (e *ToolExecutionError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *ToolExecutionError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// NewToolError wraps err unless it is nil.
func NewToolError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ToolExecutionError{Op: op, Err: err}
}
