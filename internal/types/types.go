// Package types provides shared type definitions used across tasknerd packages.
// This package exists to break import cycles between perception, workflow, dispatch and store.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// TASKS
// =============================================================================

// Priority is the importance level of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// DefaultPriority is applied when the user omits the priority.
const DefaultPriority = PriorityMedium

// ParsePriority converts a stored or user-facing value into a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityLow:
		return PriorityLow, true
	}
	return "", false
}

// Task is a todo item owned by a single user.
type Task struct {
	ID          int64      `json:"id"`
	Owner       string     `json:"owner"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StatusLabel renders the completion flag for prompts.
func (t Task) StatusLabel() string {
	if t.Completed {
		return "complete"
	}
	return "pending"
}

// TaskPayload is the data needed to create a task.
type TaskPayload struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// TaskChanges holds the fields an update will touch. Nil means "leave unchanged".
type TaskChanges struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Empty reports whether no field is being changed.
func (c TaskChanges) Empty() bool {
	return c.Title == nil && c.Description == nil && c.Priority == nil && c.DueDate == nil
}

// ListFilter narrows a task listing.
type ListFilter string

const (
	FilterAll       ListFilter = "all"
	FilterPending   ListFilter = "pending"
	FilterCompleted ListFilter = "completed"
)

// Match reports whether a task passes the filter.
func (f ListFilter) Match(t Task) bool {
	switch f {
	case FilterPending:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// =============================================================================
// WORKFLOW STATES AND INTENTS
// =============================================================================

// WorkflowState is the conversation's current_intent.
type WorkflowState string

const (
	StateNeutral    WorkflowState = "NEUTRAL"
	StateAdding     WorkflowState = "ADDING_TASK"
	StateUpdating   WorkflowState = "UPDATING_TASK"
	StateDeleting   WorkflowState = "DELETING_TASK"
	StateCompleting WorkflowState = "COMPLETING_TASK"
	StateListing    WorkflowState = "LISTING_TASKS"
)

// ParseWorkflowState validates a persisted state value.
func ParseWorkflowState(s string) (WorkflowState, error) {
	switch ws := WorkflowState(s); ws {
	case StateNeutral, StateAdding, StateUpdating, StateDeleting, StateCompleting, StateListing:
		return ws, nil
	case "":
		return StateNeutral, nil
	}
	return "", fmt.Errorf("unknown workflow state %q", s)
}

// Intent is the discrete operation class a message maps to.
type Intent string

const (
	IntentAddTask      Intent = "ADD_TASK"
	IntentUpdateTask   Intent = "UPDATE_TASK"
	IntentDeleteTask   Intent = "DELETE_TASK"
	IntentCompleteTask Intent = "COMPLETE_TASK"
	IntentListTasks    Intent = "LIST_TASKS"
	IntentCancel       Intent = "CANCEL"
	IntentProvideInfo  Intent = "PROVIDE_INFORMATION"
	IntentUnknown      Intent = "UNKNOWN"
)

// Workflow maps a command intent to the workflow state it opens.
// Non-command intents map to StateNeutral.
func (i Intent) Workflow() WorkflowState {
	switch i {
	case IntentAddTask:
		return StateAdding
	case IntentUpdateTask:
		return StateUpdating
	case IntentDeleteTask:
		return StateDeleting
	case IntentCompleteTask:
		return StateCompleting
	case IntentListTasks:
		return StateListing
	}
	return StateNeutral
}

// IsCommand reports whether the intent opens a workflow.
func (i Intent) IsCommand() bool {
	return i.Workflow() != StateNeutral
}

// Entities are the values the classifier could extract inline from a message.
// Zero values mean "not mentioned".
type Entities struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	// PriorityUncertain is set when a priority keyword was found but negated
	// ("not urgent"); the workflow asks instead of guessing.
	PriorityUncertain bool   `json:"priority_uncertain,omitempty"`
	DueText           string `json:"due_text,omitempty"`
	TaskID            *int64 `json:"task_id,omitempty"`
	TaskRef           string `json:"task_ref,omitempty"`
	// Ordinal is a 1-based list position ("the second one").
	Ordinal      int        `json:"ordinal,omitempty"`
	Confirmation *bool      `json:"confirmation,omitempty"`
	Completed    *bool      `json:"completed,omitempty"`
	Filter       ListFilter `json:"filter,omitempty"`
	// Text is the trimmed original message.
	Text string `json:"text,omitempty"`
}

// IntentResult is the per-turn classifier output. It is never persisted.
type IntentResult struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
	// PatternMatched is false when no deterministic pattern fired.
	PatternMatched bool `json:"pattern_matched"`
}

// Affirmative reports an explicit yes.
func (r IntentResult) Affirmative() bool {
	return r.Entities.Confirmation != nil && *r.Entities.Confirmation
}

// Negative reports an explicit no.
func (r IntentResult) Negative() bool {
	return r.Entities.Confirmation != nil && !*r.Entities.Confirmation
}

// =============================================================================
// MATCHING
// =============================================================================

// MatchCandidate is a task that scored against a search phrase.
type MatchCandidate struct {
	TaskID     int64   `json:"task_id"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
}

// MatchKind is the three-way matcher outcome.
type MatchKind int

const (
	NoMatch MatchKind = iota
	SingleMatch
	MultipleMatches
)

func (k MatchKind) String() string {
	switch k {
	case SingleMatch:
		return "single"
	case MultipleMatches:
		return "multiple"
	default:
		return "none"
	}
}

// MatchOutcome is returned by the fuzzy matcher.
// For NoMatch, Candidates may hold a near miss worth suggesting.
type MatchOutcome struct {
	Kind       MatchKind        `json:"kind"`
	Candidates []MatchCandidate `json:"candidates,omitempty"`
}

// Best returns the top candidate.
func (o MatchOutcome) Best() (MatchCandidate, bool) {
	if len(o.Candidates) == 0 {
		return MatchCandidate{}, false
	}
	return o.Candidates[0], true
}
