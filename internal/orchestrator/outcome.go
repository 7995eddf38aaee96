package orchestrator

import (
	"strings"

	"tasknerd/internal/dispatch"
	"tasknerd/internal/types"
	"tasknerd/internal/workflow"
)

// OutcomeKind is the type of response a turn produced.
type OutcomeKind string

const (
	OutcomeQuestion        OutcomeKind = "question"
	OutcomeConfirmation    OutcomeKind = "confirmation"
	OutcomeMutation        OutcomeKind = "mutation_performed"
	OutcomeTaskList        OutcomeKind = "task_list"
	OutcomeAcknowledgement OutcomeKind = "acknowledgement"
	OutcomeError           OutcomeKind = "error"
)

// ErrorKind classifies an OutcomeError.
type ErrorKind string

const (
	ErrorTool     ErrorKind = "tool_execution"
	ErrorConflict ErrorKind = "conflict"
	ErrorInternal ErrorKind = "internal"
)

// Mutation is a change the task store reported as committed.
type Mutation struct {
	Kind workflow.Kind `json:"kind"`
	Task types.Task    `json:"task"`
}

// Outcome is the single response of a turn.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message"`
	// Summary restates the payload awaiting confirmation.
	Summary    string                 `json:"summary,omitempty"`
	Field      string                 `json:"field,omitempty"`
	Candidates []types.MatchCandidate `json:"candidates,omitempty"`
	Tasks      []types.Task           `json:"tasks,omitempty"`
	Filter     types.ListFilter       `json:"filter,omitempty"`
	ErrorKind  ErrorKind              `json:"error_kind,omitempty"`
	// State is the workflow the conversation is in after the turn.
	State  types.WorkflowState `json:"state"`
	TurnID string              `json:"turn_id"`

	mutation *Mutation
}

// Mutation returns the committed change, if this outcome reports one.
func (o Outcome) Mutation() (Mutation, bool) {
	if o.mutation == nil {
		return Mutation{}, false
	}
	return *o.mutation, true
}

// outcomePayload exposes the mutation for encoding.
type outcomePayload struct {
	Outcome
	Mutation *Mutation `json:"mutation,omitempty"`
}

// Payload returns a value suitable for JSON encoding, mutation included.
func (o Outcome) Payload() any {
	return outcomePayload{Outcome: o, Mutation: o.mutation}
}

// Render formats the outcome as plain text, task lists included.
func (o Outcome) Render() string {
	if len(o.Tasks) == 0 {
		return o.Message
	}
	var b strings.Builder
	b.WriteString(o.Message)
	for _, t := range o.Tasks {
		b.WriteString("\n  ")
		b.WriteString(workflow.FormatTask(t))
	}
	return b.String()
}

// mutationOutcome is the only way to build an OutcomeMutation: it needs a
// result the gate got back from the store.
func mutationOutcome(res dispatch.Result) Outcome {
	return Outcome{
		Kind:     OutcomeMutation,
		Message:  mutationMessage(res),
		State:    types.StateNeutral,
		mutation: &Mutation{Kind: res.Kind, Task: res.Task},
	}
}

func mutationMessage(res dispatch.Result) string {
	line := workflow.FormatTask(res.Task)
	switch res.Kind {
	case workflow.KindCreate:
		return "Done. I added " + line + "."
	case workflow.KindUpdate:
		return "Done. I updated " + line + "."
	case workflow.KindDelete:
		return "Done. I deleted " + line + "."
	default:
		if res.Task.Completed {
			return "Done. I marked " + line + " as complete."
		}
		return "Done. I marked " + line + " as not done."
	}
}

func stepOutcome(step workflow.Step) Outcome {
	o := Outcome{
		Message:    step.Prompt,
		Field:      step.Field,
		Candidates: step.Candidates,
		State:      step.State.CurrentIntent,
	}
	switch step.Action {
	case workflow.ActionConfirm:
		o.Kind = OutcomeConfirmation
		o.Summary = step.Summary
	case workflow.ActionList:
		o.Kind = OutcomeTaskList
		o.Tasks = step.Tasks
		o.Filter = step.Filter
	case workflow.ActionAcknowledge:
		o.Kind = OutcomeAcknowledgement
	default:
		o.Kind = OutcomeQuestion
	}
	return o
}

func errorOutcome(kind ErrorKind, state types.WorkflowState, msg string) Outcome {
	return Outcome{Kind: OutcomeError, ErrorKind: kind, Message: msg, State: state}
}
