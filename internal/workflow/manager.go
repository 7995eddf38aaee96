// Package workflow is the per-conversation state machine. It collects the
// fields each intent needs, resolves task references and decides when to ask,
// confirm, list or hand a payload to the dispatch gate. It never mutates tasks.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tasknerd/internal/extract"
	"tasknerd/internal/logging"
	"tasknerd/internal/matcher"
	"tasknerd/internal/types"
)

// Action is what the caller should do with a Step.
type Action int

const (
	// ActionAsk asks for one field.
	ActionAsk Action = iota
	// ActionConfirm restates the payload and waits for yes/no.
	ActionConfirm
	// ActionDispatch hands the confirmed state to the gate.
	ActionDispatch
	// ActionList shows tasks. The workflow may still be open.
	ActionList
	// ActionAcknowledge ends a workflow without a mutation.
	ActionAcknowledge
	// ActionClarify asks the user what they want to do.
	ActionClarify
)

func (a Action) String() string {
	switch a {
	case ActionAsk:
		return "ask"
	case ActionConfirm:
		return "confirm"
	case ActionDispatch:
		return "dispatch"
	case ActionList:
		return "list"
	case ActionAcknowledge:
		return "acknowledge"
	default:
		return "clarify"
	}
}

// Step is the manager's decision for one turn.
type Step struct {
	Action Action
	// State is what the caller persists. On ActionDispatch it is the
	// unchanged confirmed state.
	State  types.ConversationState
	Prompt string
	// Field names the field an ActionAsk is about.
	Field string
	// Summary restates the payload on ActionConfirm.
	Summary    string
	Candidates []types.MatchCandidate
	Tasks      []types.Task
	Filter     types.ListFilter
}

// Manager runs the workflows. It is safe for concurrent use across
// conversations; it keeps no per-conversation memory.
type Manager struct {
	tasks         types.TaskReader
	matcher       *matcher.Matcher
	dates         *extract.DateParser
	lookupTimeout time.Duration
}

// NewManager builds a Manager. lookupTimeout bounds each read against the
// task store; zero means no extra bound beyond the caller's context.
func NewManager(tasks types.TaskReader, m *matcher.Matcher, dates *extract.DateParser, lookupTimeout time.Duration) *Manager {
	if m == nil {
		m = matcher.New(matcher.DefaultOptions())
	}
	if dates == nil {
		dates = extract.NewDateParser()
	}
	return &Manager{tasks: tasks, matcher: m, dates: dates, lookupTimeout: lookupTimeout}
}

// Dates exposes the parser so the gate re-validates with the same clock.
func (m *Manager) Dates() *extract.DateParser { return m.dates }

// Step advances st by one classified message. An error means a task store
// lookup failed; the caller must keep the previous state.
func (m *Manager) Step(ctx context.Context, st types.ConversationState, res types.IntentResult) (Step, error) {
	st = st.Clone()

	switch {
	case res.Intent == types.IntentCancel:
		return m.cancel(st), nil

	case res.Intent.IsCommand():
		if res.Intent.Workflow() == st.CurrentIntent {
			return m.proceed(ctx, st, res)
		}
		if !st.IsNeutral() {
			logging.Workflow("abandoning %s for %s in %s", st.CurrentIntent, res.Intent, st.ConversationID)
			m.audit(st).WorkflowReset(string(st.CurrentIntent), "intent_switch")
			st = st.Reset()
		}
		return m.open(ctx, st, res)

	case st.IsNeutral():
		return Step{Action: ActionClarify, State: st, Prompt: clarifyPrompt}, nil

	default:
		return m.proceed(ctx, st, res)
	}
}

// Reopen puts the field behind a dispatch-time failure back to Pending and
// asks for it again. Other collected fields are kept.
func (m *Manager) Reopen(st types.ConversationState, err error) Step {
	st = st.Clone()

	var ve *types.ValidationError
	var nf *types.NotFoundError
	switch {
	case errors.As(err, &ve) && ve.Field == fieldChanges:
		st.PendingConfirmation = false
		return m.ask(st, question{field: fieldChanges, text: changesQuestion})
	case errors.As(err, &ve):
		field := ve.Field
		if !st.StateData.Has(field) {
			field = types.FieldTarget
		}
		st = reopenField(st, field)
		return m.ask(st, question{field: field, text: reprompt(st, ve)})
	case errors.As(err, &nf):
		st = reopenField(st, types.FieldTarget)
		return m.ask(st, question{field: types.FieldTarget, text: notFoundPrompt(nf.TaskID)})
	default:
		st = reopenField(st, types.FieldTarget)
		return m.ask(st, question{field: types.FieldTarget, text: targetQuestion(st)})
	}
}

func reopenField(st types.ConversationState, field string) types.ConversationState {
	st.PendingConfirmation = false
	st.StateData = st.StateData.Set(field, types.Pending())
	if field == types.FieldTarget {
		st.TargetTaskID = nil
		st.Candidates = nil
	}
	return st
}

func (m *Manager) audit(st types.ConversationState) *logging.AuditLogger {
	return logging.AuditWithConversation(st.ConversationID, st.Owner)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func (m *Manager) cancel(st types.ConversationState) Step {
	if st.IsNeutral() {
		return Step{Action: ActionAcknowledge, State: st, Prompt: "There's nothing to cancel."}
	}
	logging.Workflow("cancelled %s in %s", st.CurrentIntent, st.ConversationID)
	m.audit(st).WorkflowReset(string(st.CurrentIntent), "cancel")
	return Step{Action: ActionAcknowledge, State: st.Reset(), Prompt: "Okay, I've cancelled that. Nothing was changed."}
}

func (m *Manager) open(ctx context.Context, st types.ConversationState, res types.IntentResult) (Step, error) {
	wf := res.Intent.Workflow()
	if wf == types.StateListing {
		return m.list(ctx, st, res.Entities.Filter)
	}

	st.CurrentIntent = wf
	st.StateData = checklist(wf, res.Entities)
	logging.Workflow("opened %s in %s", wf, st.ConversationID)
	return m.advance(ctx, st, res)
}

// proceed continues the open workflow with a reply or a restated command.
func (m *Manager) proceed(ctx context.Context, st types.ConversationState, res types.IntentResult) (Step, error) {
	if !st.PendingConfirmation {
		return m.advance(ctx, st, res)
	}

	switch {
	case res.Affirmative():
		logging.WorkflowDebug("confirmed %s in %s", st.CurrentIntent, st.ConversationID)
		return Step{Action: ActionDispatch, State: st}, nil
	case res.Negative():
		m.audit(st).WorkflowReset(string(st.CurrentIntent), "declined")
		return Step{Action: ActionAcknowledge, State: st.Reset(), Prompt: "Okay, nothing was changed."}, nil
	}

	// Anything else is an amendment; it needs a fresh confirmation.
	amended, q, changed, err := m.merge(ctx, st, res)
	if err != nil {
		return Step{}, err
	}
	if !changed {
		step, err := m.confirm(ctx, st)
		if err == nil && step.Action == ActionConfirm {
			step.Prompt = "Please answer yes or no. " + step.Prompt
		}
		return step, err
	}
	amended.PendingConfirmation = false
	return m.settle(ctx, amended, q)
}

func (m *Manager) advance(ctx context.Context, st types.ConversationState, res types.IntentResult) (Step, error) {
	st, q, _, err := m.merge(ctx, st, res)
	if err != nil {
		return Step{}, err
	}
	return m.settle(ctx, st, q)
}

// settle asks the raised question, else the first unresolved field, else
// moves to confirmation.
func (m *Manager) settle(ctx context.Context, st types.ConversationState, q *question) (Step, error) {
	if q != nil {
		return m.ask(st, *q), nil
	}
	if field, ok := st.StateData.FirstPending(); ok {
		return m.ask(st, question{field: field, text: questionFor(st, field)}), nil
	}
	if st.CurrentIntent == types.StateUpdating && !hasChanges(st.StateData) {
		return m.ask(st, question{field: fieldChanges, text: changesQuestion}), nil
	}
	return m.confirm(ctx, st)
}

func (m *Manager) ask(st types.ConversationState, q question) Step {
	step := Step{
		Action:     ActionAsk,
		State:      st,
		Prompt:     q.text,
		Field:      q.field,
		Candidates: st.Candidates,
	}
	if q.tasks != nil {
		step.Action = ActionList
		step.Tasks = q.tasks
		step.Filter = types.FilterAll
	}
	return step
}

func (m *Manager) confirm(ctx context.Context, st types.ConversationState) (Step, error) {
	var current *types.Task
	if st.TargetTaskID != nil {
		t, err := m.get(ctx, st, *st.TargetTaskID)
		if errors.Is(err, types.ErrTaskNotFound) {
			id := *st.TargetTaskID
			st = reopenField(st, types.FieldTarget)
			return m.ask(st, question{field: types.FieldTarget, text: notFoundPrompt(id)}), nil
		}
		if err != nil {
			return Step{}, err
		}
		current = &t
	}

	if st.CurrentIntent == types.StateCompleting && current != nil && current.Completed == wantCompleted(st.StateData) {
		m.audit(st).WorkflowReset(string(st.CurrentIntent), "no_change")
		return Step{
			Action: ActionAcknowledge,
			State:  st.Reset(),
			Prompt: fmt.Sprintf("Task #%d %q is already %s. Nothing to change.", current.ID, current.Title, current.StatusLabel()),
		}, nil
	}

	summary := summarize(st, current)
	st.PendingConfirmation = true
	logging.WorkflowDebug("awaiting confirmation in %s: %s", st.ConversationID, summary)
	return Step{
		Action:  ActionConfirm,
		State:   st,
		Prompt:  summary + " Shall I go ahead? (yes/no)",
		Summary: summary,
	}, nil
}

func (m *Manager) list(ctx context.Context, st types.ConversationState, filter types.ListFilter) (Step, error) {
	if filter == "" {
		filter = types.FilterAll
	}
	tasks, err := m.listTasks(ctx, st)
	if err != nil {
		return Step{}, err
	}
	shown := make([]types.Task, 0, len(tasks))
	for _, t := range tasks {
		if filter.Match(t) {
			shown = append(shown, t)
		}
	}
	return Step{
		Action: ActionList,
		State:  st,
		Prompt: listHeading(filter, len(shown)),
		Tasks:  shown,
		Filter: filter,
	}, nil
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (m *Manager) lookupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.lookupTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.lookupTimeout)
}

// get returns ErrTaskNotFound-wrapping errors as they are; anything else is a
// ToolExecutionError.
func (m *Manager) get(ctx context.Context, st types.ConversationState, id int64) (types.Task, error) {
	ctx, cancel := m.lookupContext(ctx)
	defer cancel()

	t, err := m.tasks.Get(ctx, id, st.Owner)
	if errors.Is(err, types.ErrTaskNotFound) {
		return types.Task{}, &types.NotFoundError{TaskID: id}
	}
	if err != nil {
		return types.Task{}, types.NewToolError("get task", err)
	}
	return t, nil
}

func (m *Manager) listTasks(ctx context.Context, st types.ConversationState) ([]types.Task, error) {
	ctx, cancel := m.lookupContext(ctx)
	defer cancel()

	tasks, err := m.tasks.List(ctx, st.Owner)
	if err != nil {
		return nil, types.NewToolError("list tasks", err)
	}
	return tasks, nil
}
