// Package dispatch is the only path from a confirmed conversation to a task
// store mutation. A dispatch runs in two phases: prepare re-validates the
// confirmed payload against the current clock and store, commit performs
// exactly one store call.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"tasknerd/internal/extract"
	"tasknerd/internal/logging"
	"tasknerd/internal/types"
	"tasknerd/internal/workflow"
)

// Result is a mutation the store reported as done.
type Result struct {
	Kind workflow.Kind
	// Task is the stored task after the mutation. For a delete it is the
	// task as it was just before removal.
	Task types.Task
	Plan workflow.Plan
}

// Gate serialises mutations per conversation.
type Gate struct {
	mu       sync.Mutex
	inFlight map[string]struct{}

	tasks   types.TaskStore
	dates   *extract.DateParser
	timeout time.Duration
}

// NewGate returns a Gate. timeout bounds each store call; zero leaves the
// caller's context as the only bound.
func NewGate(tasks types.TaskStore, dates *extract.DateParser, timeout time.Duration) *Gate {
	if dates == nil {
		dates = extract.NewDateParser()
	}
	return &Gate{
		inFlight: make(map[string]struct{}),
		tasks:    tasks,
		dates:    dates,
		timeout:  timeout,
	}
}

// Dispatch executes the confirmed state. On success the returned state is
// reset to NEUTRAL. On any error the input state is returned unchanged:
//   - ErrNotConfirmed when no confirmation is pending
//   - ErrDispatchInFlight when another dispatch holds the conversation
//   - *ValidationError or *NotFoundError when the payload went stale
//   - *ToolExecutionError when the store call failed or timed out
func (g *Gate) Dispatch(ctx context.Context, st types.ConversationState) (types.ConversationState, Result, error) {
	if !st.PendingConfirmation {
		return st, Result{}, types.ErrNotConfirmed
	}
	if err := ctx.Err(); err != nil {
		return st, Result{}, types.NewToolError("dispatch", err)
	}
	if !g.acquire(st.ConversationID) {
		logging.DispatchError("dispatch already in flight for %s", st.ConversationID)
		return st, Result{}, types.ErrDispatchInFlight
	}
	defer g.release(st.ConversationID)

	plan, current, err := g.prepare(ctx, st)
	if err != nil {
		logging.Dispatch("prepare failed for %s: %v", st.ConversationID, err)
		return st, Result{}, err
	}

	audit := logging.AuditWithConversation(st.ConversationID, st.Owner)
	audit.DispatchStart(string(plan.Kind), plan.TaskID)
	start := time.Now()

	task, err := g.commit(ctx, st.Owner, plan, current)
	audit.DispatchDone(string(plan.Kind), task.ID, time.Since(start), err)
	if err != nil {
		logging.DispatchError("%s failed for %s: %v", plan.Describe(), st.ConversationID, err)
		return st, Result{}, err
	}

	logging.Dispatch("%s done for %s (task %d)", plan.Describe(), st.ConversationID, task.ID)
	return st.Reset(), Result{Kind: plan.Kind, Task: task, Plan: plan}, nil
}

func (g *Gate) acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[id]; busy {
		return false
	}
	g.inFlight[id] = struct{}{}
	return true
}

func (g *Gate) release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, id)
}

// =============================================================================
// PREPARE
// =============================================================================

// prepare decodes and re-validates the plan. Targeted plans also re-read the
// task so a deletion since confirmation surfaces as NotFound, not as a
// failed write.
func (g *Gate) prepare(ctx context.Context, st types.ConversationState) (workflow.Plan, types.Task, error) {
	plan, err := workflow.PlanFor(st)
	if err != nil {
		return workflow.Plan{}, types.Task{}, err
	}

	switch plan.Kind {
	case workflow.KindCreate:
		if err := extract.ValidatePayload(plan.Payload); err != nil {
			return plan, types.Task{}, err
		}
		if err := g.checkDue(plan.Payload.DueDate); err != nil {
			return plan, types.Task{}, err
		}
		return plan, types.Task{}, nil

	case workflow.KindUpdate:
		if err := g.checkChanges(plan.Changes); err != nil {
			return plan, types.Task{}, err
		}
	}

	current, err := g.get(ctx, plan.TaskID, st.Owner)
	if err != nil {
		return plan, types.Task{}, err
	}
	return plan, current, nil
}

func (g *Gate) checkDue(due *time.Time) error {
	if due == nil {
		return nil
	}
	if out := g.dates.Check(*due); !out.OK() {
		return out.Err()
	}
	return nil
}

func (g *Gate) checkChanges(c types.TaskChanges) error {
	if c.Title != nil {
		if _, err := extract.ValidateTitle(*c.Title); err != nil {
			return err
		}
	}
	if c.Description != nil {
		if _, err := extract.ValidateDescription(*c.Description); err != nil {
			return err
		}
	}
	if c.Priority != nil {
		if _, err := extract.ValidatePriority(string(*c.Priority)); err != nil {
			return err
		}
	}
	return g.checkDue(c.DueDate)
}

func (g *Gate) get(ctx context.Context, id int64, owner string) (types.Task, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	t, err := g.tasks.Get(ctx, id, owner)
	if err != nil {
		return types.Task{}, storeError("get task", id, err)
	}
	return t, nil
}

// =============================================================================
// COMMIT
// =============================================================================

// commit performs the plan's single store call.
func (g *Gate) commit(ctx context.Context, owner string, plan workflow.Plan, current types.Task) (types.Task, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	var (
		task types.Task
		err  error
	)
	switch plan.Kind {
	case workflow.KindCreate:
		task, err = g.tasks.Create(ctx, owner, plan.Payload)
	case workflow.KindUpdate:
		task, err = g.tasks.Update(ctx, plan.TaskID, owner, plan.Changes)
	case workflow.KindDelete:
		err = g.tasks.Delete(ctx, plan.TaskID, owner)
		task = current
	case workflow.KindComplete:
		task, err = g.tasks.SetCompleted(ctx, plan.TaskID, owner, plan.Completed)
	}
	if err != nil {
		return types.Task{}, storeError(string(plan.Kind)+" task", plan.TaskID, err)
	}
	return task, nil
}

func (g *Gate) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func storeError(op string, id int64, err error) error {
	if errors.Is(err, types.ErrTaskNotFound) {
		return &types.NotFoundError{TaskID: id}
	}
	return types.NewToolError(op, err)
}
