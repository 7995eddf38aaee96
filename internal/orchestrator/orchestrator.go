// Package orchestrator runs one conversational turn end to end: load the
// conversation, classify the message, advance the workflow, dispatch a
// confirmed mutation and persist the new state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tasknerd/internal/dispatch"
	"tasknerd/internal/extract"
	"tasknerd/internal/logging"
	"tasknerd/internal/matcher"
	"tasknerd/internal/perception"
	"tasknerd/internal/types"
	"tasknerd/internal/workflow"
)

// Options tunes an Orchestrator. Zero values fall back to defaults.
type Options struct {
	// ToolTimeout bounds every task store call.
	ToolTimeout time.Duration
	// LockTimeout bounds the wait for a busy conversation.
	LockTimeout time.Duration
	Matcher     matcher.Options
	Dates       *extract.DateParser
	// Suggester is consulted for unrecognised messages in NEUTRAL. Optional.
	Suggester types.Suggester
	// MinHintConfidence drops suggester hints below it.
	MinHintConfidence float64
}

// DefaultOptions returns a 5s tool timeout and a 10s lock timeout.
func DefaultOptions() Options {
	return Options{
		ToolTimeout:       5 * time.Second,
		LockTimeout:       10 * time.Second,
		Matcher:           matcher.DefaultOptions(),
		MinHintConfidence: 0.5,
	}
}

// Orchestrator is safe for concurrent use. Turns for one conversation run
// strictly in sequence; different conversations run in parallel.
type Orchestrator struct {
	classifier *perception.Classifier
	manager    *workflow.Manager
	gate       *dispatch.Gate
	states     types.StateStore
	suggester  types.Suggester
	locks      *convLocks
	opts       Options
}

// New wires an Orchestrator over the given stores.
func New(tasks types.TaskStore, states types.StateStore, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = def.ToolTimeout
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = def.LockTimeout
	}
	if opts.Dates == nil {
		opts.Dates = extract.NewDateParser()
	}
	return &Orchestrator{
		classifier: perception.NewClassifier(),
		manager:    workflow.NewManager(tasks, matcher.New(opts.Matcher), opts.Dates, opts.ToolTimeout),
		gate:       dispatch.NewGate(tasks, opts.Dates, opts.ToolTimeout),
		states:     states,
		suggester:  opts.Suggester,
		locks:      newConvLocks(),
		opts:       opts,
	}
}

// Turn processes one user message. The error return is reserved for
// failures outside the conversation itself: bad arguments, a busy
// conversation or an unavailable state store. Domain failures come back as
// an OutcomeError.
func (o *Orchestrator) Turn(ctx context.Context, conversationID, owner, message string) (Outcome, error) {
	if strings.TrimSpace(owner) == "" {
		return Outcome{}, types.ErrOwnerRequired
	}
	if strings.TrimSpace(conversationID) == "" {
		return Outcome{}, fmt.Errorf("conversation id is required")
	}

	turnID := uuid.NewString()
	audit := logging.AuditWithConversation(conversationID, owner)
	audit.TurnStart(len(message))
	start := time.Now()

	out, err := o.turn(ctx, conversationID, owner, message)
	out.TurnID = turnID
	if err != nil {
		audit.TurnEnd("failed", time.Since(start), err)
		return out, err
	}
	audit.TurnEnd(string(out.Kind), time.Since(start), nil)
	return out, nil
}

func (o *Orchestrator) turn(ctx context.Context, id, owner, message string) (Outcome, error) {
	lockCtx, cancel := context.WithTimeout(ctx, o.opts.LockTimeout)
	release, err := o.locks.acquire(lockCtx, id)
	cancel()
	if err != nil {
		return Outcome{}, fmt.Errorf("conversation %s is busy: %w", id, err)
	}
	defer release()

	st, err := o.load(ctx, id, owner)
	if err != nil {
		return Outcome{}, err
	}

	res := o.classify(ctx, message, st)

	step, err := o.manager.Step(ctx, st, res)
	if err != nil {
		// Lookups failed; the stored state stays as it was.
		return o.failure(st, err), nil
	}

	if step.Action != workflow.ActionDispatch {
		return o.persist(ctx, step.State, stepOutcome(step))
	}
	return o.dispatch(ctx, step)
}

func (o *Orchestrator) load(ctx context.Context, id, owner string) (types.ConversationState, error) {
	st, err := o.states.Load(ctx, id, owner)
	if errors.Is(err, types.ErrConversationNotFound) {
		logging.OrchestratorDebug("starting conversation %s for %s", id, owner)
		return types.NewConversationState(id, owner), nil
	}
	if err != nil {
		return types.ConversationState{}, fmt.Errorf("load conversation %s: %w", id, err)
	}
	if err := st.CheckInvariants(); err != nil {
		// A corrupt record is not worth failing every turn over.
		logging.OrchestratorWarn("conversation %s failed invariants, resetting: %v", id, err)
		st = st.Reset()
	}
	return st, nil
}

// classify runs the deterministic classifier and, for an unrecognised
// message with no workflow open, asks the suggester for a rephrasing that
// is classified again. The suggester never decides the intent itself.
func (o *Orchestrator) classify(ctx context.Context, message string, st types.ConversationState) types.IntentResult {
	res := o.classifier.Classify(message, st)
	audit := logging.AuditWithConversation(st.ConversationID, st.Owner)
	audit.IntentClassified(string(res.Intent), res.Confidence, res.PatternMatched)

	if o.suggester == nil || !st.IsNeutral() || res.Intent != types.IntentUnknown || res.PatternMatched {
		return res
	}

	hint, err := o.suggester.Suggest(ctx, message, st)
	if err != nil {
		logging.OrchestratorWarn("suggester failed for %s: %v", st.ConversationID, err)
		return res
	}
	if hint.Rephrased == "" || hint.Confidence < o.opts.MinHintConfidence {
		return res
	}

	again := o.classifier.Classify(hint.Rephrased, st)
	if again.Intent == types.IntentUnknown {
		return res
	}
	logging.Orchestrator("suggester rephrased %q as %q (%s)", message, hint.Rephrased, again.Intent)
	audit.IntentClassified(string(again.Intent), again.Confidence, again.PatternMatched)
	return again
}

func (o *Orchestrator) dispatch(ctx context.Context, step workflow.Step) (Outcome, error) {
	next, result, err := o.gate.Dispatch(ctx, step.State)

	var ve *types.ValidationError
	var nf *types.NotFoundError
	switch {
	case err == nil:
		return o.persistMutation(ctx, next, result)

	case errors.As(err, &ve), errors.As(err, &nf):
		reopened := o.manager.Reopen(step.State, err)
		return o.persist(ctx, reopened.State, stepOutcome(reopened))

	default:
		return o.failure(step.State, err), nil
	}
}

// failure turns a non-persisted error into an outcome. The stored state is
// untouched, so a pending confirmation survives for a retry.
func (o *Orchestrator) failure(st types.ConversationState, err error) Outcome {
	var te *types.ToolExecutionError
	switch {
	case errors.As(err, &te) && te.Timeout():
		return errorOutcome(ErrorTool, st.CurrentIntent, retryMessage(st, "The task service took too long to answer."))
	case errors.As(err, &te):
		return errorOutcome(ErrorTool, st.CurrentIntent, retryMessage(st, "I couldn't reach the task service."))
	case errors.Is(err, types.ErrDispatchInFlight):
		return errorOutcome(ErrorConflict, st.CurrentIntent, "That change is already being made. Please wait a moment.")
	}
	logging.Get(logging.CategoryOrchestrator).Error("turn failed in %s: %v", st.ConversationID, err)
	return errorOutcome(ErrorInternal, st.CurrentIntent, "Something went wrong on my side. Nothing was changed.")
}

func retryMessage(st types.ConversationState, lead string) string {
	if st.PendingConfirmation {
		return lead + " Nothing was changed; say 'yes' to try again."
	}
	return lead + " Nothing was changed; please try again."
}

func (o *Orchestrator) persist(ctx context.Context, st types.ConversationState, out Outcome) (Outcome, error) {
	if _, err := o.states.Save(ctx, st); err != nil {
		if errors.Is(err, types.ErrStateConflict) {
			logging.AuditWithConversation(st.ConversationID, st.Owner).StateConflict(st.Version)
			return errorOutcome(ErrorConflict, st.CurrentIntent, "This conversation was changed somewhere else. Please repeat your last message."), nil
		}
		return Outcome{}, fmt.Errorf("save conversation %s: %w", st.ConversationID, err)
	}
	return out, nil
}

// persistMutation saves the reset state after a committed mutation. A
// version conflict here must not leave the old confirmation behind, so the
// reset is retried once against the latest version.
func (o *Orchestrator) persistMutation(ctx context.Context, st types.ConversationState, result dispatch.Result) (Outcome, error) {
	out := mutationOutcome(result)
	_, err := o.states.Save(ctx, st)
	if errors.Is(err, types.ErrStateConflict) {
		logging.AuditWithConversation(st.ConversationID, st.Owner).StateConflict(st.Version)
		var latest types.ConversationState
		latest, err = o.states.Load(ctx, st.ConversationID, st.Owner)
		if err == nil {
			_, err = o.states.Save(ctx, latest.Reset())
		}
	}
	if err != nil {
		logging.Get(logging.CategoryOrchestrator).Error("mutation committed but state not saved for %s: %v", st.ConversationID, err)
		return out, fmt.Errorf("save conversation %s after %s: %w", st.ConversationID, result.Kind, err)
	}
	return out, nil
}
