package workflow

import (
	"context"
	"errors"
	"strconv"

	"tasknerd/internal/logging"
	"tasknerd/internal/types"
)

// =============================================================================
// TARGET RESOLUTION
// =============================================================================

// resolveTarget binds the task an update, delete or completion acts on.
// Order: a pick from the last candidate list, an explicit id, then a fuzzy
// phrase over the owner's tasks.
func (m *Manager) resolveTarget(ctx context.Context, mg *merger, e types.Entities, phrase string) error {
	if len(mg.st.Candidates) > 0 {
		if c, ok := pickCandidate(mg.st.Candidates, e); ok {
			return m.bindID(ctx, mg, c.TaskID)
		}
	}
	if e.TaskID != nil {
		return m.bindID(ctx, mg, *e.TaskID)
	}
	if e.Ordinal != 0 {
		mg.reject(types.FieldTarget, "I don't have a list to pick from. "+targetQuestion(mg.st))
		return nil
	}
	if phrase == "" {
		return nil
	}

	tasks, err := m.listTasks(ctx, mg.st)
	if err != nil {
		return err
	}
	out := m.matcher.Find(phrase, scope(mg.st, tasks))
	logging.WorkflowDebug("target %q in %s -> %s", phrase, mg.st.ConversationID, out.Kind)

	switch out.Kind {
	case types.SingleMatch:
		best, _ := out.Best()
		bind(mg, best.TaskID)
	case types.MultipleMatches:
		mg.st.Candidates = out.Candidates
		mg.reject(types.FieldTarget, multiplePrompt(phrase, out.Candidates))
	default:
		mg.st.Candidates = out.Candidates
		mg.reject(types.FieldTarget, noMatchPrompt(phrase, out.Candidates))
	}
	return nil
}

// interpretTarget handles a reply with no id, ordinal or reference entity.
func (m *Manager) interpretTarget(ctx context.Context, mg *merger, res types.IntentResult, text string) error {
	switch {
	case res.Affirmative() && len(mg.st.Candidates) == 1:
		// "yes" to "did you mean ...?"
		return m.bindID(ctx, mg, mg.st.Candidates[0].TaskID)

	case res.Affirmative():
		// "yes" to "want me to list your tasks?"
		tasks, err := m.listTasks(ctx, mg.st)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			mg.reject(types.FieldTarget, "You don't have any tasks yet, so there's nothing to pick from. Say 'cancel' to stop.")
			return nil
		}
		mg.consumed = true
		mg.q = &question{
			field: types.FieldTarget,
			text:  "Here are your tasks. " + targetQuestion(mg.st),
			tasks: scope(mg.st, tasks),
		}
		return nil

	case res.Negative():
		mg.st.Candidates = nil
		mg.reject(types.FieldTarget, "Okay. "+targetQuestion(mg.st))
		return nil
	}
	return m.resolveTarget(ctx, mg, types.Entities{}, text)
}

// pickCandidate maps an id or a 1-based position onto the candidate list.
// An id that belongs to a candidate wins over the same number read as a
// position.
func pickCandidate(cands []types.MatchCandidate, e types.Entities) (types.MatchCandidate, bool) {
	n := e.Ordinal
	if e.TaskID != nil {
		for _, c := range cands {
			if c.TaskID == *e.TaskID {
				return c, true
			}
		}
		if n == 0 {
			n = int(*e.TaskID)
		}
	}
	if n == -1 {
		return cands[len(cands)-1], true
	}
	if n >= 1 && n <= len(cands) {
		return cands[n-1], true
	}
	return types.MatchCandidate{}, false
}

func (m *Manager) bindID(ctx context.Context, mg *merger, id int64) error {
	if _, err := m.get(ctx, mg.st, id); err != nil {
		if errors.Is(err, types.ErrTaskNotFound) {
			mg.st.Candidates = nil
			mg.reject(types.FieldTarget, notFoundPrompt(id))
			return nil
		}
		return err
	}
	bind(mg, id)
	return nil
}

func bind(mg *merger, id int64) {
	mg.st.TargetTaskID = &id
	mg.st.Candidates = nil
	mg.set(types.FieldTarget, types.Some(strconv.FormatInt(id, 10)))
}

// scope narrows the search space for a completion to tasks whose status
// would actually change. If that leaves nothing, every task is searched.
func scope(st types.ConversationState, tasks []types.Task) []types.Task {
	if st.CurrentIntent != types.StateCompleting {
		return tasks
	}
	want := wantCompleted(st.StateData)
	var out []types.Task
	for _, t := range tasks {
		if t.Completed != want {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return tasks
	}
	return out
}
