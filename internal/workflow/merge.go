package workflow

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tasknerd/internal/extract"
	"tasknerd/internal/logging"
	"tasknerd/internal/types"
)

// fieldChanges is the virtual "what should change" slot of an update. It is
// never stored; it is pending while an update has a target and no change.
const fieldChanges = "changes"

// question is a prompt raised while merging.
type question struct {
	field string
	text  string
	// tasks, when set, are shown alongside the question.
	tasks []types.Task
}

// checklist returns the initial state_data for a workflow, in asking order.
func checklist(wf types.WorkflowState, e types.Entities) types.FieldSet {
	var fs types.FieldSet
	switch wf {
	case types.StateAdding:
		fs = fs.Set(types.FieldTitle, types.Pending()).
			Set(types.FieldPriority, types.Pending()).
			Set(types.FieldDueDate, types.Pending()).
			Set(types.FieldDescription, types.Pending())
	case types.StateUpdating, types.StateDeleting:
		fs = fs.Set(types.FieldTarget, types.Pending())
	case types.StateCompleting:
		completed := true
		if e.Completed != nil {
			completed = *e.Completed
		}
		fs = fs.Set(types.FieldTarget, types.Pending()).
			Set(types.FieldCompleted, types.Some(strconv.FormatBool(completed)))
	}
	return fs
}

func hasChanges(fs types.FieldSet) bool {
	for _, f := range []string{types.FieldTitle, types.FieldPriority, types.FieldDueDate, types.FieldDescription} {
		if v, ok := fs.Get(f); ok && v.Status == types.FieldPresent {
			return true
		}
	}
	return false
}

func wantCompleted(fs types.FieldSet) bool {
	b, err := strconv.ParseBool(fs.Value(types.FieldCompleted))
	return err != nil || b
}

// merger accumulates one turn's changes to a state.
type merger struct {
	st       types.ConversationState
	q        *question
	consumed bool
}

func (mg *merger) set(field string, v types.FieldValue) {
	mg.st.StateData = mg.st.StateData.Set(field, v)
	mg.consumed = true
}

// reject records the first question a bad value raised. The field keeps
// whatever valid value it had.
func (mg *merger) reject(field, text string) {
	mg.consumed = true
	if mg.q == nil {
		mg.q = &question{field: field, text: text}
	}
}

func (mg *merger) rejectErr(err error) {
	var ve *types.ValidationError
	if errors.As(err, &ve) {
		mg.reject(ve.Field, reprompt(mg.st, ve))
		return
	}
	mg.reject(types.FieldTarget, err.Error())
}

// merge folds res into st. A reply to a pending title or description is
// taken verbatim. Otherwise explicit entities apply to their own fields, and
// only when a reply carries none is its raw text read as the answer to the
// first pending field. changed reports whether anything was recorded or rejected.
func (m *Manager) merge(ctx context.Context, st types.ConversationState, res types.IntentResult) (out types.ConversationState, q *question, changed bool, err error) {
	mg := &merger{st: st}
	e := res.Entities

	pending, hasPending := st.StateData.FirstPending()
	if !hasPending && !st.PendingConfirmation && st.CurrentIntent == types.StateUpdating && !hasChanges(st.StateData) {
		pending, hasPending = fieldChanges, true
	}

	reply := res.Intent == types.IntentProvideInfo || res.Intent == types.IntentUnknown

	// Title and description answers are free text: keywords inside them
	// ("the important report", "Due to the strike") belong to the text.
	if reply && hasPending && isFreeText(st.CurrentIntent, pending) {
		if err := m.interpret(ctx, mg, pending, res); err != nil {
			return st, nil, false, err
		}
		return mg.st, mg.q, mg.consumed, nil
	}

	if st.CurrentIntent != types.StateAdding {
		// A bare id in a reply only rebinds while the target is still open.
		if (e.TaskID != nil || e.Ordinal != 0 || e.TaskRef != "") && (pending == types.FieldTarget || res.Intent.IsCommand()) {
			if err := m.resolveTarget(ctx, mg, e, e.TaskRef); err != nil {
				return st, nil, false, err
			}
		}
		if e.Completed != nil && st.CurrentIntent == types.StateCompleting {
			if v := strconv.FormatBool(*e.Completed); v != st.StateData.Value(types.FieldCompleted) {
				mg.set(types.FieldCompleted, types.Some(v))
			}
		}
	}
	if st.CurrentIntent == types.StateAdding || st.CurrentIntent == types.StateUpdating {
		m.mergeFields(mg, e)
	}

	if !mg.consumed && hasPending && reply {
		if err := m.interpret(ctx, mg, pending, res); err != nil {
			return st, nil, false, err
		}
	}

	if mg.q != nil {
		logging.WorkflowDebug("merge in %s raised question for %s", st.ConversationID, mg.q.field)
	}
	return mg.st, mg.q, mg.consumed, nil
}

func isFreeText(wf types.WorkflowState, field string) bool {
	return wf == types.StateAdding && (field == types.FieldTitle || field == types.FieldDescription)
}

// mergeFields applies title, priority, due date and description entities.
func (m *Manager) mergeFields(mg *merger, e types.Entities) {
	if e.Title != "" {
		if t, err := extract.ValidateTitle(e.Title); err != nil {
			mg.rejectErr(err)
		} else {
			mg.set(types.FieldTitle, types.Some(t))
		}
	}

	switch {
	case e.Priority != "":
		mg.set(types.FieldPriority, types.Some(string(e.Priority)))
	case e.PriorityUncertain:
		mg.set(types.FieldPriority, types.Pending())
		mg.reject(types.FieldPriority, uncertainPriorityQuestion)
	}

	if e.DueText != "" {
		m.setDue(mg, e.DueText)
	}

	if e.Description != "" {
		if d, err := extract.ValidateDescription(e.Description); err != nil {
			mg.rejectErr(err)
		} else {
			mg.set(types.FieldDescription, types.Some(d))
		}
	}
}

func (m *Manager) setDue(mg *merger, text string) {
	out := m.dates.Parse(text)
	if !out.OK() {
		mg.rejectErr(out.Err())
		return
	}
	mg.set(types.FieldDueDate, types.Some(out.Time.Format(time.RFC3339)))
}

var omission = regexp.MustCompile(`^(?:no|nope|nah|none|nothing|skip|skip\s+it|n/?a|no\s+thanks|not\s+really|no\s+(?:deadline|due\s+date|date|description|notes|details|priority)|without\s+(?:a\s+)?(?:deadline|due\s+date|description)|default|whatever|doesn'?t\s+matter|don'?t\s+care|leave\s+it\s+(?:blank|empty))$`)

func isOmission(text string) bool {
	return omission.MatchString(strings.TrimSpace(strings.TrimRight(strings.ToLower(text), ".!")))
}

// interpret reads a reply's raw text as the answer to field.
func (m *Manager) interpret(ctx context.Context, mg *merger, field string, res types.IntentResult) error {
	text := strings.TrimSpace(res.Entities.Text)
	omit := res.Negative() || isOmission(text)

	switch field {
	case types.FieldTitle:
		if res.Affirmative() || res.Negative() {
			mg.reject(types.FieldTitle, "I still need a title for the task. What should it be called?")
			return nil
		}
		if t, err := extract.ValidateTitle(text); err != nil {
			mg.rejectErr(err)
		} else {
			mg.set(types.FieldTitle, types.Some(t))
		}

	case types.FieldPriority:
		if omit {
			mg.set(types.FieldPriority, types.Omitted())
			return nil
		}
		if p, err := extract.ValidatePriority(text); err != nil {
			mg.rejectErr(err)
		} else {
			mg.set(types.FieldPriority, types.Some(string(p)))
		}

	case types.FieldDueDate:
		if omit {
			mg.set(types.FieldDueDate, types.Omitted())
			return nil
		}
		m.setDue(mg, text)

	case types.FieldDescription:
		switch {
		case omit:
			mg.set(types.FieldDescription, types.Omitted())
		case res.Affirmative():
			mg.reject(types.FieldDescription, "Okay, what should the description say?")
		default:
			if d, err := extract.ValidateDescription(text); err != nil {
				mg.rejectErr(err)
			} else {
				mg.set(types.FieldDescription, types.Some(d))
			}
		}

	case types.FieldTarget:
		return m.interpretTarget(ctx, mg, res, text)

	case fieldChanges:
		// A bare date while asking what to change is a new due date.
		if out := m.dates.Parse(text); out.OK() {
			mg.set(types.FieldDueDate, types.Some(out.Time.Format(time.RFC3339)))
			return nil
		}
		mg.reject(fieldChanges, "Sorry, I didn't catch the change. "+changesQuestion)
	}
	return nil
}
