package workflow

import (
	"fmt"
	"math"
	"strings"
	"time"

	"tasknerd/internal/extract"
	"tasknerd/internal/types"
)

// =============================================================================
// QUESTIONS
// =============================================================================

const (
	clarifyPrompt             = "I'm not sure what you'd like to do. I can add, update, complete, delete or list tasks. For example: 'add task buy milk' or 'show my tasks'."
	changesQuestion           = "What would you like to change? I can update the title, priority, due date or description."
	uncertainPriorityQuestion = "It sounds like this isn't a top priority. Should it be low or medium?"
)

func questionFor(st types.ConversationState, field string) string {
	switch field {
	case types.FieldTitle:
		return "What should the task be called?"
	case types.FieldPriority:
		return "What priority should it have: high, medium or low? (say 'skip' for medium)"
	case types.FieldDueDate:
		return "When is it due? You can say things like 'tomorrow', 'Friday 5pm' or 'no deadline'."
	case types.FieldDescription:
		if st.CurrentIntent == types.StateUpdating {
			return "What should the new description be?"
		}
		return "Any description or notes? (say 'no' to skip)"
	case types.FieldTarget:
		return targetQuestion(st)
	case fieldChanges:
		return changesQuestion
	}
	return "Could you tell me more?"
}

func targetQuestion(st types.ConversationState) string {
	verb := "update"
	switch st.CurrentIntent {
	case types.StateDeleting:
		verb = "delete"
	case types.StateCompleting:
		verb = "mark as complete"
		if !wantCompleted(st.StateData) {
			verb = "reopen"
		}
	}
	return fmt.Sprintf("Which task do you want to %s? Give its number or part of its title.", verb)
}

func reprompt(st types.ConversationState, ve *types.ValidationError) string {
	return fmt.Sprintf("Sorry, %s. %s", ve.Reason, questionFor(st, ve.Field))
}

func notFoundPrompt(id int64) string {
	return fmt.Sprintf("I can't find task %d. Want me to list your tasks?", id)
}

func multiplePrompt(phrase string, cands []types.MatchCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found several tasks matching %q:\n", phrase)
	for i, c := range cands {
		fmt.Fprintf(&b, "  %d. %s (#%d, %d%% match)\n", i+1, c.Title, c.TaskID, int(math.Round(c.Confidence*100)))
	}
	b.WriteString("Which one did you mean? Reply with the number in the list or the task id.")
	return b.String()
}

func noMatchPrompt(phrase string, cands []types.MatchCandidate) string {
	if len(cands) == 1 {
		return fmt.Sprintf("I couldn't find a task matching %q. Did you mean %q (#%d)?", phrase, cands[0].Title, cands[0].TaskID)
	}
	return fmt.Sprintf("I couldn't find a task matching %q. Try another part of the title, or say 'show my tasks'.", phrase)
}

func listHeading(filter types.ListFilter, n int) string {
	qualifier := ""
	if filter != types.FilterAll {
		qualifier = string(filter) + " "
	}
	if n == 0 {
		return fmt.Sprintf("You don't have any %stasks.", qualifier)
	}
	return fmt.Sprintf("Here are your %stasks (%d):", qualifier, n)
}

// =============================================================================
// SUMMARIES
// =============================================================================

// FormatTask renders a task on one line.
func FormatTask(t types.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]", t.ID, t.Title, t.Priority)
	if t.DueDate != nil {
		fmt.Fprintf(&b, " due %s", extract.FormatDue(*t.DueDate))
	}
	fmt.Fprintf(&b, " (%s)", t.StatusLabel())
	return b.String()
}

func summarize(st types.ConversationState, current *types.Task) string {
	fs := st.StateData
	switch st.CurrentIntent {
	case types.StateAdding:
		priority := fs.Value(types.FieldPriority)
		if priority == "" {
			priority = string(types.DefaultPriority)
		}
		desc := "no description"
		if d := fs.Value(types.FieldDescription); d != "" {
			desc = fmt.Sprintf("description %q", d)
		}
		return fmt.Sprintf("I'll add %q (priority %s, %s, %s).", fs.Value(types.FieldTitle), priority, dueLabel(fs.Value(types.FieldDueDate)), desc)

	case types.StateUpdating:
		var changes []string
		if v := fs.Value(types.FieldTitle); v != "" {
			changes = append(changes, fmt.Sprintf("title to %q", v))
		}
		if v := fs.Value(types.FieldPriority); v != "" {
			changes = append(changes, "priority to "+v)
		}
		if v := fs.Value(types.FieldDueDate); v != "" {
			changes = append(changes, "due date to "+strings.TrimPrefix(dueLabel(v), "due "))
		}
		if v := fs.Value(types.FieldDescription); v != "" {
			changes = append(changes, fmt.Sprintf("description to %q", v))
		}
		return fmt.Sprintf("I'll update %s: set %s.", currentLabel(current), strings.Join(changes, ", "))

	case types.StateDeleting:
		return fmt.Sprintf("I'll delete %s. This can't be undone.", currentLabel(current))

	case types.StateCompleting:
		if wantCompleted(fs) {
			return fmt.Sprintf("I'll mark %s as complete.", currentLabel(current))
		}
		return fmt.Sprintf("I'll mark %s as not done.", currentLabel(current))
	}
	return ""
}

func currentLabel(t *types.Task) string {
	if t == nil {
		return "the task"
	}
	return fmt.Sprintf("task #%d %q (priority %s, %s, %s)", t.ID, t.Title, t.Priority, dueOf(t), t.StatusLabel())
}

func dueOf(t *types.Task) string {
	if t.DueDate == nil {
		return "no due date"
	}
	return "due " + extract.FormatDue(*t.DueDate)
}

func dueLabel(stored string) string {
	if stored == "" {
		return "no due date"
	}
	t, err := time.Parse(time.RFC3339, stored)
	if err != nil {
		return "due " + stored
	}
	return "due " + extract.FormatDue(t)
}
