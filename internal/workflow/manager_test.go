package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknerd/internal/extract"
	"tasknerd/internal/perception"
	"tasknerd/internal/types"
)

// Sunday.
var fixedNow = time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC)

func testDates() *extract.DateParser {
	return extract.NewDateParser(
		extract.WithClock(func() time.Time { return fixedNow }),
		extract.WithLocation(time.UTC),
	)
}

// convo drives a Manager with the real classifier, one message at a time.
type convo struct {
	t   *testing.T
	m   *Manager
	c   *perception.Classifier
	st  types.ConversationState
	ctx context.Context
}

func newConvo(t *testing.T, tasks *fakeTasks) *convo {
	t.Helper()
	return &convo{
		t:   t,
		m:   NewManager(tasks, nil, testDates(), time.Second),
		c:   perception.NewClassifier(),
		st:  types.NewConversationState("c1", "alice"),
		ctx: context.Background(),
	}
}

func (c *convo) say(msg string) Step {
	c.t.Helper()
	res := c.c.Classify(msg, c.st)
	step, err := c.m.Step(c.ctx, c.st, res)
	require.NoError(c.t, err, "message %q", msg)
	require.NoError(c.t, step.State.CheckInvariants(), "message %q", msg)
	c.st = step.State
	return step
}

func milkTasks() *fakeTasks {
	return newFakeTasks(
		types.Task{ID: 1, Title: "Buy milk"},
		types.Task{ID: 2, Title: "Call mom", Completed: true},
	)
}

func TestAddWorkflowCollectsFieldsInOrder(t *testing.T) {
	c := newConvo(t, newFakeTasks())

	step := c.say("add task to buy milk")
	assert.Equal(t, ActionAsk, step.Action)
	assert.Equal(t, types.FieldPriority, step.Field)
	assert.Equal(t, types.StateAdding, step.State.CurrentIntent)
	assert.Equal(t, "buy milk", step.State.StateData.Value(types.FieldTitle))

	step = c.say("high")
	assert.Equal(t, types.FieldDueDate, step.Field)
	assert.Equal(t, "high", step.State.StateData.Value(types.FieldPriority))

	step = c.say("tomorrow")
	assert.Equal(t, types.FieldDescription, step.Field)
	assert.Equal(t, "2026-10-19T23:59:00Z", step.State.StateData.Value(types.FieldDueDate))

	step = c.say("no")
	require.Equal(t, ActionConfirm, step.Action)
	assert.True(t, step.State.PendingConfirmation)
	desc, _ := step.State.StateData.Get(types.FieldDescription)
	assert.Equal(t, types.FieldOmitted, desc.Status)
	assert.Contains(t, step.Summary, `"buy milk"`)
	assert.Contains(t, step.Summary, "priority high")
	assert.Contains(t, step.Summary, "due Mon Oct 19, 2026")
	assert.Contains(t, step.Summary, "no description")
	assert.Contains(t, step.Prompt, "(yes/no)")

	confirmed := c.st
	step = c.say("yes")
	assert.Equal(t, ActionDispatch, step.Action)
	assert.Equal(t, confirmed, step.State)

	plan, err := PlanFor(step.State)
	require.NoError(t, err)
	assert.Equal(t, KindCreate, plan.Kind)
	assert.Equal(t, "buy milk", plan.Payload.Title)
	assert.Equal(t, types.PriorityHigh, plan.Payload.Priority)
	require.NotNil(t, plan.Payload.DueDate)
	assert.True(t, plan.Payload.DueDate.Equal(time.Date(2026, 10, 19, 23, 59, 0, 0, time.UTC)))
}

func TestAddWorkflowInlineFields(t *testing.T) {
	c := newConvo(t, newFakeTasks())

	step := c.say("add high priority task call the bank by friday")
	assert.Equal(t, ActionAsk, step.Action)
	assert.Equal(t, types.FieldDescription, step.Field)
	fs := step.State.StateData
	assert.Equal(t, "call the bank", fs.Value(types.FieldTitle))
	assert.Equal(t, "high", fs.Value(types.FieldPriority))
	assert.Equal(t, "2026-10-23T23:59:00Z", fs.Value(types.FieldDueDate))
}

func TestAddWorkflowOmissions(t *testing.T) {
	c := newConvo(t, newFakeTasks())

	c.say("add task buy milk")
	step := c.say("skip")
	assert.Equal(t, types.FieldDueDate, step.Field)
	step = c.say("no deadline")
	assert.Equal(t, types.FieldDescription, step.Field)
	step = c.say("no")
	require.Equal(t, ActionConfirm, step.Action)
	assert.Contains(t, step.Summary, "priority medium")
	assert.Contains(t, step.Summary, "no due date")

	plan, err := PlanFor(step.State)
	require.NoError(t, err)
	assert.Equal(t, types.PriorityMedium, plan.Payload.Priority)
	assert.Nil(t, plan.Payload.DueDate)
}

func TestFreeTextRepliesKeepKeywords(t *testing.T) {
	t.Run("title with a priority word", func(t *testing.T) {
		c := newConvo(t, newFakeTasks())
		step := c.say("add a task")
		require.Equal(t, types.FieldTitle, step.Field)

		step = c.say("Finish the important report")
		assert.Equal(t, types.FieldPriority, step.Field)
		assert.Equal(t, "Finish the important report", step.State.StateData.Value(types.FieldTitle))
		prio, _ := step.State.StateData.Get(types.FieldPriority)
		assert.Equal(t, types.FieldPending, prio.Status)
	})

	t.Run("description starting with urgent", func(t *testing.T) {
		c := newConvo(t, newFakeTasks())
		c.say("add task to buy milk")
		c.say("low")
		step := c.say("no deadline")
		require.Equal(t, types.FieldDescription, step.Field)

		step = c.say("urgent, the kids need it for breakfast")
		require.Equal(t, ActionConfirm, step.Action)
		assert.Equal(t, "low", step.State.StateData.Value(types.FieldPriority))
		assert.Equal(t, "urgent, the kids need it for breakfast", step.State.StateData.Value(types.FieldDescription))
	})

	t.Run("description starting with due to", func(t *testing.T) {
		c := newConvo(t, newFakeTasks())
		c.say("add task to buy milk")
		c.say("low")
		c.say("no deadline")

		step := c.say("Due to the strike, go to the corner shop")
		require.Equal(t, ActionConfirm, step.Action)
		assert.Equal(t, "Due to the strike, go to the corner shop", step.State.StateData.Value(types.FieldDescription))
		due, _ := step.State.StateData.Get(types.FieldDueDate)
		assert.Equal(t, types.FieldOmitted, due.Status)
	})
}

func TestInvalidReplyKeepsCollectedFields(t *testing.T) {
	c := newConvo(t, newFakeTasks())

	c.say("add task buy milk")
	c.say("low")

	step := c.say("yesterday")
	assert.Equal(t, ActionAsk, step.Action)
	assert.Equal(t, types.FieldDueDate, step.Field)
	assert.Contains(t, step.Prompt, "in the past")
	assert.Equal(t, "buy milk", step.State.StateData.Value(types.FieldTitle))
	assert.Equal(t, "low", step.State.StateData.Value(types.FieldPriority))

	step = c.say("bogus")
	assert.Equal(t, types.FieldDueDate, step.Field)
	assert.Contains(t, step.Prompt, "Sorry,")
}

func TestUncertainPriorityAsksAgain(t *testing.T) {
	c := newConvo(t, newFakeTasks())

	c.say("add task write report")
	step := c.say("not urgent")
	assert.Equal(t, types.FieldPriority, step.Field)
	assert.Equal(t, uncertainPriorityQuestion, step.Prompt)

	step = c.say("low")
	assert.Equal(t, types.FieldDueDate, step.Field)
	assert.Equal(t, "low", step.State.StateData.Value(types.FieldPriority))
}

func TestCancelAndDecline(t *testing.T) {
	t.Run("cancel while confirming", func(t *testing.T) {
		c := newConvo(t, newFakeTasks())
		c.say("add task buy milk")
		c.say("skip")
		c.say("skip")
		step := c.say("no")
		require.Equal(t, ActionConfirm, step.Action)

		step = c.say("never mind")
		assert.Equal(t, ActionAcknowledge, step.Action)
		assert.True(t, step.State.IsNeutral())
		assert.Empty(t, step.State.StateData)
	})

	t.Run("declined confirmation", func(t *testing.T) {
		c := newConvo(t, milkTasks())
		step := c.say("delete task 1")
		require.Equal(t, ActionConfirm, step.Action)

		step = c.say("no")
		assert.Equal(t, ActionAcknowledge, step.Action)
		assert.Equal(t, "Okay, nothing was changed.", step.Prompt)
		assert.True(t, step.State.IsNeutral())
	})

	t.Run("nothing to cancel", func(t *testing.T) {
		c := newConvo(t, newFakeTasks())
		step := c.say("cancel")
		assert.Equal(t, ActionAcknowledge, step.Action)
		assert.True(t, step.State.IsNeutral())
	})
}

func TestUnknownInNeutralClarifies(t *testing.T) {
	c := newConvo(t, newFakeTasks())
	step := c.say("what's the weather like")
	assert.Equal(t, ActionClarify, step.Action)
	assert.True(t, step.State.IsNeutral())
}

func TestIntentSwitchAbandonsWorkflow(t *testing.T) {
	c := newConvo(t, milkTasks())

	c.say("add task buy eggs")
	step := c.say("delete task 1")
	require.Equal(t, ActionConfirm, step.Action)
	assert.Equal(t, types.StateDeleting, step.State.CurrentIntent)
	assert.False(t, step.State.StateData.Has(types.FieldTitle))
	require.NotNil(t, step.State.TargetTaskID)
	assert.Equal(t, int64(1), *step.State.TargetTaskID)
	assert.Contains(t, step.Summary, `task #1 "Buy milk"`)
	assert.Contains(t, step.Summary, "can't be undone")
}

func TestMissingTaskOffersList(t *testing.T) {
	c := newConvo(t, milkTasks())

	step := c.say("delete task 99")
	assert.Equal(t, ActionAsk, step.Action)
	assert.Equal(t, types.FieldTarget, step.Field)
	assert.Contains(t, step.Prompt, "I can't find task 99")

	step = c.say("yes")
	assert.Equal(t, ActionList, step.Action)
	assert.Len(t, step.Tasks, 2)
	assert.Equal(t, types.StateDeleting, step.State.CurrentIntent)

	step = c.say("buy milk")
	require.Equal(t, ActionConfirm, step.Action)
	assert.Equal(t, int64(1), *step.State.TargetTaskID)
}

func TestAmbiguousReferencePicksCandidate(t *testing.T) {
	tasks := func() *fakeTasks {
		return newFakeTasks(
			types.Task{ID: 10, Title: "Buy milk from store"},
			types.Task{ID: 11, Title: "Milk delivery subscription"},
		)
	}

	for _, reply := range []string{"2", "the second one", "last", "#11"} {
		t.Run(reply, func(t *testing.T) {
			c := newConvo(t, tasks())
			step := c.say("delete the milk task")
			require.Equal(t, ActionAsk, step.Action)
			require.Len(t, step.Candidates, 2)
			assert.Equal(t, int64(10), step.Candidates[0].TaskID)
			assert.Contains(t, step.Prompt, "1. Buy milk from store")

			step = c.say(reply)
			require.Equal(t, ActionConfirm, step.Action)
			assert.Equal(t, int64(11), *step.State.TargetTaskID)
			assert.Empty(t, step.State.Candidates)
		})
	}
}

func TestNearMissAcceptedWithYes(t *testing.T) {
	c := newConvo(t, newFakeTasks(
		types.Task{ID: 1, Title: "grocery list"},
		types.Task{ID: 2, Title: "Walk dog"},
	))

	step := c.say("delete groceries")
	require.Equal(t, ActionAsk, step.Action)
	assert.Contains(t, step.Prompt, `Did you mean "grocery list" (#1)?`)

	step = c.say("yes")
	require.Equal(t, ActionConfirm, step.Action)
	assert.Equal(t, int64(1), *step.State.TargetTaskID)
}

func TestUpdateAsksForChanges(t *testing.T) {
	c := newConvo(t, milkTasks())

	step := c.say("update task 1")
	assert.Equal(t, ActionAsk, step.Action)
	assert.Equal(t, fieldChanges, step.Field)

	step = c.say("friday")
	require.Equal(t, ActionConfirm, step.Action)
	assert.Contains(t, step.Summary, "due date to Fri Oct 23, 2026")

	plan, err := PlanFor(step.State)
	require.NoError(t, err)
	assert.Equal(t, KindUpdate, plan.Kind)
	assert.Equal(t, int64(1), plan.TaskID)
	require.NotNil(t, plan.Changes.DueDate)
	assert.Nil(t, plan.Changes.Title)
	assert.Nil(t, plan.Changes.Priority)
}

func TestUpdateInOneMessage(t *testing.T) {
	c := newConvo(t, milkTasks())

	step := c.say("change the milk task to high priority")
	require.Equal(t, ActionConfirm, step.Action)
	assert.Contains(t, step.Summary, "priority to high")
	assert.Equal(t, int64(1), *step.State.TargetTaskID)
}

func TestAmendmentWhileConfirming(t *testing.T) {
	c := newConvo(t, newFakeTasks())
	c.say("add task buy milk")
	c.say("skip")
	c.say("skip")
	step := c.say("no")
	require.Equal(t, ActionConfirm, step.Action)
	assert.Contains(t, step.Summary, "priority medium")

	step = c.say("make it high priority")
	require.Equal(t, ActionConfirm, step.Action)
	assert.Contains(t, step.Summary, "priority high")
	assert.True(t, step.State.PendingConfirmation)

	step = c.say("maybe")
	require.Equal(t, ActionConfirm, step.Action)
	assert.Contains(t, step.Prompt, "Please answer yes or no.")
}

func TestCompletingAlreadyCompleteTask(t *testing.T) {
	c := newConvo(t, milkTasks())

	step := c.say("mark task 2 as done")
	assert.Equal(t, ActionAcknowledge, step.Action)
	assert.Contains(t, step.Prompt, "already complete")
	assert.True(t, step.State.IsNeutral())

	step = c.say("mark task 2 as not done")
	require.Equal(t, ActionConfirm, step.Action)
	assert.Contains(t, step.Summary, "as not done")

	plan, err := PlanFor(step.State)
	require.NoError(t, err)
	assert.Equal(t, KindComplete, plan.Kind)
	assert.False(t, plan.Completed)
}

func TestListLeavesStateNeutral(t *testing.T) {
	c := newConvo(t, milkTasks())

	step := c.say("show my completed tasks")
	assert.Equal(t, ActionList, step.Action)
	assert.Equal(t, types.FilterCompleted, step.Filter)
	require.Len(t, step.Tasks, 1)
	assert.Equal(t, int64(2), step.Tasks[0].ID)
	assert.Equal(t, "Here are your completed tasks (1):", step.Prompt)
	assert.True(t, step.State.IsNeutral())
}

func TestLookupFailureIsToolError(t *testing.T) {
	tasks := milkTasks()
	tasks.listErr = errors.New("disk I/O error")
	c := newConvo(t, tasks)

	res := c.c.Classify("delete the milk task", c.st)
	_, err := c.m.Step(c.ctx, c.st, res)
	require.Error(t, err)

	var te *types.ToolExecutionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "list tasks", te.Op)
}

func TestReopen(t *testing.T) {
	t.Run("validation error reopens the field", func(t *testing.T) {
		c := newConvo(t, milkTasks())
		c.say("add task buy milk")
		c.say("high")
		c.say("tomorrow")
		step := c.say("no")
		require.Equal(t, ActionConfirm, step.Action)

		step = c.m.Reopen(step.State, &types.ValidationError{Field: types.FieldDueDate, Reason: "that date is in the past"})
		assert.Equal(t, ActionAsk, step.Action)
		assert.Equal(t, types.FieldDueDate, step.Field)
		assert.False(t, step.State.PendingConfirmation)
		assert.Contains(t, step.Prompt, "Sorry, that date is in the past.")
		assert.Equal(t, "buy milk", step.State.StateData.Value(types.FieldTitle))
		assert.Equal(t, "high", step.State.StateData.Value(types.FieldPriority))
		require.NoError(t, step.State.CheckInvariants())
	})

	t.Run("missing task reopens the target", func(t *testing.T) {
		c := newConvo(t, milkTasks())
		step := c.say("delete task 1")
		require.Equal(t, ActionConfirm, step.Action)

		step = c.m.Reopen(step.State, &types.NotFoundError{TaskID: 1})
		assert.Equal(t, types.FieldTarget, step.Field)
		assert.Nil(t, step.State.TargetTaskID)
		assert.Contains(t, step.Prompt, "I can't find task 1")
		require.NoError(t, step.State.CheckInvariants())
	})
}

func TestPickCandidate(t *testing.T) {
	cands := []types.MatchCandidate{{TaskID: 7}, {TaskID: 2}, {TaskID: 9}}
	id := func(n int64) *int64 { return &n }

	tests := []struct {
		name string
		e    types.Entities
		want int64
		ok   bool
	}{
		{"candidate id wins over position", types.Entities{TaskID: id(2)}, 2, true},
		{"number read as position", types.Entities{TaskID: id(3)}, 9, true},
		{"ordinal", types.Entities{Ordinal: 1}, 7, true},
		{"last", types.Entities{Ordinal: -1}, 9, true},
		{"out of range", types.Entities{TaskID: id(40)}, 0, false},
		{"nothing", types.Entities{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickCandidate(cands, tt.e)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.TaskID)
		})
	}
}
