package perception

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknerd/internal/types"
)

func neutral() types.ConversationState {
	return types.NewConversationState("c1", "alice")
}

func adding() types.ConversationState {
	st := neutral()
	st.CurrentIntent = types.StateAdding
	st.StateData = types.FieldSet{}.
		Set(types.FieldTitle, types.Some("Buy milk")).
		Set(types.FieldPriority, types.Pending())
	return st
}

func TestClassifyCommandsInNeutral(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name   string
		msg    string
		intent types.Intent
		check  func(t *testing.T, e types.Entities)
	}{
		{"delete by id", "delete task 5", types.IntentDeleteTask, func(t *testing.T, e types.Entities) {
			require.NotNil(t, e.TaskID)
			assert.Equal(t, int64(5), *e.TaskID)
		}},
		{"cancel by id is a delete", "cancel task 4", types.IntentDeleteTask, func(t *testing.T, e types.Entities) {
			require.NotNil(t, e.TaskID)
			assert.Equal(t, int64(4), *e.TaskID)
		}},
		{"delete by phrase", "remove the milk task", types.IntentDeleteTask, func(t *testing.T, e types.Entities) {
			assert.Nil(t, e.TaskID)
			assert.Equal(t, "milk", e.TaskRef)
		}},
		{"add with title", "Add a task to buy milk", types.IntentAddTask, func(t *testing.T, e types.Entities) {
			assert.Equal(t, "buy milk", e.Title)
		}},
		{"add keeps case", "add task Call Mom", types.IntentAddTask, func(t *testing.T, e types.Entities) {
			assert.Equal(t, "Call Mom", e.Title)
		}},
		{"add without title", "add a task", types.IntentAddTask, func(t *testing.T, e types.Entities) {
			assert.Empty(t, e.Title)
		}},
		{"add with priority", "add high priority task call the bank", types.IntentAddTask, func(t *testing.T, e types.Entities) {
			assert.Equal(t, "call the bank", e.Title)
			assert.Equal(t, types.PriorityHigh, e.Priority)
		}},
		{"add with inline due", "add task buy milk by friday", types.IntentAddTask, func(t *testing.T, e types.Entities) {
			assert.Equal(t, "buy milk", e.Title)
			assert.Equal(t, "friday", e.DueText)
		}},
		{"add with trailing due", "add task finish report tomorrow", types.IntentAddTask, func(t *testing.T, e types.Entities) {
			assert.Equal(t, "finish report", e.Title)
			assert.Equal(t, "tomorrow", e.DueText)
		}},
		{"add keeps non-date preposition", "add task call mom on the phone", types.IntentAddTask, func(t *testing.T, e types.Entities) {
			assert.Equal(t, "call mom on the phone", e.Title)
			assert.Empty(t, e.DueText)
		}},
		{"list all", "what are my tasks", types.IntentListTasks, func(t *testing.T, e types.Entities) {
			assert.Equal(t, types.FilterAll, e.Filter)
		}},
		{"list completed", "show my completed tasks", types.IntentListTasks, func(t *testing.T, e types.Entities) {
			assert.Equal(t, types.FilterCompleted, e.Filter)
		}},
		{"list pending", "list pending tasks", types.IntentListTasks, func(t *testing.T, e types.Entities) {
			assert.Equal(t, types.FilterPending, e.Filter)
		}},
		{"complete by id", "mark task 3 as done", types.IntentCompleteTask, func(t *testing.T, e types.Entities) {
			require.NotNil(t, e.TaskID)
			assert.Equal(t, int64(3), *e.TaskID)
			require.NotNil(t, e.Completed)
			assert.True(t, *e.Completed)
		}},
		{"mark incomplete", "mark buy milk as not done", types.IntentCompleteTask, func(t *testing.T, e types.Entities) {
			assert.Equal(t, "buy milk", e.TaskRef)
			require.NotNil(t, e.Completed)
			assert.False(t, *e.Completed)
		}},
		{"past tense completion", "I finished the report", types.IntentCompleteTask, func(t *testing.T, e types.Entities) {
			assert.Equal(t, "report", e.TaskRef)
		}},
		{"status completion", "task 7 is done", types.IntentCompleteTask, func(t *testing.T, e types.Entities) {
			require.NotNil(t, e.TaskID)
			assert.Equal(t, int64(7), *e.TaskID)
		}},
		{"update priority by phrase", "change the milk task to high priority", types.IntentUpdateTask, func(t *testing.T, e types.Entities) {
			assert.Equal(t, "milk", e.TaskRef)
			assert.Equal(t, types.PriorityHigh, e.Priority)
		}},
		{"rename by id", "rename task 2 to Buy oat milk", types.IntentUpdateTask, func(t *testing.T, e types.Entities) {
			require.NotNil(t, e.TaskID)
			assert.Equal(t, int64(2), *e.TaskID)
			assert.Equal(t, "Buy oat milk", e.Title)
		}},
		{"reschedule", "reschedule dentist to friday", types.IntentUpdateTask, func(t *testing.T, e types.Entities) {
			assert.Equal(t, "dentist", e.TaskRef)
			assert.Equal(t, "friday", e.DueText)
		}},
		{"numbered update before add", "make task 5 high priority", types.IntentUpdateTask, func(t *testing.T, e types.Entities) {
			require.NotNil(t, e.TaskID)
			assert.Equal(t, int64(5), *e.TaskID)
			assert.Equal(t, types.PriorityHigh, e.Priority)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(tt.msg, neutral())
			require.Equal(t, tt.intent, res.Intent, "entities: %+v", res.Entities)
			assert.True(t, res.PatternMatched)
			assert.Equal(t, ConfidenceCommand, res.Confidence)
			tt.check(t, res.Entities)
		})
	}
}

func TestClassifyLoosePhrasesOnlyInNeutral(t *testing.T) {
	c := NewClassifier()

	res := c.Classify("remind me to call mom", neutral())
	require.Equal(t, types.IntentAddTask, res.Intent)
	assert.Equal(t, ConfidenceWeak, res.Confidence)
	assert.Equal(t, "call mom", res.Entities.Title)

	res = c.Classify("I need to renew my passport", neutral())
	require.Equal(t, types.IntentAddTask, res.Intent)
	assert.Equal(t, "renew my passport", res.Entities.Title)

	res = c.Classify("remind me to call mom", adding())
	assert.Equal(t, types.IntentProvideInfo, res.Intent)
}

func TestClassifyCancelAnyState(t *testing.T) {
	c := NewClassifier()

	for _, msg := range []string{"never mind", "Cancel", "forget it", "nevermind.", "stop", "actually cancel that"} {
		for name, st := range map[string]types.ConversationState{"neutral": neutral(), "adding": adding()} {
			t.Run(msg+"/"+name, func(t *testing.T) {
				res := c.Classify(msg, st)
				assert.Equal(t, types.IntentCancel, res.Intent)
				assert.Equal(t, ConfidenceCancel, res.Confidence)
			})
		}
	}

	assert.NotEqual(t, types.IntentCancel, c.Classify("stop by the bank", neutral()).Intent)
}

func TestClassifyInsideWorkflow(t *testing.T) {
	c := NewClassifier()
	st := adding()

	t.Run("yes", func(t *testing.T) {
		res := c.Classify("yes", st)
		assert.Equal(t, types.IntentProvideInfo, res.Intent)
		assert.True(t, res.Affirmative())
	})

	t.Run("no", func(t *testing.T) {
		res := c.Classify("Nope", st)
		assert.Equal(t, types.IntentProvideInfo, res.Intent)
		assert.True(t, res.Negative())
	})

	t.Run("priority answer", func(t *testing.T) {
		res := c.Classify("high", st)
		assert.Equal(t, types.IntentProvideInfo, res.Intent)
		assert.Equal(t, types.PriorityHigh, res.Entities.Priority)
	})

	t.Run("negated priority is uncertain", func(t *testing.T) {
		res := c.Classify("not urgent", st)
		assert.Equal(t, types.IntentProvideInfo, res.Intent)
		assert.Empty(t, res.Entities.Priority)
		assert.True(t, res.Entities.PriorityUncertain)
	})

	t.Run("date answer keeps text", func(t *testing.T) {
		res := c.Classify("tomorrow", st)
		assert.Equal(t, types.IntentProvideInfo, res.Intent)
		assert.Equal(t, "tomorrow", res.Entities.Text)
	})

	t.Run("verb phrase stays an answer", func(t *testing.T) {
		res := c.Classify("finish the report", st)
		assert.Equal(t, types.IntentProvideInfo, res.Intent)
	})

	t.Run("explicit command switches", func(t *testing.T) {
		assert.Equal(t, types.IntentDeleteTask, c.Classify("delete task 5", st).Intent)
		assert.Equal(t, types.IntentListTasks, c.Classify("show my tasks", st).Intent)
	})

	t.Run("ordinal", func(t *testing.T) {
		res := c.Classify("the second one", st)
		assert.Equal(t, 2, res.Entities.Ordinal)
		assert.Equal(t, -1, c.Classify("last", st).Entities.Ordinal)
	})

	t.Run("bare number", func(t *testing.T) {
		res := c.Classify("2", st)
		require.NotNil(t, res.Entities.TaskID)
		assert.Equal(t, int64(2), *res.Entities.TaskID)
	})
}

func TestClassifyOverflowingIDNamesNoTask(t *testing.T) {
	c := NewClassifier()
	const huge = "99999999999999999999"

	t.Run("delete", func(t *testing.T) {
		res := c.Classify("delete task "+huge, neutral())
		assert.Equal(t, types.IntentDeleteTask, res.Intent)
		assert.Nil(t, res.Entities.TaskID)
		assert.Equal(t, "task "+huge, res.Entities.TaskRef)
	})

	t.Run("cancel", func(t *testing.T) {
		res := c.Classify("cancel task "+huge, neutral())
		assert.Nil(t, res.Entities.TaskID)
	})

	t.Run("status", func(t *testing.T) {
		res := c.Classify("task "+huge+" is done", neutral())
		assert.Equal(t, types.IntentCompleteTask, res.Intent)
		assert.Nil(t, res.Entities.TaskID)
		assert.NotEmpty(t, res.Entities.TaskRef)
	})

	t.Run("update", func(t *testing.T) {
		res := c.Classify("update task "+huge+" to high priority", neutral())
		assert.Equal(t, types.IntentUpdateTask, res.Intent)
		assert.Nil(t, res.Entities.TaskID)
	})

	t.Run("largest id still parses", func(t *testing.T) {
		res := c.Classify("delete task 9223372036854775807", neutral())
		require.NotNil(t, res.Entities.TaskID)
		assert.Equal(t, int64(9223372036854775807), *res.Entities.TaskID)
	})
}

func TestClassifyUnknown(t *testing.T) {
	c := NewClassifier()

	res := c.Classify("hello there", neutral())
	assert.Equal(t, types.IntentUnknown, res.Intent)
	assert.Equal(t, ConfidenceUnknown, res.Confidence)
	assert.False(t, res.PatternMatched)
	assert.Equal(t, "hello there", res.Entities.Text)

	// Confirmation words mean nothing without an open workflow.
	assert.Equal(t, types.IntentUnknown, c.Classify("yes", neutral()).Intent)

	empty := c.Classify("   ", neutral())
	assert.Equal(t, types.IntentUnknown, empty.Intent)
	assert.Zero(t, empty.Confidence)
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewClassifier()
	for _, msg := range []string{"add task buy milk by friday", "the second one", "never mind", "???"} {
		first := c.Classify(msg, adding())
		second := c.Classify(msg, adding())
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Classify(%q) not deterministic (-first +second):\n%s", msg, diff)
		}
	}
}
