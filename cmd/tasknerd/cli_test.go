package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknerd/internal/config"
	"tasknerd/internal/orchestrator"
	"tasknerd/internal/types"
)

func testEngine(t *testing.T) *engine {
	t.Helper()
	c := config.DefaultConfig()
	c.Database.Path = filepath.Join(t.TempDir(), "tasks.db")
	c.Conversation.DefaultOwner = "alice"
	require.NoError(t, c.Validate())

	eng, err := openEngine(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestTasksMarkdown(t *testing.T) {
	due := time.Date(2026, 10, 23, 23, 59, 0, 0, time.Local)
	md := tasksMarkdown("Tasks", []types.Task{
		{ID: 1, Title: "Buy milk | eggs", Priority: types.PriorityHigh, DueDate: &due},
		{ID: 2, Title: "Call mom", Priority: types.PriorityLow, Completed: true},
	})

	assert.Contains(t, md, "## Tasks")
	assert.Contains(t, md, `| 1 | Buy milk \| eggs | high | Fri Oct 23 23:59 | pending |`)
	assert.Contains(t, md, "| 2 | Call mom | low | - | complete |")

	assert.Contains(t, tasksMarkdown("", nil), "_No tasks._")
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]types.ListFilter{
		"":          types.FilterAll,
		"all":       types.FilterAll,
		"pending":   types.FilterPending,
		"completed": types.FilterCompleted,
	} {
		got, err := parseFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := parseFilter("someday")
	assert.Error(t, err)
}

func TestSayThroughEngine(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	out, err := eng.orch.Turn(ctx, "cli", eng.owner, "delete task 42")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.OutcomeQuestion, out.Kind, "unknown id asks which task")

	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, out, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "question", decoded["kind"])
	assert.NotEmpty(t, decoded["turn_id"])

	buf.Reset()
	require.NoError(t, printOutcome(&buf, out, false))
	assert.Equal(t, out.Render()+"\n", buf.String())
}

func TestReplay(t *testing.T) {
	eng := testEngine(t)
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
owner: alice
conversations:
  - id: groceries
    turns:
      - say: add task to buy milk
        expect: question
      - say: high
        expect: question
      - say: tomorrow
        expect: question
      - say: "no"
        expect: confirmation
      - say: "yes"
        expect: mutation_performed
  - id: other-owner
    owner: bob
    turns:
      - say: show my tasks
        expect: task_list
`), 0644))

	script, err := loadReplayScript(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	failures, err := replay(context.Background(), eng, script, 2, &buf)
	require.NoError(t, err)
	assert.Zero(t, failures, buf.String())

	transcript := buf.String()
	assert.True(t, strings.Index(transcript, "=== groceries (alice)") < strings.Index(transcript, "=== other-owner (bob)"),
		"transcript keeps script order")
	assert.Contains(t, transcript, "> add task to buy milk")

	tasks, err := eng.tasks.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, types.PriorityHigh, tasks[0].Priority)

	bobs, err := eng.tasks.List(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, bobs)
}

func TestReplayReportsMismatch(t *testing.T) {
	eng := testEngine(t)
	script := &replayScript{Conversations: []replayConversation{{
		Turns: []replayTurn{{Say: "show my tasks", Expect: "confirmation"}},
	}}}

	var buf bytes.Buffer
	failures, err := replay(context.Background(), eng, script, 0, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
	assert.Contains(t, buf.String(), "expected confirmation, got task_list")
	assert.Contains(t, buf.String(), "=== replay-", "missing ids are generated")
	assert.Contains(t, buf.String(), "(alice)", "owner falls back to the engine default")
}

func TestLoadReplayScriptRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owner: alice\n"), 0644))
	_, err := loadReplayScript(path)
	assert.ErrorContains(t, err, "no conversations")
}

// =============================================================================
// CHAT MODEL
// =============================================================================

func TestChatModelTurn(t *testing.T) {
	var got []string
	turn := func(_ context.Context, message string) (orchestrator.Outcome, error) {
		got = append(got, message)
		return orchestrator.Outcome{Kind: orchestrator.OutcomeQuestion, Message: "What priority?"}, nil
	}
	m := newChatModel(context.Background(), "c1", "alice", turn)

	model, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = model.(chatModel)
	require.True(t, m.ready)

	m.textinput.SetValue("add task buy milk")
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = model.(chatModel)
	require.NotNil(t, cmd)
	assert.True(t, m.isLoading)
	assert.Empty(t, m.textinput.Value())

	// Run the turn command directly, as the program would.
	msg := m.runTurn("add task buy milk")()
	model, _ = m.Update(msg)
	m = model.(chatModel)

	assert.False(t, m.isLoading)
	assert.Equal(t, []string{"add task buy milk"}, got)
	require.Len(t, m.history, 2)
	assert.Equal(t, "user", m.history[0].role)
	assert.Equal(t, orchestrator.OutcomeQuestion, m.history[1].kind)
	assert.Contains(t, m.View(), "What priority?")
}

func TestChatModelError(t *testing.T) {
	boom := errors.New("conversation c1 is busy")
	turn := func(context.Context, string) (orchestrator.Outcome, error) {
		return orchestrator.Outcome{}, boom
	}
	m := newChatModel(context.Background(), "c1", "alice", turn)
	model, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = model.(chatModel)

	model, _ = m.Update(m.runTurn("hi")())
	m = model.(chatModel)
	assert.ErrorIs(t, m.err, boom)
	assert.Contains(t, m.View(), "conversation c1 is busy")
}

func TestPrintTraces(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	traces := eng.db.Traces()

	var buf bytes.Buffer
	require.NoError(t, printTraces(ctx, &buf, traces, 5))
	assert.Contains(t, buf.String(), "No suggester traces recorded.")

	require.NoError(t, traces.StoreTrace(ctx, types.SuggestionTrace{
		ID:             "t1",
		ConversationID: "chat-1",
		Model:          "gemini-2.5-flash",
		Response:       "{\"intent\":\"CANCEL\"}\n",
		DurationMs:     42,
		Success:        false,
		ErrorMessage:   "quota exceeded",
	}))
	buf.Reset()
	require.NoError(t, printTraces(ctx, &buf, traces, 5))
	out := buf.String()
	assert.Contains(t, out, "gemini-2.5-flash  42ms  failed: quota exceeded  [chat-1]")
	assert.Contains(t, out, `  {"intent":"CANCEL"}`)
}
