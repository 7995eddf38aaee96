package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tasknerd/cmd/tasknerd/ui"
	"tasknerd/internal/config"
	"tasknerd/internal/logging"
	"tasknerd/internal/orchestrator"
)

var chatConversation string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat (default)",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "Resume a conversation id (default: a new one)")
}

// turnFunc runs one turn; the model calls it from a tea.Cmd.
type turnFunc func(ctx context.Context, message string) (orchestrator.Outcome, error)

// chatModel is the main model for the interactive chat interface
type chatModel struct {
	// UI Components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	// State
	history   []chatMessage
	isLoading bool
	err       error
	width     int
	height    int
	ready     bool

	// Session State
	conversationID string
	owner          string
	turnCount      int

	// Backend
	ctx  context.Context
	turn turnFunc
}

type chatMessage struct {
	role    string // "user" or "assistant"
	kind    orchestrator.OutcomeKind
	content string
	time    time.Time
}

// Messages for tea updates
type (
	outcomeMsg orchestrator.Outcome
	errorMsg   struct{ err error }
)

func newChatModel(ctx context.Context, conversationID, owner string, turn turnFunc) chatModel {
	styles := ui.DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "What needs doing? (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 1024
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer, _ := newRenderer(80, styles.Theme.IsDark)

	return chatModel{
		textinput:      ti,
		viewport:       vp,
		spinner:        sp,
		styles:         styles,
		renderer:       renderer,
		history:        []chatMessage{},
		conversationID: conversationID,
		owner:          owner,
		ctx:            ctx,
		turn:           turn,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
	)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.isLoading {
				return m, nil
			}
			input := strings.TrimSpace(m.textinput.Value())
			if input == "" {
				return m, nil
			}
			if input == "/quit" || input == "/exit" {
				return m, tea.Quit
			}
			m.textinput.Reset()
			m.err = nil
			m.history = append(m.history, chatMessage{role: "user", content: input, time: time.Now()})
			m.isLoading = true
			m.viewport.SetContent(m.renderHistory())
			m.viewport.GotoBottom()
			return m, tea.Batch(m.spinner.Tick, m.runTurn(input))
		}

		if !m.isLoading {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := 2
		inputHeight := 2

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}
		m.textinput.Width = msg.Width - 4

		if r, err := newRenderer(msg.Width-8, m.styles.Theme.IsDark); err == nil {
			m.renderer = r
		}
		m.viewport.SetContent(m.renderHistory())

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case outcomeMsg:
		m.isLoading = false
		m.turnCount++
		m.history = append(m.history, chatMessage{
			role:    "assistant",
			kind:    msg.Kind,
			content: m.formatOutcome(orchestrator.Outcome(msg)),
			time:    time.Now(),
		})
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case errorMsg:
		m.isLoading = false
		m.err = msg.err
		logging.Get(logging.CategoryUI).Error("Turn failed: %v", msg.err)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m chatModel) runTurn(input string) tea.Cmd {
	ctx, turn := m.ctx, m.turn
	return func() tea.Msg {
		out, err := turn(ctx, input)
		if err != nil {
			return errorMsg{err: err}
		}
		return outcomeMsg(out)
	}
}

// formatOutcome renders task lists as markdown tables; everything else is
// shown as plain text.
func (m chatModel) formatOutcome(out orchestrator.Outcome) string {
	if out.Kind != orchestrator.OutcomeTaskList {
		return out.Render()
	}
	md := out.Message + "\n\n" + tasksMarkdown("", out.Tasks)
	return renderMarkdown(m.renderer, md)
}

func (m chatModel) renderHistory() string {
	var b strings.Builder
	for _, msg := range m.history {
		if msg.role == "user" {
			b.WriteString(m.styles.Prompt.Render("you › "))
			b.WriteString(m.styles.UserMessage.Render(msg.content))
		} else {
			b.WriteString(m.styles.ForKind(string(msg.kind)).Render(msg.content))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	header := m.styles.Header.Render("tasknerd") + " " +
		m.styles.Badge.Render(fmt.Sprintf("%s · %s", m.owner, m.conversationID))

	var status string
	switch {
	case m.isLoading:
		status = m.spinner.View() + m.styles.Muted.Render(" thinking...")
	case m.err != nil:
		status = m.styles.Error.Render("Error: " + m.err.Error())
	default:
		status = m.styles.Footer.Render(fmt.Sprintf("%d turns · /quit to exit", m.turnCount))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		m.viewport.View(),
		m.textinput.View(),
		status,
	)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	eng, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	// Apply log level edits without restarting the session.
	go func() {
		err := config.Watch(ctx, configPath, func(c *config.Config) {
			logging.SetLevel(c.Logging.Level)
		})
		if err != nil {
			logging.Get(logging.CategoryConfig).Debug("Config watch unavailable: %v", err)
		}
	}()

	id := chatConversation
	if id == "" {
		id = "chat-" + uuid.NewString()
	}
	logging.Get(logging.CategoryUI).Info("Starting chat %s for %s", id, eng.owner)

	turn := func(ctx context.Context, message string) (orchestrator.Outcome, error) {
		return eng.orch.Turn(ctx, id, eng.owner, message)
	}
	p := tea.NewProgram(newChatModel(ctx, id, eng.owner, turn), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
