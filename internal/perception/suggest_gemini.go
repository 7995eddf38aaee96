package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"tasknerd/internal/logging"
	"tasknerd/internal/types"
)

// =============================================================================
// GENERATIVE SUGGESTER
// =============================================================================

// Generator returns a JSON completion for a system and user prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, system, user string) (string, error)
}

// GenerativeSuggester asks a Generator to rephrase a message the classifier
// could not place. The hint is advisory; callers re-classify Rephrased.
type GenerativeSuggester struct {
	gen     Generator
	timeout time.Duration
}

// NewSuggester wraps gen. A non-positive timeout means 10s.
func NewSuggester(gen Generator, timeout time.Duration) *GenerativeSuggester {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GenerativeSuggester{gen: gen, timeout: timeout}
}

const suggestSystemPrompt = `You help a todo-list assistant understand a user message.
Allowed intents: ADD_TASK, UPDATE_TASK, DELETE_TASK, COMPLETE_TASK, LIST_TASKS, CANCEL, UNKNOWN.
Rewrite the message as one short plain command in one of these forms:
  "add task <title>", "delete task <title or id>", "mark <title> as done",
  "change <title> to <change>", "show my tasks", "never mind".
Never invent task titles, ids or dates that are not in the message.
Reply with JSON only: {"intent": "...", "rephrased": "...", "confidence": 0.0}`

const maxRephrasedLength = 200

// Suggest returns a hint for message. Errors are returned to the caller, which
// is expected to carry on without the hint.
func (s *GenerativeSuggester) Suggest(ctx context.Context, message string, state types.ConversationState) (types.Hint, error) {
	ctx, cancel := context.WithTimeout(WithConversation(ctx, state.ConversationID), s.timeout)
	defer cancel()

	audit := logging.AuditWithConversation(state.ConversationID, state.Owner)
	start := time.Now()

	user := fmt.Sprintf("Conversation state: %s\nMessage: %q", state.CurrentIntent, message)
	raw, err := s.gen.GenerateJSON(ctx, suggestSystemPrompt, user)
	if err != nil {
		audit.SuggesterCall(time.Since(start), err)
		return types.Hint{}, fmt.Errorf("suggester call failed: %w", err)
	}

	hint, err := parseHint(raw)
	audit.SuggesterCall(time.Since(start), err)
	if err != nil {
		return types.Hint{}, err
	}
	logging.PerceptionDebug("suggester hint: intent=%s rephrased=%q conf=%.2f", hint.Intent, hint.Rephrased, hint.Confidence)
	return hint, nil
}

// parseHint decodes a model reply, tolerating markdown code fences.
func parseHint(raw string) (types.Hint, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var h types.Hint
	if err := json.Unmarshal([]byte(body), &h); err != nil {
		return types.Hint{}, fmt.Errorf("failed to decode suggester reply: %w", err)
	}

	switch h.Intent {
	case types.IntentAddTask, types.IntentUpdateTask, types.IntentDeleteTask,
		types.IntentCompleteTask, types.IntentListTasks, types.IntentCancel:
	default:
		h.Intent = types.IntentUnknown
	}
	h.Rephrased = strings.TrimSpace(h.Rephrased)
	if r := []rune(h.Rephrased); len(r) > maxRephrasedLength {
		h.Rephrased = string(r[:maxRephrasedLength])
	}
	if h.Confidence < 0 {
		h.Confidence = 0
	}
	if h.Confidence > 1 {
		h.Confidence = 1
	}
	return h, nil
}

// =============================================================================
// GEMINI
// =============================================================================

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiGenerator implements Generator on the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// GenerateJSON requests a low-temperature JSON reply.
func (g *GeminiGenerator) GenerateJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(user),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.1),
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty GenAI response")
	}
	return text, nil
}

// Name returns the generator name.
func (g *GeminiGenerator) Name() string {
	return fmt.Sprintf("genai:%s", g.model)
}
