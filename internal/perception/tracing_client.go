package perception

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tasknerd/internal/logging"
	"tasknerd/internal/types"
)

// TracingGenerator wraps a Generator and records every call to a
// types.TraceStore. Trace write failures are logged, never returned.
type TracingGenerator struct {
	underlying Generator
	store      types.TraceStore
	model      string
	clock      func() time.Time
}

// NewTracingGenerator wraps gen. model is copied into each trace.
func NewTracingGenerator(gen Generator, store types.TraceStore, model string) *TracingGenerator {
	return &TracingGenerator{underlying: gen, store: store, model: model, clock: time.Now}
}

type conversationKey struct{}

// WithConversation tags ctx so traces recorded under it carry the id.
func WithConversation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey{}, id)
}

func conversationFrom(ctx context.Context) string {
	id, _ := ctx.Value(conversationKey{}).(string)
	return id
}

// GenerateJSON calls the wrapped generator and stores the trace.
func (t *TracingGenerator) GenerateJSON(ctx context.Context, system, user string) (string, error) {
	start := t.clock()
	resp, err := t.underlying.GenerateJSON(ctx, system, user)

	trace := types.SuggestionTrace{
		ID:             uuid.NewString(),
		ConversationID: conversationFrom(ctx),
		Model:          t.model,
		SystemPrompt:   system,
		UserPrompt:     user,
		Response:       resp,
		DurationMs:     t.clock().Sub(start).Milliseconds(),
		Success:        err == nil,
		Timestamp:      start.UTC(),
	}
	if err != nil {
		trace.ErrorMessage = err.Error()
	}

	// The store write must not be cut short by the call's deadline.
	if serr := t.store.StoreTrace(context.WithoutCancel(ctx), trace); serr != nil {
		logging.PerceptionWarn("Failed to store suggester trace %s: %v", trace.ID, serr)
	} else {
		logging.PerceptionDebug("Stored suggester trace %s (%dms, success=%v)", trace.ID, trace.DurationMs, trace.Success)
	}
	return resp, err
}
