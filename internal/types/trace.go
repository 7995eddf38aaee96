package types

import (
	"context"
	"time"
)

// SuggestionTrace records one generative suggester call.
type SuggestionTrace struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Model          string    `json:"model,omitempty"`
	SystemPrompt   string    `json:"system_prompt"`
	UserPrompt     string    `json:"user_prompt"`
	Response       string    `json:"response"`
	DurationMs     int64     `json:"duration_ms"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// TraceStore persists suggester traces.
type TraceStore interface {
	StoreTrace(ctx context.Context, trace SuggestionTrace) error
}
