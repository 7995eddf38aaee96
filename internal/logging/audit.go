package logging

import (
	"strconv"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names a structured audit record.
type AuditEventType string

const (
	// Turn lifecycle
	AuditTurnStart AuditEventType = "turn_start"
	AuditTurnEnd   AuditEventType = "turn_end"

	// Understanding
	AuditIntentClassified AuditEventType = "intent_classified"
	AuditSuggesterCall    AuditEventType = "suggester_call"

	// Workflow transitions
	AuditWorkflowOpen   AuditEventType = "workflow_open"
	AuditWorkflowReset  AuditEventType = "workflow_reset"
	AuditConfirmRequest AuditEventType = "confirm_request"

	// Mutations
	AuditDispatchStart    AuditEventType = "dispatch_start"
	AuditDispatchComplete AuditEventType = "dispatch_complete"
	AuditDispatchError    AuditEventType = "dispatch_error"

	// Persistence
	AuditStateConflict AuditEventType = "state_conflict"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	EventType      AuditEventType
	ConversationID string
	Owner          string
	Intent         string
	Action         string
	TaskID         int64
	Success        bool
	Duration       time.Duration
	Error          string
	Message        string
}

// AuditLogger writes audit events through the audit category.
type AuditLogger struct {
	conversationID string
	owner          string
}

// Audit returns an audit logger without conversation correlation.
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithConversation returns an audit logger bound to one conversation.
func AuditWithConversation(conversationID, owner string) *AuditLogger {
	return &AuditLogger{conversationID: conversationID, owner: owner}
}

// Log records an event. Correlation fields left empty on the event are filled
// from the logger.
func (a *AuditLogger) Log(event AuditEvent) {
	if event.ConversationID == "" {
		event.ConversationID = a.conversationID
	}
	if event.Owner == "" {
		event.Owner = a.owner
	}

	fields := []zap.Field{
		zap.String("event", string(event.EventType)),
		zap.String("conversation", event.ConversationID),
		zap.Bool("success", event.Success),
	}
	if event.Owner != "" {
		fields = append(fields, zap.String("owner", event.Owner))
	}
	if event.Intent != "" {
		fields = append(fields, zap.String("intent", event.Intent))
	}
	if event.Action != "" {
		fields = append(fields, zap.String("action", event.Action))
	}
	if event.TaskID != 0 {
		fields = append(fields, zap.Int64("task_id", event.TaskID))
	}
	if event.Duration > 0 {
		fields = append(fields, zap.Duration("duration", event.Duration))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}

	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}

	l := Get(CategoryAudit).sugar.Desugar()
	if event.Error != "" {
		l.Warn(msg, fields...)
		return
	}
	l.Info(msg, fields...)
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// TurnStart records the beginning of a turn.
func (a *AuditLogger) TurnStart(inputLen int) {
	a.Log(AuditEvent{
		EventType: AuditTurnStart,
		Success:   true,
		Message:   "turn started",
		Action:    "input_len=" + itoa(int64(inputLen)),
	})
}

// TurnEnd records how a turn finished.
func (a *AuditLogger) TurnEnd(outcome string, d time.Duration, err error) {
	a.Log(AuditEvent{
		EventType: AuditTurnEnd,
		Action:    outcome,
		Success:   err == nil,
		Duration:  d,
		Error:     errString(err),
	})
}

// IntentClassified records the classifier decision.
func (a *AuditLogger) IntentClassified(intent string, confidence float64, patternMatched bool) {
	action := "fallback"
	if patternMatched {
		action = "pattern"
	}
	a.Log(AuditEvent{
		EventType: AuditIntentClassified,
		Intent:    intent,
		Action:    action,
		Success:   confidence > 0,
	})
}

// SuggesterCall records a call to the generative suggester.
func (a *AuditLogger) SuggesterCall(d time.Duration, err error) {
	a.Log(AuditEvent{
		EventType: AuditSuggesterCall,
		Success:   err == nil,
		Duration:  d,
		Error:     errString(err),
	})
}

// WorkflowReset records a reset to NEUTRAL and its cause.
func (a *AuditLogger) WorkflowReset(from, cause string) {
	a.Log(AuditEvent{
		EventType: AuditWorkflowReset,
		Intent:    from,
		Action:    cause,
		Success:   true,
	})
}

// DispatchStart records a confirmed mutation about to run.
func (a *AuditLogger) DispatchStart(action string, taskID int64) {
	a.Log(AuditEvent{
		EventType: AuditDispatchStart,
		Action:    action,
		TaskID:    taskID,
		Success:   true,
	})
}

// DispatchDone records the mutation result.
func (a *AuditLogger) DispatchDone(action string, taskID int64, d time.Duration, err error) {
	eventType := AuditDispatchComplete
	if err != nil {
		eventType = AuditDispatchError
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Action:    action,
		TaskID:    taskID,
		Success:   err == nil,
		Duration:  d,
		Error:     errString(err),
	})
}

// StateConflict records an optimistic-lock failure on save.
func (a *AuditLogger) StateConflict(version int64) {
	a.Log(AuditEvent{
		EventType: AuditStateConflict,
		Action:    "version=" + itoa(version),
		Error:     "stale version",
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
