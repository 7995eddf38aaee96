package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// STATE DATA FIELDS
// =============================================================================

// Field names collected by the workflows.
const (
	FieldTitle       = "title"
	FieldPriority    = "priority"
	FieldDueDate     = "due_date"
	FieldDescription = "description"
	FieldTarget      = "target"
	FieldCompleted   = "completed"
	FieldFilter      = "filter"
)

// FieldStatus is the resolution of a single collected field.
type FieldStatus string

const (
	FieldPending FieldStatus = "pending"
	FieldPresent FieldStatus = "present"
	FieldOmitted FieldStatus = "omitted"
)

// FieldValue is Some(v) | Pending | ExplicitlyOmitted.
type FieldValue struct {
	Status FieldStatus `json:"status"`
	Value  string      `json:"value,omitempty"`
}

// Some builds a present value.
func Some(v string) FieldValue { return FieldValue{Status: FieldPresent, Value: v} }

// Pending builds an unresolved value.
func Pending() FieldValue { return FieldValue{Status: FieldPending} }

// Omitted builds an explicitly omitted value.
func Omitted() FieldValue { return FieldValue{Status: FieldOmitted} }

// Resolved reports whether the field no longer needs an answer.
func (v FieldValue) Resolved() bool {
	return v.Status == FieldPresent || v.Status == FieldOmitted
}

// Field is one named entry of state_data.
type Field struct {
	Name  string     `json:"name"`
	Value FieldValue `json:"value"`
}

// FieldSet is the ordered state_data mapping. Order is insertion order and is
// the order in which the workflow asks questions.
type FieldSet []Field

// Get returns the value for name.
func (fs FieldSet) Get(name string) (FieldValue, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return FieldValue{}, false
}

// Value returns the present value for name or "".
func (fs FieldSet) Value(name string) string {
	v, ok := fs.Get(name)
	if !ok || v.Status != FieldPresent {
		return ""
	}
	return v.Value
}

// Has reports whether name is part of the set.
func (fs FieldSet) Has(name string) bool {
	_, ok := fs.Get(name)
	return ok
}

// Set replaces the value for name, appending it if missing.
func (fs FieldSet) Set(name string, v FieldValue) FieldSet {
	for i := range fs {
		if fs[i].Name == name {
			out := fs.Clone()
			out[i].Value = v
			return out
		}
	}
	return append(fs.Clone(), Field{Name: name, Value: v})
}

// FirstPending returns the first unresolved field in order.
func (fs FieldSet) FirstPending() (string, bool) {
	for _, f := range fs {
		if !f.Value.Resolved() {
			return f.Name, true
		}
	}
	return "", false
}

// Clone returns an independent copy.
func (fs FieldSet) Clone() FieldSet {
	if fs == nil {
		return nil
	}
	out := make(FieldSet, len(fs))
	copy(out, fs)
	return out
}

// =============================================================================
// CONVERSATION STATE
// =============================================================================

// ConversationState is the durable per-conversation record.
//
// Invariants maintained by the workflow manager:
//   - StateData is non-empty iff CurrentIntent != StateNeutral.
//   - PendingConfirmation is true iff every required field is resolved and
//     nothing has been dispatched yet.
type ConversationState struct {
	ConversationID      string           `json:"conversation_id"`
	Owner               string           `json:"owner"`
	CurrentIntent       WorkflowState    `json:"current_intent"`
	StateData           FieldSet         `json:"state_data,omitempty"`
	TargetTaskID        *int64           `json:"target_task_id,omitempty"`
	PendingConfirmation bool             `json:"pending_confirmation"`
	Candidates          []MatchCandidate `json:"candidates,omitempty"`
	Version             int64            `json:"version"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// NewConversationState returns the NEUTRAL baseline for a conversation.
func NewConversationState(conversationID, owner string) ConversationState {
	return ConversationState{
		ConversationID: conversationID,
		Owner:          owner,
		CurrentIntent:  StateNeutral,
	}
}

// Reset returns the state to the NEUTRAL baseline. Identity and version are kept;
// everything the workflow collected is cleared together.
func (s ConversationState) Reset() ConversationState {
	return ConversationState{
		ConversationID: s.ConversationID,
		Owner:          s.Owner,
		CurrentIntent:  StateNeutral,
		Version:        s.Version,
		UpdatedAt:      s.UpdatedAt,
	}
}

// IsNeutral reports whether no workflow is open.
func (s ConversationState) IsNeutral() bool {
	return s.CurrentIntent == StateNeutral
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s ConversationState) Clone() ConversationState {
	out := s
	out.StateData = s.StateData.Clone()
	if s.TargetTaskID != nil {
		id := *s.TargetTaskID
		out.TargetTaskID = &id
	}
	if s.Candidates != nil {
		out.Candidates = append([]MatchCandidate(nil), s.Candidates...)
	}
	return out
}

// CheckInvariants validates the intent/state_data pairing and the
// pending-confirmation precondition.
func (s ConversationState) CheckInvariants() error {
	if s.IsNeutral() != (len(s.StateData) == 0) {
		return fmt.Errorf("state_data/intent mismatch: intent=%s fields=%d", s.CurrentIntent, len(s.StateData))
	}
	if s.PendingConfirmation {
		if name, ok := s.StateData.FirstPending(); ok {
			return fmt.Errorf("pending confirmation with unresolved field %q", name)
		}
	}
	if s.IsNeutral() && (s.TargetTaskID != nil || s.PendingConfirmation || len(s.Candidates) > 0) {
		return fmt.Errorf("neutral state carries workflow data")
	}
	return nil
}

// EncodeStateData serialises the ordered field set for storage.
func EncodeStateData(fs FieldSet) (string, error) {
	if len(fs) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(fs)
	if err != nil {
		return "", fmt.Errorf("failed to encode state data: %w", err)
	}
	return string(data), nil
}

// DecodeStateData is the inverse of EncodeStateData.
func DecodeStateData(s string) (FieldSet, error) {
	if s == "" || s == "[]" || s == "null" {
		return nil, nil
	}
	var fs FieldSet
	if err := json.Unmarshal([]byte(s), &fs); err != nil {
		return nil, fmt.Errorf("failed to decode state data: %w", err)
	}
	return fs, nil
}
