package workflow

import (
	"fmt"
	"strconv"
	"time"

	"tasknerd/internal/types"
)

// Kind is the mutation a confirmed workflow performs.
type Kind string

const (
	KindCreate   Kind = "create"
	KindUpdate   Kind = "update"
	KindDelete   Kind = "delete"
	KindComplete Kind = "complete"
)

// Plan is the single mutation a confirmed state describes.
type Plan struct {
	Kind      Kind
	TaskID    int64
	Payload   types.TaskPayload
	Changes   types.TaskChanges
	Completed bool
}

// PlanFor decodes a confirmed state into a Plan. Stored values are decoded,
// not re-validated; the gate does that against the current clock.
func PlanFor(st types.ConversationState) (Plan, error) {
	fs := st.StateData
	if st.CurrentIntent == types.StateAdding {
		p := Plan{Kind: KindCreate}
		p.Payload.Title = fs.Value(types.FieldTitle)
		p.Payload.Description = fs.Value(types.FieldDescription)
		p.Payload.Priority = types.DefaultPriority
		if v := fs.Value(types.FieldPriority); v != "" {
			p.Payload.Priority = types.Priority(v)
		}
		due, err := decodeDue(fs)
		if err != nil {
			return Plan{}, err
		}
		p.Payload.DueDate = due
		return p, nil
	}

	if st.TargetTaskID == nil {
		return Plan{}, &types.ValidationError{Field: types.FieldTarget, Reason: "no task was selected"}
	}
	id := *st.TargetTaskID

	switch st.CurrentIntent {
	case types.StateUpdating:
		p := Plan{Kind: KindUpdate, TaskID: id}
		if v := fs.Value(types.FieldTitle); v != "" {
			p.Changes.Title = &v
		}
		if v := fs.Value(types.FieldDescription); v != "" {
			p.Changes.Description = &v
		}
		if v := fs.Value(types.FieldPriority); v != "" {
			pr := types.Priority(v)
			p.Changes.Priority = &pr
		}
		due, err := decodeDue(fs)
		if err != nil {
			return Plan{}, err
		}
		p.Changes.DueDate = due
		if p.Changes.Empty() {
			return Plan{}, &types.ValidationError{Field: fieldChanges, Reason: "nothing to change"}
		}
		return p, nil

	case types.StateDeleting:
		return Plan{Kind: KindDelete, TaskID: id}, nil

	case types.StateCompleting:
		return Plan{Kind: KindComplete, TaskID: id, Completed: wantCompleted(fs)}, nil
	}
	return Plan{}, fmt.Errorf("no mutation for workflow %s", st.CurrentIntent)
}

func decodeDue(fs types.FieldSet) (*time.Time, error) {
	v := fs.Value(types.FieldDueDate)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, &types.ValidationError{Field: types.FieldDueDate, Value: v, Reason: "the stored due date is unreadable"}
	}
	return &t, nil
}

// Describe names a plan for logs and audit records.
func (p Plan) Describe() string {
	if p.Kind == KindCreate {
		return fmt.Sprintf("create %q", p.Payload.Title)
	}
	if p.Kind == KindComplete {
		return "complete #" + strconv.FormatInt(p.TaskID, 10) + "=" + strconv.FormatBool(p.Completed)
	}
	return string(p.Kind) + " #" + strconv.FormatInt(p.TaskID, 10)
}
