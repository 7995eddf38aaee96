package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tasknerd/internal/types"
)

// Conversations is the SQLite-backed types.StateStore. Save is an
// optimistic compare-and-swap on the version column.
type Conversations struct {
	db *DB
}

var _ types.StateStore = (*Conversations)(nil)

// Load returns the stored state for conversationID.
func (s *Conversations) Load(ctx context.Context, conversationID, owner string) (types.ConversationState, error) {
	var st types.ConversationState
	err := s.db.retry.Do(ctx, "load conversation", func() error {
		var err error
		st, err = s.load(ctx, s.db.db, conversationID)
		return err
	})
	if err != nil {
		return types.ConversationState{}, err
	}
	if st.Owner != owner {
		return types.ConversationState{}, types.ErrConversationOwner
	}
	return st, nil
}

func (s *Conversations) load(ctx context.Context, q queryer, id string) (types.ConversationState, error) {
	var (
		st         types.ConversationState
		intent     string
		data       string
		target     sql.NullInt64
		pending    int
		candidates string
		updated    string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, owner, current_intent, state_data, target_task_id, pending_confirmation, candidates, version, updated_at
		 FROM conversations WHERE id = ?`, id).
		Scan(&st.ConversationID, &st.Owner, &intent, &data, &target, &pending, &candidates, &st.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ConversationState{}, types.ErrConversationNotFound
	}
	if err != nil {
		return types.ConversationState{}, err
	}

	if st.CurrentIntent, err = types.ParseWorkflowState(intent); err != nil {
		return types.ConversationState{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	if st.StateData, err = types.DecodeStateData(data); err != nil {
		return types.ConversationState{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	if target.Valid {
		v := target.Int64
		st.TargetTaskID = &v
	}
	st.PendingConfirmation = pending != 0
	if candidates != "" && candidates != "[]" {
		if err := json.Unmarshal([]byte(candidates), &st.Candidates); err != nil {
			return types.ConversationState{}, fmt.Errorf("conversation %s: failed to decode candidates: %w", id, err)
		}
	}
	if st.UpdatedAt, err = parseTime(updated); err != nil {
		return types.ConversationState{}, fmt.Errorf("conversation %s: bad updated_at: %w", id, err)
	}
	return st, nil
}

// Save writes st if the stored version still equals st.Version and returns
// the state with the incremented version. A Version of 0 means the
// conversation has never been saved.
func (s *Conversations) Save(ctx context.Context, st types.ConversationState) (types.ConversationState, error) {
	if st.ConversationID == "" {
		return types.ConversationState{}, errors.New("conversation id is required")
	}
	if st.Owner == "" {
		return types.ConversationState{}, types.ErrOwnerRequired
	}

	data, err := types.EncodeStateData(st.StateData)
	if err != nil {
		return types.ConversationState{}, err
	}
	candidates := "[]"
	if len(st.Candidates) > 0 {
		b, err := json.Marshal(st.Candidates)
		if err != nil {
			return types.ConversationState{}, fmt.Errorf("failed to encode candidates: %w", err)
		}
		candidates = string(b)
	}
	var target any
	if st.TargetTaskID != nil {
		target = *st.TargetTaskID
	}
	pending := 0
	if st.PendingConfirmation {
		pending = 1
	}

	var saved types.ConversationState
	err = s.db.inTx(ctx, "save conversation", func(tx *sql.Tx) error {
		now := s.db.clock()
		var res sql.Result
		var err error
		if st.Version == 0 {
			res, err = tx.ExecContext(ctx,
				`INSERT INTO conversations (id, owner, current_intent, state_data, target_task_id, pending_confirmation, candidates, version, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?) ON CONFLICT(id) DO NOTHING`,
				st.ConversationID, st.Owner, string(st.CurrentIntent), data, target, pending, candidates, formatTime(now))
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE conversations SET current_intent = ?, state_data = ?, target_task_id = ?, pending_confirmation = ?,
				 candidates = ?, version = version + 1, updated_at = ?
				 WHERE id = ? AND owner = ? AND version = ?`,
				string(st.CurrentIntent), data, target, pending, candidates, formatTime(now),
				st.ConversationID, st.Owner, st.Version)
		}
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return types.ErrStateConflict
		}
		saved = st.Clone()
		saved.Version = st.Version + 1
		saved.UpdatedAt = now.UTC()
		return nil
	})
	if err != nil {
		return types.ConversationState{}, err
	}
	return saved, nil
}
