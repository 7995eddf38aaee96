package store

import (
	"context"
	"fmt"

	"tasknerd/internal/logging"
	"tasknerd/internal/types"
)

// Traces stores generative suggester calls for later inspection.
type Traces struct {
	db *DB
}

var _ types.TraceStore = (*Traces)(nil)

// StoreTrace inserts one trace. An empty ID is rejected.
func (s *Traces) StoreTrace(ctx context.Context, tr types.SuggestionTrace) error {
	if tr.ID == "" {
		return fmt.Errorf("trace id is required")
	}
	created := s.db.now()
	if !tr.Timestamp.IsZero() {
		created = formatTime(tr.Timestamp)
	}
	success := 0
	if tr.Success {
		success = 1
	}
	return s.db.retry.Do(ctx, "store trace", func() error {
		_, err := s.db.db.ExecContext(ctx, `
			INSERT INTO suggestion_traces
				(id, conversation_id, model, system_prompt, user_prompt, response,
				 duration_ms, success, error_message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tr.ID, tr.ConversationID, tr.Model, tr.SystemPrompt, tr.UserPrompt, tr.Response,
			tr.DurationMs, success, tr.ErrorMessage, created)
		return err
	})
}

// Recent returns up to limit traces, newest first.
func (s *Traces) Recent(ctx context.Context, limit int) ([]types.SuggestionTrace, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []types.SuggestionTrace
	err := s.db.retry.Do(ctx, "recent traces", func() error {
		rows, err := s.db.db.QueryContext(ctx, `
			SELECT id, conversation_id, model, system_prompt, user_prompt, response,
				duration_ms, success, error_message, created_at
			FROM suggestion_traces
			ORDER BY created_at DESC, id
			LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				tr      types.SuggestionTrace
				success int
				created string
			)
			if err := rows.Scan(&tr.ID, &tr.ConversationID, &tr.Model, &tr.SystemPrompt, &tr.UserPrompt,
				&tr.Response, &tr.DurationMs, &success, &tr.ErrorMessage, &created); err != nil {
				return err
			}
			tr.Success = success != 0
			if tr.Timestamp, err = parseTime(created); err != nil {
				return fmt.Errorf("trace %s: bad created_at: %w", tr.ID, err)
			}
			out = append(out, tr)
		}
		return rows.Err()
	})
	return out, err
}

// Prune deletes traces older than retentionDays and returns how many went.
func (s *Traces) Prune(ctx context.Context, retentionDays int) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PruneTraces")
	defer timer.Stop()

	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive")
	}
	cutoff := formatTime(s.db.clock().AddDate(0, 0, -retentionDays))

	var n int64
	err := s.db.retry.Do(ctx, "prune traces", func() error {
		res, err := s.db.db.ExecContext(ctx, "DELETE FROM suggestion_traces WHERE created_at < ?", cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to prune traces: %v", err)
		return 0, err
	}
	logging.Store("Pruned %d suggester traces (retention=%d days)", n, retentionDays)
	return n, nil
}
