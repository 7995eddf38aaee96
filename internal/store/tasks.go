package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasknerd/internal/logging"
	"tasknerd/internal/types"
)

// Tasks is the SQLite-backed types.TaskStore. Every query is scoped to the
// owner; rows belonging to someone else look exactly like missing rows.
type Tasks struct {
	db *DB
}

var _ types.TaskStore = (*Tasks)(nil)

const taskColumns = "id, owner, title, description, priority, due_date, completed, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (types.Task, error) {
	var (
		t                types.Task
		priority         string
		due              sql.NullString
		completed        int
		created, updated string
	)
	if err := r.Scan(&t.ID, &t.Owner, &t.Title, &t.Description, &priority, &due, &completed, &created, &updated); err != nil {
		return types.Task{}, err
	}
	p, ok := types.ParsePriority(priority)
	if !ok {
		p = types.DefaultPriority
	}
	t.Priority = p
	t.Completed = completed != 0
	if due.Valid && due.String != "" {
		d, err := parseTime(due.String)
		if err != nil {
			return types.Task{}, fmt.Errorf("task %d: bad due_date %q: %w", t.ID, due.String, err)
		}
		t.DueDate = &d
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return types.Task{}, fmt.Errorf("task %d: bad created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return types.Task{}, fmt.Errorf("task %d: bad updated_at: %w", t.ID, err)
	}
	return t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func getTask(ctx context.Context, q queryer, id int64, owner string) (types.Task, error) {
	row := q.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ? AND owner = ?", id, owner)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Task{}, types.ErrTaskNotFound
	}
	return t, err
}

// Get returns one task.
func (s *Tasks) Get(ctx context.Context, id int64, owner string) (types.Task, error) {
	var t types.Task
	err := s.db.retry.Do(ctx, "get task", func() error {
		var err error
		t, err = getTask(ctx, s.db.db, id, owner)
		return err
	})
	return t, err
}

// List returns the owner's tasks in id order.
func (s *Tasks) List(ctx context.Context, owner string) ([]types.Task, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListTasks")
	defer timer.Stop()

	var out []types.Task
	err := s.db.retry.Do(ctx, "list tasks", func() error {
		out = out[:0]
		rows, err := s.db.db.QueryContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE owner = ? ORDER BY id", owner)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts a task. An empty priority becomes the default.
func (s *Tasks) Create(ctx context.Context, owner string, p types.TaskPayload) (types.Task, error) {
	if strings.TrimSpace(p.Title) == "" {
		return types.Task{}, &types.ValidationError{Field: types.FieldTitle, Reason: "title is required"}
	}
	if p.Priority == "" {
		p.Priority = types.DefaultPriority
	}

	var t types.Task
	err := s.db.inTx(ctx, "create task", func(tx *sql.Tx) error {
		now := s.db.now()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (owner, title, description, priority, due_date, completed, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			owner, p.Title, p.Description, string(p.Priority), nullTime(p.DueDate), now, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		t, err = getTask(ctx, tx, id, owner)
		return err
	})
	if err != nil {
		return types.Task{}, err
	}
	logging.StoreDebug("Created task %d for %s", t.ID, owner)
	return t, nil
}

// Update applies the non-nil fields of c.
func (s *Tasks) Update(ctx context.Context, id int64, owner string, c types.TaskChanges) (types.Task, error) {
	var (
		sets []string
		args []any
	)
	if c.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *c.Title)
	}
	if c.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *c.Description)
	}
	if c.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*c.Priority))
	}
	if c.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, formatTime(*c.DueDate))
	}

	var t types.Task
	err := s.db.inTx(ctx, "update task", func(tx *sql.Tx) error {
		a := append(append([]any(nil), args...), s.db.now(), id, owner)
		query := "UPDATE tasks SET " + strings.Join(append(sets, "updated_at = ?"), ", ") + " WHERE id = ? AND owner = ?"
		if err := execOne(ctx, tx, query, a...); err != nil {
			return err
		}
		var err error
		t, err = getTask(ctx, tx, id, owner)
		return err
	})
	return t, err
}

// Delete removes a task.
func (s *Tasks) Delete(ctx context.Context, id int64, owner string) error {
	return s.db.inTx(ctx, "delete task", func(tx *sql.Tx) error {
		return execOne(ctx, tx, "DELETE FROM tasks WHERE id = ? AND owner = ?", id, owner)
	})
}

// SetCompleted sets the completion flag. Setting the current value is not
// an error.
func (s *Tasks) SetCompleted(ctx context.Context, id int64, owner string, completed bool) (types.Task, error) {
	flag := 0
	if completed {
		flag = 1
	}
	var t types.Task
	err := s.db.inTx(ctx, "set completed", func(tx *sql.Tx) error {
		if err := execOne(ctx, tx,
			"UPDATE tasks SET completed = ?, updated_at = ? WHERE id = ? AND owner = ?",
			flag, s.db.now(), id, owner); err != nil {
			return err
		}
		var err error
		t, err = getTask(ctx, tx, id, owner)
		return err
	})
	return t, err
}

// execOne runs a statement that must touch exactly one owner-scoped row.
func execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrTaskNotFound
	}
	return nil
}
