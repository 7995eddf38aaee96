// Package store persists tasks and conversation state in SQLite.
//
// The pure-Go modernc driver is used so the binary builds without cgo. All
// access goes through a single connection: SQLite serialises writers anyway,
// and one connection keeps busy errors rare. Transient busy/locked errors
// that still occur are retried with exponential backoff.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tasknerd/internal/logging"
)

// Options configures Open.
type Options struct {
	// BusyTimeout is handed to SQLite's own busy handler.
	BusyTimeout time.Duration
	Retry       RetryPolicy
	// Clock stamps created_at/updated_at. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns a 5s busy timeout and the default retry policy.
func DefaultOptions() Options {
	return Options{
		BusyTimeout: 5 * time.Second,
		Retry:       DefaultRetryPolicy(),
		Clock:       time.Now,
	}
}

// DB owns the SQLite handle and hands out the task and conversation stores.
type DB struct {
	db    *sql.DB
	path  string
	retry RetryPolicy
	clock func() time.Time
}

// Open creates (if needed) and migrates the database at path. ":memory:" is
// accepted for throwaway databases.
func Open(ctx context.Context, path string, opts Options) (*DB, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	def := DefaultOptions()
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = def.BusyTimeout
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = def.Retry
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	logging.Store("Opening task database at %s", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			logging.StoreDebug("Failed to apply %q: %v", p, err)
		}
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db, path: path, retry: opts.Retry, clock: opts.Clock}, nil
}

// Tasks returns the task store.
func (d *DB) Tasks() *Tasks { return &Tasks{db: d} }

// Conversations returns the conversation state store.
func (d *DB) Conversations() *Conversations { return &Conversations{db: d} }

// Traces returns the suggester trace store.
func (d *DB) Traces() *Traces { return &Traces{db: d} }

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Close closes the database.
func (d *DB) Close() error {
	logging.StoreDebug("Closing task database %s", d.path)
	return d.db.Close()
}

func (d *DB) now() string {
	return formatTime(d.clock())
}

// inTx runs fn in a transaction, retrying the whole transaction on busy.
func (d *DB) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return d.retry.Do(ctx, op, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// Stored timestamps are fixed width so TEXT comparison orders them.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
