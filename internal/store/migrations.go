package store

import (
	"context"
	"database/sql"
	"fmt"

	"tasknerd/internal/logging"
)

// Schema versions:
// v1: tasks and conversations tables
// v2: conversations.candidates column for disambiguation lists
// v3: owner/completed index on tasks
// v4: suggestion_traces table
const CurrentSchemaVersion = 4

// Migration upgrades the schema by one version.
type Migration struct {
	Version     int
	Description string
	Apply       func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []Migration{
	{1, "create tasks and conversations", migrateV1},
	{2, "add conversations.candidates", migrateV2},
	{3, "index tasks by owner", migrateV3},
	{4, "create suggestion_traces", migrateV4},
}

// RunMigrations brings db up to CurrentSchemaVersion. Each step runs in its
// own transaction together with its schema_versions row.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_versions: %w", err)
	}

	current, err := GetSchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", current, CurrentSchemaVersion)
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logging.StoreDebug("Applying migration v%d: %s", m.Version, m.Description)
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration v%d: %w", m.Version, err)
		}
		if err := m.Apply(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)", m.Version, m.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: record version: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration v%d: commit: %w", m.Version, err)
		}
		applied++
	}

	if applied > 0 {
		logging.Store("Schema migrations complete: v%d -> v%d (%d applied)", current, CurrentSchemaVersion, applied)
	}
	return nil
}

// GetSchemaVersion returns the highest applied version, 0 for a fresh database.
func GetSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_versions").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(v.Int64), nil
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT 'medium',
			due_date TEXT,
			completed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			current_intent TEXT NOT NULL DEFAULT 'NEUTRAL',
			state_data TEXT NOT NULL DEFAULT '[]',
			target_task_id INTEGER,
			pending_confirmation INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func migrateV2(ctx context.Context, tx *sql.Tx) error {
	ok, err := columnExists(ctx, tx, "conversations", "candidates")
	if err != nil || ok {
		return err
	}
	_, err = tx.ExecContext(ctx, "ALTER TABLE conversations ADD COLUMN candidates TEXT NOT NULL DEFAULT '[]'")
	return err
}

func migrateV3(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner, completed)")
	return err
}

func migrateV4(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS suggestion_traces (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL,
			user_prompt TEXT NOT NULL,
			response TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_traces_created ON suggestion_traces(created_at)",
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(ctx context.Context, q queryer, table, column string) (bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// tableExists checks if a table exists in the database.
func tableExists(ctx context.Context, q queryer, table string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	return count > 0, err
}
