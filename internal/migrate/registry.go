package migrate

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Registry provides read access to migration definition statuses and
// durable storage for the import run history. It sits on the same
// SQLite database the CMS tracks migration state in.
type Registry struct {
	db *sql.DB
}

// OpenRegistry creates or opens the registry database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func OpenRegistry(path string) (*Registry, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to registry: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close closes the database connection.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// GroupDefinitions returns every migration definition tagged with the
// group, ordered by id for deterministic iteration.
func (r *Registry) GroupDefinitions(ctx context.Context, group string) ([]Definition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_name, status, updated_at
		FROM migrations
		WHERE group_name = ?
		ORDER BY id
	`, group)
	if err != nil {
		return nil, fmt.Errorf("query group %q: %w", group, err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var (
			def       Definition
			code      string
			updatedAt string
		)
		if err := rows.Scan(&def.ID, &def.Group, &code, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		if def.Status, err = ParseStatus(code); err != nil {
			return nil, fmt.Errorf("definition %q: %w", def.ID, err)
		}
		if def.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("definition %q: %w", def.ID, err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query group %q: %w", group, err)
	}

	return defs, nil
}

// UpsertDefinition inserts or updates a migration definition row.
// Used by operational tooling and tests; in production the CMS owns
// these rows.
func (r *Registry) UpsertDefinition(ctx context.Context, def Definition) error {
	updatedAt := def.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO migrations (id, group_name, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_name = excluded.group_name,
			status     = excluded.status,
			updated_at = excluded.updated_at
	`, def.ID, def.Group, def.Status.Code(), formatTime(updatedAt))
	if err != nil {
		return fmt.Errorf("upsert definition %q: %w", def.ID, err)
	}
	return nil
}

// RecordRun inserts an import run record.
// Uses ON CONFLICT DO NOTHING for idempotency - duplicate run tokens are
// silently ignored.
func (r *Registry) RecordRun(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_runs (token, batch, outcome, files, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		run.Token,
		run.Batch,
		run.Outcome,
		run.Files,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record run %q: %w", run.Token, err)
	}
	return nil
}

// RecentRuns returns the most recent import runs, newest first, capped
// at limit.
func (r *Registry) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token, batch, outcome, files, started_at, finished_at
		FROM import_runs
		ORDER BY started_at DESC, token DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			startedAt  string
			finishedAt string
		)
		if err := rows.Scan(&run.Token, &run.Batch, &run.Outcome, &run.Files, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("run %q: %w", run.Token, err)
		}
		if run.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, fmt.Errorf("run %q: %w", run.Token, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	return runs, nil
}

// Timestamps are stored as RFC 3339 UTC strings so the rows stay
// readable with plain sqlite3 tooling.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
