// Package store persists experiment scalars in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/flambeai/flambe-go/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	project     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scalars (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	tag         TEXT NOT NULL,
	value       REAL NOT NULL,
	step        INTEGER NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS scalars_run_tag ON scalars(run_id, tag);
`

// Store records runs and their scalars.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInfo describes a recorded run.
type RunInfo struct {
	ID        string
	Project   string
	CreatedAt time.Time
}

// Run is a logging.Sink writing scalars under one run ID.
type Run struct {
	ID    string
	store *Store
}

var _ logging.Sink = (*Run)(nil)

// NewRun registers a run for project and returns a sink bound to it.
func (s *Store) NewRun(ctx context.Context, project string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, project, created_at) VALUES (?, ?, ?)`,
		id, project, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{ID: id, store: s}, nil
}

// LogScalar appends sc to the run.
func (r *Run) LogScalar(ctx context.Context, sc logging.Scalar) error {
	at := sc.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO scalars (run_id, tag, value, step, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, sc.Tag, sc.Value, sc.GlobalStep, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert scalar %q: %w", sc.Tag, err)
	}
	return nil
}

// Runs lists runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, project, created_at FROM runs ORDER BY created_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var info RunInfo
		var created string
		if err := rows.Scan(&info.ID, &info.Project, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if info.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse run time: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Scalars returns the scalars logged under runID in insertion order.
// An empty tag matches every tag.
func (s *Store) Scalars(ctx context.Context, runID, tag string) ([]logging.Scalar, error) {
	query := `SELECT tag, value, step, created_at FROM scalars WHERE run_id = ?`
	args := []any{runID}
	if tag != "" {
		query += ` AND tag = ?`
		args = append(args, tag)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scalars: %w", err)
	}
	defer rows.Close()

	var out []logging.Scalar
	for rows.Next() {
		var sc logging.Scalar
		var created string
		if err := rows.Scan(&sc.Tag, &sc.Value, &sc.GlobalStep, &created); err != nil {
			return nil, fmt.Errorf("scan scalar: %w", err)
		}
		if sc.Time, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse scalar time: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
