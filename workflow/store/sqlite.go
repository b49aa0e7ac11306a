package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store.
//
// It stores checkpoint records in a single-file database, suitable for
// development and local workflows requiring persistence without a
// database server. WAL mode is enabled so readers don't block on the
// single writer.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteCheckpointsTable = `
CREATE TABLE IF NOT EXISTS workflow_checkpoints (
	key           TEXT PRIMARY KEY,
	checkpoint_id TEXT NOT NULL,
	workflow_id   TEXT NOT NULL,
	sequence      INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	data          BLOB NOT NULL
)`

const sqliteCheckpointsIndex = `
CREATE INDEX IF NOT EXISTS idx_workflow_checkpoints_wf
	ON workflow_checkpoints(workflow_id, sequence)`

// NewSQLiteStore opens (creating if needed) a SQLite store at path.
// Use ":memory:" for an ephemeral database in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure SQLite (%s): %w", pragma, err)
		}
	}

	for _, stmt := range []string{sqliteCheckpointsTable, sqliteCheckpointsIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate SQLite schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte, summary Summary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints (key, checkpoint_id, workflow_id, sequence, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			checkpoint_id = excluded.checkpoint_id,
			workflow_id   = excluded.workflow_id,
			sequence      = excluded.sequence,
			created_at    = excluded.created_at,
			data          = excluded.data`,
		key, summary.ID, summary.WorkflowID, summary.Sequence,
		summary.Timestamp.UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM workflow_checkpoints WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_id, workflow_id, sequence, created_at
		FROM workflow_checkpoints
		WHERE key LIKE ? || '%'
		ORDER BY workflow_id, sequence`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []Summary
	for rows.Next() {
		var sm Summary
		var createdAt string
		if err := rows.Scan(&sm.ID, &sm.WorkflowID, &sm.Sequence, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
			sm.Timestamp = ts
		}
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_checkpoints WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLatest implements Store.
func (s *SQLiteStore) GetLatest(ctx context.Context, workflowID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM workflow_checkpoints
		WHERE workflow_id = ?
		ORDER BY sequence DESC LIMIT 1`, workflowID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return data, nil
}
