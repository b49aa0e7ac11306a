package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL-backed Store for shared, durable checkpoint
// persistence.
//
// A typical DSN is "user:pass@tcp(host:3306)/dbname"; created_at is
// stored as RFC 3339 text, so no parseTime setting is needed. The
// schema is created on first use.
type MySQLStore struct {
	db *sql.DB
}

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS workflow_checkpoints (
	` + "`key`" + `       VARCHAR(255) PRIMARY KEY,
	checkpoint_id VARCHAR(64)  NOT NULL,
	workflow_id   VARCHAR(255) NOT NULL,
	sequence      BIGINT UNSIGNED NOT NULL,
	created_at    VARCHAR(64)  NOT NULL,
	data          LONGBLOB     NOT NULL,
	INDEX idx_workflow_checkpoints_wf (workflow_id, sequence)
) ENGINE=InnoDB`

// NewMySQLStore opens a MySQL store with the given DSN and migrates
// the schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach MySQL: %w", err)
	}
	if _, err := db.ExecContext(ctx, mysqlSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate MySQL schema: %w", err)
	}

	return &MySQLStore{db: db}, nil
}

// Close releases the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// Put implements Store.
func (s *MySQLStore) Put(ctx context.Context, key string, data []byte, summary Summary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints
			(`+"`key`"+`, checkpoint_id, workflow_id, sequence, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			checkpoint_id = VALUES(checkpoint_id),
			workflow_id   = VALUES(workflow_id),
			sequence      = VALUES(sequence),
			created_at    = VALUES(created_at),
			data          = VALUES(data)`,
		key, summary.ID, summary.WorkflowID, summary.Sequence,
		summary.Timestamp.UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM workflow_checkpoints WHERE `key` = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *MySQLStore) List(ctx context.Context, prefix string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_id, workflow_id, sequence, created_at
		FROM workflow_checkpoints
		WHERE `+"`key`"+` LIKE CONCAT(?, '%')
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
func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM workflow_checkpoints WHERE `key` = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLatest implements Store.
func (s *MySQLStore) GetLatest(ctx context.Context, workflowID string) ([]byte, error) {
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
