// Package store provides persistence backends for workflow
// checkpoints.
//
// Backends store opaque checkpoint records (serialized by the
// checkpoint service) under string keys, and additionally index each
// record by workflow ID and sequence so the latest checkpoint of a
// workflow can be retrieved without scanning.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested key or workflow does not
// exist.
var ErrNotFound = errors.New("not found")

// Summary is the index metadata stored alongside a checkpoint record.
type Summary struct {
	// ID is the checkpoint identifier.
	ID string `json:"id"`

	// WorkflowID is the owning workflow.
	WorkflowID string `json:"workflow_id"`

	// Sequence is the per-workflow checkpoint sequence number.
	Sequence uint64 `json:"sequence"`

	// Timestamp records checkpoint creation time (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// Store is the backend contract for checkpoint persistence.
//
// Implementations may be in-memory (testing, single-process), embedded
// relational (SQLite), or a database server (MySQL). Reads may be
// concurrent; a Put must update the workflow's latest pointer under an
// exclusive lock so the pointer stays monotone.
type Store interface {
	// Put persists a record under key with its index metadata,
	// replacing any existing record with the same key.
	Put(ctx context.Context, key string, data []byte, summary Summary) error

	// Get retrieves the record stored under key. Returns ErrNotFound
	// if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the summaries of all records whose key starts with
	// prefix, ordered by (workflow ID, sequence) ascending. An empty
	// result is not an error.
	List(ctx context.Context, prefix string) ([]Summary, error)

	// Delete removes the record stored under key. Deleting a missing
	// key returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// GetLatest retrieves the record with the highest sequence for a
	// workflow. Returns ErrNotFound if the workflow has no records.
	GetLatest(ctx context.Context, workflowID string) ([]byte, error)
}
