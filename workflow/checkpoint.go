package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/sagaflow-go/workflow/store"
)

// checkpointKeyPrefix namespaces workflow checkpoints in the storage
// backend, keeping them disjoint from any sibling subsystem (e.g. a
// reasoning engine's debugging checkpoints) sharing the backend.
const checkpointKeyPrefix = "workflow:"

// Checkpoint is an incremental snapshot of executor state.
//
// Checkpoints are append-only from the executor's perspective and
// pruned only by explicit delete. Sequence numbers are strictly
// monotonically increasing per workflow. The checksum is SHA-256 over
// the canonical serialization of every other field, in persisted field
// order, and must round-trip-validate on load.
type Checkpoint struct {
	// ID is the checkpoint UUID.
	ID string `json:"id"`

	// WorkflowID is the owning workflow.
	WorkflowID string `json:"workflow_id"`

	// Sequence orders checkpoints within a workflow.
	Sequence uint64 `json:"sequence"`

	// Timestamp is the UTC creation time.
	Timestamp time.Time `json:"timestamp"`

	// CompletedTasks lists successfully completed task IDs.
	CompletedTasks []TaskID `json:"completed_tasks"`

	// FailedTasks lists failed task IDs.
	FailedTasks []TaskID `json:"failed_tasks"`

	// CurrentPosition is the index into the execution order at which
	// execution resumes.
	CurrentPosition int `json:"current_position"`

	// TotalTasks is the workflow's task count.
	TotalTasks int `json:"total_tasks"`

	// Checksum is the hex SHA-256 over the canonical serialization of
	// the preceding fields.
	Checksum string `json:"checksum"`
}

// checkpointBody mirrors Checkpoint without the checksum; marshaling
// it yields the canonical byte form the checksum covers. Field order
// matters and matches the persisted shape.
type checkpointBody struct {
	ID              string    `json:"id"`
	WorkflowID      string    `json:"workflow_id"`
	Sequence        uint64    `json:"sequence"`
	Timestamp       time.Time `json:"timestamp"`
	CompletedTasks  []TaskID  `json:"completed_tasks"`
	FailedTasks     []TaskID  `json:"failed_tasks"`
	CurrentPosition int       `json:"current_position"`
	TotalTasks      int       `json:"total_tasks"`
}

// NewCheckpoint builds a checkpoint from executor state and stamps its
// checksum.
func NewCheckpoint(workflowID string, sequence uint64, completed, failed []TaskID, position, total int) *Checkpoint {
	if completed == nil {
		completed = []TaskID{}
	}
	if failed == nil {
		failed = []TaskID{}
	}
	cp := &Checkpoint{
		ID:              uuid.NewString(),
		WorkflowID:      workflowID,
		Sequence:        sequence,
		Timestamp:       time.Now().UTC(),
		CompletedTasks:  completed,
		FailedTasks:     failed,
		CurrentPosition: position,
		TotalTasks:      total,
	}
	cp.Checksum = cp.ComputeChecksum()
	return cp
}

// ComputeChecksum returns the hex SHA-256 of the checkpoint's
// canonical serialization (all fields except the checksum, in
// persisted order).
func (c *Checkpoint) ComputeChecksum() string {
	body := checkpointBody{
		ID:              c.ID,
		WorkflowID:      c.WorkflowID,
		Sequence:        c.Sequence,
		Timestamp:       c.Timestamp,
		CompletedTasks:  c.CompletedTasks,
		FailedTasks:     c.FailedTasks,
		CurrentPosition: c.CurrentPosition,
		TotalTasks:      c.TotalTasks,
	}
	// Marshaling a struct of scalars and slices cannot fail.
	data, _ := json.Marshal(body)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate recomputes the checksum and compares it against the stored
// one. Returns CorruptedCheckpointError on mismatch.
func (c *Checkpoint) Validate() error {
	expected := c.ComputeChecksum()
	if c.Checksum != expected {
		return &CorruptedCheckpointError{Expected: expected, Got: c.Checksum}
	}
	return nil
}

// key returns the namespaced storage key.
func (c *Checkpoint) key() string {
	return checkpointKeyPrefix + c.ID
}

// CheckpointService persists and retrieves checkpoints through a
// storage backend.
//
// The service validates checksums on both save and load, tracks the
// highest sequence per workflow so callers can allocate the next one,
// and namespaces every key with "workflow:".
type CheckpointService struct {
	st store.Store

	mu   sync.Mutex
	seqs map[string]uint64 // workflowID -> highest sequence observed
}

// NewCheckpointService creates a service over the given backend.
func NewCheckpointService(st store.Store) *CheckpointService {
	return &CheckpointService{
		st:   st,
		seqs: make(map[string]uint64),
	}
}

// Save validates and persists a checkpoint. An invalid checksum is
// rejected before anything is written.
func (s *CheckpointService) Save(ctx context.Context, cp *Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return &StorageError{Op: "put", Cause: err}
	}

	summary := store.Summary{
		ID:         cp.ID,
		WorkflowID: cp.WorkflowID,
		Sequence:   cp.Sequence,
		Timestamp:  cp.Timestamp,
	}
	if err := s.st.Put(ctx, cp.key(), data, summary); err != nil {
		return &StorageError{Op: "put", Cause: err}
	}

	s.mu.Lock()
	if cp.Sequence > s.seqs[cp.WorkflowID] {
		s.seqs[cp.WorkflowID] = cp.Sequence
	}
	s.mu.Unlock()
	return nil
}

// Load retrieves a checkpoint by ID and verifies its checksum.
func (s *CheckpointService) Load(ctx context.Context, id string) (*Checkpoint, error) {
	data, err := s.st.Get(ctx, checkpointKeyPrefix+id)
	if err != nil {
		return nil, &StorageError{Op: "get", Cause: err}
	}
	return s.decode(data)
}

// Latest retrieves the checkpoint with the highest sequence for a
// workflow. Returns store.ErrNotFound (wrapped) when none exist.
func (s *CheckpointService) Latest(ctx context.Context, workflowID string) (*Checkpoint, error) {
	data, err := s.st.GetLatest(ctx, workflowID)
	if err != nil {
		return nil, &StorageError{Op: "get", Cause: err}
	}
	return s.decode(data)
}

// List returns checkpoint summaries for a workflow, sorted by
// sequence ascending.
func (s *CheckpointService) List(ctx context.Context, workflowID string) ([]store.Summary, error) {
	all, err := s.st.List(ctx, checkpointKeyPrefix)
	if err != nil {
		return nil, &StorageError{Op: "list", Cause: err}
	}
	var summaries []store.Summary
	for _, sm := range all {
		if sm.WorkflowID == workflowID {
			summaries = append(summaries, sm)
		}
	}
	return summaries, nil
}

// Delete removes a checkpoint by ID.
func (s *CheckpointService) Delete(ctx context.Context, id string) error {
	if err := s.st.Delete(ctx, checkpointKeyPrefix+id); err != nil {
		return &StorageError{Op: "delete", Cause: err}
	}
	return nil
}

// NextSequence allocates the next checkpoint sequence for a workflow:
// max(existing sequences) + 1, so sequences stay strictly monotone
// across executor restarts.
func (s *CheckpointService) NextSequence(ctx context.Context, workflowID string) (uint64, error) {
	s.mu.Lock()
	if seq, ok := s.seqs[workflowID]; ok {
		s.mu.Unlock()
		return seq + 1, nil
	}
	s.mu.Unlock()

	summaries, err := s.List(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	var highest uint64
	for _, sm := range summaries {
		if sm.Sequence > highest {
			highest = sm.Sequence
		}
	}

	s.mu.Lock()
	if highest > s.seqs[workflowID] {
		s.seqs[workflowID] = highest
	}
	s.mu.Unlock()
	return highest + 1, nil
}

func (s *CheckpointService) decode(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &StorageError{Op: "get", Cause: fmt.Errorf("failed to decode checkpoint: %w", err)}
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return &cp, nil
}
