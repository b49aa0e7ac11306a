package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Structural errors are raised by the DAG and are fatal to a run.

// ErrEmptyWorkflow is returned when an execution order is requested for
// a workflow with no tasks.
var ErrEmptyWorkflow = errors.New("workflow cannot be empty")

// TaskNotFoundError is returned when an operation references a task ID
// that does not exist in the workflow.
type TaskNotFoundError struct {
	ID TaskID
}

func (e *TaskNotFoundError) Error() string {
	return "task not found: " + string(e.ID)
}

// MissingDependencyError is returned by the Builder when a task
// declares a dependency on a task that was never added.
type MissingDependencyError struct {
	ID TaskID
}

func (e *MissingDependencyError) Error() string {
	return "missing dependency: " + string(e.ID)
}

// DuplicateTaskError is returned when a task ID is added twice.
type DuplicateTaskError struct {
	ID TaskID
}

func (e *DuplicateTaskError) Error() string {
	return "duplicate task ID: " + string(e.ID)
}

// CycleError is returned when an edge insertion would close a cycle.
// The offending edge is removed before the error is returned, so the
// graph remains acyclic.
type CycleError struct {
	// Path names the tasks on the cycle. It always contains at least
	// the two edge endpoints; when a back-path is cheaply reachable it
	// contains the full cycle.
	Path []TaskID
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.Path))
	for i, id := range e.Path {
		ids[i] = string(id)
	}
	return "cycle detected in workflow involving tasks: [" + strings.Join(ids, " ") + "]"
}

// Execution errors trigger rollback.

// ExecutionError represents a task execution failure observed by the
// executor (task-reported failure, timeout, or internal error).
type ExecutionError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code. One of
	// "TASK_EXECUTION_FAILED", "TASK_TIMEOUT", "TASK_SKIPPED",
	// "DEPENDENCY_FAILED", "IO_ERROR".
	Code string

	// TaskID identifies the failing task.
	TaskID TaskID

	// Cause is the underlying error, if any.
	Cause error
}

func (e *ExecutionError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("task %s: %s", e.TaskID, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Rollback errors are recorded per-task and never abort the rollback
// loop.

// CompensationError records a single compensation failure during
// rollback.
type CompensationError struct {
	// TaskID identifies the task whose compensation failed.
	TaskID TaskID

	// Reason describes the failure.
	Reason string
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation failed for task %s: %s", e.TaskID, e.Reason)
}

// Checkpoint errors.

// ErrChecksumMismatch is wrapped by CorruptedCheckpointError and usable
// with errors.Is.
var ErrChecksumMismatch = errors.New("checkpoint checksum mismatch")

// CorruptedCheckpointError is returned when a checkpoint's stored
// checksum does not match the checksum recomputed from its fields.
type CorruptedCheckpointError struct {
	// Expected is the checksum recomputed from the checkpoint fields.
	Expected string

	// Got is the checksum stored with the checkpoint.
	Got string
}

func (e *CorruptedCheckpointError) Error() string {
	return fmt.Sprintf("checkpoint corrupted: expected checksum %s, got %s", e.Expected, e.Got)
}

// Unwrap lets callers test with errors.Is(err, ErrChecksumMismatch).
func (e *CorruptedCheckpointError) Unwrap() error {
	return ErrChecksumMismatch
}

// StorageError wraps a checkpoint backend failure.
type StorageError struct {
	// Op names the failing operation ("put", "get", "list", "delete").
	Op string

	// Cause is the backend error.
	Cause error
}

func (e *StorageError) Error() string {
	return "checkpoint storage " + e.Op + " failed: " + e.Cause.Error()
}

// Unwrap returns the backend error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}
