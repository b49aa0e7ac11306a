// Package workflow provides a deterministic DAG workflow engine with
// Saga-style compensation, incremental checkpointing, and cooperative
// cancellation.
package workflow

import (
	"context"
	"time"

	"github.com/dshills/sagaflow-go/workflow/audit"
	"github.com/dshills/sagaflow-go/workflow/tool"
)

// TaskID is an opaque identifier for a workflow task.
//
// IDs must be unique within a workflow. TaskID is a string type so it
// can be used directly as a map key and graph node key.
type TaskID string

// String returns the underlying identifier.
func (id TaskID) String() string {
	return string(id)
}

// ResultStatus classifies the outcome of a task execution.
type ResultStatus int

const (
	// StatusSuccess indicates the task completed and committed its work.
	StatusSuccess ResultStatus = iota

	// StatusFailed indicates the task ran but produced a failure.
	// A failed task triggers rollback of its dependents.
	StatusFailed

	// StatusSkipped indicates the task did not run (cancelled, or a
	// dependency failed before it was dispatched).
	StatusSkipped
)

// String returns the status name used in audit records.
func (s ResultStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// TaskResult is the outcome of a task execution.
//
// A task may legitimately return a Failed result without returning an
// error; errors are reserved for unexpected failures (I/O, timeout).
// Tasks with external side effects attach a Compensation so the
// rollback engine can undo them.
type TaskResult struct {
	// Status is the execution outcome.
	Status ResultStatus

	// Reason carries the failure or skip reason. Empty on success.
	Reason string

	// Compensation, if non-nil, is the executable undo for this task's
	// side effects. The executor registers it in the compensation
	// registry whether Status is a success or a failure, so a failure
	// still sees it.
	Compensation *Compensation
}

// Success returns a successful TaskResult.
func Success() TaskResult {
	return TaskResult{Status: StatusSuccess}
}

// Failed returns a failed TaskResult with the given reason.
func Failed(reason string) TaskResult {
	return TaskResult{Status: StatusFailed, Reason: reason}
}

// Skipped returns a skipped TaskResult with the given reason.
func Skipped(reason string) TaskResult {
	return TaskResult{Status: StatusSkipped, Reason: reason}
}

// WithCompensation attaches an executable compensation to the result.
func (r TaskResult) WithCompensation(comp *Compensation) TaskResult {
	r.Compensation = comp
	return r
}

// Task is a unit of work in a workflow.
//
// The contract is four operations: identity, declared dependencies,
// execution, and an optional compensation descriptor. Dependencies
// returned by Dependencies are declarative hints consumed by the
// Builder; the authoritative edges live in the Workflow DAG.
//
// Execute receives a context for cancellation and deadlines plus a
// TaskContext carrying execution metadata and collaborator handles.
// Well-behaved tasks poll ctx (or the TaskContext cancellation token)
// in tight loops and return promptly when cancelled.
type Task interface {
	// ID returns the unique task identifier.
	ID() TaskID

	// Name returns a human-readable task name for audit records.
	Name() string

	// Dependencies returns the task IDs this task depends on.
	Dependencies() []TaskID

	// Execute runs the task. It returns a TaskResult on normal
	// completion (including a Failed result) or an error for
	// unexpected failures.
	Execute(ctx context.Context, tc *TaskContext) (TaskResult, error)

	// Compensation returns the task's stable compensation descriptor,
	// or nil if the task discloses side effects per-run via
	// TaskResult.WithCompensation (or has none).
	Compensation() *Compensation
}

// TaskContext carries execution metadata and collaborator handles into
// a task's Execute call.
//
// All fields are optional; tasks must not assume presence. The context
// is cheaply cloneable — the executor clones its configured template
// once per task dispatch.
type TaskContext struct {
	// WorkflowID identifies the executing workflow.
	WorkflowID string

	// TaskID identifies the executing task.
	TaskID TaskID

	// Cancellation is the task-scoped cancellation token, if the
	// executor was configured with a cancellation source.
	Cancellation *Token

	// TaskTimeout is the per-task timeout, if configured. The executor
	// already enforces it; tasks may use it to budget internal work.
	TaskTimeout time.Duration

	// Tools is the external tool registry handle, if attached.
	Tools *tool.Registry

	// Audit is the audit log handle, if attached. The executor records
	// the lifecycle events; ToolTask records its tool_fallback events
	// through this handle.
	Audit *audit.Log
}

// NewTaskContext creates a context for the given workflow and task.
func NewTaskContext(workflowID string, taskID TaskID) *TaskContext {
	return &TaskContext{WorkflowID: workflowID, TaskID: taskID}
}

// Clone returns a shallow copy of the context. Handles are shared;
// scalar fields are copied.
func (tc *TaskContext) Clone() *TaskContext {
	if tc == nil {
		return nil
	}
	cp := *tc
	return &cp
}

// WithCancellation sets the cancellation token.
func (tc *TaskContext) WithCancellation(token *Token) *TaskContext {
	tc.Cancellation = token
	return tc
}

// WithTaskTimeout sets the per-task timeout.
func (tc *TaskContext) WithTaskTimeout(d time.Duration) *TaskContext {
	tc.TaskTimeout = d
	return tc
}

// WithTools sets the tool registry handle.
func (tc *TaskContext) WithTools(r *tool.Registry) *TaskContext {
	tc.Tools = r
	return tc
}

// WithAudit sets the audit log handle.
func (tc *TaskContext) WithAudit(log *audit.Log) *TaskContext {
	tc.Audit = log
	return tc
}

// Cancelled reports whether the context's cancellation token is set
// and has fired.
func (tc *TaskContext) Cancelled() bool {
	return tc != nil && tc.Cancellation != nil && tc.Cancellation.IsCancelled()
}

// TaskError represents an unexpected task failure.
//
// It mirrors the structured error shape used across the module: a
// human-readable message, a machine-readable code, and an optional
// underlying cause.
type TaskError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code (e.g. "TASK_TIMEOUT").
	Code string

	// TaskID identifies the task that produced the error.
	TaskID TaskID

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.TaskID != "" {
		return "task " + string(e.TaskID) + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TaskError) Unwrap() error {
	return e.Cause
}
