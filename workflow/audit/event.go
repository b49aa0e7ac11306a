// Package audit provides an append-only audit event stream for
// workflow transactions, persisted as one JSON file per transaction.
package audit

import "time"

// EventType tags an audit event variant.
type EventType string

// Audit event variants recorded across a workflow transaction.
const (
	EventWorkflowStarted    EventType = "workflow_started"
	EventTaskStarted        EventType = "task_started"
	EventTaskCompleted      EventType = "task_completed"
	EventTaskFailed         EventType = "task_failed"
	EventTaskRolledBack     EventType = "task_rolled_back"
	EventWorkflowCompleted  EventType = "workflow_completed"
	EventWorkflowRolledBack EventType = "workflow_rolled_back"
	EventToolFallback       EventType = "tool_fallback"
)

// Event is one audit record.
//
// The struct is flat: every variant serializes every field, even when
// empty, so downstream tooling can parse records without per-variant
// schemas. Timestamps are UTC; encoding/json renders them ISO-8601.
type Event struct {
	// Type tags the variant.
	Type EventType `json:"type"`

	// Timestamp is the UTC event time.
	Timestamp time.Time `json:"timestamp"`

	// WorkflowID identifies the workflow transaction.
	WorkflowID string `json:"workflow_id"`

	// TaskID identifies the task for task-level events.
	TaskID string `json:"task_id"`

	// TaskName is the human-readable task name for task-level events.
	TaskName string `json:"task_name"`

	// Result describes a completed task's outcome.
	Result string `json:"result"`

	// Error carries a failed task's error text.
	Error string `json:"error"`

	// Reason carries the rollback reason for workflow_rolled_back.
	Reason string `json:"reason"`

	// Compensation describes the compensation applied for
	// task_rolled_back.
	Compensation string `json:"compensation"`

	// TaskCount is the total task count for workflow_started and
	// workflow_completed.
	TaskCount int `json:"task_count"`

	// CompletedTasks is the completed count for workflow_completed.
	CompletedTasks int `json:"completed_tasks"`

	// RolledBackTasks lists compensated tasks for
	// workflow_rolled_back. Never nil.
	RolledBackTasks []string `json:"rolled_back_tasks"`

	// ToolName names the failing tool for tool_fallback.
	ToolName string `json:"tool_name"`

	// FallbackHandler names the handler that recovered the invocation.
	FallbackHandler string `json:"fallback_handler"`
}

// newEvent builds the common envelope for a variant.
func newEvent(t EventType, workflowID string) Event {
	return Event{
		Type:            t,
		Timestamp:       time.Now().UTC(),
		WorkflowID:      workflowID,
		RolledBackTasks: []string{},
	}
}

// WorkflowStarted records the start of a workflow run.
func WorkflowStarted(workflowID string, taskCount int) Event {
	e := newEvent(EventWorkflowStarted, workflowID)
	e.TaskCount = taskCount
	return e
}

// TaskStarted records a task dispatch.
func TaskStarted(workflowID, taskID, taskName string) Event {
	e := newEvent(EventTaskStarted, workflowID)
	e.TaskID = taskID
	e.TaskName = taskName
	return e
}

// TaskCompleted records a successful task.
func TaskCompleted(workflowID, taskID, taskName, result string) Event {
	e := newEvent(EventTaskCompleted, workflowID)
	e.TaskID = taskID
	e.TaskName = taskName
	e.Result = result
	return e
}

// TaskFailed records a failed task.
func TaskFailed(workflowID, taskID, taskName, errText string) Event {
	e := newEvent(EventTaskFailed, workflowID)
	e.TaskID = taskID
	e.TaskName = taskName
	e.Error = errText
	return e
}

// TaskRolledBack records one compensated task during rollback.
func TaskRolledBack(workflowID, taskID, compensation string) Event {
	e := newEvent(EventTaskRolledBack, workflowID)
	e.TaskID = taskID
	e.Compensation = compensation
	return e
}

// WorkflowCompleted records a successful workflow run.
func WorkflowCompleted(workflowID string, totalTasks, completedTasks int) Event {
	e := newEvent(EventWorkflowCompleted, workflowID)
	e.TaskCount = totalTasks
	e.CompletedTasks = completedTasks
	return e
}

// WorkflowRolledBack records the end of a rollback pass.
func WorkflowRolledBack(workflowID, reason string, rolledBack []string) Event {
	e := newEvent(EventWorkflowRolledBack, workflowID)
	e.Reason = reason
	if rolledBack != nil {
		e.RolledBackTasks = rolledBack
	}
	return e
}

// ToolFallback records a tool invocation recovered by a fallback
// handler.
func ToolFallback(workflowID, taskID, toolName, handler string) Event {
	e := newEvent(EventToolFallback, workflowID)
	e.TaskID = taskID
	e.ToolName = toolName
	e.FallbackHandler = handler
	return e
}
