package tasks

import (
	"context"
	"fmt"

	"github.com/dshills/sagaflow-go/workflow"
	"github.com/dshills/sagaflow-go/workflow/audit"
	"github.com/dshills/sagaflow-go/workflow/tool"
)

// ToolTask invokes a registered external tool through the registry
// carried in the task context.
//
// A fallback handler can recover invocations that cannot run; a
// recovered invocation records a ToolFallback audit event. A detached
// invocation that spawns its process discloses the process guard as a
// process-termination compensation so rollback kills the process.
type ToolTask struct {
	id         workflow.TaskID
	name       string
	deps       []workflow.TaskID
	invocation tool.Invocation
	fallback   tool.FallbackHandler
	detach     bool
}

// NewToolTask creates a task invoking the named registered tool.
func NewToolTask(id workflow.TaskID, name, toolName string) *ToolTask {
	return &ToolTask{
		id:         id,
		name:       name,
		invocation: tool.NewInvocation(toolName),
	}
}

// WithArgs sets the invocation arguments.
func (t *ToolTask) WithArgs(args ...string) *ToolTask {
	t.invocation = t.invocation.WithArgs(args...)
	return t
}

// WithWorkingDir sets the invocation working directory.
func (t *ToolTask) WithWorkingDir(dir string) *ToolTask {
	t.invocation = t.invocation.WithWorkingDir(dir)
	return t
}

// WithEnv adds an invocation environment variable.
func (t *ToolTask) WithEnv(key, value string) *ToolTask {
	t.invocation = t.invocation.WithEnv(key, value)
	return t
}

// WithFallback sets a fallback handler consulted when the invocation
// cannot run.
func (t *ToolTask) WithFallback(h tool.FallbackHandler) *ToolTask {
	t.fallback = h
	return t
}

// Detached makes the task spawn the tool without waiting. The process
// guard is disclosed as compensation: rollback terminates the process.
// The task does not release the guard; on success it stays live until
// the caller releases it.
func (t *ToolTask) Detached() *ToolTask {
	t.detach = true
	return t
}

// DependsOn declares dependency hints consumed by the Builder.
func (t *ToolTask) DependsOn(ids ...workflow.TaskID) *ToolTask {
	t.deps = append(t.deps, ids...)
	return t
}

// ID implements workflow.Task.
func (t *ToolTask) ID() workflow.TaskID {
	return t.id
}

// Name implements workflow.Task.
func (t *ToolTask) Name() string {
	return t.name
}

// Dependencies implements workflow.Task.
func (t *ToolTask) Dependencies() []workflow.TaskID {
	return t.deps
}

// Execute implements workflow.Task.
func (t *ToolTask) Execute(ctx context.Context, tc *workflow.TaskContext) (workflow.TaskResult, error) {
	if tc.Tools == nil {
		return workflow.TaskResult{}, &workflow.TaskError{
			Message: "no tool registry in task context",
			Code:    "TOOL_REGISTRY_MISSING",
			TaskID:  t.id,
		}
	}
	if tc.Cancelled() {
		return workflow.Skipped("cancelled before start"), nil
	}

	if t.detach {
		return t.executeDetached(ctx, tc)
	}

	res, err := tc.Tools.Invoke(ctx, t.invocation)
	if err != nil {
		if t.fallback != nil {
			if sub, fbErr := t.fallback.Handle(ctx, tc.Tools, t.invocation, err); fbErr == nil {
				t.recordFallback(tc)
				return t.resultOf(*sub), nil
			}
		}
		return workflow.TaskResult{}, &workflow.TaskError{
			Message: "tool invocation failed: " + t.invocation.ToolName,
			Code:    "TOOL_INVOCATION_FAILED",
			TaskID:  t.id,
			Cause:   err,
		}
	}
	return t.resultOf(res.Result), nil
}

func (t *ToolTask) executeDetached(ctx context.Context, tc *workflow.TaskContext) (workflow.TaskResult, error) {
	res, err := tc.Tools.Start(ctx, t.invocation)
	if err != nil {
		return workflow.TaskResult{}, &workflow.TaskError{
			Message: "tool spawn failed: " + t.invocation.ToolName,
			Code:    "TOOL_SPAWN_FAILED",
			TaskID:  t.id,
			Cause:   err,
		}
	}
	// The guard stays live until rollback terminates it or the caller
	// releases it after the workflow completes.
	return workflow.Success().
		WithCompensation(workflow.ProcessSpawnCompensation(res.Guard)), nil
}

// Compensation implements workflow.Task. Completed invocations are
// disclosed per-run; a non-detached tool run has already exited.
func (t *ToolTask) Compensation() *workflow.Compensation {
	return nil
}

func (t *ToolTask) resultOf(res tool.Result) workflow.TaskResult {
	if !res.Success {
		reason := fmt.Sprintf("tool %s exited with code %d: %s",
			t.invocation.ToolName, res.ExitCode, res.Stderr)
		return workflow.Failed(reason)
	}
	return workflow.Success().
		WithCompensation(workflow.SkipCompensation("tool run completed: " + t.invocation.ToolName))
}

func (t *ToolTask) recordFallback(tc *workflow.TaskContext) {
	if tc.Audit == nil || t.fallback == nil {
		return
	}
	_ = tc.Audit.Record(audit.ToolFallback(
		tc.WorkflowID, string(t.id), t.invocation.ToolName, t.fallback.Name()))
}
