// Package tasks provides the built-in workflow task kinds: shell
// commands, file edits, tool invocations, graph queries, and
// agent-driven reasoning loops.
package tasks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/dshills/sagaflow-go/workflow"
)

// ShellCommandTask executes an external command.
//
// The command runs to completion under the task's context (so the
// per-task timeout and cancellation apply). A non-zero exit is a
// Failed result, not an error. Files the command is known to create
// can be declared so the task discloses file-deletion compensations;
// read-only commands disclose a Skip compensation.
type ShellCommandTask struct {
	id      workflow.TaskID
	name    string
	deps    []workflow.TaskID
	command string
	args    []string
	dir     string
	env     map[string]string

	// createsFiles lists paths the command creates; rollback deletes
	// them.
	createsFiles []string
}

// NewShellCommandTask creates a task running the given command.
func NewShellCommandTask(id workflow.TaskID, name, command string) *ShellCommandTask {
	return &ShellCommandTask{id: id, name: name, command: command}
}

// WithArgs sets the command arguments.
func (t *ShellCommandTask) WithArgs(args ...string) *ShellCommandTask {
	t.args = args
	return t
}

// WithWorkingDir sets the working directory.
func (t *ShellCommandTask) WithWorkingDir(dir string) *ShellCommandTask {
	t.dir = dir
	return t
}

// WithEnv adds an environment variable.
func (t *ShellCommandTask) WithEnv(key, value string) *ShellCommandTask {
	if t.env == nil {
		t.env = make(map[string]string)
	}
	t.env[key] = value
	return t
}

// CreatesFiles declares files the command creates, so a failure after
// this task rolls them back by deletion.
func (t *ShellCommandTask) CreatesFiles(paths ...string) *ShellCommandTask {
	t.createsFiles = append(t.createsFiles, paths...)
	return t
}

// DependsOn declares dependency hints consumed by the Builder.
func (t *ShellCommandTask) DependsOn(ids ...workflow.TaskID) *ShellCommandTask {
	t.deps = append(t.deps, ids...)
	return t
}

// ID implements workflow.Task.
func (t *ShellCommandTask) ID() workflow.TaskID {
	return t.id
}

// Name implements workflow.Task.
func (t *ShellCommandTask) Name() string {
	return t.name
}

// Dependencies implements workflow.Task.
func (t *ShellCommandTask) Dependencies() []workflow.TaskID {
	return t.deps
}

// Execute implements workflow.Task.
func (t *ShellCommandTask) Execute(ctx context.Context, tc *workflow.TaskContext) (workflow.TaskResult, error) {
	if tc.Cancelled() {
		return workflow.Skipped("cancelled before start"), nil
	}

	cmd := exec.CommandContext(ctx, t.command, t.args...)
	if t.dir != "" {
		cmd.Dir = t.dir
	}
	if len(t.env) > 0 {
		env := os.Environ()
		for k, v := range t.env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	comp := t.compensationForRun()

	if err != nil {
		if ctx.Err() != nil {
			return workflow.TaskResult{}, &workflow.TaskError{
				Message: "command interrupted: " + t.command,
				Code:    "COMMAND_INTERRUPTED",
				TaskID:  t.id,
				Cause:   ctx.Err(),
			}
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			reason := fmt.Sprintf("command %s exited with code %d: %s",
				t.command, exitErr.ExitCode(), stderr.String())
			return workflow.Failed(reason).WithCompensation(comp), nil
		}
		return workflow.TaskResult{}, &workflow.TaskError{
			Message: "failed to start command: " + t.command,
			Code:    "COMMAND_START_FAILED",
			TaskID:  t.id,
			Cause:   err,
		}
	}

	return workflow.Success().WithCompensation(comp), nil
}

// Compensation implements workflow.Task. The per-run compensation is
// disclosed through the result; no stable descriptor is needed.
func (t *ShellCommandTask) Compensation() *workflow.Compensation {
	return nil
}

// compensationForRun builds the undo for this run's side effects:
// delete declared created files, or Skip for read-only commands.
func (t *ShellCommandTask) compensationForRun() *workflow.Compensation {
	if len(t.createsFiles) == 0 {
		return workflow.SkipCompensation("command has no declared side effects")
	}
	if len(t.createsFiles) == 1 {
		return workflow.FileCreationCompensation(t.createsFiles[0])
	}

	paths := append([]string(nil), t.createsFiles...)
	desc := fmt.Sprintf("delete %d created files", len(paths))
	return workflow.UndoCompensation(desc, func(_ *workflow.TaskContext) (workflow.TaskResult, error) {
		for _, path := range paths {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return workflow.Failed(fmt.Sprintf("failed to delete %s: %v", path, err)), nil
			}
		}
		return workflow.Success(), nil
	})
}
