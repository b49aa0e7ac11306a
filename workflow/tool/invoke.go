package tool

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// Invoke runs a registered tool to completion and captures its output.
//
// The returned InvocationResult has no guard: the process has already
// exited. A non-zero exit code is not an error — it is reported in the
// Result so callers can decide. Errors are reserved for unknown tools
// and failures to start the process.
//
// When a fallback handler is configured it is consulted for unknown
// tools and for start failures; a handled fallback is returned as the
// invocation result.
func (r *Registry) Invoke(ctx context.Context, inv Invocation) (*InvocationResult, error) {
	t, ok := r.Get(inv.ToolName)
	if !ok {
		return r.tryFallback(ctx, inv, &Error{
			Message: "tool not registered: " + inv.ToolName,
			Code:    "TOOL_NOT_FOUND",
			Cause:   ErrToolNotFound,
		})
	}

	cmd := r.command(ctx, t, inv)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	switch {
	case err == nil:
		result.ExitCode = 0
		result.Success = true
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// The process never ran.
			return r.tryFallback(ctx, inv, &Error{
				Message: "failed to start tool " + inv.ToolName,
				Code:    "TOOL_START_FAILED",
				Cause:   err,
			})
		}
	}
	return &InvocationResult{Result: result}, nil
}

// Start spawns a registered tool without waiting for it, returning a
// ProcessGuard that owns the process. Output is not captured.
//
// The caller releases the guard when the process is meant to outlive
// the task, or hands it to the compensation registry so rollback
// terminates it.
func (r *Registry) Start(ctx context.Context, inv Invocation) (*InvocationResult, error) {
	t, ok := r.Get(inv.ToolName)
	if !ok {
		return nil, &Error{
			Message: "tool not registered: " + inv.ToolName,
			Code:    "TOOL_NOT_FOUND",
			Cause:   ErrToolNotFound,
		}
	}

	cmd := r.command(ctx, t, inv)
	if err := cmd.Start(); err != nil {
		return nil, &Error{
			Message: "failed to start tool " + inv.ToolName,
			Code:    "TOOL_START_FAILED",
			Cause:   err,
		}
	}

	// Reap the process when it exits so it never zombies.
	go func() { _ = cmd.Wait() }()

	return &InvocationResult{
		Result: Result{Success: true},
		Guard:  NewProcessGuard(cmd.Process, t.Name),
	}, nil
}

func (r *Registry) command(ctx context.Context, t Tool, inv Invocation) *exec.Cmd {
	args := make([]string, 0, len(t.DefaultArgs)+len(inv.Args))
	args = append(args, t.DefaultArgs...)
	args = append(args, inv.Args...)

	cmd := exec.CommandContext(ctx, t.Executable, args...)
	if inv.WorkingDir != "" {
		cmd.Dir = inv.WorkingDir
	}
	if len(inv.Env) > 0 {
		env := os.Environ()
		for k, v := range inv.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	return cmd
}

func (r *Registry) tryFallback(ctx context.Context, inv Invocation, cause *Error) (*InvocationResult, error) {
	r.mu.RLock()
	fb := r.fallback
	r.mu.RUnlock()

	if fb == nil {
		return nil, cause
	}
	res, err := fb.Handle(ctx, r, inv, cause)
	if err != nil {
		return nil, cause
	}
	return &InvocationResult{Result: *res}, nil
}
