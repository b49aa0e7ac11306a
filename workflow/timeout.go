package workflow

import (
	"context"
	"fmt"
	"time"
)

// taskTimeout determines the effective timeout for a task based on
// precedence: per-context override first, then the executor default.
// Zero means no timeout (unlimited execution).
func taskTimeout(tc *TaskContext, defaultTimeout time.Duration) time.Duration {
	if tc != nil && tc.TaskTimeout > 0 {
		return tc.TaskTimeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeWithTimeout runs a task's Execute under the given timeout.
//
// The timeout context is cancelled on expiry, so a cooperative task
// observes ctx.Done and returns. The call itself also stops waiting at
// the deadline: a misbehaving task's goroutine is abandoned (its
// result discarded) rather than force-killed, keeping the hard upper
// bound on executor progress without preemption.
//
// A zero timeout executes the task directly with no wrapper.
func executeWithTimeout(
	ctx context.Context,
	task Task,
	tc *TaskContext,
	timeout time.Duration,
) (TaskResult, error) {
	if timeout == 0 {
		return task.Execute(ctx, tc)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result TaskResult
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := task.Execute(timeoutCtx, tc)
		ch <- outcome{result: result, err: err}
	}()

	// Parent cancellation propagates through timeoutCtx and the task is
	// expected to return promptly; its in-flight result is still
	// collected. Only the deadline abandons the goroutine.
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-timer.C:
		return TaskResult{}, timeoutError(task.ID(), timeout)
	}
}

func timeoutError(id TaskID, timeout time.Duration) error {
	return &ExecutionError{
		Message: fmt.Sprintf("exceeded timeout of %v", timeout),
		Code:    "TASK_TIMEOUT",
		TaskID:  id,
		Cause:   context.DeadlineExceeded,
	}
}
