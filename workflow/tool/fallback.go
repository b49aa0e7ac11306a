package tool

import (
	"context"
	"errors"
	"time"
)

// ErrToolNotFound is wrapped by invocation errors for unknown tools.
var ErrToolNotFound = errors.New("tool not found")

// ErrFallbackExhausted is returned by handlers that ran out of
// alternatives.
var ErrFallbackExhausted = errors.New("fallback exhausted")

// Error is the structured error type for tool operations.
type Error struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code.
	Code string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// FallbackHandler decides what to do when a tool invocation cannot run
// (unknown tool, start failure).
//
// A handler either produces a substitute Result (handled) or returns
// an error to let the original failure propagate.
type FallbackHandler interface {
	// Name identifies the handler in audit records.
	Name() string

	// Handle attempts to recover from a failed invocation.
	Handle(ctx context.Context, r *Registry, inv Invocation, cause error) (*Result, error)
}

// RetryFallback re-invokes the tool with a fixed backoff between
// attempts. Suited to transient start failures.
type RetryFallback struct {
	// MaxAttempts is the number of re-invocations to try.
	MaxAttempts int

	// Backoff is the pause between attempts.
	Backoff time.Duration
}

// NewRetryFallback creates a retry handler.
func NewRetryFallback(maxAttempts int, backoff time.Duration) *RetryFallback {
	return &RetryFallback{MaxAttempts: maxAttempts, Backoff: backoff}
}

// Name implements FallbackHandler.
func (f *RetryFallback) Name() string { return "retry" }

// Handle re-invokes the tool up to MaxAttempts times.
func (f *RetryFallback) Handle(ctx context.Context, r *Registry, inv Invocation, cause error) (*Result, error) {
	// An unknown tool never resolves by retrying.
	if errors.Is(cause, ErrToolNotFound) {
		return nil, cause
	}

	for attempt := 0; attempt < f.MaxAttempts; attempt++ {
		if attempt > 0 && f.Backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.Backoff):
			}
		}

		t, ok := r.Get(inv.ToolName)
		if !ok {
			return nil, cause
		}
		cmd := r.command(ctx, t, inv)
		if out, err := cmd.CombinedOutput(); err == nil {
			return &Result{ExitCode: 0, Stdout: string(out), Success: true}, nil
		}
	}
	return nil, ErrFallbackExhausted
}

// SkipFallback substitutes a fixed result for a failed invocation,
// letting the workflow continue without the tool.
type SkipFallback struct {
	// Substitute is the result reported in place of the invocation.
	Substitute Result
}

// NewSkipFallback creates a skip handler reporting success with no
// output.
func NewSkipFallback() *SkipFallback {
	return &SkipFallback{Substitute: Result{Success: true}}
}

// Name implements FallbackHandler.
func (f *SkipFallback) Name() string { return "skip" }

// Handle returns the substitute result.
func (f *SkipFallback) Handle(_ context.Context, _ *Registry, _ Invocation, _ error) (*Result, error) {
	res := f.Substitute
	return &res, nil
}

// ChainFallback tries a sequence of handlers in order, returning the
// first handled result.
type ChainFallback struct {
	handlers []FallbackHandler
}

// NewChainFallback creates an empty chain.
func NewChainFallback() *ChainFallback {
	return &ChainFallback{}
}

// Add appends a handler to the chain.
func (f *ChainFallback) Add(h FallbackHandler) *ChainFallback {
	f.handlers = append(f.handlers, h)
	return f
}

// Name implements FallbackHandler.
func (f *ChainFallback) Name() string { return "chain" }

// Handle tries each handler in order.
func (f *ChainFallback) Handle(ctx context.Context, r *Registry, inv Invocation, cause error) (*Result, error) {
	for _, h := range f.handlers {
		if res, err := h.Handle(ctx, r, inv, cause); err == nil {
			return res, nil
		}
	}
	return nil, ErrFallbackExhausted
}
