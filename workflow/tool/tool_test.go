package tool

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

func TestRegistry_Register(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		if err := r.Register(New("echo", "echo").WithDescription("prints arguments")); err != nil {
			t.Fatalf("Register failed: %v", err)
		}

		tool, ok := r.Get("echo")
		if !ok {
			t.Fatal("expected echo to be registered")
		}
		if tool.Executable != "echo" || tool.Description != "prints arguments" {
			t.Errorf("unexpected tool %+v", tool)
		}
		if !r.IsRegistered("echo") || r.Len() != 1 {
			t.Error("registry bookkeeping wrong")
		}
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		r := NewRegistry()
		if err := r.Register(New("echo", "echo")); err != nil {
			t.Fatal(err)
		}
		err := r.Register(New("echo", "/bin/echo"))
		var terr *Error
		if !errors.As(err, &terr) || terr.Code != "DUPLICATE_TOOL" {
			t.Errorf("expected DUPLICATE_TOOL, got %v", err)
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		r := NewRegistry()
		if err := r.Register(New("", "echo")); err == nil {
			t.Error("expected error for empty name")
		}
	})

	t.Run("list sorted", func(t *testing.T) {
		r := NewRegistry()
		for _, name := range []string{"zeta", "alpha", "mid"} {
			if err := r.Register(New(name, "true")); err != nil {
				t.Fatal(err)
			}
		}
		names := r.List()
		if len(names) != 3 || names[0] != "alpha" || names[2] != "zeta" {
			t.Errorf("expected sorted names, got %v", names)
		}
	})
}

func TestRegistry_Invoke(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}

	r := NewRegistry()
	if err := r.Register(New("echo", "echo")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(New("false", "false")); err != nil {
		t.Fatal(err)
	}

	t.Run("captures stdout", func(t *testing.T) {
		res, err := r.Invoke(context.Background(), NewInvocation("echo").WithArgs("hello"))
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if !res.Result.Success || res.Result.ExitCode != 0 {
			t.Errorf("expected success, got %+v", res.Result)
		}
		if res.Result.Stdout != "hello\n" {
			t.Errorf("expected hello output, got %q", res.Result.Stdout)
		}
		if res.Guard != nil {
			t.Error("completed invocation has no guard")
		}
	})

	t.Run("non-zero exit is a result, not an error", func(t *testing.T) {
		res, err := r.Invoke(context.Background(), NewInvocation("false"))
		if err != nil {
			t.Fatalf("Invoke returned error for non-zero exit: %v", err)
		}
		if res.Result.Success || res.Result.ExitCode == 0 {
			t.Errorf("expected failed result, got %+v", res.Result)
		}
	})

	t.Run("unknown tool errors", func(t *testing.T) {
		_, err := r.Invoke(context.Background(), NewInvocation("ghost"))
		if !errors.Is(err, ErrToolNotFound) {
			t.Errorf("expected ErrToolNotFound, got %v", err)
		}
	})

	t.Run("default args are prepended", func(t *testing.T) {
		r2 := NewRegistry()
		if err := r2.Register(New("echo-pre", "echo").WithDefaultArgs("prefix")); err != nil {
			t.Fatal(err)
		}
		res, err := r2.Invoke(context.Background(), NewInvocation("echo-pre").WithArgs("suffix"))
		if err != nil {
			t.Fatal(err)
		}
		if res.Result.Stdout != "prefix suffix\n" {
			t.Errorf("expected joined args, got %q", res.Result.Stdout)
		}
	})
}

func TestRegistry_Start(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	r := NewRegistry()
	if err := r.Register(New("sleep", "sleep")); err != nil {
		t.Fatal(err)
	}

	t.Run("guard terminates the process", func(t *testing.T) {
		res, err := r.Start(context.Background(), NewInvocation("sleep").WithArgs("30"))
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		guard := res.Guard
		if guard == nil {
			t.Fatal("expected a process guard")
		}
		if guard.PID() <= 0 {
			t.Errorf("expected a real PID, got %d", guard.PID())
		}

		if err := guard.Terminate(); err != nil {
			t.Fatalf("Terminate failed: %v", err)
		}
		if !guard.IsTerminated() {
			t.Error("guard should report terminated")
		}
	})

	t.Run("released guard does not terminate", func(t *testing.T) {
		res, err := r.Start(context.Background(), NewInvocation("sleep").WithArgs("0.1"))
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		guard := res.Guard
		guard.Release()

		if err := guard.Terminate(); err != nil {
			t.Fatalf("Terminate on released guard errored: %v", err)
		}
		if guard.IsTerminated() {
			t.Error("released guard must not report terminated")
		}
	})
}

func TestFallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("skip substitutes a success", func(t *testing.T) {
		r := NewRegistry()
		r.WithFallback(NewSkipFallback())

		res, err := r.Invoke(ctx, NewInvocation("missing-tool"))
		if err != nil {
			t.Fatalf("expected fallback to handle, got %v", err)
		}
		if !res.Result.Success {
			t.Errorf("expected substitute success, got %+v", res.Result)
		}
	})

	t.Run("retry refuses unknown tools", func(t *testing.T) {
		fb := NewRetryFallback(3, time.Millisecond)
		r := NewRegistry()

		_, err := fb.Handle(ctx, r, NewInvocation("ghost"), &Error{Cause: ErrToolNotFound})
		if !errors.Is(err, ErrToolNotFound) {
			t.Errorf("retry must not mask unknown tools, got %v", err)
		}
	})

	t.Run("chain falls through to skip", func(t *testing.T) {
		chain := NewChainFallback().
			Add(NewRetryFallback(1, 0)).
			Add(NewSkipFallback())
		r := NewRegistry()

		res, err := chain.Handle(ctx, r, NewInvocation("ghost"), &Error{Cause: ErrToolNotFound})
		if err != nil {
			t.Fatalf("chain should end at skip, got %v", err)
		}
		if !res.Success {
			t.Errorf("expected skip substitute, got %+v", res)
		}
	})

	t.Run("empty chain exhausts", func(t *testing.T) {
		_, err := NewChainFallback().Handle(ctx, NewRegistry(), NewInvocation("x"), errors.New("boom"))
		if !errors.Is(err, ErrFallbackExhausted) {
			t.Errorf("expected ErrFallbackExhausted, got %v", err)
		}
	})
}
