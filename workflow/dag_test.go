package workflow

import (
	"context"
	"errors"
	"testing"
)

// noopTask builds a FuncTask that succeeds immediately.
func noopTask(id TaskID) *FuncTask {
	return NewFuncTask(id, "Task "+string(id), func(ctx context.Context, tc *TaskContext) (TaskResult, error) {
		return Success(), nil
	})
}

func TestWorkflow_AddTask(t *testing.T) {
	t.Run("adds isolated nodes", func(t *testing.T) {
		w := NewWorkflow()
		if err := w.AddTask(noopTask("a")); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
		if err := w.AddTask(noopTask("b")); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}

		if w.TaskCount() != 2 {
			t.Errorf("expected 2 tasks, got %d", w.TaskCount())
		}
		if !w.Contains("a") || !w.Contains("b") {
			t.Error("expected workflow to contain a and b")
		}
	})

	t.Run("rejects duplicate IDs", func(t *testing.T) {
		w := NewWorkflow()
		if err := w.AddTask(noopTask("a")); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}

		err := w.AddTask(noopTask("a"))
		var dup *DuplicateTaskError
		if !errors.As(err, &dup) {
			t.Fatalf("expected DuplicateTaskError, got %v", err)
		}
		if dup.ID != "a" {
			t.Errorf("expected duplicate ID a, got %s", dup.ID)
		}
	})
}

func TestWorkflow_AddDependency(t *testing.T) {
	t.Run("unknown endpoints rejected", func(t *testing.T) {
		w := NewWorkflow()
		if err := w.AddTask(noopTask("a")); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}

		var notFound *TaskNotFoundError
		if err := w.AddDependency("a", "missing"); !errors.As(err, &notFound) {
			t.Errorf("expected TaskNotFoundError, got %v", err)
		}
		if err := w.AddDependency("missing", "a"); !errors.As(err, &notFound) {
			t.Errorf("expected TaskNotFoundError, got %v", err)
		}
	})

	t.Run("cycle rejected atomically", func(t *testing.T) {
		// S2: add a,b; a->b then b->a. The second insert must fail and
		// leave the graph unchanged.
		w := NewWorkflow()
		for _, id := range []TaskID{"a", "b"} {
			if err := w.AddTask(noopTask(id)); err != nil {
				t.Fatalf("AddTask failed: %v", err)
			}
		}
		if err := w.AddDependency("a", "b"); err != nil {
			t.Fatalf("a->b failed: %v", err)
		}

		err := w.AddDependency("b", "a")
		var cycle *CycleError
		if !errors.As(err, &cycle) {
			t.Fatalf("expected CycleError, got %v", err)
		}
		if len(cycle.Path) < 2 {
			t.Errorf("cycle path must name at least both endpoints, got %v", cycle.Path)
		}

		// The rejected edge must not remain.
		in, err := w.Incoming("a")
		if err != nil {
			t.Fatalf("Incoming failed: %v", err)
		}
		if len(in) != 0 {
			t.Errorf("edge b->a leaked into graph: %v", in)
		}

		order, err := w.ExecutionOrder()
		if err != nil {
			t.Fatalf("ExecutionOrder failed after cycle rejection: %v", err)
		}
		if len(order) != 2 || order[0] != "a" || order[1] != "b" {
			t.Errorf("expected order [a b], got %v", order)
		}
	})

	t.Run("self-loop rejected", func(t *testing.T) {
		w := NewWorkflow()
		if err := w.AddTask(noopTask("a")); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}

		var cycle *CycleError
		if err := w.AddDependency("a", "a"); !errors.As(err, &cycle) {
			t.Fatalf("expected CycleError for self-loop, got %v", err)
		}
	})

	t.Run("longer cycle path reported", func(t *testing.T) {
		w := NewWorkflow()
		for _, id := range []TaskID{"a", "b", "c"} {
			if err := w.AddTask(noopTask(id)); err != nil {
				t.Fatalf("AddTask failed: %v", err)
			}
		}
		mustDep(t, w, "a", "b")
		mustDep(t, w, "b", "c")

		err := w.AddDependency("c", "a")
		var cycle *CycleError
		if !errors.As(err, &cycle) {
			t.Fatalf("expected CycleError, got %v", err)
		}
		if len(cycle.Path) != 3 {
			t.Errorf("expected full back-path [a b c], got %v", cycle.Path)
		}
	})

	t.Run("soft edges scheduled like hard", func(t *testing.T) {
		w := NewWorkflow()
		for _, id := range []TaskID{"a", "b"} {
			if err := w.AddTask(noopTask(id)); err != nil {
				t.Fatalf("AddTask failed: %v", err)
			}
		}
		if err := w.AddDependencyKind("a", "b", Soft); err != nil {
			t.Fatalf("AddDependencyKind failed: %v", err)
		}

		order, err := w.ExecutionOrder()
		if err != nil {
			t.Fatalf("ExecutionOrder failed: %v", err)
		}
		if order[0] != "a" || order[1] != "b" {
			t.Errorf("soft edge must still order a before b, got %v", order)
		}
	})
}

func TestWorkflow_ExecutionOrder(t *testing.T) {
	t.Run("empty workflow", func(t *testing.T) {
		w := NewWorkflow()
		if _, err := w.ExecutionOrder(); !errors.Is(err, ErrEmptyWorkflow) {
			t.Errorf("expected ErrEmptyWorkflow, got %v", err)
		}
	})

	t.Run("linear chain", func(t *testing.T) {
		w := chainWorkflow(t, "a", "b", "c")

		order, err := w.ExecutionOrder()
		if err != nil {
			t.Fatalf("ExecutionOrder failed: %v", err)
		}
		want := []TaskID{"a", "b", "c"}
		for i, id := range want {
			if order[i] != id {
				t.Fatalf("expected order %v, got %v", want, order)
			}
		}
	})

	t.Run("order is a linear extension of the edges", func(t *testing.T) {
		w := diamondWorkflow(t)

		order, err := w.ExecutionOrder()
		if err != nil {
			t.Fatalf("ExecutionOrder failed: %v", err)
		}
		pos := make(map[TaskID]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		for _, edge := range [][2]TaskID{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}} {
			if pos[edge[0]] >= pos[edge[1]] {
				t.Errorf("edge %v violated by order %v", edge, order)
			}
		}
	})

	t.Run("stable across calls", func(t *testing.T) {
		w := diamondWorkflow(t)

		first, err := w.ExecutionOrder()
		if err != nil {
			t.Fatalf("ExecutionOrder failed: %v", err)
		}
		for i := 0; i < 10; i++ {
			again, err := w.ExecutionOrder()
			if err != nil {
				t.Fatalf("ExecutionOrder failed: %v", err)
			}
			for j := range first {
				if first[j] != again[j] {
					t.Fatalf("order not stable: %v vs %v", first, again)
				}
			}
		}
	})
}

func TestWorkflow_ExecutionLayers(t *testing.T) {
	t.Run("diamond layers", func(t *testing.T) {
		w := diamondWorkflow(t)

		layers, err := w.ExecutionLayers()
		if err != nil {
			t.Fatalf("ExecutionLayers failed: %v", err)
		}
		if len(layers) != 3 {
			t.Fatalf("expected 3 layers, got %d: %v", len(layers), layers)
		}
		if len(layers[0]) != 1 || layers[0][0] != "a" {
			t.Errorf("layer 0 should be [a], got %v", layers[0])
		}
		if len(layers[1]) != 2 {
			t.Errorf("layer 1 should hold b and c, got %v", layers[1])
		}
		if len(layers[2]) != 1 || layers[2][0] != "d" {
			t.Errorf("layer 2 should be [d], got %v", layers[2])
		}
	})

	t.Run("every edge crosses layers forward", func(t *testing.T) {
		w := diamondWorkflow(t)

		layers, err := w.ExecutionLayers()
		if err != nil {
			t.Fatalf("ExecutionLayers failed: %v", err)
		}
		layerOf := make(map[TaskID]int)
		for li, layer := range layers {
			for _, id := range layer {
				layerOf[id] = li
			}
		}
		for _, edge := range [][2]TaskID{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}} {
			if layerOf[edge[0]] >= layerOf[edge[1]] {
				t.Errorf("edge %v not forward across layers", edge)
			}
		}
	})

	t.Run("layers partition the nodes", func(t *testing.T) {
		w := diamondWorkflow(t)

		layers, err := w.ExecutionLayers()
		if err != nil {
			t.Fatalf("ExecutionLayers failed: %v", err)
		}
		seen := make(map[TaskID]bool)
		for _, layer := range layers {
			for _, id := range layer {
				if seen[id] {
					t.Errorf("task %s appears in two layers", id)
				}
				seen[id] = true
			}
		}
		if len(seen) != w.TaskCount() {
			t.Errorf("layers cover %d of %d tasks", len(seen), w.TaskCount())
		}
	})
}

func TestWorkflow_Neighbors(t *testing.T) {
	w := diamondWorkflow(t)

	t.Run("ready tasks", func(t *testing.T) {
		ready := w.ReadyTasks()
		if len(ready) != 1 || ready[0] != "a" {
			t.Errorf("expected ready [a], got %v", ready)
		}
	})

	t.Run("incoming", func(t *testing.T) {
		in, err := w.Incoming("d")
		if err != nil {
			t.Fatalf("Incoming failed: %v", err)
		}
		if len(in) != 2 {
			t.Errorf("expected d to have 2 predecessors, got %v", in)
		}
	})

	t.Run("outgoing", func(t *testing.T) {
		out, err := w.Outgoing("a")
		if err != nil {
			t.Fatalf("Outgoing failed: %v", err)
		}
		if len(out) != 2 {
			t.Errorf("expected a to have 2 successors, got %v", out)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		var notFound *TaskNotFoundError
		if _, err := w.Incoming("zzz"); !errors.As(err, &notFound) {
			t.Errorf("expected TaskNotFoundError, got %v", err)
		}
	})

	t.Run("dependents closure", func(t *testing.T) {
		deps, err := w.Dependents("b")
		if err != nil {
			t.Fatalf("Dependents failed: %v", err)
		}
		if len(deps) != 1 || deps[0] != "d" {
			t.Errorf("expected dependents of b = [d], got %v", deps)
		}

		all, err := w.Dependents("a")
		if err != nil {
			t.Fatalf("Dependents failed: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected dependents of a = {b,c,d}, got %v", all)
		}
	})
}

// mustDep is a test helper that fails the test on edge insert errors.
func mustDep(t *testing.T, w *Workflow, from, to TaskID) {
	t.Helper()
	if err := w.AddDependency(from, to); err != nil {
		t.Fatalf("AddDependency(%s, %s) failed: %v", from, to, err)
	}
}

// chainWorkflow builds a linear chain in the given order.
func chainWorkflow(t *testing.T, ids ...TaskID) *Workflow {
	t.Helper()
	w := NewWorkflow()
	for _, id := range ids {
		if err := w.AddTask(noopTask(id)); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
	}
	for i := 1; i < len(ids); i++ {
		mustDep(t, w, ids[i-1], ids[i])
	}
	return w
}

// diamondWorkflow builds a -> {b,c} -> d.
func diamondWorkflow(t *testing.T) *Workflow {
	t.Helper()
	w := NewWorkflow()
	for _, id := range []TaskID{"a", "b", "c", "d"} {
		if err := w.AddTask(noopTask(id)); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
	}
	mustDep(t, w, "a", "b")
	mustDep(t, w, "a", "c")
	mustDep(t, w, "b", "d")
	mustDep(t, w, "c", "d")
	return w
}
