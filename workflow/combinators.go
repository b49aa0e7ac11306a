package workflow

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task composition combinators: conditional branching, error
// recovery, and parallel fan-out expressed as tasks themselves. A
// combinator satisfies the Task contract, so composed tasks nest and
// slot into a workflow like any other node.

// ConditionalTask branches on another task's result.
//
// The condition task runs first. On success the then branch runs; on
// Failed or Skipped the else branch runs if present, otherwise the
// condition's result is returned as-is. Identity and declared
// dependencies delegate to the condition task.
type ConditionalTask struct {
	condition Task
	then      Task
	els       Task
}

// NewConditionalTask creates a conditional without an else branch.
func NewConditionalTask(condition, then Task) *ConditionalTask {
	return &ConditionalTask{condition: condition, then: then}
}

// WithElse sets the branch taken when the condition fails.
func (t *ConditionalTask) WithElse(els Task) *ConditionalTask {
	t.els = els
	return t
}

// ID implements Task.
func (t *ConditionalTask) ID() TaskID {
	return t.condition.ID()
}

// Name implements Task.
func (t *ConditionalTask) Name() string {
	return t.condition.Name()
}

// Dependencies implements Task.
func (t *ConditionalTask) Dependencies() []TaskID {
	return t.condition.Dependencies()
}

// Execute implements Task. A condition error is unexpected and
// propagates without running either branch.
func (t *ConditionalTask) Execute(ctx context.Context, tc *TaskContext) (TaskResult, error) {
	result, err := t.condition.Execute(ctx, tc)
	if err != nil {
		return result, err
	}

	if result.Status == StatusSuccess {
		return t.then.Execute(ctx, tc)
	}
	if t.els != nil {
		return t.els.Execute(ctx, tc)
	}
	return result, nil
}

// Compensation implements Task. Branches disclose side effects
// per-run through their results; the combinator adds none of its own.
func (t *ConditionalTask) Compensation() *Compensation {
	return nil
}

// TryCatchTask executes with error recovery.
//
// The try task runs first. If it returns Success, that result stands.
// A Failed or Skipped result, or an unexpected error, runs the catch
// task instead, letting the workflow continue gracefully. Identity
// and declared dependencies delegate to the try task.
type TryCatchTask struct {
	try   Task
	catch Task
}

// NewTryCatchTask creates a try-catch task.
func NewTryCatchTask(try, catch Task) *TryCatchTask {
	return &TryCatchTask{try: try, catch: catch}
}

// ID implements Task.
func (t *TryCatchTask) ID() TaskID {
	return t.try.ID()
}

// Name implements Task.
func (t *TryCatchTask) Name() string {
	return t.try.Name()
}

// Dependencies implements Task.
func (t *TryCatchTask) Dependencies() []TaskID {
	return t.try.Dependencies()
}

// Execute implements Task.
func (t *TryCatchTask) Execute(ctx context.Context, tc *TaskContext) (TaskResult, error) {
	result, err := t.try.Execute(ctx, tc)
	if err == nil && result.Status == StatusSuccess {
		return result, nil
	}
	return t.catch.Execute(ctx, tc)
}

// Compensation implements Task.
func (t *TryCatchTask) Compensation() *Compensation {
	return nil
}

// errSubtaskFailed signals the errgroup to cancel siblings when a
// subtask produced a failure result rather than an error.
var errSubtaskFailed = errors.New("parallel subtask failed")

// ParallelTasks runs a set of tasks concurrently inside a single
// workflow node.
//
// All subtasks must succeed for the combinator to succeed. Failure is
// fail-fast: the first non-success result or error cancels the
// remaining subtasks' contexts and is returned. Each subtask receives
// its own clone of the task context with its own TaskID.
//
// The combinator is a single node to the scheduler; subtasks share
// its dependency edges and compensate as one unit. Use execution
// layers instead when subtasks need individual rollback.
type ParallelTasks struct {
	id    TaskID
	name  string
	deps  []TaskID
	tasks []Task
}

// NewParallelTasks creates a parallel combinator over the given
// subtasks.
func NewParallelTasks(id TaskID, name string, tasks ...Task) *ParallelTasks {
	return &ParallelTasks{id: id, name: name, tasks: tasks}
}

// DependsOn declares dependency hints consumed by the Builder.
func (t *ParallelTasks) DependsOn(ids ...TaskID) *ParallelTasks {
	t.deps = append(t.deps, ids...)
	return t
}

// ID implements Task.
func (t *ParallelTasks) ID() TaskID {
	return t.id
}

// Name implements Task.
func (t *ParallelTasks) Name() string {
	return t.name
}

// Dependencies implements Task.
func (t *ParallelTasks) Dependencies() []TaskID {
	return t.deps
}

// Execute implements Task.
func (t *ParallelTasks) Execute(ctx context.Context, tc *TaskContext) (TaskResult, error) {
	if len(t.tasks) == 0 {
		return Success(), nil
	}

	g, gctx := errgroup.WithContext(ctx)

	var once sync.Once
	var firstResult TaskResult
	var firstErr error

	for _, task := range t.tasks {
		g.Go(func() error {
			sub := tc.Clone()
			if sub == nil {
				sub = NewTaskContext("", task.ID())
			} else {
				sub.TaskID = task.ID()
			}

			result, err := task.Execute(gctx, sub)
			if err != nil {
				once.Do(func() { firstErr = err })
				return err
			}
			if result.Status != StatusSuccess {
				once.Do(func() { firstResult = result })
				return errSubtaskFailed
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if firstErr != nil {
			return TaskResult{}, firstErr
		}
		return firstResult, nil
	}
	return Success(), nil
}

// Compensation implements Task. Subtasks with side effects disclose
// them per-run; a failed sibling's disclosed compensation is lost
// because only one result leaves the combinator, so side-effecting
// subtasks belong in their own layer.
func (t *ParallelTasks) Compensation() *Compensation {
	return nil
}
