package workflow

import "context"

// FuncTask adapts a plain function into a Task, the counterpart of a
// function adapter for handler interfaces. Use it for inline tasks in
// tests and simple workflows.
//
// Example:
//
//	task := workflow.NewFuncTask("greet", "Greet", func(ctx context.Context, tc *workflow.TaskContext) (workflow.TaskResult, error) {
//	    fmt.Println("hello")
//	    return workflow.Success(), nil
//	})
type FuncTask struct {
	id   TaskID
	name string
	deps []TaskID
	comp *Compensation
	fn   func(ctx context.Context, tc *TaskContext) (TaskResult, error)
}

// NewFuncTask creates a FuncTask with the given identity and body.
func NewFuncTask(id TaskID, name string, fn func(ctx context.Context, tc *TaskContext) (TaskResult, error)) *FuncTask {
	return &FuncTask{id: id, name: name, fn: fn}
}

// DependsOn declares dependency hints consumed by the Builder.
func (t *FuncTask) DependsOn(ids ...TaskID) *FuncTask {
	t.deps = append(t.deps, ids...)
	return t
}

// WithCompensation sets the task's stable compensation descriptor.
func (t *FuncTask) WithCompensation(comp *Compensation) *FuncTask {
	t.comp = comp
	return t
}

// ID implements Task.
func (t *FuncTask) ID() TaskID {
	return t.id
}

// Name implements Task.
func (t *FuncTask) Name() string {
	return t.name
}

// Dependencies implements Task.
func (t *FuncTask) Dependencies() []TaskID {
	return t.deps
}

// Execute implements Task.
func (t *FuncTask) Execute(ctx context.Context, tc *TaskContext) (TaskResult, error) {
	return t.fn(ctx, tc)
}

// Compensation implements Task.
func (t *FuncTask) Compensation() *Compensation {
	return t.comp
}
