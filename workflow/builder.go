package workflow

// Builder assembles a Workflow from tasks and dependency edges.
//
// Tasks may declare dependencies (Task.Dependencies) or have them
// added explicitly with Dependency. Build validates that every
// declared dependency names an added task, wires declared edges into
// the graph, and rejects cycles.
//
// Example:
//
//	wf, err := workflow.NewBuilder().
//		AddTask(fetch).
//		AddTask(transform).
//		AddTask(write).
//		Dependency("fetch", "transform").
//		Dependency("transform", "write").
//		Build()
type Builder struct {
	tasks []Task
	edges [][2]TaskID
	errs  []error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddTask appends a task.
func (b *Builder) AddTask(task Task) *Builder {
	b.tasks = append(b.tasks, task)
	return b
}

// Dependency records an explicit edge: from must complete before to.
func (b *Builder) Dependency(from, to TaskID) *Builder {
	b.edges = append(b.edges, [2]TaskID{from, to})
	return b
}

// Build assembles and validates the workflow.
//
// Declared dependencies (Task.Dependencies) are wired as edges
// dependency → task. Returns the first error encountered: duplicate
// IDs, missing dependencies, unknown edge endpoints, or cycles. An
// empty builder returns ErrEmptyWorkflow.
func (b *Builder) Build() (*Workflow, error) {
	if len(b.tasks) == 0 {
		return nil, ErrEmptyWorkflow
	}

	w := NewWorkflow()
	for _, task := range b.tasks {
		if err := w.AddTask(task); err != nil {
			return nil, err
		}
	}

	// Wire declared dependency hints.
	for _, task := range b.tasks {
		for _, dep := range task.Dependencies() {
			if !w.Contains(dep) {
				return nil, &MissingDependencyError{ID: dep}
			}
			if err := w.AddDependency(dep, task.ID()); err != nil {
				return nil, err
			}
		}
	}

	// Wire explicit edges.
	for _, edge := range b.edges {
		if err := w.AddDependency(edge[0], edge[1]); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Sequential builds a workflow executing the tasks strictly in the
// given order: each task depends on its predecessor.
func Sequential(tasks []Task) (*Workflow, error) {
	b := NewBuilder()
	for i, task := range tasks {
		b.AddTask(task)
		if i > 0 {
			b.Dependency(tasks[i-1].ID(), task.ID())
		}
	}
	return b.Build()
}
