package workflow

import (
	"fmt"
	"os"
	"sync"

	"github.com/dshills/sagaflow-go/workflow/tool"
)

// CompensationKind classifies a compensation action.
type CompensationKind int

const (
	// CompensationSkip means no undo is needed (read-only task).
	CompensationSkip CompensationKind = iota

	// CompensationRetry recommends re-running the task instead of
	// compensating. Advisory: the rollback engine records it without
	// invoking anything; retry is the responsibility of a higher-level
	// driver.
	CompensationRetry

	// CompensationUndo invokes an undo function with the execution
	// context.
	CompensationUndo
)

// String returns the kind name used in audit records.
func (k CompensationKind) String() string {
	switch k {
	case CompensationSkip:
		return "skip"
	case CompensationRetry:
		return "retry"
	case CompensationUndo:
		return "undo"
	default:
		return "unknown"
	}
}

// CompensationDescriptor is the serializable part of a compensation:
// kind and description only. The executable undo lives exclusively in
// the Compensation value held by the registry and is never persisted.
// Recovering from a checkpoint therefore loses undo functions unless
// tasks re-register them; the engine does not pretend otherwise.
type CompensationDescriptor struct {
	Kind        CompensationKind `json:"kind"`
	Description string           `json:"description"`
}

// UndoFunc is an executable compensation body. It receives the task
// context of the rollback run and reports the undo outcome.
type UndoFunc func(tc *TaskContext) (TaskResult, error)

// Compensation is an executable undo for a task's side effects.
type Compensation struct {
	kind        CompensationKind
	description string
	undo        UndoFunc
}

// SkipCompensation creates a no-op compensation for read-only tasks.
func SkipCompensation(description string) *Compensation {
	return &Compensation{kind: CompensationSkip, description: description}
}

// RetryCompensation creates an advisory retry compensation for
// transient failures.
func RetryCompensation(description string) *Compensation {
	return &Compensation{kind: CompensationRetry, description: description}
}

// UndoCompensation creates a compensation backed by an undo function.
func UndoCompensation(description string, undo UndoFunc) *Compensation {
	return &Compensation{kind: CompensationUndo, description: description, undo: undo}
}

// FileCreationCompensation undoes a file creation by deleting the
// path. A missing file is not an error.
func FileCreationCompensation(path string) *Compensation {
	return UndoCompensation("delete file: "+path, func(_ *TaskContext) (TaskResult, error) {
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				return Success(), nil
			}
			return TaskResult{}, &TaskError{
				Message: fmt.Sprintf("failed to delete file %s: %v", path, err),
				Code:    "COMPENSATION_IO",
				Cause:   err,
			}
		}
		return Success(), nil
	})
}

// ProcessSpawnCompensation undoes a process spawn by sending the
// guard's process a graceful termination signal.
func ProcessSpawnCompensation(guard *tool.ProcessGuard) *Compensation {
	desc := fmt.Sprintf("terminate process: %d", guard.PID())
	return UndoCompensation(desc, func(_ *TaskContext) (TaskResult, error) {
		if err := guard.Terminate(); err != nil {
			return Failed(fmt.Sprintf("failed to terminate process %d: %v", guard.PID(), err)), nil
		}
		return Success(), nil
	})
}

// Kind returns the compensation kind.
func (c *Compensation) Kind() CompensationKind {
	return c.kind
}

// Description returns the human-readable description.
func (c *Compensation) Description() string {
	return c.description
}

// Descriptor returns the serializable descriptor for audit records.
func (c *Compensation) Descriptor() CompensationDescriptor {
	return CompensationDescriptor{Kind: c.kind, Description: c.description}
}

// Execute runs the compensation. Skip and Retry kinds are no-ops that
// report Skipped; Undo invokes the function.
func (c *Compensation) Execute(tc *TaskContext) (TaskResult, error) {
	if c.kind == CompensationUndo && c.undo != nil {
		return c.undo(tc)
	}
	return Skipped(c.description), nil
}

// CoverageReport summarizes which tasks have compensations registered.
type CoverageReport struct {
	// Covered lists tasks with a registered compensation.
	Covered []TaskID

	// Missing lists tasks without one.
	Missing []TaskID

	// Ratio is covered / total, 1.0 for an empty input.
	Ratio float64
}

// CompensationRegistry maps task IDs to executable compensations.
//
// The registry is long-lived and shared: read-many during rollback,
// written only when a task reports a compensation during execution.
type CompensationRegistry struct {
	mu            sync.RWMutex
	compensations map[TaskID]*Compensation
}

// NewCompensationRegistry creates an empty registry.
func NewCompensationRegistry() *CompensationRegistry {
	return &CompensationRegistry{
		compensations: make(map[TaskID]*Compensation),
	}
}

// Register records a compensation for a task, replacing any previous
// registration.
func (r *CompensationRegistry) Register(id TaskID, comp *Compensation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensations[id] = comp
}

// RegisterFileCreation is a convenience wrapper for the common
// file-creation undo.
func (r *CompensationRegistry) RegisterFileCreation(id TaskID, path string) {
	r.Register(id, FileCreationCompensation(path))
}

// RegisterProcessSpawn is a convenience wrapper that terminates the
// guarded process on rollback.
func (r *CompensationRegistry) RegisterProcessSpawn(id TaskID, guard *tool.ProcessGuard) {
	r.Register(id, ProcessSpawnCompensation(guard))
}

// Get returns the compensation for a task, if registered.
func (r *CompensationRegistry) Get(id TaskID) (*Compensation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	comp, ok := r.compensations[id]
	return comp, ok
}

// Has reports whether a task has a registered compensation.
func (r *CompensationRegistry) Has(id TaskID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.compensations[id]
	return ok
}

// Remove deletes a task's compensation, returning it if present.
// Typically called after a successful rollback.
func (r *CompensationRegistry) Remove(id TaskID) (*Compensation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	comp, ok := r.compensations[id]
	if ok {
		delete(r.compensations, id)
	}
	return comp, ok
}

// Len returns the number of registered compensations.
func (r *CompensationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.compensations)
}

// ValidateCoverage reports which of the given tasks have compensations
// registered.
func (r *CompensationRegistry) ValidateCoverage(ids []TaskID) CoverageReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := CoverageReport{Ratio: 1.0}
	for _, id := range ids {
		if _, ok := r.compensations[id]; ok {
			report.Covered = append(report.Covered, id)
		} else {
			report.Missing = append(report.Missing, id)
		}
	}
	if len(ids) > 0 {
		report.Ratio = float64(len(report.Covered)) / float64(len(ids))
	}
	return report
}
