package workflow

import (
	"sort"

	"github.com/dshills/sagaflow-go/workflow/audit"
)

// RollbackStrategyKind selects how the rollback set is computed.
type RollbackStrategyKind int

const (
	// StrategyAllDependent rolls back the failed task plus every task
	// reachable from it in the DAG. This is the default.
	StrategyAllDependent RollbackStrategyKind = iota

	// StrategyFailedOnly rolls back only the failed task.
	StrategyFailedOnly

	// StrategyCustom filters the AllDependent set with a predicate.
	StrategyCustom
)

// RollbackStrategy determines which tasks are compensated in response
// to a failure.
type RollbackStrategy struct {
	kind   RollbackStrategyKind
	filter func(TaskID) bool
}

// AllDependent returns the default strategy: the failed task and all
// of its transitive dependents.
func AllDependent() RollbackStrategy {
	return RollbackStrategy{kind: StrategyAllDependent}
}

// FailedOnly returns a strategy rolling back only the failed task.
func FailedOnly() RollbackStrategy {
	return RollbackStrategy{kind: StrategyFailedOnly}
}

// Custom returns a strategy filtering the AllDependent set with pred.
func Custom(pred func(TaskID) bool) RollbackStrategy {
	return RollbackStrategy{kind: StrategyCustom, filter: pred}
}

// Kind returns the strategy kind.
func (s RollbackStrategy) Kind() RollbackStrategyKind {
	return s.kind
}

// RollbackReport describes the outcome of one rollback pass.
//
// Rollback is best-effort: individual compensation failures are
// recorded here and never abort the loop.
type RollbackReport struct {
	// FailedTask is the task whose failure triggered the rollback.
	FailedTask TaskID

	// Reason is the failure reason propagated into audit records.
	Reason string

	// RolledBack lists tasks whose compensation ran (including Skip
	// and Retry kinds, which are recorded without invoking anything).
	RolledBack []TaskID

	// Skipped lists rollback-set tasks with no registered
	// compensation — typically tasks that never started.
	Skipped []TaskID

	// FailedCompensations records compensations that ran and failed.
	FailedCompensations []CompensationError
}

// RollbackEngine computes rollback sets and runs compensations in
// reverse topological order.
//
// Reverse order preserves the invariant a compensation may rely on:
// the world is in the state the task left behind. Descendants ran
// later, so they undo first.
type RollbackEngine struct {
	workflow *Workflow
	registry *CompensationRegistry
	strategy RollbackStrategy
	log      *audit.Log
}

// NewRollbackEngine creates an engine over a workflow and its
// compensation registry, using the AllDependent strategy.
func NewRollbackEngine(w *Workflow, registry *CompensationRegistry) *RollbackEngine {
	return &RollbackEngine{
		workflow: w,
		registry: registry,
		strategy: AllDependent(),
	}
}

// WithStrategy sets the rollback strategy.
func (e *RollbackEngine) WithStrategy(s RollbackStrategy) *RollbackEngine {
	e.strategy = s
	return e
}

// WithAuditLog attaches an audit log receiving TaskRolledBack and
// WorkflowRolledBack events.
func (e *RollbackEngine) WithAuditLog(log *audit.Log) *RollbackEngine {
	e.log = log
	return e
}

// RollbackSet computes the set of tasks to compensate for a failure of
// the given task, per the configured strategy. The failed task itself
// is always a member.
func (e *RollbackEngine) RollbackSet(failed TaskID) ([]TaskID, error) {
	if !e.workflow.Contains(failed) {
		return nil, &TaskNotFoundError{ID: failed}
	}

	if e.strategy.kind == StrategyFailedOnly {
		return []TaskID{failed}, nil
	}

	dependents, err := e.workflow.Dependents(failed)
	if err != nil {
		return nil, err
	}
	set := append([]TaskID{failed}, dependents...)

	if e.strategy.kind == StrategyCustom && e.strategy.filter != nil {
		filtered := set[:0]
		for _, id := range set {
			if id == failed || e.strategy.filter(id) {
				filtered = append(filtered, id)
			}
		}
		set = filtered
	}
	return set, nil
}

// Rollback compensates the rollback set of the failed task.
//
// Tasks are processed in reverse topological order. For each member:
// a missing compensation is recorded in Skipped; Skip and Retry kinds
// are recorded as rolled back without invoking anything; Undo kinds
// are invoked, with failures recorded in FailedCompensations. The loop
// never aborts.
//
// The ctx template supplies the workflow ID and collaborator handles
// for compensation invocations.
func (e *RollbackEngine) Rollback(tc *TaskContext, failed TaskID, reason string) (*RollbackReport, error) {
	set, err := e.RollbackSet(failed)
	if err != nil {
		return nil, err
	}

	order, err := e.workflow.ExecutionOrder()
	if err != nil {
		return nil, err
	}
	position := make(map[TaskID]int, len(order))
	for i, id := range order {
		position[id] = i
	}

	// Later tasks first.
	sort.Slice(set, func(i, j int) bool {
		return position[set[i]] > position[set[j]]
	})

	report := &RollbackReport{FailedTask: failed, Reason: reason}
	workflowID := ""
	if tc != nil {
		workflowID = tc.WorkflowID
	}

	for _, id := range set {
		comp, ok := e.registry.Get(id)
		if !ok {
			report.Skipped = append(report.Skipped, id)
			continue
		}

		compCtx := tc.Clone()
		if compCtx == nil {
			compCtx = NewTaskContext(workflowID, id)
		}
		compCtx.TaskID = id

		switch comp.Kind() {
		case CompensationSkip, CompensationRetry:
			report.RolledBack = append(report.RolledBack, id)
		case CompensationUndo:
			result, undoErr := comp.Execute(compCtx)
			switch {
			case undoErr != nil:
				report.FailedCompensations = append(report.FailedCompensations,
					CompensationError{TaskID: id, Reason: undoErr.Error()})
			case result.Status == StatusFailed:
				report.FailedCompensations = append(report.FailedCompensations,
					CompensationError{TaskID: id, Reason: result.Reason})
			default:
				report.RolledBack = append(report.RolledBack, id)
			}
		}

		e.record(audit.TaskRolledBack(workflowID, string(id), comp.Description()))
	}

	rolledBack := make([]string, len(report.RolledBack))
	for i, id := range report.RolledBack {
		rolledBack[i] = string(id)
	}
	e.record(audit.WorkflowRolledBack(workflowID, reason, rolledBack))

	return report, nil
}

func (e *RollbackEngine) record(event audit.Event) {
	if e.log == nil {
		return
	}
	// Audit persistence failures must not interfere with rollback.
	_ = e.log.Record(event)
}
