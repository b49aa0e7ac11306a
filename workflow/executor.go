package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/sagaflow-go/workflow/audit"
	"github.com/dshills/sagaflow-go/workflow/tool"
)

// WorkflowResult is the terminal report of a run.
//
// A workflow always terminates with a result describing the final
// status, what completed and failed, the rollback report if rollback
// ran, the audit tail, and the last successful checkpoint.
type WorkflowResult struct {
	// Success is true when every task completed.
	Success bool

	// Status is the final workflow status.
	Status WorkflowStatus

	// Completed lists completed task IDs in completion order.
	Completed []TaskID

	// Failed lists failed task IDs.
	Failed []TaskID

	// Skipped lists tasks never dispatched (cancellation or an
	// upstream failure).
	Skipped []TaskID

	// Rollback is the rollback report, if rollback ran.
	Rollback *RollbackReport

	// Audit is the recorded audit event stream.
	Audit []audit.Event

	// Warnings carries non-fatal findings: deadlock heuristics and
	// checkpoint storage errors.
	Warnings []string

	// LastCheckpointID is the ID of the last successfully saved
	// checkpoint, if a checkpoint service was attached.
	LastCheckpointID string
}

// Executor drives a workflow to completion.
//
// The executor owns the workflow for the duration of a run. It
// enforces per-task timeouts and the workflow deadline, records audit
// events, emits checkpoints between tasks, and delegates failures to
// the rollback engine.
//
// Runtime state (completed, failed, position) is mutated only under
// the executor's lock — the single synchronization point shared by the
// serial and parallel paths.
type Executor struct {
	workflow   *Workflow
	workflowID string

	registry    *CompensationRegistry
	strategy    RollbackStrategy
	log         *audit.Log
	tools       *tool.Registry
	checkpoints *CheckpointService
	source      *CancellationSource
	deadline    time.Duration
	taskTimeout time.Duration
	parallelism int
	metrics     *Metrics
	detector    *DeadlockDetector

	mu             sync.Mutex
	completed      map[TaskID]bool
	completedOrder []TaskID
	failed         []TaskID
	skipped        []TaskID
	position       int
	current        TaskID
	status         WorkflowStatus
	warnings       []string
	lastCheckpoint string
	rollbackReport *RollbackReport
}

// NewExecutor creates an executor owning the given workflow.
//
// The workflow ID defaults to a fresh UUID; audit events are kept in
// memory unless WithAuditLog attaches a persistent log.
func NewExecutor(w *Workflow) *Executor {
	return &Executor{
		workflow:   w,
		workflowID: uuid.NewString(),
		registry:   NewCompensationRegistry(),
		strategy:   AllDependent(),
		log:        audit.NewMemoryLog(),
		detector:   NewDeadlockDetector(),
		completed:  make(map[TaskID]bool),
		status:     StatusPending,
	}
}

// WithWorkflowID overrides the generated workflow ID.
func (e *Executor) WithWorkflowID(id string) *Executor {
	e.workflowID = id
	return e
}

// WithToolRegistry attaches a tool registry shared with every task
// context.
func (e *Executor) WithToolRegistry(r *tool.Registry) *Executor {
	e.tools = r
	return e
}

// WithCheckpointService attaches a checkpoint service; checkpoints are
// emitted after every success (serial) or layer (parallel).
func (e *Executor) WithCheckpointService(s *CheckpointService) *Executor {
	e.checkpoints = s
	return e
}

// WithCancellationSource attaches the workflow cancellation source.
// Cancelling it stops dispatch and triggers rollback of the completed
// prefix.
func (e *Executor) WithCancellationSource(s *CancellationSource) *Executor {
	e.source = s
	return e
}

// WithDeadline sets a workflow-wide wall-clock budget. The timer
// starts at Execute entry; on expiry the cancellation source fires.
func (e *Executor) WithDeadline(d time.Duration) *Executor {
	e.deadline = d
	return e
}

// WithTaskTimeout sets the default per-task timeout. Exceeding it
// fails that task (rollback path), not the workflow wholesale.
func (e *Executor) WithTaskTimeout(d time.Duration) *Executor {
	e.taskTimeout = d
	return e
}

// WithParallelism sets the default concurrency cap for
// ExecuteParallel. Zero or negative means unbounded.
func (e *Executor) WithParallelism(n int) *Executor {
	e.parallelism = n
	return e
}

// WithAuditLog attaches a persistent audit log in place of the default
// in-memory one.
func (e *Executor) WithAuditLog(log *audit.Log) *Executor {
	e.log = log
	return e
}

// WithRollbackStrategy sets the rollback strategy (default
// AllDependent).
func (e *Executor) WithRollbackStrategy(s RollbackStrategy) *Executor {
	e.strategy = s
	return e
}

// WithCompensationRegistry replaces the executor's compensation
// registry, sharing one across executors.
func (e *Executor) WithCompensationRegistry(r *CompensationRegistry) *Executor {
	e.registry = r
	return e
}

// WithMetrics attaches Prometheus metrics collection.
func (e *Executor) WithMetrics(m *Metrics) *Executor {
	e.metrics = m
	return e
}

// WorkflowID returns the run's workflow ID.
func (e *Executor) WorkflowID() string {
	return e.workflowID
}

// Registry returns the compensation registry.
func (e *Executor) Registry() *CompensationRegistry {
	return e.registry
}

// Execute runs the workflow serially in topological order.
//
// Structural errors (cycle, empty workflow) are returned as errors.
// Task failures are reported in the WorkflowResult after rollback,
// with a nil error.
func (e *Executor) Execute(ctx context.Context) (*WorkflowResult, error) {
	order, err := e.preflight()
	if err != nil {
		return nil, err
	}

	stopDeadline := e.armDeadline()
	defer stopDeadline()

	e.begin(len(order))

	for i := e.positionSnapshot(); i < len(order); i++ {
		id := order[i]
		if e.isCompleted(id) {
			continue
		}

		if e.source != nil && e.source.IsCancelled() {
			e.markSkippedFrom(order[i:])
			e.rollbackAndFinish(ctx, "", "cancelled")
			return e.result(), nil
		}

		task, ok := e.workflow.Task(id)
		if !ok {
			// The DAG owns task metadata; a missing handle is an
			// invariant violation.
			return nil, &TaskNotFoundError{ID: id}
		}

		e.setCurrent(id)
		e.record(audit.TaskStarted(e.workflowID, string(id), task.Name()))

		result, execErr := e.runTask(ctx, task)

		if execErr == nil && result.Status == StatusSuccess {
			e.commitSuccess(id, result, task)
			e.record(audit.TaskCompleted(e.workflowID, string(id), task.Name(), result.Status.String()))
			e.advance(i + 1)
			e.saveCheckpoint(ctx)
			continue
		}

		reason := failureReason(result, execErr)
		e.commitFailure(id, result, execErr)
		e.record(audit.TaskFailed(e.workflowID, string(id), task.Name(), reason))
		e.markSkippedFrom(order[i+1:])
		e.rollbackAndFinish(ctx, id, reason)
		return e.result(), nil
	}

	e.finishCompleted()
	return e.result(), nil
}

// ExecuteParallel runs the workflow layer by layer, dispatching each
// layer's tasks concurrently up to maxConcurrency in-flight. A
// maxConcurrency ≤ 0 selects the WithParallelism default; when that is
// also ≤ 0 the layer is unbounded.
//
// The observable outcome is equivalent to Execute modulo within-layer
// ordering. The join policy is collect-all-then-decide: every task of
// a layer runs to completion before the executor inspects failures.
func (e *Executor) ExecuteParallel(ctx context.Context, maxConcurrency int) (*WorkflowResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = e.parallelism
	}

	layers, err := e.preflightLayers()
	if err != nil {
		return nil, err
	}

	stopDeadline := e.armDeadline()
	defer stopDeadline()

	total := 0
	for _, layer := range layers {
		total += len(layer)
	}
	e.begin(total)

	for li, layer := range layers {
		pending := e.pendingOf(layer)
		if len(pending) == 0 {
			continue
		}

		if e.source != nil && e.source.IsCancelled() {
			e.markSkippedFromLayers(layers[li:])
			e.rollbackAndFinish(ctx, "", "cancelled")
			return e.result(), nil
		}

		outcomes := e.dispatchLayer(ctx, pending, maxConcurrency)

		// Collect all, then decide: successes commit even when a
		// sibling failed.
		var firstFailed TaskID
		var firstReason string
		for _, out := range outcomes {
			if out.err == nil && out.result.Status == StatusSuccess {
				e.commitSuccess(out.id, out.result, out.task)
				e.record(audit.TaskCompleted(e.workflowID, string(out.id), out.task.Name(), out.result.Status.String()))
				continue
			}
			reason := failureReason(out.result, out.err)
			e.commitFailure(out.id, out.result, out.err)
			e.record(audit.TaskFailed(e.workflowID, string(out.id), out.task.Name(), reason))
			if firstFailed == "" {
				firstFailed, firstReason = out.id, reason
			}
		}

		if firstFailed != "" {
			if li+1 < len(layers) {
				e.markSkippedFromLayers(layers[li+1:])
			}
			e.rollbackAndFinish(ctx, firstFailed, firstReason)
			return e.result(), nil
		}

		e.advance(e.completedCount())
		e.saveCheckpoint(ctx)
	}

	e.finishCompleted()
	return e.result(), nil
}

// layerOutcome carries one dispatched task's result back to the
// executor goroutine.
type layerOutcome struct {
	id     TaskID
	task   Task
	result TaskResult
	err    error
}

// dispatchLayer runs the layer members concurrently and waits for all
// of them. Each slot is written by exactly one goroutine; shared
// executor state is only touched after the barrier.
func (e *Executor) dispatchLayer(ctx context.Context, pending []TaskID, maxConcurrency int) []layerOutcome {
	outcomes := make([]layerOutcome, len(pending))

	var g errgroup.Group
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}

	for i, id := range pending {
		task, ok := e.workflow.Task(id)
		if !ok {
			outcomes[i] = layerOutcome{id: id, err: &TaskNotFoundError{ID: id}}
			continue
		}
		outcomes[i] = layerOutcome{id: id, task: task}

		slot := &outcomes[i]
		g.Go(func() error {
			e.record(audit.TaskStarted(e.workflowID, string(slot.id), slot.task.Name()))
			slot.result, slot.err = e.runTask(ctx, slot.task)
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

// runTask executes one task with a fresh context clone, a task-scoped
// cancellation child, and the effective timeout.
func (e *Executor) runTask(ctx context.Context, task Task) (TaskResult, error) {
	tc := NewTaskContext(e.workflowID, task.ID()).
		WithTools(e.tools).
		WithAudit(e.log)

	var child *CancellationSource
	if e.source != nil {
		child = e.source.Child()
		tc.WithCancellation(child.Token())
	}

	timeout := taskTimeout(tc, e.taskTimeout)
	tc.WithTaskTimeout(timeout)

	e.metrics.taskStarted()
	start := time.Now()
	result, err := executeWithTimeout(ctx, task, tc, timeout)
	status := result.Status.String()
	if err != nil {
		status = "error"
	}
	e.metrics.taskFinished(e.workflowID, status, time.Since(start))

	if child != nil {
		// Scope the child's watcher goroutine to the task.
		child.Cancel()
	}
	return result, err
}

// ResumeFrom seeds executor state from a checkpoint so execution
// continues from its position. Tasks recorded as completed are
// skipped; future checkpoint sequences stay monotone via the
// checkpoint service.
//
// Compensations registered before the crash are not recoverable from
// the checkpoint — only descriptors are ever serialized. Tasks must
// re-register on re-execution, or their undo is lost.
func (e *Executor) ResumeFrom(cp *Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.workflowID = cp.WorkflowID
	e.completed = make(map[TaskID]bool, len(cp.CompletedTasks))
	e.completedOrder = make([]TaskID, 0, len(cp.CompletedTasks))
	for _, id := range cp.CompletedTasks {
		e.completed[id] = true
		e.completedOrder = append(e.completedOrder, id)
	}
	e.failed = append([]TaskID(nil), cp.FailedTasks...)
	e.position = cp.CurrentPosition
	e.status = StatusPending
	return nil
}

// State returns a serializable snapshot of the run.
func (e *Executor) State() WorkflowState {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := WorkflowState{
		WorkflowID: e.workflowID,
		Status:     e.status,
	}

	failedSet := make(map[TaskID]bool, len(e.failed))
	for _, id := range e.failed {
		failedSet[id] = true
		state.Failed = append(state.Failed, TaskSummary{
			ID: id, Name: e.workflow.TaskName(id), Status: TaskFailed,
		})
	}
	for _, id := range e.completedOrder {
		state.Completed = append(state.Completed, TaskSummary{
			ID: id, Name: e.workflow.TaskName(id), Status: TaskCompleted,
		})
	}
	for _, id := range e.workflow.TaskIDs() {
		if e.completed[id] || failedSet[id] {
			continue
		}
		if id == e.current && e.status == StatusRunning {
			state.Current = &TaskSummary{
				ID: id, Name: e.workflow.TaskName(id), Status: TaskRunning,
			}
			continue
		}
		state.Pending = append(state.Pending, TaskSummary{
			ID: id, Name: e.workflow.TaskName(id), Status: TaskPending,
		})
	}
	return state
}

// Progress returns completed / total, or 0 for an empty workflow.
func (e *Executor) Progress() float64 {
	total := e.workflow.TaskCount()
	if total == 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(len(e.completedOrder)) / float64(total)
}

// --- internal helpers -------------------------------------------------

func (e *Executor) preflight() ([]TaskID, error) {
	warnings, err := e.detector.Validate(e.workflow)
	if err != nil {
		return nil, err
	}
	e.noteWarnings(warnings)
	return e.workflow.ExecutionOrder()
}

func (e *Executor) preflightLayers() ([][]TaskID, error) {
	warnings, err := e.detector.Validate(e.workflow)
	if err != nil {
		return nil, err
	}
	e.noteWarnings(warnings)
	return e.workflow.ExecutionLayers()
}

func (e *Executor) noteWarnings(warnings []DeadlockWarning) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range warnings {
		e.warnings = append(e.warnings, w.Description())
	}
}

// armDeadline starts the workflow deadline timer, creating an internal
// cancellation source when none was configured.
func (e *Executor) armDeadline() func() {
	if e.deadline <= 0 {
		return func() {}
	}
	if e.source == nil {
		e.source = NewCancellationSource()
	}
	timer := time.AfterFunc(e.deadline, e.source.Cancel)
	return func() { timer.Stop() }
}

func (e *Executor) begin(total int) {
	e.mu.Lock()
	e.status = StatusRunning
	e.mu.Unlock()
	e.record(audit.WorkflowStarted(e.workflowID, total))
}

func (e *Executor) positionSnapshot() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *Executor) isCompleted(id TaskID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completed[id]
}

func (e *Executor) completedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.completedOrder)
}

func (e *Executor) setCurrent(id TaskID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = id
}

func (e *Executor) advance(position int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if position > e.position {
		e.position = position
	}
}

// commitSuccess records a completed task and registers its
// compensation. The result's compensation wins over the task's stable
// descriptor.
func (e *Executor) commitSuccess(id TaskID, result TaskResult, task Task) {
	if result.Compensation != nil {
		e.registry.Register(id, result.Compensation)
	} else if comp := task.Compensation(); comp != nil {
		e.registry.Register(id, comp)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.completed[id] {
		e.completed[id] = true
		e.completedOrder = append(e.completedOrder, id)
	}
	// A task re-executed after a resumed failure leaves the failed set.
	for i, failedID := range e.failed {
		if failedID == id {
			e.failed = append(e.failed[:i], e.failed[i+1:]...)
			break
		}
	}
}

// commitFailure records a failed task. A compensation disclosed by the
// failing result is still registered — a task may have committed side
// effects before failing.
func (e *Executor) commitFailure(id TaskID, result TaskResult, _ error) {
	if result.Compensation != nil {
		e.registry.Register(id, result.Compensation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, id)
}

func (e *Executor) markSkippedFrom(rest []TaskID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range rest {
		if !e.completed[id] {
			e.skipped = append(e.skipped, id)
		}
	}
}

func (e *Executor) markSkippedFromLayers(layers [][]TaskID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, layer := range layers {
		for _, id := range layer {
			if !e.completed[id] {
				e.skipped = append(e.skipped, id)
			}
		}
	}
}

// pendingOf filters a layer down to tasks not already completed
// (resume skips).
func (e *Executor) pendingOf(layer []TaskID) []TaskID {
	e.mu.Lock()
	defer e.mu.Unlock()
	var pending []TaskID
	for _, id := range layer {
		if !e.completed[id] {
			pending = append(pending, id)
		}
	}
	return pending
}

// rollbackAndFinish runs rollback and sets the final status:
// RolledBack when the pass ran, Failed when it was unavailable. A
// failed task of "" means cancellation — the completed prefix is
// compensated directly.
func (e *Executor) rollbackAndFinish(ctx context.Context, failed TaskID, reason string) {
	engine := NewRollbackEngine(e.workflow, e.registry).
		WithStrategy(e.strategy).
		WithAuditLog(e.log)

	tc := NewTaskContext(e.workflowID, failed).
		WithTools(e.tools).
		WithAudit(e.log)

	var report *RollbackReport
	var err error
	if failed != "" {
		e.metrics.rollback(e.workflowID)
		report, err = engine.Rollback(tc, failed, reason)
	} else {
		// Cancellation with no failed task: compensate the completed
		// prefix directly, later tasks first.
		e.metrics.rollback(e.workflowID)
		report = e.rollbackCompletedPrefix(tc, reason)
	}

	e.mu.Lock()
	if err != nil {
		e.status = StatusWorkflowFailed
		e.warnings = append(e.warnings, "rollback unavailable: "+err.Error())
	} else {
		e.status = StatusRolledBack
		e.rollbackReport = report
	}
	e.mu.Unlock()

	// Final checkpoint records the failure for later inspection.
	e.saveCheckpoint(ctx)
}

// rollbackCompletedPrefix compensates every completed task in reverse
// completion order. Used on cancellation, where no single task failed.
func (e *Executor) rollbackCompletedPrefix(tc *TaskContext, reason string) *RollbackReport {
	e.mu.Lock()
	completed := append([]TaskID(nil), e.completedOrder...)
	e.mu.Unlock()

	report := &RollbackReport{Reason: reason}
	for i := len(completed) - 1; i >= 0; i-- {
		id := completed[i]
		comp, ok := e.registry.Get(id)
		if !ok {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		compCtx := tc.Clone()
		compCtx.TaskID = id

		switch comp.Kind() {
		case CompensationSkip, CompensationRetry:
			report.RolledBack = append(report.RolledBack, id)
		case CompensationUndo:
			result, err := comp.Execute(compCtx)
			switch {
			case err != nil:
				report.FailedCompensations = append(report.FailedCompensations,
					CompensationError{TaskID: id, Reason: err.Error()})
			case result.Status == StatusFailed:
				report.FailedCompensations = append(report.FailedCompensations,
					CompensationError{TaskID: id, Reason: result.Reason})
			default:
				report.RolledBack = append(report.RolledBack, id)
			}
		}
		e.record(audit.TaskRolledBack(e.workflowID, string(id), comp.Description()))
	}

	rolledBack := make([]string, len(report.RolledBack))
	for i, id := range report.RolledBack {
		rolledBack[i] = string(id)
	}
	e.record(audit.WorkflowRolledBack(e.workflowID, reason, rolledBack))
	return report
}

func (e *Executor) finishCompleted() {
	e.mu.Lock()
	e.status = StatusCompleted
	total := e.workflow.TaskCount()
	completed := len(e.completedOrder)
	e.mu.Unlock()
	e.record(audit.WorkflowCompleted(e.workflowID, total, completed))
}

// saveCheckpoint emits a checkpoint when a service is attached. Save
// errors abort only this commit point: they are surfaced as warnings
// and the workflow continues.
func (e *Executor) saveCheckpoint(ctx context.Context) {
	if e.checkpoints == nil {
		return
	}

	seq, err := e.checkpoints.NextSequence(ctx, e.workflowID)
	if err != nil {
		e.metrics.checkpointSave(e.workflowID, err)
		e.noteStorageWarning(err)
		return
	}

	e.mu.Lock()
	completed := append([]TaskID(nil), e.completedOrder...)
	failed := append([]TaskID(nil), e.failed...)
	position := e.position
	e.mu.Unlock()

	cp := NewCheckpoint(e.workflowID, seq, completed, failed, position, e.workflow.TaskCount())
	err = e.checkpoints.Save(ctx, cp)
	e.metrics.checkpointSave(e.workflowID, err)
	if err != nil {
		e.noteStorageWarning(err)
		return
	}

	e.mu.Lock()
	e.lastCheckpoint = cp.ID
	e.mu.Unlock()
}

func (e *Executor) noteStorageWarning(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.warnings = append(e.warnings, "checkpoint save failed: "+err.Error())
}

func (e *Executor) record(event audit.Event) {
	if e.log == nil {
		return
	}
	if err := e.log.Record(event); err != nil {
		e.mu.Lock()
		e.warnings = append(e.warnings, "audit record failed: "+err.Error())
		e.mu.Unlock()
	}
}

func (e *Executor) result() *WorkflowResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &WorkflowResult{
		Success:          e.status == StatusCompleted,
		Status:           e.status,
		Completed:        append([]TaskID(nil), e.completedOrder...),
		Failed:           append([]TaskID(nil), e.failed...),
		Skipped:          append([]TaskID(nil), e.skipped...),
		Rollback:         e.rollbackReport,
		Warnings:         append([]string(nil), e.warnings...),
		LastCheckpointID: e.lastCheckpoint,
	}
	if e.log != nil {
		res.Audit = e.log.Replay()
	}
	return res
}

// failureReason renders the failure text recorded in audit events.
func failureReason(result TaskResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if result.Reason != "" {
		return result.Reason
	}
	return result.Status.String()
}
