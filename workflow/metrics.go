package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for executor runs.
//
// All metrics are namespaced "sagaflow". Attach with
// Executor.WithMetrics; a nil Metrics disables collection.
//
// Exposed metrics:
//   - tasks_inflight (gauge): tasks currently executing.
//   - task_duration_ms (histogram, labels: workflow_id, status): task
//     execution latency.
//   - tasks_total (counter, labels: workflow_id, status): task
//     outcomes.
//   - rollbacks_total (counter, labels: workflow_id): rollback passes.
//   - checkpoint_saves_total (counter, labels: workflow_id, status):
//     checkpoint save attempts.
type Metrics struct {
	tasksInflight   prometheus.Gauge
	taskDuration    *prometheus.HistogramVec
	tasksTotal      *prometheus.CounterVec
	rollbacksTotal  *prometheus.CounterVec
	checkpointSaves *prometheus.CounterVec
}

// NewMetrics creates and registers the metric set with the given
// registry. Pass prometheus.DefaultRegisterer for the global registry;
// a dedicated registry is recommended for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		tasksInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sagaflow",
			Name:      "tasks_inflight",
			Help:      "Number of workflow tasks currently executing.",
		}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sagaflow",
			Name:      "task_duration_ms",
			Help:      "Task execution duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"workflow_id", "status"}),
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagaflow",
			Name:      "tasks_total",
			Help:      "Total task executions by outcome.",
		}, []string{"workflow_id", "status"}),
		rollbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagaflow",
			Name:      "rollbacks_total",
			Help:      "Total rollback passes.",
		}, []string{"workflow_id"}),
		checkpointSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagaflow",
			Name:      "checkpoint_saves_total",
			Help:      "Checkpoint save attempts by outcome.",
		}, []string{"workflow_id", "status"}),
	}
}

// taskStarted marks a task dispatch.
func (m *Metrics) taskStarted() {
	if m == nil {
		return
	}
	m.tasksInflight.Inc()
}

// taskFinished records a task outcome and latency.
func (m *Metrics) taskFinished(workflowID, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksInflight.Dec()
	m.taskDuration.WithLabelValues(workflowID, status).Observe(float64(elapsed.Milliseconds()))
	m.tasksTotal.WithLabelValues(workflowID, status).Inc()
}

// rollback records a rollback pass.
func (m *Metrics) rollback(workflowID string) {
	if m == nil {
		return
	}
	m.rollbacksTotal.WithLabelValues(workflowID).Inc()
}

// checkpointSave records a checkpoint save attempt.
func (m *Metrics) checkpointSave(workflowID string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.checkpointSaves.WithLabelValues(workflowID, status).Inc()
}
