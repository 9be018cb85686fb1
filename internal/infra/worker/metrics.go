package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"storyline/internal/pkg/config"
)

// Run statuses recorded in worker_task_runs_total.
const (
	StatusSuccess     = "success"
	StatusFailure     = "failure"
	StatusSkipped     = "skipped"
	StatusInterrupted = "interrupted"
)

// WorkerMetrics provides Prometheus metrics for the worker.
//
// Embedded from ConfigMetrics:
//   - worker_config_load_timestamp, worker_config_validation_errors_total,
//     worker_config_fallbacks_total, worker_config_fallback_active
//
// Worker-specific:
//   - worker_task_runs_total{task, trigger, status}
//   - worker_task_duration_seconds{task}
//   - worker_task_last_success_timestamp{task}
//   - worker_task_triggers_coalesced_total{task}
//   - worker_task_items_total{task, kind}: sources synced, articles embedded,
//     articles attached and so on
type WorkerMetrics struct {
	*config.ConfigMetrics

	TaskRunsTotal          *prometheus.CounterVec
	TaskDurationSeconds    *prometheus.HistogramVec
	TaskLastSuccess        *prometheus.GaugeVec
	TriggersCoalescedTotal *prometheus.CounterVec
	TaskItemsTotal         *prometheus.CounterVec
}

// NewWorkerMetrics creates the worker metrics on the default registry.
func NewWorkerMetrics() *WorkerMetrics {
	return NewWorkerMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewWorkerMetricsWithRegistry creates the worker metrics on reg.
func NewWorkerMetricsWithRegistry(reg prometheus.Registerer) *WorkerMetrics {
	factory := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetricsWithRegistry("worker", reg),

		TaskRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_task_runs_total",
			Help: "Total number of worker task runs by trigger and status",
		}, []string{"task", "trigger", "status"}),

		TaskDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_task_duration_seconds",
			Help:    "Duration of worker task runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		}, []string{"task"}),

		TaskLastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_task_last_success_timestamp",
			Help: "Unix timestamp of the last successful run of each task",
		}, []string{"task"}),

		TriggersCoalescedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_task_triggers_coalesced_total",
			Help: "Manual triggers merged into an already queued run",
		}, []string{"task"}),

		TaskItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_task_items_total",
			Help: "Items handled by worker tasks by kind",
		}, []string{"task", "kind"}),
	}
}

// RecordRun records one finished run.
func (m *WorkerMetrics) RecordRun(task string, trigger Trigger, status string, seconds float64) {
	m.TaskRunsTotal.WithLabelValues(task, string(trigger), status).Inc()
	if status == StatusSkipped {
		return
	}
	m.TaskDurationSeconds.WithLabelValues(task).Observe(seconds)
	if status == StatusSuccess {
		m.TaskLastSuccess.WithLabelValues(task).SetToCurrentTime()
	}
}

// RecordCoalesced counts a manual trigger that found a run already queued.
func (m *WorkerMetrics) RecordCoalesced(task string) {
	m.TriggersCoalescedTotal.WithLabelValues(task).Inc()
}

// RecordItems adds n items of kind to task's counter. Zero is ignored.
//
//	metrics.RecordItems("match", "attached", result.Attached)
func (m *WorkerMetrics) RecordItems(task, kind string, n int) {
	if n <= 0 {
		return
	}
	m.TaskItemsTotal.WithLabelValues(task, kind).Add(float64(n))
}
