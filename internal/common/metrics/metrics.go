// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// SearchTotal counts answered searches by the source that produced them (RAG, WEB, CAFE, NONE).
	SearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outing_search_total",
			Help: "Facility searches by result source",
		},
		[]string{"source"},
	)

	SearchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outing_search_failures_total",
			Help: "Facility searches that could not be answered, by outcome",
		},
		[]string{"outcome"},
	)

	GeocodeAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outing_geocode_attempts",
			Help:    "Geocoding calls spent per place resolution",
			Buckets: []float64{1, 2, 3},
		},
	)

	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outing_fallback_total",
			Help: "Secondary provider invocations by result (hit, empty, error)",
		},
		[]string{"provider", "result"},
	)
)

// JobTracker wraps the worker_jobs_* vectors for one task type.
type JobTracker struct {
	taskType string
}

func ForTask(taskType string) JobTracker {
	return JobTracker{taskType: taskType}
}

// Start marks a job active and returns a func that records its duration and outcome.
// errorCode is empty on success.
func (j JobTracker) Start() func(errorCode string) {
	WorkerJobsActive.WithLabelValues(j.taskType).Inc()
	timer := prometheus.NewTimer(WorkerJobDuration.WithLabelValues(j.taskType))

	return func(errorCode string) {
		timer.ObserveDuration()
		WorkerJobsActive.WithLabelValues(j.taskType).Dec()
		if errorCode == "" {
			WorkerJobsCompleted.WithLabelValues(j.taskType).Inc()
			return
		}
		WorkerJobsFailed.WithLabelValues(j.taskType, errorCode).Inc()
	}
}
