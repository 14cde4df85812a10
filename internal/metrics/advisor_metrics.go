// Package metrics defines advisor and job metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Advisor counter vectors
var (
	AdvisorRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "advisor_requests_total",
		Help:      "Total number of advisor requests by task, model and cache outcome",
	}, []string{"task", "model", "cache"})

	AdvisorErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "advisor_errors_total",
		Help:      "Total number of failed advisor requests by task",
	}, []string{"task"})
)

// Advisor histogram vectors
var (
	AdvisorRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "strategy_lab",
		Name:      "advisor_request_duration_seconds",
		Help:      "Duration of advisor requests in seconds by task",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"task"})
)

// Job counter vectors
var (
	JobsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "jobs_completed_total",
		Help:      "Total number of finished jobs by kind and terminal status",
	}, []string{"kind", "status"})
)

// RecordAdvisorRequest records an advisor request.
func RecordAdvisorRequest(task, model string, cacheHit bool, durationSeconds float64) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	AdvisorRequestsTotal.WithLabelValues(task, model, cache).Inc()
	AdvisorRequestDuration.WithLabelValues(task).Observe(durationSeconds)
}

// RecordAdvisorError records a failed advisor request.
func RecordAdvisorError(task string) {
	AdvisorErrorsTotal.WithLabelValues(task).Inc()
}

// RecordJobCompleted records a job reaching a terminal status.
// status should be one of: "succeeded", "failed"
func RecordJobCompleted(kind, status string) {
	JobsCompletedTotal.WithLabelValues(kind, status).Inc()
}
