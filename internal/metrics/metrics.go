// Package metrics provides the centralized Prometheus metrics registry for
// the strategy lab.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	RunsRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "runs_recorded_total",
		Help:      "Total number of strategy runs persisted",
	})
	FeedbackRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "feedback_recorded_total",
		Help:      "Total number of feedback entries recorded",
	})
	StoreErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "store_errors_total",
		Help:      "Total number of persistence failures",
	})
	ScratchFilesRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "scratch_files_removed_total",
		Help:      "Total number of scratch strategy files removed by housekeeping",
	})
)

// Gauge metrics
var (
	JobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "strategy_lab",
		Name:      "jobs_active",
		Help:      "Number of jobs currently queued or running",
	})
	LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "strategy_lab",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recently recorded run",
	})
)

// Histogram metrics
var (
	EngineRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "strategy_lab",
		Name:      "engine_run_duration_seconds",
		Help:      "Duration of engine subprocess runs in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800},
	})
	ForensicsDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "strategy_lab",
		Name:      "forensics_duration_seconds",
		Help:      "Duration of trade forensics computation in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	StoreQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "strategy_lab",
		Name:      "store_query_duration_seconds",
		Help:      "Duration of performance store queries in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Register counter metrics
		registry.MustRegister(RunsRecordedTotal)
		registry.MustRegister(FeedbackRecordedTotal)
		registry.MustRegister(StoreErrorsTotal)
		registry.MustRegister(ScratchFilesRemovedTotal)

		// Register gauge metrics
		registry.MustRegister(JobsActive)
		registry.MustRegister(LastRunTimestamp)

		// Register histogram metrics
		registry.MustRegister(EngineRunDuration)
		registry.MustRegister(ForensicsDuration)
		registry.MustRegister(StoreQueryDuration)

		// Register engine metrics
		registry.MustRegister(EngineCommandsTotal)
		registry.MustRegister(RunsByTypeTotal)
		registry.MustRegister(TradesDetected)

		// Register advisor and job metrics
		registry.MustRegister(AdvisorRequestsTotal)
		registry.MustRegister(AdvisorErrorsTotal)
		registry.MustRegister(AdvisorRequestDuration)
		registry.MustRegister(JobsCompletedTotal)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordRunRecorded records a persisted strategy run.
func RecordRunRecorded() {
	RunsRecordedTotal.Inc()
}

// RecordFeedback records a stored feedback entry.
func RecordFeedback() {
	FeedbackRecordedTotal.Inc()
}

// RecordStoreError records a persistence failure.
func RecordStoreError() {
	StoreErrorsTotal.Inc()
}

// RecordScratchRemoved records housekeeping removals.
func RecordScratchRemoved(count int) {
	ScratchFilesRemovedTotal.Add(float64(count))
}

// IncJobsActive increments the active jobs gauge.
func IncJobsActive() {
	JobsActive.Inc()
}

// DecJobsActive decrements the active jobs gauge.
func DecJobsActive() {
	JobsActive.Dec()
}

// UpdateLastRunTimestamp updates the last recorded run timestamp gauge.
func UpdateLastRunTimestamp(unixSeconds float64) {
	LastRunTimestamp.Set(unixSeconds)
}

// RecordEngineRunDuration records an engine run duration.
func RecordEngineRunDuration(durationSeconds float64) {
	EngineRunDuration.Observe(durationSeconds)
}

// RecordForensicsDuration records a forensics computation duration.
func RecordForensicsDuration(durationSeconds float64) {
	ForensicsDuration.Observe(durationSeconds)
}

// RecordStoreQueryDuration records a performance store query duration.
func RecordStoreQueryDuration(operation string, durationSeconds float64) {
	StoreQueryDuration.WithLabelValues(operation).Observe(durationSeconds)
}
