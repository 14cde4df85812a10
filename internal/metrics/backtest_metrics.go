// Package metrics defines backtest engine metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Engine counter vectors
var (
	EngineCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "engine_commands_total",
		Help:      "Total number of engine subprocess invocations by command and status",
	}, []string{"command", "status"})

	RunsByTypeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "runs_by_type_total",
		Help:      "Total number of recorded runs by run type",
	}, []string{"run_type"})
)

// Engine histogram vectors
var (
	TradesDetected = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "strategy_lab",
		Name:      "trades_detected",
		Help:      "Trades detected per summarized backtest result by run type",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"run_type"})
)

// RecordEngineCommand records an engine subprocess invocation.
// command should be one of: "backtest", "download-data"
// status should be one of: "success", "failure", "timeout"
func RecordEngineCommand(command, status string) {
	EngineCommandsTotal.WithLabelValues(command, status).Inc()
}

// RecordRunByType records a recorded run by type.
func RecordRunByType(runType string) {
	RunsByTypeTotal.WithLabelValues(runType).Inc()
}

// ObserveTradesDetected records the trade count of a summarized result.
func ObserveTradesDetected(runType string, count float64) {
	TradesDetected.WithLabelValues(runType).Observe(count)
}
