// Package logger provides run-specific logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// RunLogger provides dedicated logging for backtest run operations.
type RunLogger struct {
	*logrus.Entry
}

// NewRunLogger creates a new run logger.
func NewRunLogger(baseLogger *logrus.Logger) *RunLogger {
	return &RunLogger{
		Entry: baseLogger.WithField("component", "runs"),
	}
}

// LogBacktestStarted logs the start of an engine run.
func (rl *RunLogger) LogBacktestStarted(strategyClass, timerange, timeframe string) {
	rl.WithFields(logrus.Fields{
		"strategy_class": strategyClass,
		"timerange":      timerange,
		"timeframe":      timeframe,
	}).Info("Backtest started")
}

// LogBacktestCompleted logs a finished engine run.
func (rl *RunLogger) LogBacktestCompleted(strategyClass, resultFile string, tradesDetected int, durationSec float64) {
	rl.WithFields(logrus.Fields{
		"strategy_class":  strategyClass,
		"result_file":     resultFile,
		"trades_detected": tradesDetected,
		"duration_sec":    durationSec,
	}).Info("Backtest completed")
}

// LogForensicsComputed logs the outcome of forensics computation.
func (rl *RunLogger) LogForensicsComputed(tradesDetected, tradesScored int, insufficient bool) {
	rl.WithFields(logrus.Fields{
		"trades_detected": tradesDetected,
		"trades_scored":   tradesScored,
		"insufficient":    insufficient,
	}).Info("Trade forensics computed")
}

// LogRunRecorded logs a run persisted to the performance store.
func (rl *RunLogger) LogRunRecorded(runID int64, runType, strategyClass string) {
	rl.WithFields(logrus.Fields{
		"run_id":         runID,
		"run_type":       runType,
		"strategy_class": strategyClass,
	}).Info("Run recorded")
}

// LogRunStoreError logs a persistence failure that did not abort the
// operation.
func (rl *RunLogger) LogRunStoreError(runType, reason string) {
	rl.WithFields(logrus.Fields{
		"run_type": runType,
		"reason":   reason,
	}).Warn("Run record failed")
}

// LogRefineIteration logs one pass of the refinement loop.
func (rl *RunLogger) LogRefineIteration(iteration, maxIterations int, strategyClass string) {
	rl.WithFields(logrus.Fields{
		"iteration":      iteration,
		"max_iterations": maxIterations,
		"strategy_class": strategyClass,
	}).Info("Refine iteration completed")
}

// LogScenarioCompleted logs one scenario of a multi-scenario analysis.
func (rl *RunLogger) LogScenarioCompleted(scenarioName, strategyClass string, tradesDetected int) {
	rl.WithFields(logrus.Fields{
		"scenario_name":   scenarioName,
		"strategy_class":  strategyClass,
		"trades_detected": tradesDetected,
	}).Info("Scenario backtest completed")
}
