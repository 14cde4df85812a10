// Package logger provides advisor-specific logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// AdvisorLogger provides dedicated logging for advisor model calls.
type AdvisorLogger struct {
	*logrus.Entry
}

// NewAdvisorLogger creates a new advisor logger.
func NewAdvisorLogger(baseLogger *logrus.Logger) *AdvisorLogger {
	return &AdvisorLogger{
		Entry: baseLogger.WithField("component", "advisor"),
	}
}

// LogAdvisorRequest logs a completed advisor call.
func (al *AdvisorLogger) LogAdvisorRequest(task, model string, cacheHit bool, latencyMs float64, responseChars int) {
	al.WithFields(logrus.Fields{
		"task":           task,
		"model":          model,
		"cache_hit":      cacheHit,
		"latency_ms":     latencyMs,
		"response_chars": responseChars,
	}).Info("Advisor request completed")
}

// LogAdvisorError logs a failed advisor call.
func (al *AdvisorLogger) LogAdvisorError(task, model, reason string) {
	al.WithFields(logrus.Fields{
		"task":   task,
		"model":  model,
		"reason": reason,
	}).Error("Advisor request failed")
}

// LogModelSelection logs which model serves a task.
func (al *AdvisorLogger) LogModelSelection(task, model string, override bool) {
	al.WithFields(logrus.Fields{
		"task":     task,
		"model":    model,
		"override": override,
	}).Debug("Advisor model selected")
}
