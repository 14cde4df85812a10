// Package logger provides job lifecycle logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// JobLogger provides dedicated logging for async job lifecycle events.
type JobLogger struct {
	*logrus.Entry
}

// NewJobLogger creates a new job logger.
func NewJobLogger(baseLogger *logrus.Logger) *JobLogger {
	return &JobLogger{
		Entry: baseLogger.WithField("component", "jobs"),
	}
}

// LogJobCreated logs a job accepted into the registry.
func (jl *JobLogger) LogJobCreated(jobID, kind string) {
	jl.WithFields(logrus.Fields{
		"job_id": jobID,
		"kind":   kind,
	}).Info("Job created")
}

// LogJobSucceeded logs a job that finished with a result.
func (jl *JobLogger) LogJobSucceeded(jobID, kind string, durationSec float64) {
	jl.WithFields(logrus.Fields{
		"job_id":       jobID,
		"kind":         kind,
		"duration_sec": durationSec,
	}).Info("Job succeeded")
}

// LogJobFailed logs a job that ended in error.
func (jl *JobLogger) LogJobFailed(jobID, kind, reason string) {
	jl.WithFields(logrus.Fields{
		"job_id": jobID,
		"kind":   kind,
		"reason": reason,
	}).Error("Job failed")
}

// LogJobPanic logs a recovered panic inside a job worker.
func (jl *JobLogger) LogJobPanic(jobID, kind string, recovered interface{}) {
	jl.WithFields(logrus.Fields{
		"job_id":    jobID,
		"kind":      kind,
		"recovered": recovered,
	}).Error("Job worker panicked")
}

// LogJobsPruned logs a retention sweep over terminal jobs.
func (jl *JobLogger) LogJobsPruned(removed, remaining int) {
	jl.WithFields(logrus.Fields{
		"removed":   removed,
		"remaining": remaining,
	}).Info("Terminal jobs pruned")
}
