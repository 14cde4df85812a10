package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	applogger "github.com/yourusername/strategy-lab/internal/logger"
	"github.com/yourusername/strategy-lab/internal/metrics"
)

// JobFunc is the unit of work a job executes. The worker passes the job so
// the func can append progress logs. A nil result with a nil error is treated
// as a failure: every successful job must produce a result object.
type JobFunc func(ctx context.Context, job *Job) (map[string]interface{}, error)

// Registry tracks all jobs by id.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	logger    *logrus.Logger
	jobLogger *applogger.JobLogger
}

// NewRegistry creates a job registry
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		jobs:      make(map[string]*Job),
		logger:    logger,
		jobLogger: applogger.NewJobLogger(logger),
	}
}

// Create registers a new job and starts a worker goroutine for it. The
// returned job is already visible to Get.
func (r *Registry) Create(ctx context.Context, kind string, fn JobFunc) *Job {
	job := newJob(uuid.New().String(), kind)

	r.mu.Lock()
	r.jobs[job.id] = job
	r.mu.Unlock()

	r.jobLogger.LogJobCreated(job.id, kind)
	metrics.IncJobsActive()

	go r.run(ctx, job, fn)
	return job
}

// Get returns a job by id.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

// List returns snapshots of all jobs, newest first.
func (r *Registry) List() []JobView {
	r.mu.RLock()
	views := make([]JobView, 0, len(r.jobs))
	for _, job := range r.jobs {
		views = append(views, job.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedTS != views[j].CreatedTS {
			return views[i].CreatedTS > views[j].CreatedTS
		}
		return views[i].ID > views[j].ID
	})
	return views
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Prune drops terminal jobs idle for longer than maxAge and returns how many
// were removed. Queued and running jobs are never touched.
func (r *Registry) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge).Unix()

	r.mu.Lock()
	removed := 0
	for id, job := range r.jobs {
		view := job.Snapshot()
		if view.Status.Terminal() && view.UpdatedTS < cutoff {
			delete(r.jobs, id)
			removed++
		}
	}
	remaining := len(r.jobs)
	r.mu.Unlock()

	if removed > 0 {
		r.jobLogger.LogJobsPruned(removed, remaining)
	}
	return removed
}

func (r *Registry) run(ctx context.Context, job *Job, fn JobFunc) {
	defer func() {
		if rec := recover(); rec != nil {
			r.jobLogger.LogJobPanic(job.id, job.kind, rec)
			job.fail(fmt.Sprintf("job panicked: %v", rec))
		}
		metrics.DecJobsActive()
		metrics.RecordJobCompleted(job.kind, string(job.Snapshot().Status))
	}()

	start := time.Now()
	job.markRunning()

	result, err := fn(ctx, job)
	if err != nil {
		r.jobLogger.LogJobFailed(job.id, job.kind, err.Error())
		job.fail(err.Error())
		return
	}
	if result == nil {
		r.jobLogger.LogJobFailed(job.id, job.kind, "job returned no result object")
		job.fail("job returned no result object")
		return
	}

	job.succeed(result)
	r.jobLogger.LogJobSucceeded(job.id, job.kind, time.Since(start).Seconds())
}
