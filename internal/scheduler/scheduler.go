// Package scheduler runs the periodic housekeeping that keeps the lab's
// scratch files, result archive, and job registry bounded.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-lab/internal/backtest"
	"github.com/yourusername/strategy-lab/internal/jobs"
	"github.com/yourusername/strategy-lab/internal/metrics"
)

// Scheduler manages the recurring housekeeping job
type Scheduler struct {
	cron         *cron.Cron
	runner       *backtest.Runner
	registry     *jobs.Registry
	jobRetention time.Duration
	logger       *logrus.Logger
	mu           sync.RWMutex
	isRunning    bool
	jobIDs       []cron.EntryID
}

// NewScheduler creates a new scheduler
func NewScheduler(runner *backtest.Runner, registry *jobs.Registry, jobRetention time.Duration, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		cron:         cron.New(cron.WithLocation(time.UTC)),
		runner:       runner,
		registry:     registry,
		jobRetention: jobRetention,
		logger:       logger,
		jobIDs:       make([]cron.EntryID, 0),
	}
}

// ScheduleHousekeeping schedules the cleanup pass on the given cron
// expression.
func (s *Scheduler) ScheduleHousekeeping(cronExpression string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	entryID, err := s.cron.AddFunc(cronExpression, s.runHousekeeping)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("schedule", cronExpression).Info("Scheduled housekeeping job")

	return nil
}

// runHousekeeping performs one cleanup pass. Each step tolerates partial
// failure; the pass never aborts early.
func (s *Scheduler) runHousekeeping() {
	scratch := s.runner.CleanupScratch()
	results := s.runner.CleanupResults()
	pruned := s.registry.Prune(s.jobRetention)

	if scratch > 0 {
		metrics.RecordScratchRemoved(scratch)
	}

	s.logger.WithFields(logrus.Fields{
		"scratch_removed": scratch,
		"results_removed": results,
		"jobs_pruned":     pruned,
	}).Info("Housekeeping pass completed")
}

// RunOnce triggers a single housekeeping pass outside the schedule.
func (s *Scheduler) RunOnce() {
	s.runHousekeeping()
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop gracefully stops the scheduler, waiting for a pass in flight.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("Scheduler stopped")

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled housekeeping run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			nextTime := entry.Next
			if nextRun.IsZero() || nextTime.Before(nextRun) {
				nextRun = nextTime
			}
		}
	}

	return nextRun
}
