package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-lab/internal/metrics"
	"github.com/yourusername/strategy-lab/internal/models"
)

// History page bounds.
const (
	defaultHistoryLimit = 40
	maxHistoryLimit     = 200
)

// History returns the most recent runs, newest first. A zero limit uses
// the default page size.
func (s *StrategyService) History(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	if limit < 1 || limit > maxHistoryLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", models.ErrInvalidLimit, maxHistoryLimit)
	}
	return s.store.GetRecentRuns(ctx, limit)
}

// GetRun returns one recorded run by id.
func (s *StrategyService) GetRun(ctx context.Context, runID int64) (*models.Run, error) {
	if runID <= 0 {
		return nil, models.ErrInvalidRunID
	}
	return s.store.GetRunByID(ctx, runID)
}

// StatsReport combines run history and feedback aggregates.
type StatsReport struct {
	Runs     *models.RunStats      `json:"runs"`
	Feedback *models.FeedbackStats `json:"feedback"`
}

// Stats aggregates store-wide run and feedback statistics.
func (s *StrategyService) Stats(ctx context.Context) (*StatsReport, error) {
	runStats, err := s.store.GetRunStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get run stats: %w", err)
	}
	feedbackStats, err := s.store.GetFeedbackStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback stats: %w", err)
	}
	return &StatsReport{Runs: runStats, Feedback: feedbackStats}, nil
}

// FeedbackRequest records a user rating against a run.
type FeedbackRequest struct {
	RunID    int64  `json:"run_id" validate:"required,gt=0"`
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Comments string `json:"comments"`
}

// Validate checks the rating bounds and run reference.
func (r FeedbackRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return requestError(err)
	}
	return nil
}

// RecordFeedback validates and persists one feedback row against an
// existing run.
func (s *StrategyService) RecordFeedback(ctx context.Context, req FeedbackRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	feedback := &models.Feedback{
		RunID:    req.RunID,
		Rating:   req.Rating,
		Comments: strings.TrimSpace(req.Comments),
	}
	id, err := s.store.RecordFeedback(ctx, feedback)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			metrics.RecordStoreError()
		}
		return 0, err
	}
	metrics.RecordFeedback()

	s.logger.WithFields(logrus.Fields{
		"feedback_id": id,
		"run_id":      req.RunID,
		"rating":      req.Rating,
	}).Info("Feedback recorded")
	return id, nil
}
