// Package store persists backtest runs and user feedback in an embedded
// SQLite database.
package store

import (
	"context"

	"github.com/yourusername/strategy-lab/internal/models"
)

// RunStore defines the interface for run history access
type RunStore interface {
	RecordRun(ctx context.Context, run *models.Run) (int64, error)
	GetRunByID(ctx context.Context, runID int64) (*models.Run, error)
	GetRecentRuns(ctx context.Context, limit int) ([]*models.Run, error)
	GetLatestRunForHash(ctx context.Context, strategyHash string) (*models.Run, error)
	GetRunStats(ctx context.Context) (*models.RunStats, error)
	GetRecentParamSuggestions(ctx context.Context, limit int) (*models.ParamSuggestions, error)
}

// FeedbackStore defines the interface for run feedback access
type FeedbackStore interface {
	RecordFeedback(ctx context.Context, feedback *models.Feedback) (int64, error)
	GetFeedbackStats(ctx context.Context) (*models.FeedbackStats, error)
}

// PerformanceStore is the full persistence surface of the lab.
type PerformanceStore interface {
	RunStore
	FeedbackStore
	Ping(ctx context.Context) error
	Close() error
}
