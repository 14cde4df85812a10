package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/yourusername/strategy-lab/internal/models"
)

// RecordFeedback inserts a rating for an existing run and returns the
// feedback id. The referenced run is checked first so a bad run id surfaces
// as a not-found error instead of a constraint violation.
func (s *SQLiteStore) RecordFeedback(ctx context.Context, feedback *models.Feedback) (int64, error) {
	if feedback == nil {
		return 0, fmt.Errorf("feedback is required")
	}
	if err := feedback.Validate(); err != nil {
		return 0, err
	}
	defer observeQuery("record_feedback")()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM strategy_runs WHERE id = ?`, feedback.RunID).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("strategy run not found: %d: %w", feedback.RunID, models.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check run: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_feedback (ts, run_id, rating, comments) VALUES (?, ?, ?, ?)`,
		time.Now().Unix(),
		feedback.RunID,
		feedback.Rating,
		nullIfEmpty(strings.TrimSpace(feedback.Comments)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record feedback: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read feedback id: %w", err)
	}
	return id, nil
}

// GetFeedbackStats aggregates all recorded feedback
func (s *SQLiteStore) GetFeedbackStats(ctx context.Context) (*models.FeedbackStats, error) {
	defer observeQuery("get_feedback_stats")()

	stats := &models.FeedbackStats{
		RatingDistribution: map[int]int64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM run_feedback`).Scan(&stats.TotalFeedback); err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(rating) FROM run_feedback`).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to average ratings: %w", err)
	}
	if avg.Valid {
		stats.AverageRating = math.Round(avg.Float64*100) / 100
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM run_feedback WHERE comments IS NOT NULL AND TRIM(comments) != ''`,
	).Scan(&stats.FeedbackWithComments)
	if err != nil {
		return nil, fmt.Errorf("failed to count commented feedback: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT rating, COUNT(1) FROM run_feedback GROUP BY rating ORDER BY rating`)
	if err != nil {
		return nil, fmt.Errorf("failed to count ratings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rating int
		var count int64
		if err := rows.Scan(&rating, &count); err != nil {
			return nil, fmt.Errorf("failed to scan rating count: %w", err)
		}
		if rating >= 1 && rating <= 5 {
			stats.RatingDistribution[rating] = count
		}
	}
	return stats, rows.Err()
}
