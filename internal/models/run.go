package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RunType identifies which analytics cycle produced a run.
type RunType string

const (
	RunTypeManualBacktest         RunType = "manual_backtest"
	RunTypeScenarioBacktest       RunType = "scenario_backtest"
	RunTypeRefineIteration        RunType = "refine_iteration"
	RunTypeRefineFinal            RunType = "refine_final"
	RunTypeScenarioAnalysis       RunType = "scenario_analysis"
	RunTypeSingleBacktestAnalysis RunType = "single_backtest_analysis"
)

// Run represents one persisted analytics cycle. Rows are insert-only: a run
// is never updated, only superseded by newer runs with the same hash.
type Run struct {
	ID            int64   `db:"id" json:"id"`
	Timestamp     int64   `db:"ts" json:"ts"`
	RunType       RunType `db:"run_type" json:"run_type" validate:"required"`
	StrategyHash  string  `db:"strategy_hash" json:"strategy_hash"`
	StrategyCode  string  `db:"strategy_code" json:"strategy_code" validate:"required"`
	UserGoal      string  `db:"user_goal" json:"user_goal,omitempty"`
	ScenarioName  string  `db:"scenario_name" json:"scenario_name,omitempty"`
	Iteration     int     `db:"iteration" json:"iteration,omitempty"`
	Timerange     string  `db:"timerange" json:"timerange,omitempty"`
	Timeframe     string  `db:"timeframe" json:"timeframe,omitempty"`
	Pairs         string  `db:"pairs" json:"pairs,omitempty"`
	ResultFile    string  `db:"result_file" json:"result_file,omitempty"`
	ModelAnalysis string  `db:"model_analysis" json:"model_analysis,omitempty"`
	ModelRisk     string  `db:"model_risk" json:"model_risk,omitempty"`
	AnalysisText  string  `db:"analysis_text" json:"analysis_text,omitempty"`
	RiskText      string  `db:"risk_text" json:"risk_text,omitempty"`

	// Serialized as JSON text columns. On reads these hold
	// map[string]interface{} values; unreadable stored JSON degrades to an
	// empty map instead of failing the query.
	BacktestSummary interface{} `db:"backtest_summary_json" json:"backtest_summary,omitempty"`
	TradeForensics  interface{} `db:"trade_forensics_json" json:"trade_forensics,omitempty"`
	MarketContext   interface{} `db:"market_context_json" json:"market_context,omitempty"`
	Extra           interface{} `db:"extra_json" json:"extra,omitempty"`
}

// Validate performs basic validation before a run is recorded.
func (r *Run) Validate() error {
	if strings.TrimSpace(string(r.RunType)) == "" {
		return ErrEmptyRunType
	}
	if strings.TrimSpace(r.StrategyCode) == "" {
		return ErrEmptyStrategyCode
	}
	return nil
}

// HashStrategyCode returns the identity key of a strategy source blob:
// the hex SHA-256 of the whitespace-trimmed text. Byte-identical source
// always yields the same hash.
func HashStrategyCode(code string) (string, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "", ErrEmptyStrategyCode
	}
	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:]), nil
}

// Feedback is a user rating referencing exactly one recorded run.
type Feedback struct {
	ID        int64  `db:"id" json:"id"`
	Timestamp int64  `db:"ts" json:"ts"`
	RunID     int64  `db:"run_id" json:"run_id" validate:"required,gt=0"`
	Rating    int    `db:"rating" json:"rating" validate:"required,min=1,max=5"`
	Comments  string `db:"comments" json:"comments,omitempty"`
}

// Validate checks the rating bounds and run reference.
func (f *Feedback) Validate() error {
	if f.RunID <= 0 {
		return ErrInvalidRunID
	}
	if f.Rating < 1 || f.Rating > 5 {
		return ErrInvalidRating
	}
	return nil
}

// RunStats aggregates the full run history.
type RunStats struct {
	TotalRuns int64            `json:"total_runs"`
	LastTS    *int64           `json:"last_ts"`
	ByType    map[string]int64 `json:"by_type"`
}

// FeedbackStats aggregates all recorded feedback.
type FeedbackStats struct {
	TotalFeedback        int64         `json:"total_feedback"`
	AverageRating        float64       `json:"average_rating"`
	RatingDistribution   map[int]int64 `json:"rating_distribution"`
	FeedbackWithComments int64         `json:"feedback_with_comments"`
}

// ParamSuggestions lists previously used backtest parameters in
// most-recent-first order, deduplicated, for autocomplete.
type ParamSuggestions struct {
	Timeranges []string `json:"timeranges"`
	Timeframes []string `json:"timeframes"`
	Pairs      []string `json:"pairs"`
}
