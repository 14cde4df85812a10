package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/strategy-lab/internal/models"
)

const errScanRun = "failed to scan run: %w"

// runColumns is the select list matching scanRun's scan order.
const runColumns = `id, ts, run_type, strategy_hash, strategy_code, user_goal,
	scenario_name, iteration, timerange, timeframe, pairs, result_file,
	model_analysis, model_risk, analysis_text, risk_text,
	backtest_summary_json, trade_forensics_json, market_context_json, extra_json`

// DefaultRecentRunsLimit bounds history listings when no limit is given.
const DefaultRecentRunsLimit = 20

// DefaultSuggestionLimit is how many recent runs feed parameter suggestions.
const DefaultSuggestionLimit = 200

// RecordRun inserts a run and returns its id. The strategy hash is computed
// here so a row can never carry a hash that disagrees with its code.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *models.Run) (int64, error) {
	if run == nil {
		return 0, fmt.Errorf("run is required")
	}
	if err := run.Validate(); err != nil {
		return 0, err
	}
	defer observeQuery("record_run")()

	hash, err := models.HashStrategyCode(run.StrategyCode)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO strategy_runs (
			ts, run_type, strategy_hash, strategy_code, user_goal,
			scenario_name, iteration, timerange, timeframe, pairs,
			result_file, model_analysis, model_risk,
			analysis_text, risk_text,
			backtest_summary_json, trade_forensics_json, market_context_json, extra_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		time.Now().Unix(),
		strings.TrimSpace(string(run.RunType)),
		hash,
		run.StrategyCode,
		nullIfEmpty(run.UserGoal),
		nullIfEmpty(run.ScenarioName),
		nullIfZero(run.Iteration),
		nullIfEmpty(run.Timerange),
		nullIfEmpty(run.Timeframe),
		nullIfEmpty(run.Pairs),
		nullIfEmpty(run.ResultFile),
		nullIfEmpty(run.ModelAnalysis),
		nullIfEmpty(run.ModelRisk),
		nullIfEmpty(run.AnalysisText),
		nullIfEmpty(run.RiskText),
		marshalBlob(run.BacktestSummary),
		marshalBlob(run.TradeForensics),
		marshalBlob(run.MarketContext),
		marshalBlob(run.Extra),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	return id, nil
}

// GetRunByID retrieves a run by id
func (s *SQLiteStore) GetRunByID(ctx context.Context, runID int64) (*models.Run, error) {
	if runID <= 0 {
		return nil, models.ErrInvalidRunID
	}
	defer observeQuery("get_run_by_id")()

	query := `SELECT ` + runColumns + ` FROM strategy_runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRecentRuns retrieves the newest runs, most recent first.
func (s *SQLiteStore) GetRecentRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = DefaultRecentRunsLimit
	}
	defer observeQuery("get_recent_runs")()

	query := `SELECT ` + runColumns + ` FROM strategy_runs ORDER BY ts DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf(errScanRun, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetLatestRunForHash retrieves the newest run recorded for a strategy hash.
func (s *SQLiteStore) GetLatestRunForHash(ctx context.Context, strategyHash string) (*models.Run, error) {
	hash := strings.TrimSpace(strategyHash)
	if hash == "" {
		return nil, models.ErrEmptyStrategyHash
	}
	defer observeQuery("get_latest_run_for_hash")()

	query := `SELECT ` + runColumns + ` FROM strategy_runs WHERE strategy_hash = ? ORDER BY ts DESC, id DESC LIMIT 1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, hash))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run by hash: %w", err)
	}
	return run, nil
}

// GetRunStats aggregates the run history
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*models.RunStats, error) {
	defer observeQuery("get_run_stats")()

	stats := &models.RunStats{ByType: make(map[string]int64)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM strategy_runs`).Scan(&stats.TotalRuns); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	var lastTS sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM strategy_runs`).Scan(&lastTS); err != nil {
		return nil, fmt.Errorf("failed to read last run ts: %w", err)
	}
	if lastTS.Valid {
		stats.LastTS = &lastTS.Int64
	}

	rows, err := s.db.QueryContext(ctx, `SELECT run_type, COUNT(1) FROM strategy_runs GROUP BY run_type ORDER BY COUNT(1) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runType string
		var count int64
		if err := rows.Scan(&runType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan run type count: %w", err)
		}
		stats.ByType[runType] = count
	}
	return stats, rows.Err()
}

// GetRecentParamSuggestions collects distinct timeranges, timeframes, and
// pairs from the newest runs, first occurrence first.
func (s *SQLiteStore) GetRecentParamSuggestions(ctx context.Context, limit int) (*models.ParamSuggestions, error) {
	if limit < 1 || limit > 5000 {
		return nil, models.ErrInvalidLimit
	}
	defer observeQuery("get_recent_param_suggestions")()

	query := `SELECT timerange, timeframe, pairs FROM strategy_runs ORDER BY ts DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query param suggestions: %w", err)
	}
	defer rows.Close()

	out := &models.ParamSuggestions{
		Timeranges: []string{},
		Timeframes: []string{},
		Pairs:      []string{},
	}
	seenTimeranges := make(map[string]bool)
	seenTimeframes := make(map[string]bool)
	seenPairs := make(map[string]bool)

	for rows.Next() {
		var timerange, timeframe, pairs sql.NullString
		if err := rows.Scan(&timerange, &timeframe, &pairs); err != nil {
			return nil, fmt.Errorf("failed to scan param suggestion: %w", err)
		}
		addUnique(&out.Timeranges, seenTimeranges, timerange.String)
		addUnique(&out.Timeframes, seenTimeframes, timeframe.String)
		for _, part := range strings.Split(strings.ReplaceAll(pairs.String, ";", ","), ",") {
			addUnique(&out.Pairs, seenPairs, part)
		}
	}
	return out, rows.Err()
}

func addUnique(dst *[]string, seen map[string]bool, v string) {
	v = strings.TrimSpace(v)
	if v == "" || seen[v] {
		return
	}
	seen[v] = true
	*dst = append(*dst, v)
}

func nullIfEmpty(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullIfZero(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

// marshalBlob serializes an optional document column. A nil value stays NULL;
// a value that cannot marshal is stored as NULL rather than failing the run
// insert.
func marshalBlob(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

// unmarshalBlob decodes a stored document column. Unreadable JSON degrades to
// an empty map so one corrupt row cannot break history listings.
func unmarshalBlob(raw sql.NullString) interface{} {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(raw.String), &decoded); err != nil {
		return map[string]interface{}{}
	}
	return decoded
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	run := &models.Run{}
	var userGoal, scenarioName, timerange, timeframe, pairs sql.NullString
	var resultFile, modelAnalysis, modelRisk, analysisText, riskText sql.NullString
	var summaryJSON, forensicsJSON, marketContextJSON, extraJSON sql.NullString
	var iteration sql.NullInt64

	err := row.Scan(
		&run.ID, &run.Timestamp, &run.RunType, &run.StrategyHash, &run.StrategyCode,
		&userGoal, &scenarioName, &iteration, &timerange, &timeframe, &pairs,
		&resultFile, &modelAnalysis, &modelRisk, &analysisText, &riskText,
		&summaryJSON, &forensicsJSON, &marketContextJSON, &extraJSON,
	)
	if err != nil {
		return nil, err
	}

	run.UserGoal = userGoal.String
	run.ScenarioName = scenarioName.String
	run.Iteration = int(iteration.Int64)
	run.Timerange = timerange.String
	run.Timeframe = timeframe.String
	run.Pairs = pairs.String
	run.ResultFile = resultFile.String
	run.ModelAnalysis = modelAnalysis.String
	run.ModelRisk = modelRisk.String
	run.AnalysisText = analysisText.String
	run.RiskText = riskText.String
	run.BacktestSummary = unmarshalBlob(summaryJSON)
	run.TradeForensics = unmarshalBlob(forensicsJSON)
	run.MarketContext = unmarshalBlob(marketContextJSON)
	run.Extra = unmarshalBlob(extraJSON)

	return run, nil
}
