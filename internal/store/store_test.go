package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/yourusername/strategy-lab/internal/config"
	"github.com/yourusername/strategy-lab/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	cfg := &config.StoreConfig{
		Path:          filepath.Join(t.TempDir(), "test.sqlite3"),
		BusyTimeoutMS: 5000,
	}
	s, err := NewSQLiteStore(cfg, nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	})
	return s
}

func sampleRun(runType models.RunType) *models.Run {
	return &models.Run{
		RunType:      runType,
		StrategyCode: "class SampleStrategy(IStrategy):\n    pass\n",
		Timerange:    "20240101-20240301",
		Timeframe:    "5m",
		Pairs:        "BTC/USDT;ETH/USDT",
	}
}

func TestSQLiteStoreOpen(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestRecordRunRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun(models.RunTypeManualBacktest)
	run.UserGoal = "maximize expectancy"
	run.Iteration = 2
	run.ResultFile = "data/backtest_results/backtest_SampleStrategy_20240101_000000.json"
	run.AnalysisText = "looks fine"
	run.BacktestSummary = map[string]interface{}{"trades_detected": 3}
	run.TradeForensics = map[string]interface{}{"winrate": 0.5}
	run.Extra = map[string]interface{}{"stdout_tail": "ok"}

	id, err := s.RecordRun(ctx, run)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	got, err := s.GetRunByID(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.RunType != models.RunTypeManualBacktest {
		t.Fatalf("unexpected run type %s", got.RunType)
	}
	if got.Timestamp <= 0 {
		t.Fatalf("timestamp must be set, got %d", got.Timestamp)
	}
	if got.StrategyHash == "" {
		t.Fatalf("strategy hash must be computed on insert")
	}
	if got.UserGoal != "maximize expectancy" || got.Iteration != 2 {
		t.Fatalf("unexpected fields: %+v", got)
	}

	summary, ok := got.BacktestSummary.(map[string]interface{})
	if !ok {
		t.Fatalf("expected decoded summary, got %T", got.BacktestSummary)
	}
	if summary["trades_detected"] != float64(3) {
		t.Fatalf("unexpected summary payload: %v", summary)
	}
	if got.MarketContext != nil {
		t.Fatalf("absent blob must stay nil, got %v", got.MarketContext)
	}
}

func TestRecordRunValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.RecordRun(ctx, &models.Run{RunType: "manual_backtest"}); !errors.Is(err, models.ErrEmptyStrategyCode) {
		t.Fatalf("expected ErrEmptyStrategyCode, got %v", err)
	}
	if _, err := s.RecordRun(ctx, &models.Run{StrategyCode: "class X(IStrategy):"}); !errors.Is(err, models.ErrEmptyRunType) {
		t.Fatalf("expected ErrEmptyRunType, got %v", err)
	}
}

func TestHashStabilityAndLatestForHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleRun(models.RunTypeManualBacktest)
	second := sampleRun(models.RunTypeRefineFinal)
	// Surrounding whitespace must not change the identity hash.
	second.StrategyCode = "\n\n" + first.StrategyCode + "\n"

	firstID, err := s.RecordRun(ctx, first)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	secondID, err := s.RecordRun(ctx, second)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	a, _ := s.GetRunByID(ctx, firstID)
	b, _ := s.GetRunByID(ctx, secondID)
	if a.StrategyHash != b.StrategyHash {
		t.Fatalf("hash must ignore surrounding whitespace: %s vs %s", a.StrategyHash, b.StrategyHash)
	}

	latest, err := s.GetLatestRunForHash(ctx, a.StrategyHash)
	if err != nil {
		t.Fatalf("latest lookup failed: %v", err)
	}
	if latest.ID != secondID {
		t.Fatalf("expected newest run %d, got %d", secondID, latest.ID)
	}

	if _, err := s.GetLatestRunForHash(ctx, "  "); !errors.Is(err, models.ErrEmptyStrategyHash) {
		t.Fatalf("expected ErrEmptyStrategyHash, got %v", err)
	}
	if _, err := s.GetLatestRunForHash(ctx, "deadbeef"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown hash, got %v", err)
	}
}

func TestGetRunByIDErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetRunByID(ctx, 0); !errors.Is(err, models.ErrInvalidRunID) {
		t.Fatalf("expected ErrInvalidRunID, got %v", err)
	}
	if _, err := s.GetRunByID(ctx, 999); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRecentRunsOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.RecordRun(ctx, sampleRun(models.RunTypeScenarioBacktest))
		if err != nil {
			t.Fatalf("record failed: %v", err)
		}
		ids = append(ids, id)
	}

	runs, err := s.GetRecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("recent runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("expected newest first, got %d then %d", runs[0].ID, runs[1].ID)
	}

	all, err := s.GetRecentRuns(ctx, 0)
	if err != nil {
		t.Fatalf("recent runs with default limit failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected all 3 runs under default limit, got %d", len(all))
	}
}

func TestGetRunStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.GetRunStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if empty.TotalRuns != 0 || empty.LastTS != nil {
		t.Fatalf("unexpected empty stats: %+v", empty)
	}

	for i := 0; i < 2; i++ {
		if _, err := s.RecordRun(ctx, sampleRun(models.RunTypeManualBacktest)); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	if _, err := s.RecordRun(ctx, sampleRun(models.RunTypeRefineIteration)); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	stats, err := s.GetRunStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalRuns != 3 {
		t.Fatalf("expected 3 runs, got %d", stats.TotalRuns)
	}
	if stats.LastTS == nil || *stats.LastTS <= 0 {
		t.Fatalf("expected last ts, got %v", stats.LastTS)
	}
	if stats.ByType["manual_backtest"] != 2 || stats.ByType["refine_iteration"] != 1 {
		t.Fatalf("unexpected by_type: %v", stats.ByType)
	}
}

func TestFeedbackLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	runID, err := s.RecordRun(ctx, sampleRun(models.RunTypeManualBacktest))
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if _, err := s.RecordFeedback(ctx, &models.Feedback{RunID: runID, Rating: 9}); !errors.Is(err, models.ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	if _, err := s.RecordFeedback(ctx, &models.Feedback{RunID: 12345, Rating: 4}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing run, got %v", err)
	}

	if _, err := s.RecordFeedback(ctx, &models.Feedback{RunID: runID, Rating: 4, Comments: "solid"}); err != nil {
		t.Fatalf("feedback failed: %v", err)
	}
	if _, err := s.RecordFeedback(ctx, &models.Feedback{RunID: runID, Rating: 5, Comments: "   "}); err != nil {
		t.Fatalf("feedback failed: %v", err)
	}

	stats, err := s.GetFeedbackStats(ctx)
	if err != nil {
		t.Fatalf("feedback stats failed: %v", err)
	}
	if stats.TotalFeedback != 2 {
		t.Fatalf("expected 2 feedback rows, got %d", stats.TotalFeedback)
	}
	if stats.AverageRating != 4.5 {
		t.Fatalf("expected average 4.5, got %f", stats.AverageRating)
	}
	if stats.FeedbackWithComments != 1 {
		t.Fatalf("blank comments must not count, got %d", stats.FeedbackWithComments)
	}
	if stats.RatingDistribution[4] != 1 || stats.RatingDistribution[5] != 1 || stats.RatingDistribution[1] != 0 {
		t.Fatalf("unexpected distribution: %v", stats.RatingDistribution)
	}
}

func TestParamSuggestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleRun(models.RunTypeManualBacktest)
	first.Timerange = "20230101-20230301"
	first.Pairs = "BTC/USDT;ETH/USDT"
	second := sampleRun(models.RunTypeManualBacktest)
	second.Timerange = "20240101-20240301"
	second.Timeframe = "1h"
	second.Pairs = "BTC/USDT, SOL/USDT"

	if _, err := s.RecordRun(ctx, first); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := s.RecordRun(ctx, second); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	out, err := s.GetRecentParamSuggestions(ctx, 200)
	if err != nil {
		t.Fatalf("suggestions failed: %v", err)
	}
	if len(out.Timeranges) != 2 || out.Timeranges[0] != "20240101-20240301" {
		t.Fatalf("expected newest timerange first, got %v", out.Timeranges)
	}
	if len(out.Pairs) != 3 {
		t.Fatalf("expected deduped pairs across separators, got %v", out.Pairs)
	}
	if out.Pairs[0] != "BTC/USDT" || out.Pairs[1] != "SOL/USDT" || out.Pairs[2] != "ETH/USDT" {
		t.Fatalf("unexpected pair order: %v", out.Pairs)
	}

	if _, err := s.GetRecentParamSuggestions(ctx, 0); !errors.Is(err, models.ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit for 0, got %v", err)
	}
	if _, err := s.GetRecentParamSuggestions(ctx, 6000); !errors.Is(err, models.ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit for 6000, got %v", err)
	}
}

func TestBlobDegradeOnCorruptJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordRun(ctx, sampleRun(models.RunTypeManualBacktest))
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE strategy_runs SET backtest_summary_json = '{broken' WHERE id = ?`, id); err != nil {
		t.Fatalf("corrupt update failed: %v", err)
	}

	got, err := s.GetRunByID(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	summary, ok := got.BacktestSummary.(map[string]interface{})
	if !ok || len(summary) != 0 {
		t.Fatalf("corrupt blob must degrade to empty map, got %v", got.BacktestSummary)
	}
}
