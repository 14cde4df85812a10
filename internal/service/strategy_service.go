// Package service composes the backtest runner, result parser, forensics
// calculator, advisor client, and performance store into the lab's
// analytics cycles.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-lab/internal/advisor"
	"github.com/yourusername/strategy-lab/internal/backtest"
	"github.com/yourusername/strategy-lab/internal/config"
	applogger "github.com/yourusername/strategy-lab/internal/logger"
	"github.com/yourusername/strategy-lab/internal/metrics"
	"github.com/yourusername/strategy-lab/internal/models"
	"github.com/yourusername/strategy-lab/internal/store"
)

// Output tail bounds. Cycle reports carry generous tails, persisted run
// rows and advisor payloads tighter ones.
const (
	resultTailBytes  = 8000
	extraTailBytes   = 4000
	payloadTailBytes = 2000
)

// ErrAdvisorNotConfigured means a cycle that needs the advisor ran without
// one wired in.
var ErrAdvisorNotConfigured = errors.New("advisor is not configured")

var validate = validator.New()

// StrategyService runs the lab's analytics cycles end to end: manual
// backtests, single-result analysis, iterative refinement, and scenario
// comparison, each recorded in the performance store.
type StrategyService struct {
	runner  *backtest.Runner
	store   store.PerformanceStore
	advisor advisor.Advisor
	cfg     *config.Config
	logger  *logrus.Logger
	runLog  *applogger.RunLogger
}

// NewStrategyService creates a new strategy service
func NewStrategyService(
	runner *backtest.Runner,
	st store.PerformanceStore,
	adv advisor.Advisor,
	cfg *config.Config,
	logger *logrus.Logger,
) *StrategyService {
	if logger == nil {
		logger = logrus.New()
	}
	return &StrategyService{
		runner:  runner,
		store:   st,
		advisor: adv,
		cfg:     cfg,
		logger:  logger,
		runLog:  applogger.NewRunLogger(logger),
	}
}

// Progress receives coarse phase updates from a running cycle so job logs
// track long engine runs. A nil Progress discards updates.
type Progress func(line string)

func (p Progress) log(line string) {
	if p != nil {
		p(line)
	}
}

// backtestOutcome bundles one engine run with its deterministic readout.
type backtestOutcome struct {
	run       *backtest.RunResult
	summary   *models.BacktestSummary
	forensics *backtest.ForensicsReport
}

// runBacktest executes the engine for the given source and derives the
// summary and forensics readout from its result document.
func (s *StrategyService) runBacktest(ctx context.Context, strategyCode string, opts backtest.RunOptions) (*backtestOutcome, error) {
	class, err := backtest.DetectStrategyClass(strategyCode)
	if err != nil {
		return nil, err
	}
	s.runLog.LogBacktestStarted(class, opts.Timerange, opts.Timeframe)

	start := time.Now()
	res, err := s.runner.Run(ctx, strategyCode, opts)
	duration := time.Since(start)
	metrics.RecordEngineRunDuration(duration.Seconds())
	if err != nil {
		metrics.RecordEngineCommand("backtest", engineStatus(err))
		return nil, err
	}
	metrics.RecordEngineCommand("backtest", "success")

	summary, forensics := s.summarizeDocument(res.Data)
	s.runLog.LogBacktestCompleted(res.StrategyClass, res.ResultFile, summary.TradesDetected, duration.Seconds())

	return &backtestOutcome{run: res, summary: summary, forensics: forensics}, nil
}

// summarizeDocument derives the schema-agnostic summary and the forensics
// report from a decoded result document.
func (s *StrategyService) summarizeDocument(doc map[string]interface{}) (*models.BacktestSummary, *backtest.ForensicsReport) {
	start := time.Now()
	summary, trades := backtest.Summarize(doc, s.cfg.Analysis.MaxSummaryTrades)
	forensics := backtest.BuildForensics(trades, summary.Metadata, s.forensicsOptions())
	metrics.RecordForensicsDuration(time.Since(start).Seconds())

	scored := 0
	if !forensics.Insufficient() {
		scored = forensics.TradesScored
	}
	s.runLog.LogForensicsComputed(forensics.TradesDetected, scored, forensics.Insufficient())
	return summary, forensics
}

func (s *StrategyService) forensicsOptions() backtest.ForensicsOptions {
	a := s.cfg.Analysis
	return backtest.ForensicsOptions{
		MaxGroups:        a.MaxGroups,
		TinyEdgePct:      a.TinyEdgePct,
		TinyEdgeFraction: a.TinyEdgeFraction,
		HighWinrate:      a.HighWinrate,
		LowWinrate:       a.LowWinrate,
		TailRiskP05:      a.TailRiskP05,
	}
}

// recordRun persists one run row and updates run accounting.
func (s *StrategyService) recordRun(ctx context.Context, run *models.Run, strategyClass string) (int64, error) {
	id, err := s.store.RecordRun(ctx, run)
	if err != nil {
		metrics.RecordStoreError()
		s.runLog.LogRunStoreError(string(run.RunType), err.Error())
		return 0, err
	}
	metrics.RecordRunRecorded()
	metrics.RecordRunByType(string(run.RunType))
	metrics.UpdateLastRunTimestamp(float64(time.Now().Unix()))
	s.runLog.LogRunRecorded(id, string(run.RunType), strategyClass)
	return id, nil
}

// engineStatus classifies an engine failure for metrics labels.
func engineStatus(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "failure"
}

// ToDocument converts a typed cycle report into the generic JSON object
// shape job results carry.
func ToDocument(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return doc, nil
}

// requestError converts a validator failure into its user-facing message.
func requestError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	if msg := requestMessage(verrs[0].Field(), verrs[0].Tag()); msg != "" {
		return errors.New(msg)
	}
	return err
}

func requestMessage(field, tag string) string {
	switch field + "." + tag {
	case "Fee.gte", "Fee.lte":
		return "fee must be between 0 and 0.05"
	case "DryRunWallet.gt":
		return "dry_run_wallet must be > 0"
	case "MaxOpenTrades.gte":
		return "max_open_trades must be >= 0"
	case "MaxIterations.min":
		return "max_iterations must be at least 1"
	case "MaxIterations.max":
		return "max_iterations is capped at 5"
	case "Scenarios.min", "Scenarios.required":
		return "scenarios must be a non-empty list"
	case "Scenarios.max":
		return "scenarios is capped at 6"
	case "Rating.min", "Rating.max", "Rating.required":
		return "rating must be an integer between 1 and 5"
	case "RunID.gt", "RunID.required":
		return "run_id must be a positive integer"
	}
	return ""
}
