package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/strategy-lab/internal/backtest"
	"github.com/yourusername/strategy-lab/internal/metrics"
	"github.com/yourusername/strategy-lab/internal/models"
)

// BacktestRequest carries one manual backtest submission. Zero overrides
// fall through to the engine config file.
type BacktestRequest struct {
	StrategyCode  string   `json:"strategy_code" validate:"required"`
	Timerange     string   `json:"timerange"`
	Timeframe     string   `json:"timeframe"`
	Pairs         string   `json:"pairs"`
	Fee           *float64 `json:"fee" validate:"omitempty,gte=0,lte=0.05"`
	DryRunWallet  *float64 `json:"dry_run_wallet" validate:"omitempty,gt=0"`
	MaxOpenTrades *int     `json:"max_open_trades" validate:"omitempty,gte=0"`

	// SkipRecord keeps the run out of the performance store. Used by the
	// CLI for throwaway runs.
	SkipRecord bool `json:"-"`
}

// Validate checks the submission bounds.
func (r BacktestRequest) Validate() error {
	if strings.TrimSpace(r.StrategyCode) == "" {
		return models.ErrEmptyStrategyCode
	}
	if err := validate.Struct(r); err != nil {
		return requestError(err)
	}
	return nil
}

func (r BacktestRequest) runOptions() backtest.RunOptions {
	return backtest.RunOptions{
		Timerange:     r.Timerange,
		Timeframe:     r.Timeframe,
		Pairs:         r.Pairs,
		Fee:           r.Fee,
		DryRunWallet:  r.DryRunWallet,
		MaxOpenTrades: r.MaxOpenTrades,
	}
}

// BacktestReport is the outcome of one manual backtest cycle.
type BacktestReport struct {
	RunID         int64                     `json:"performance_run_id,omitempty"`
	StrategyClass string                    `json:"strategy_class"`
	ResultFile    string                    `json:"result_file"`
	Summary       *models.BacktestSummary   `json:"backtest_summary"`
	Forensics     *backtest.ForensicsReport `json:"trade_forensics"`
	StdoutTail    string                    `json:"stdout_tail"`
	StderrTail    string                    `json:"stderr_tail"`
}

// ManualBacktest runs one backtest cycle: engine run, summary, forensics,
// and a manual_backtest row in the performance store.
func (s *StrategyService) ManualBacktest(ctx context.Context, req BacktestRequest, progress Progress) (*BacktestReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	progress.log("Starting backtest")
	out, err := s.runBacktest(ctx, req.StrategyCode, req.runOptions())
	if err != nil {
		return nil, err
	}
	metrics.ObserveTradesDetected(string(models.RunTypeManualBacktest), float64(out.summary.TradesDetected))

	progress.log("Summarizing results")
	report := &BacktestReport{
		StrategyClass: out.run.StrategyClass,
		ResultFile:    out.run.ResultFile,
		Summary:       out.summary,
		Forensics:     out.forensics,
		StdoutTail:    backtest.Tail(out.run.Stdout, resultTailBytes),
		StderrTail:    backtest.Tail(out.run.Stderr, resultTailBytes),
	}
	if req.SkipRecord {
		return report, nil
	}

	run := &models.Run{
		RunType:         models.RunTypeManualBacktest,
		StrategyCode:    req.StrategyCode,
		Timerange:       req.Timerange,
		Timeframe:       req.Timeframe,
		Pairs:           req.Pairs,
		ResultFile:      out.run.ResultFile,
		BacktestSummary: out.summary,
		TradeForensics:  out.forensics,
		Extra:           backtestExtra(out.run, req),
	}
	id, err := s.recordRun(ctx, run, out.run.StrategyClass)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	report.RunID = id
	return report, nil
}

// backtestExtra collects run provenance that has no dedicated column.
func backtestExtra(run *backtest.RunResult, req BacktestRequest) map[string]interface{} {
	extra := map[string]interface{}{
		"strategy_class": run.StrategyClass,
		"stdout_tail":    backtest.Tail(run.Stdout, extraTailBytes),
		"stderr_tail":    backtest.Tail(run.Stderr, extraTailBytes),
	}
	if req.Fee != nil {
		extra["fee"] = *req.Fee
	}
	if req.DryRunWallet != nil {
		extra["dry_run_wallet"] = *req.DryRunWallet
	}
	if req.MaxOpenTrades != nil {
		extra["max_open_trades"] = *req.MaxOpenTrades
	}
	return extra
}

// DownloadRequest scopes a market data download.
type DownloadRequest struct {
	Timerange string `json:"timerange"`
	Timeframe string `json:"timeframe"`
	Pairs     string `json:"pairs"`
}

// DownloadReport reports the executed download command and its output
// tails.
type DownloadReport struct {
	Cmd        []string `json:"cmd"`
	StdoutTail string   `json:"stdout_tail"`
	StderrTail string   `json:"stderr_tail"`
}

// DownloadData fetches market data through the engine's downloader.
func (s *StrategyService) DownloadData(ctx context.Context, req DownloadRequest, progress Progress) (*DownloadReport, error) {
	progress.log("Starting data download")

	start := time.Now()
	res, err := s.runner.DownloadData(ctx, backtest.DownloadOptions{
		Timerange: req.Timerange,
		Timeframe: req.Timeframe,
		Pairs:     req.Pairs,
	})
	metrics.RecordEngineRunDuration(time.Since(start).Seconds())
	if err != nil {
		metrics.RecordEngineCommand("download-data", engineStatus(err))
		return nil, err
	}
	metrics.RecordEngineCommand("download-data", "success")

	return &DownloadReport{
		Cmd:        res.Cmd,
		StdoutTail: backtest.Tail(res.Stdout, resultTailBytes),
		StderrTail: backtest.Tail(res.Stderr, resultTailBytes),
	}, nil
}
