package service

import (
	"context"
	"errors"
	"strings"

	"github.com/yourusername/strategy-lab/internal/advisor"
	"github.com/yourusername/strategy-lab/internal/backtest"
	"github.com/yourusername/strategy-lab/internal/metrics"
	"github.com/yourusername/strategy-lab/internal/models"
)

// AnalyzeRequest asks for a forensic readout of an existing result file,
// optionally narrated by the advisor. No engine run is involved.
type AnalyzeRequest struct {
	StrategyCode string `json:"strategy_code" validate:"required"`
	ResultFile   string `json:"result_file" validate:"required"`

	// SkipAdvisor returns the deterministic readout only.
	SkipAdvisor bool `json:"skip_advisor"`
}

// Validate checks the analysis inputs.
func (r AnalyzeRequest) Validate() error {
	if strings.TrimSpace(r.StrategyCode) == "" {
		return models.ErrEmptyStrategyCode
	}
	if strings.TrimSpace(r.ResultFile) == "" {
		return errors.New("result_file is required")
	}
	return nil
}

// AnalysisReport is the outcome of a single-result analysis.
type AnalysisReport struct {
	RunID         int64                     `json:"performance_run_id,omitempty"`
	StrategyClass string                    `json:"strategy_class,omitempty"`
	ResultFile    string                    `json:"result_file"`
	Summary       *models.BacktestSummary   `json:"backtest_summary"`
	Forensics     *backtest.ForensicsReport `json:"trade_forensics"`
	Analysis      string                    `json:"analysis,omitempty"`
	StoreErrors   []string                  `json:"performance_store_errors,omitempty"`
}

// AnalyzeResult summarizes a previously exported result file, asks the
// advisor for a narrative when one is wired in, and records the analysis
// as a single_backtest_analysis run. Store and advisor failures degrade
// the report instead of failing it.
func (s *StrategyService) AnalyzeResult(ctx context.Context, req AnalyzeRequest, progress Progress) (*AnalysisReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	progress.log("Loading backtest result")
	doc, err := backtest.ReadResultFile(req.ResultFile)
	if err != nil {
		return nil, err
	}

	progress.log("Summarizing results")
	summary, forensics := s.summarizeDocument(doc)
	metrics.ObserveTradesDetected(string(models.RunTypeSingleBacktestAnalysis), float64(summary.TradesDetected))

	class, err := backtest.DetectStrategyClass(req.StrategyCode)
	if err != nil {
		s.logger.WithError(err).Warn("Could not detect strategy class for analysis")
		class = ""
	}

	var analysisText string
	var marketContext map[string]interface{}
	if s.advisor != nil && !req.SkipAdvisor {
		progress.log("Requesting advisor analysis")
		marketContext = s.BuildMarketContext()
		payload := map[string]interface{}{
			"strategy_class":   class,
			"result_file":      req.ResultFile,
			"backtest_summary": summary,
			"trade_forensics":  forensics,
			"market_context":   marketContext,
		}
		text, err := s.advisor.Analyze(ctx, req.StrategyCode, payload)
		if err != nil {
			s.logger.WithError(err).Warn("Advisor analysis unavailable, returning deterministic readout only")
		} else {
			analysisText = text
		}
	}

	report := &AnalysisReport{
		StrategyClass: class,
		ResultFile:    req.ResultFile,
		Summary:       summary,
		Forensics:     forensics,
		Analysis:      analysisText,
	}

	progress.log("Recording run")
	run := &models.Run{
		RunType:         models.RunTypeSingleBacktestAnalysis,
		StrategyCode:    req.StrategyCode,
		ResultFile:      req.ResultFile,
		AnalysisText:    analysisText,
		BacktestSummary: summary,
		TradeForensics:  forensics,
		Extra:           map[string]interface{}{"strategy_class": class},
	}
	if marketContext != nil {
		run.MarketContext = marketContext
	}
	if analysisText != "" {
		run.ModelAnalysis = s.advisor.ModelFor(advisor.TaskAnalysis)
	}
	if id, err := s.recordRun(ctx, run, class); err != nil {
		report.StoreErrors = append(report.StoreErrors, err.Error())
	} else {
		report.RunID = id
	}
	return report, nil
}
