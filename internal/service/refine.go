package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/yourusername/strategy-lab/internal/advisor"
	"github.com/yourusername/strategy-lab/internal/backtest"
	"github.com/yourusername/strategy-lab/internal/metrics"
	"github.com/yourusername/strategy-lab/internal/models"
)

// RefineRequest drives the iterative refinement loop. Window fields apply
// to every backtest in the loop; empty values fall through to the engine
// config file.
type RefineRequest struct {
	StrategyCode  string `json:"strategy_code" validate:"required"`
	UserGoal      string `json:"user_goal"`
	MaxIterations int    `json:"max_iterations" validate:"min=1,max=5"`
	Timerange     string `json:"timerange"`
	Timeframe     string `json:"timeframe"`
	Pairs         string `json:"pairs"`
}

func (r RefineRequest) runOptions() backtest.RunOptions {
	return backtest.RunOptions{
		Timerange: r.Timerange,
		Timeframe: r.Timeframe,
		Pairs:     r.Pairs,
	}
}

// Validate checks the loop inputs.
func (r RefineRequest) Validate() error {
	if strings.TrimSpace(r.StrategyCode) == "" {
		return models.ErrEmptyStrategyCode
	}
	if err := validate.Struct(r); err != nil {
		return requestError(err)
	}
	return nil
}

// IterationReport captures one refinement pass: the backtest evidence, the
// advisor's narrative, and the code it proposed.
type IterationReport struct {
	Iteration   int                       `json:"iteration"`
	InputCode   string                    `json:"input_code"`
	Analysis    string                    `json:"analysis"`
	Risk        string                    `json:"risk"`
	RefinedCode string                    `json:"refined_code"`
	ModelRefine string                    `json:"model_refine"`
	ResultFile  string                    `json:"result_file"`
	Summary     *models.BacktestSummary   `json:"backtest_summary"`
	Forensics   *backtest.ForensicsReport `json:"trade_forensics"`
	RunID       int64                     `json:"performance_run_id,omitempty"`
}

// RefineFinal is the verification backtest of the last proposed code.
type RefineFinal struct {
	StrategyCode  string                    `json:"strategy_code"`
	StrategyClass string                    `json:"strategy_class"`
	ResultFile    string                    `json:"result_file"`
	Summary       *models.BacktestSummary   `json:"backtest_summary"`
	Forensics     *backtest.ForensicsReport `json:"trade_forensics"`
	StdoutTail    string                    `json:"stdout_tail"`
	StderrTail    string                    `json:"stderr_tail"`
	RunID         int64                     `json:"performance_run_id,omitempty"`
}

// RefineReport is the outcome of a full refinement loop.
type RefineReport struct {
	UserGoal    string             `json:"user_goal,omitempty"`
	Iterations  []*IterationReport `json:"iterations"`
	Final       *RefineFinal       `json:"final"`
	StoreErrors []string           `json:"performance_store_errors,omitempty"`
}

// RefineLoop alternates engine backtests with advisor revisions: each pass
// backtests the current code, collects analysis and risk narratives, asks
// for a revised strategy, and feeds that revision into the next pass. The
// loop ends with a verification backtest of the last proposal. Engine and
// advisor failures abort the loop; store write failures are collected in
// the report.
func (s *StrategyService) RefineLoop(ctx context.Context, req RefineRequest, progress Progress) (*RefineReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.advisor == nil {
		return nil, ErrAdvisorNotConfigured
	}

	progress.log("Starting refine loop")
	marketContext := s.BuildMarketContext()
	report := &RefineReport{
		UserGoal:   strings.TrimSpace(req.UserGoal),
		Iterations: make([]*IterationReport, 0, req.MaxIterations),
	}
	currentCode := req.StrategyCode

	for i := 1; i <= req.MaxIterations; i++ {
		progress.log(fmt.Sprintf("Iteration %d/%d: running backtest", i, req.MaxIterations))
		out, err := s.runBacktest(ctx, currentCode, req.runOptions())
		if err != nil {
			return nil, fmt.Errorf("iteration %d backtest failed: %w", i, err)
		}
		s.runLog.LogRefineIteration(i, req.MaxIterations, out.run.StrategyClass)
		metrics.ObserveTradesDetected(string(models.RunTypeRefineIteration), float64(out.summary.TradesDetected))

		payload := map[string]interface{}{
			"iteration":        i,
			"strategy_class":   out.run.StrategyClass,
			"result_file":      out.run.ResultFile,
			"stdout_tail":      backtest.Tail(out.run.Stdout, payloadTailBytes),
			"stderr_tail":      backtest.Tail(out.run.Stderr, payloadTailBytes),
			"backtest_summary": out.summary,
			"trade_forensics":  out.forensics,
			"market_context":   marketContext,
		}

		progress.log(fmt.Sprintf("Iteration %d/%d: requesting analysis", i, req.MaxIterations))
		analysis, err := s.advisor.Analyze(ctx, currentCode, payload)
		if err != nil {
			return nil, fmt.Errorf("advisor analysis failed: %w", err)
		}
		risk, err := s.advisor.AssessRisk(ctx, currentCode, payload)
		if err != nil {
			return nil, fmt.Errorf("advisor risk assessment failed: %w", err)
		}

		progress.log(fmt.Sprintf("Iteration %d/%d: requesting refined code", i, req.MaxIterations))
		refined, err := s.advisor.Refine(ctx, report.UserGoal, currentCode, payload)
		if err != nil {
			return nil, fmt.Errorf("advisor refinement failed: %w", err)
		}

		entry := &IterationReport{
			Iteration:   i,
			InputCode:   currentCode,
			Analysis:    analysis,
			Risk:        risk,
			RefinedCode: refined,
			ModelRefine: s.advisor.ModelFor(advisor.TaskRefine),
			ResultFile:  out.run.ResultFile,
			Summary:     out.summary,
			Forensics:   out.forensics,
		}

		run := &models.Run{
			RunType:         models.RunTypeRefineIteration,
			StrategyCode:    currentCode,
			UserGoal:        report.UserGoal,
			Iteration:       i,
			Timerange:       req.Timerange,
			Timeframe:       req.Timeframe,
			Pairs:           req.Pairs,
			ResultFile:      out.run.ResultFile,
			ModelAnalysis:   s.advisor.ModelFor(advisor.TaskAnalysis),
			ModelRisk:       s.advisor.ModelFor(advisor.TaskRisk),
			AnalysisText:    analysis,
			RiskText:        risk,
			BacktestSummary: out.summary,
			TradeForensics:  out.forensics,
			MarketContext:   marketContext,
			Extra: map[string]interface{}{
				"strategy_class": out.run.StrategyClass,
				"stdout_tail":    backtest.Tail(out.run.Stdout, payloadTailBytes),
				"stderr_tail":    backtest.Tail(out.run.Stderr, payloadTailBytes),
			},
		}
		if id, err := s.recordRun(ctx, run, out.run.StrategyClass); err != nil {
			report.StoreErrors = append(report.StoreErrors, err.Error())
		} else {
			entry.RunID = id
		}

		report.Iterations = append(report.Iterations, entry)
		currentCode = refined
	}

	progress.log("Running final backtest")
	out, err := s.runBacktest(ctx, currentCode, req.runOptions())
	if err != nil {
		return nil, fmt.Errorf("final backtest failed: %w", err)
	}
	metrics.ObserveTradesDetected(string(models.RunTypeRefineFinal), float64(out.summary.TradesDetected))

	final := &RefineFinal{
		StrategyCode:  currentCode,
		StrategyClass: out.run.StrategyClass,
		ResultFile:    out.run.ResultFile,
		Summary:       out.summary,
		Forensics:     out.forensics,
		StdoutTail:    backtest.Tail(out.run.Stdout, payloadTailBytes),
		StderrTail:    backtest.Tail(out.run.Stderr, payloadTailBytes),
	}
	run := &models.Run{
		RunType:         models.RunTypeRefineFinal,
		StrategyCode:    currentCode,
		UserGoal:        report.UserGoal,
		Timerange:       req.Timerange,
		Timeframe:       req.Timeframe,
		Pairs:           req.Pairs,
		ResultFile:      out.run.ResultFile,
		ModelAnalysis:   s.advisor.ModelFor(advisor.TaskAnalysis),
		ModelRisk:       s.advisor.ModelFor(advisor.TaskRisk),
		BacktestSummary: out.summary,
		TradeForensics:  out.forensics,
		MarketContext:   marketContext,
		Extra: map[string]interface{}{
			"strategy_class": out.run.StrategyClass,
			"stdout_tail":    backtest.Tail(out.run.Stdout, payloadTailBytes),
			"stderr_tail":    backtest.Tail(out.run.Stderr, payloadTailBytes),
			"iterations":     len(report.Iterations),
		},
	}
	if id, err := s.recordRun(ctx, run, out.run.StrategyClass); err != nil {
		report.StoreErrors = append(report.StoreErrors, err.Error())
	} else {
		final.RunID = id
	}

	report.Final = final
	return report, nil
}
