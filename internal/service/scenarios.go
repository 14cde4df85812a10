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

// Scenario is one market window to test a strategy against. Empty fields
// fall through to the engine config file.
type Scenario struct {
	Name      string `json:"name"`
	Timerange string `json:"timerange"`
	Timeframe string `json:"timeframe"`
	Pairs     string `json:"pairs"`
}

// resolvedName returns the scenario's trimmed name, or a positional
// placeholder when none was given.
func (sc Scenario) resolvedName(i int) string {
	if name := strings.TrimSpace(sc.Name); name != "" {
		return name
	}
	return fmt.Sprintf("scenario_%d", i+1)
}

// ScenarioRequest drives a cross-scenario comparison of one strategy.
type ScenarioRequest struct {
	StrategyCode string     `json:"strategy_code" validate:"required"`
	UserGoal     string     `json:"user_goal"`
	Scenarios    []Scenario `json:"scenarios" validate:"required,min=1,max=6"`
}

// Validate checks the request and each scenario's window fields.
func (r ScenarioRequest) Validate() error {
	if strings.TrimSpace(r.StrategyCode) == "" {
		return models.ErrEmptyStrategyCode
	}
	if err := validate.Struct(r); err != nil {
		return requestError(err)
	}
	for i, sc := range r.Scenarios {
		name := sc.resolvedName(i)
		if sc.Timerange != "" && strings.TrimSpace(sc.Timerange) == "" {
			return fmt.Errorf("invalid timerange in scenario %q", name)
		}
		if sc.Timeframe != "" && strings.TrimSpace(sc.Timeframe) == "" {
			return fmt.Errorf("invalid timeframe in scenario %q", name)
		}
		if sc.Pairs != "" && strings.TrimSpace(sc.Pairs) == "" {
			return fmt.Errorf("invalid pairs in scenario %q", name)
		}
	}
	return nil
}

// ScenarioResult is the readout of one scenario window.
type ScenarioResult struct {
	Scenario      Scenario                  `json:"scenario"`
	StrategyClass string                    `json:"strategy_class"`
	ResultFile    string                    `json:"result_file"`
	StdoutTail    string                    `json:"stdout_tail"`
	StderrTail    string                    `json:"stderr_tail"`
	Summary       *models.BacktestSummary   `json:"backtest_summary"`
	Forensics     *backtest.ForensicsReport `json:"trade_forensics"`
	RunID         int64                     `json:"performance_run_id,omitempty"`
}

// ScenarioReport is the outcome of a scenario comparison.
type ScenarioReport struct {
	StrategyCode    string            `json:"strategy_code"`
	UserGoal        string            `json:"user_goal,omitempty"`
	ScenarioResults []*ScenarioResult `json:"scenario_results"`
	Analysis        string            `json:"analysis"`
	Risk            string            `json:"risk"`
	AnalysisRunID   int64             `json:"analysis_run_id,omitempty"`
	StoreErrors     []string          `json:"performance_store_errors,omitempty"`
}

// ScenarioAnalysis backtests one strategy across every requested scenario,
// records each window as a scenario_backtest run, then asks the advisor
// for a cross-scenario comparison and risk rating, recorded as a
// scenario_analysis run. A failing scenario backtest aborts the cycle;
// store write failures are collected in the report.
func (s *StrategyService) ScenarioAnalysis(ctx context.Context, req ScenarioRequest, progress Progress) (*ScenarioReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.advisor == nil {
		return nil, ErrAdvisorNotConfigured
	}

	progress.log("Starting scenario analysis")
	marketContext := s.BuildMarketContext()
	report := &ScenarioReport{
		StrategyCode:    req.StrategyCode,
		UserGoal:        strings.TrimSpace(req.UserGoal),
		ScenarioResults: make([]*ScenarioResult, 0, len(req.Scenarios)),
	}

	for i, sc := range req.Scenarios {
		name := sc.resolvedName(i)
		progress.log(fmt.Sprintf("Scenario %q: running backtest", name))

		out, err := s.runBacktest(ctx, req.StrategyCode, backtest.RunOptions{
			Timerange: sc.Timerange,
			Timeframe: sc.Timeframe,
			Pairs:     sc.Pairs,
		})
		if err != nil {
			return nil, fmt.Errorf("scenario %q backtest failed: %w", name, err)
		}
		s.runLog.LogScenarioCompleted(name, out.run.StrategyClass, out.summary.TradesDetected)
		metrics.ObserveTradesDetected(string(models.RunTypeScenarioBacktest), float64(out.summary.TradesDetected))

		result := &ScenarioResult{
			Scenario: Scenario{
				Name:      name,
				Timerange: sc.Timerange,
				Timeframe: sc.Timeframe,
				Pairs:     sc.Pairs,
			},
			StrategyClass: out.run.StrategyClass,
			ResultFile:    out.run.ResultFile,
			StdoutTail:    backtest.Tail(out.run.Stdout, payloadTailBytes),
			StderrTail:    backtest.Tail(out.run.Stderr, payloadTailBytes),
			Summary:       out.summary,
			Forensics:     out.forensics,
		}

		run := &models.Run{
			RunType:         models.RunTypeScenarioBacktest,
			StrategyCode:    req.StrategyCode,
			UserGoal:        report.UserGoal,
			ScenarioName:    name,
			Timerange:       sc.Timerange,
			Timeframe:       sc.Timeframe,
			Pairs:           sc.Pairs,
			ResultFile:      out.run.ResultFile,
			BacktestSummary: out.summary,
			TradeForensics:  out.forensics,
			Extra: map[string]interface{}{
				"strategy_class": out.run.StrategyClass,
				"stdout_tail":    backtest.Tail(out.run.Stdout, payloadTailBytes),
				"stderr_tail":    backtest.Tail(out.run.Stderr, payloadTailBytes),
			},
		}
		if id, err := s.recordRun(ctx, run, out.run.StrategyClass); err != nil {
			report.StoreErrors = append(report.StoreErrors, err.Error())
		} else {
			result.RunID = id
		}

		report.ScenarioResults = append(report.ScenarioResults, result)
	}

	payload := map[string]interface{}{
		"user_goal":      report.UserGoal,
		"scenarios":      report.ScenarioResults,
		"market_context": marketContext,
	}

	progress.log("Requesting scenario comparison")
	analysis, err := s.advisor.AnalyzeScenarios(ctx, req.StrategyCode, payload)
	if err != nil {
		return nil, fmt.Errorf("advisor scenario analysis failed: %w", err)
	}
	risk, err := s.advisor.AssessScenarioRisk(ctx, req.StrategyCode, payload)
	if err != nil {
		return nil, fmt.Errorf("advisor scenario risk assessment failed: %w", err)
	}
	report.Analysis = analysis
	report.Risk = risk

	run := &models.Run{
		RunType:       models.RunTypeScenarioAnalysis,
		StrategyCode:  req.StrategyCode,
		UserGoal:      report.UserGoal,
		ModelAnalysis: s.advisor.ModelFor(advisor.TaskScenarioAnalysis),
		ModelRisk:     s.advisor.ModelFor(advisor.TaskScenarioRisk),
		AnalysisText:  analysis,
		RiskText:      risk,
		MarketContext: marketContext,
		Extra:         map[string]interface{}{"scenario_count": len(report.ScenarioResults)},
	}
	if id, err := s.recordRun(ctx, run, ""); err != nil {
		report.StoreErrors = append(report.StoreErrors, err.Error())
	} else {
		report.AnalysisRunID = id
	}
	return report, nil
}
