// Package advisor provides the client boundary to the AI strategy advisor.
package advisor

import "context"

// Advisor tasks. Each task can be routed to its own model through the
// task_models config map.
const (
	TaskAnalysis         = "analysis"
	TaskRisk             = "risk"
	TaskRefine           = "refine"
	TaskScenarioAnalysis = "scenario_analysis"
	TaskScenarioRisk     = "scenario_risk"
)

// Advisor produces narrative analysis for strategy code paired with backtest
// evidence. Implementations return the raw advisor text; callers decide how
// to persist or surface it.
type Advisor interface {
	// Analyze reviews strategy code against a backtest summary and
	// forensics payload.
	Analyze(ctx context.Context, strategyCode string, payload map[string]interface{}) (string, error)

	// AssessRisk produces a risk assessment grounded in the backtest
	// payload's risk-adjusted metrics.
	AssessRisk(ctx context.Context, strategyCode string, payload map[string]interface{}) (string, error)

	// Refine proposes a revised strategy as raw code, keeping the original
	// class name.
	Refine(ctx context.Context, goal, strategyCode string, payload map[string]interface{}) (string, error)

	// AnalyzeScenarios compares one strategy across multiple backtest
	// scenarios.
	AnalyzeScenarios(ctx context.Context, strategyCode string, payload map[string]interface{}) (string, error)

	// AssessScenarioRisk rates risk across multiple backtest scenarios.
	AssessScenarioRisk(ctx context.Context, strategyCode string, payload map[string]interface{}) (string, error)

	// ModelFor reports which model serves the given task, for run
	// attribution.
	ModelFor(task string) string
}
