package advisor

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultStrategyClass is used when no class declaration can be found in the
// code handed to the refine prompt.
const defaultStrategyClass = "AIStrategy"

var classPattern = regexp.MustCompile(`(?m)^\s*class\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(.*IStrategy.*\)\s*:`)

// strategyClassFor extracts the strategy class name so the refine prompt can
// pin it. Falls back to a stable default when detection fails.
func strategyClassFor(code string) string {
	if m := classPattern.FindStringSubmatch(code); len(m) > 1 {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	return defaultStrategyClass
}

const analysisTemplate = `You are a quantitative trading strategy reviewer.

Your objective is to maximize risk-adjusted profitability.
You prioritize avoiding drawdowns, avoiding trend counter-trades, avoiding
overfitting and practical execution on real exchanges.
You do NOT explain basic indicators. You focus on failure modes and
improvements.

You will receive:
1) Strategy code
2) Backtest summary + deterministic trade forensics JSON

Rules (non-negotiable):
- Base every claim on the provided JSON and the code. If data is missing, say what is missing.
- Propose EXACTLY ONE change (one hypothesis). Do not stack multiple modifications.
- Do not tune parameters without a concrete causal reason grounded in the code + results.
- The code change must be minimal and testable.

Reasoning framework (follow in order):
Step 1: Identify the primary loss mechanism.
Step 2: Identify market regimes where it fails.
Step 3: Propose one constraint/change to reduce losses.
Step 4: Explain why this constraint improves profitability.
Step 5: Output the exact code change as a complete strategy file.

Output format (MUST follow exactly):

LOSS_MECHANISM:
<text>

FAILURE_REGIME:
<text>

PROPOSED_FIX:
<text>

WHY_IT_WORKS:
<text>

CODE_CHANGE:
<python code>

After CODE_CHANGE, output nothing else.

CODE_CHANGE requirements:
- Provide a COMPLETE strategy file.
- Output raw Python code (no markdown fences).
- The class MUST inherit from IStrategy.
- Must include populate_indicators, populate_entry_trend, populate_exit_trend.

Strategy code:
%s

Backtest JSON:
%s
`

func analysisPrompt(strategyCode, payloadJSON string) string {
	return fmt.Sprintf(analysisTemplate, strategyCode, payloadJSON)
}

const riskTemplate = `You are a senior risk manager and trading strategy reviewer.

You will receive:
1) Strategy code
2) Backtest summary + trade forensics + (optional) market context JSON

Rules:
- Base every claim on the provided JSON and the code.
- Use risk-adjusted metrics if present: Sharpe ratio, Sortino ratio, maximum drawdown, Calmar.
- If those are missing in the raw backtest summary, use the deterministic trade forensics risk_adjusted metrics (trade-based Sharpe/Sortino/max drawdown proxies) if present.
- If a risk-relevant metric is missing, state exactly what's missing.

Output format:
1) Risk rating (Low/Medium/High) + justification grounded in metrics
2) Risk-adjusted profile (Sharpe/Sortino/MaxDD/Calmar or trade-based proxies)
3) Key tail risks (loss tail, streaks, drawdown sensitivity, fee sensitivity)
4) Failure modes (market regimes / volatility / trend vs chop) - tie to market_context if present
5) Risk controls present/missing in code (stoploss, protections, exits, cooldown)
6) Concrete risk mitigations (ordered, testable) + what metric should improve

Strategy code:
%s

Backtest JSON:
%s
`

func riskPrompt(strategyCode, payloadJSON string) string {
	return fmt.Sprintf(riskTemplate, strategyCode, payloadJSON)
}

const refineTemplate = `You are an expert strategy developer and quantitative trading engineer.

You will improve the strategy based ONLY on:
1) The provided strategy code
2) The provided backtest summary + trade forensics JSON

Hard requirements:
1) Output ONLY Python code (no explanations, no markdown).
2) Keep the strategy class name EXACTLY as: %s
3) The strategy class MUST inherit from IStrategy.
4) MUST include: populate_indicators, populate_entry_trend, populate_exit_trend.
5) MUST be syntactically valid Python.
6) Do NOT introduce lookahead bias.
7) Make the smallest set of changes that plausibly improves profitability AND risk-adjusted metrics.
8) If the code uses legacy naming (populate_buy_trend/populate_sell_trend or buy/sell columns), upgrade it to populate_entry_trend/populate_exit_trend and enter_long/exit_long.

Risk-adjusted requirements:
- Explicitly reduce tail risk and drawdown.
- Prefer changes that would improve Sharpe/Sortino and reduce maximum drawdown.
- If Sharpe/Sortino/MaxDD are not available in summary.metrics, use trade_forensics.risk_adjusted.* as proxy targets.

User goal (may be empty):
%s

Current strategy code:
%s

Backtest summary + forensics JSON:
%s
`

func refinePrompt(goal, strategyCode, payloadJSON string) string {
	return fmt.Sprintf(refineTemplate, strategyClassFor(strategyCode), strings.TrimSpace(goal), strategyCode, payloadJSON)
}

const scenarioAnalysisTemplate = `You are a senior quantitative trading engineer.

Task:
Analyze the SAME strategy across MULTIPLE backtest scenarios and explain regime sensitivity.

Rules:
- Base every claim on the provided JSON and the code.
- Provide causal analysis: tie performance differences to concrete entry/exit/risk logic.
- Risk-adjusted reasoning is mandatory: Sharpe/Sortino/max drawdown/Calmar if present.
- If those are missing in backtest_summary.metrics, use trade_forensics.risk_adjusted.* as deterministic proxies.
- Identify which scenario characteristics likely caused improvements/degradation (timeframe, timerange, pair set).
- Do NOT invent candle patterns or indicators outside the provided data/code.

Output format:
1) Scenario scorecard table (per scenario: profit/expectancy/profit_factor + Sharpe/Sortino + MaxDD)
2) Strongest and weakest scenario + causal explanation
3) Regime sensitivity analysis tied to entry/exit logic
4) The single most robust improvement across scenarios
5) What to test next

Strategy code:
%s

Scenarios JSON:
%s
`

func scenarioAnalysisPrompt(strategyCode, payloadJSON string) string {
	return fmt.Sprintf(scenarioAnalysisTemplate, strategyCode, payloadJSON)
}

const scenarioRiskTemplate = `You are a senior risk manager and trading strategy reviewer.

Task:
Assess risk across MULTIPLE backtest scenarios for the SAME strategy.

Rules:
- Base every claim on the provided JSON and the code.
- Risk-adjusted reasoning is mandatory (Sharpe/Sortino/MaxDD/Calmar or trade_forensics.risk_adjusted proxies).
- Focus on tail risk, drawdown sensitivity, and scenario-to-scenario stability.
- If a risk-relevant metric is missing, state exactly what's missing.

Output format:
1) Overall risk rating (Low/Medium/High) based on worst-case scenario
2) Worst-case scenario identification + metric evidence
3) Drawdown and tail risk drivers (code + scenario linkage)
4) Risk controls present/missing in code
5) Concrete mitigations (ordered) + what metric should improve

Strategy code:
%s

Scenarios JSON:
%s
`

func scenarioRiskPrompt(strategyCode, payloadJSON string) string {
	return fmt.Sprintf(scenarioRiskTemplate, strategyCode, payloadJSON)
}
