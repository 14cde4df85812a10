package models

// SummaryMetadata is the engine-reported context of a backtest result.
// Fields stay nil when the result carries no metadata object.
type SummaryMetadata struct {
	Timerange *string `json:"timerange"`
	Timeframe *string `json:"timeframe"`
	Exchange  *string `json:"exchange"`
}

// SummaryMetrics is the best-effort mapping of top-level result metrics.
// Every field is independently optional: an absent key stays nil and must
// be treated as unknown, never as zero.
type SummaryMetrics struct {
	ProfitTotalPct  *float64 `json:"profit_total_pct,omitempty"`
	ProfitTotalAbs  *float64 `json:"profit_total_abs,omitempty"`
	ProfitTotal     *float64 `json:"profit_total,omitempty"`
	MaxDrawdown     *float64 `json:"max_drawdown,omitempty"`
	MaxDrawdownPct  *float64 `json:"max_drawdown_pct,omitempty"`
	Winrate         *float64 `json:"winrate,omitempty"`
	WinRate         *float64 `json:"win_rate,omitempty"`
	Wins            *float64 `json:"wins,omitempty"`
	Losses          *float64 `json:"losses,omitempty"`
	TotalTrades     *float64 `json:"total_trades,omitempty"`
	TradeCount      *float64 `json:"trade_count,omitempty"`
	Trades          *float64 `json:"trades,omitempty"`
	StartingBalance *float64 `json:"starting_balance,omitempty"`
	FinalBalance    *float64 `json:"final_balance,omitempty"`
	Sharpe          *float64 `json:"sharpe,omitempty"`
	SharpeRatio     *float64 `json:"sharpe_ratio,omitempty"`
	Sortino         *float64 `json:"sortino,omitempty"`
	Calmar          *float64 `json:"calmar,omitempty"`
}

// CompactTrade is the excerpt of a trade kept in best/worst listings.
type CompactTrade map[string]interface{}

// BacktestSummary condenses an engine result for storage and prompting.
// Derived, not authoritative.
type BacktestSummary struct {
	Metadata       SummaryMetadata `json:"metadata"`
	Metrics        SummaryMetrics  `json:"metrics"`
	TradesDetected int             `json:"trades_detected"`
	WorstTrades    []CompactTrade  `json:"worst_trades"`
	BestTrades     []CompactTrade  `json:"best_trades"`
}
