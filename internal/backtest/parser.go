// Package backtest turns external engine output into deterministic
// performance records: it orchestrates engine runs, extracts trades and
// metrics from arbitrary result JSON, and computes trade forensics.
package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/yourusername/strategy-lab/internal/models"
)

// ReadResultFile loads a previously exported engine result from disk and
// requires it to decode to a JSON object.
func ReadResultFile(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrResultFileMissing, path)
		}
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode result file: %w", err)
	}
	doc, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, ErrUnexpectedOutput
	}
	return doc, nil
}

// tradeVocabulary are the fields a list element may carry to qualify a list
// as the trade list. One match on the first element is enough.
var tradeVocabulary = []string{"pair", "open_date", "close_date", "profit_pct", "profit_ratio", "profit_abs"}

// metricKeys are the top-level result metrics searched for independently of
// the trade list. Each key is resolved by its own deep search.
var metricKeys = []string{
	"profit_total_pct",
	"profit_total_abs",
	"profit_total",
	"max_drawdown",
	"max_drawdown_pct",
	"winrate",
	"win_rate",
	"wins",
	"losses",
	"total_trades",
	"trade_count",
	"trades",
	"starting_balance",
	"final_balance",
	"sharpe",
	"sharpe_ratio",
	"sortino",
	"calmar",
}

// compactTradeKeys are the fields kept in best/worst trade excerpts.
var compactTradeKeys = []string{
	"pair",
	"open_date",
	"close_date",
	"open_rate",
	"close_rate",
	"enter_tag",
	"exit_reason",
	"profit_pct",
	"profit_ratio",
	"duration",
}

// DefaultMaxSummaryTrades bounds the best/worst excerpt window.
const DefaultMaxSummaryTrades = 30

// DeepFindFirst walks a decoded JSON value depth-first and returns the first
// value satisfying the predicate: the value itself, then object values, then
// list elements. Map values are visited in sorted key order so identical
// documents always resolve to the same match.
func DeepFindFirst(v interface{}, predicate func(interface{}) bool) (interface{}, bool) {
	if predicate(v) {
		return v, true
	}
	switch x := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if found, ok := DeepFindFirst(x[k], predicate); ok {
				return found, true
			}
		}
	case []interface{}:
		for _, e := range x {
			if found, ok := DeepFindFirst(e, predicate); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// isTradeList reports whether a value looks like the engine's trade list:
// a non-empty list whose first few elements are objects and whose first
// element carries at least one vocabulary field with a scalar value.
func isTradeList(v interface{}) bool {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return false
	}
	probe := len(list)
	if probe > 3 {
		probe = 3
	}
	for i := 0; i < probe; i++ {
		if _, ok := list[i].(map[string]interface{}); !ok {
			return false
		}
	}
	first := list[0].(map[string]interface{})
	for _, k := range tradeVocabulary {
		switch first[k].(type) {
		case string, float64, float32, int, int64:
			return true
		}
	}
	return false
}

// ExtractTrades locates the trade list anywhere inside a result document.
// Returns an empty slice when no list qualifies; never fails.
func ExtractTrades(doc map[string]interface{}) []models.RawTrade {
	found, ok := DeepFindFirst(doc, isTradeList)
	if !ok {
		return nil
	}
	list := found.([]interface{})
	trades := make([]models.RawTrade, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]interface{}); ok {
			trades = append(trades, models.RawTrade(m))
		}
	}
	return trades
}

// extractMetadata pulls the engine-reported run context when present.
func extractMetadata(doc map[string]interface{}) models.SummaryMetadata {
	out := models.SummaryMetadata{}
	meta, ok := doc["metadata"].(map[string]interface{})
	if !ok {
		return out
	}
	out.Timerange = stringField(meta, "timerange")
	out.Timeframe = stringField(meta, "timeframe")
	out.Exchange = stringField(meta, "exchange")
	return out
}

// extractMetrics resolves each known metric key by deep search. A key binds
// only when the first object carrying it holds a numeric value; anything
// else leaves the field nil.
func extractMetrics(doc map[string]interface{}) models.SummaryMetrics {
	out := models.SummaryMetrics{}
	fields := map[string]**float64{
		"profit_total_pct": &out.ProfitTotalPct,
		"profit_total_abs": &out.ProfitTotalAbs,
		"profit_total":     &out.ProfitTotal,
		"max_drawdown":     &out.MaxDrawdown,
		"max_drawdown_pct": &out.MaxDrawdownPct,
		"winrate":          &out.Winrate,
		"win_rate":         &out.WinRate,
		"wins":             &out.Wins,
		"losses":           &out.Losses,
		"total_trades":     &out.TotalTrades,
		"trade_count":      &out.TradeCount,
		"trades":           &out.Trades,
		"starting_balance": &out.StartingBalance,
		"final_balance":    &out.FinalBalance,
		"sharpe":           &out.Sharpe,
		"sharpe_ratio":     &out.SharpeRatio,
		"sortino":          &out.Sortino,
		"calmar":           &out.Calmar,
	}

	for _, key := range metricKeys {
		key := key
		found, ok := DeepFindFirst(doc, func(v interface{}) bool {
			m, ok := v.(map[string]interface{})
			if !ok {
				return false
			}
			_, has := m[key]
			return has
		})
		if !ok {
			continue
		}
		holder := found.(map[string]interface{})
		if f, ok := numericValue(holder[key]); ok {
			*fields[key] = &f
		}
	}
	return out
}

// Summarize extracts a BacktestSummary and the raw trade list from an
// arbitrary result document. Absent fields degrade to nil; nothing here
// ever fails on missing data.
func Summarize(doc map[string]interface{}, maxTrades int) (*models.BacktestSummary, []models.RawTrade) {
	trades := ExtractTrades(doc)

	summary := &models.BacktestSummary{
		Metadata:       extractMetadata(doc),
		Metrics:        extractMetrics(doc),
		TradesDetected: len(trades),
		WorstTrades:    []models.CompactTrade{},
		BestTrades:     []models.CompactTrade{},
	}

	type scored struct {
		profit float64
		trade  models.RawTrade
	}
	ranked := make([]scored, 0, len(trades))
	for _, t := range trades {
		if p, ok := t.ProfitPct(); ok {
			ranked = append(ranked, scored{profit: p, trade: t})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].profit < ranked[j].profit })

	half := maxTrades / 2
	if half > len(ranked) {
		half = len(ranked)
	}
	for _, s := range ranked[:half] {
		summary.WorstTrades = append(summary.WorstTrades, compactTrade(s.trade))
	}
	for _, s := range ranked[len(ranked)-half:] {
		summary.BestTrades = append(summary.BestTrades, compactTrade(s.trade))
	}

	return summary, trades
}

func compactTrade(t models.RawTrade) models.CompactTrade {
	out := models.CompactTrade{}
	for _, k := range compactTradeKeys {
		if v, ok := t[k]; ok {
			out[k] = v
		}
	}
	return out
}

func stringField(m map[string]interface{}, key string) *string {
	if s, ok := m[key].(string); ok {
		return &s
	}
	return nil
}

func numericValue(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
