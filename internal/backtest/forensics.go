package backtest

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/strategy-lab/internal/models"
)

// Diagnostic thresholds. Heuristic constants carried over from live use;
// override per call through ForensicsOptions.
const (
	DefaultMaxGroups        = 8
	DefaultTinyEdgePct      = 0.10
	DefaultTinyEdgeFraction = 0.60
	DefaultHighWinrate      = 0.55
	DefaultLowWinrate       = 0.45
	DefaultTailRiskP05      = -5.0
)

const insufficientDataMessage = "No profit_pct values detected in trades. Cannot compute detailed forensics."

// ForensicsOptions tunes the report. Zero values fall back to the defaults
// above.
type ForensicsOptions struct {
	MaxGroups        int
	TinyEdgePct      float64
	TinyEdgeFraction float64
	HighWinrate      float64
	LowWinrate       float64
	TailRiskP05      float64
}

// DefaultForensicsOptions returns the stock thresholds.
func DefaultForensicsOptions() ForensicsOptions {
	return ForensicsOptions{
		MaxGroups:        DefaultMaxGroups,
		TinyEdgePct:      DefaultTinyEdgePct,
		TinyEdgeFraction: DefaultTinyEdgeFraction,
		HighWinrate:      DefaultHighWinrate,
		LowWinrate:       DefaultLowWinrate,
		TailRiskP05:      DefaultTailRiskP05,
	}
}

func (o ForensicsOptions) withDefaults() ForensicsOptions {
	d := DefaultForensicsOptions()
	if o.MaxGroups <= 0 {
		o.MaxGroups = d.MaxGroups
	}
	if o.TinyEdgePct <= 0 {
		o.TinyEdgePct = d.TinyEdgePct
	}
	if o.TinyEdgeFraction <= 0 {
		o.TinyEdgeFraction = d.TinyEdgeFraction
	}
	if o.HighWinrate <= 0 {
		o.HighWinrate = d.HighWinrate
	}
	if o.LowWinrate <= 0 {
		o.LowWinrate = d.LowWinrate
	}
	if o.TailRiskP05 >= 0 {
		o.TailRiskP05 = d.TailRiskP05
	}
	return o
}

// GroupStats is the per-group profit profile used for pair, exit-reason and
// entry-tag breakdowns.
type GroupStats struct {
	Key        string  `json:"key"`
	N          int     `json:"n"`
	Winrate    float64 `json:"winrate"`
	Avg        float64 `json:"avg"`
	Median     float64 `json:"median"`
	P05        float64 `json:"p05"`
	P95        float64 `json:"p95"`
	Expectancy float64 `json:"expectancy"`
}

// Distribution counts trades per fixed profit bucket.
type Distribution struct {
	N      int            `json:"n"`
	Counts map[string]int `json:"counts"`
}

// RiskAdjusted carries the simulated equity-curve metrics and the
// trade-level risk ratios. Nil pointers mean "not derivable", never zero.
type RiskAdjusted struct {
	TotalReturnFraction float64  `json:"total_return_fraction"`
	TotalReturnPct      float64  `json:"total_return_pct"`
	MaxDrawdownFraction float64  `json:"max_drawdown_fraction"`
	MaxDrawdownPct      float64  `json:"max_drawdown_pct"`
	CalmarTrade         *float64 `json:"calmar_trade"`
	SharpeTrade         *float64 `json:"sharpe_trade"`
	SortinoTrade        *float64 `json:"sortino_trade"`
	VolatilityTrade     *float64 `json:"volatility_trade"`
}

// ProfitAbsSummary aggregates absolute account-currency profits across all
// trades that carry one, scored or not.
type ProfitAbsSummary struct {
	Count int     `json:"count"`
	Total float64 `json:"total"`
	Avg   float64 `json:"avg"`
}

// ForensicsStats is the full statistical block of a report. It is absent
// when no trades could be scored.
type ForensicsStats struct {
	TradesScored          int               `json:"trades_scored"`
	Winrate               float64           `json:"winrate"`
	AvgWin                float64           `json:"avg_win"`
	AvgLoss               float64           `json:"avg_loss"`
	ProfitFactor          *float64          `json:"profit_factor"`
	ExpectancyPct         float64           `json:"expectancy_pct"`
	ExpectancyRatio       *float64          `json:"expectancy_ratio"`
	MedianProfitPct       float64           `json:"median_profit_pct"`
	P05ProfitPct          float64           `json:"p05_profit_pct"`
	P95ProfitPct          float64           `json:"p95_profit_pct"`
	TinyEdgeFraction      float64           `json:"tiny_edge_fraction"`
	MaxWinStreak          int               `json:"max_win_streak"`
	MaxLossStreak         int               `json:"max_loss_streak"`
	ProfitPctDistribution Distribution      `json:"profit_pct_distribution"`
	RiskAdjusted          RiskAdjusted      `json:"risk_adjusted"`
	Diagnostics           []string          `json:"diagnostics"`
	BestPairs             []GroupStats      `json:"best_pairs"`
	WorstPairs            []GroupStats      `json:"worst_pairs"`
	BestExitReasons       []GroupStats      `json:"best_exit_reasons"`
	WorstExitReasons      []GroupStats      `json:"worst_exit_reasons"`
	BestEnterTags         []GroupStats      `json:"best_enter_tags"`
	WorstEnterTags        []GroupStats      `json:"worst_enter_tags"`
	ProfitAbsSummary      *ProfitAbsSummary `json:"profit_abs_summary,omitempty"`
}

// ForensicsReport is the deterministic statistical readout of a trade list.
// When zero trades score, the stats block is nil and Error explains why;
// callers must check Insufficient before reading statistics.
type ForensicsReport struct {
	Metadata       models.SummaryMetadata `json:"metadata"`
	TradesDetected int                    `json:"trades_detected"`
	Error          string                 `json:"error,omitempty"`
	*ForensicsStats
}

// Insufficient reports whether the trade list had no scorable profits.
func (r *ForensicsReport) Insufficient() bool {
	return r.ForensicsStats == nil
}

type profitBucket struct {
	low   float64
	high  float64
	label string
}

// Buckets are half-open on the low end and closed on the high end; the
// first match wins, so every finite profit lands in exactly one.
var profitBuckets = []profitBucket{
	{math.Inf(-1), -5.0, "<= -5%"},
	{-5.0, -2.0, "-5% .. -2%"},
	{-2.0, -1.0, "-2% .. -1%"},
	{-1.0, -0.5, "-1% .. -0.5%"},
	{-0.5, -0.1, "-0.5% .. -0.1%"},
	{-0.1, 0.1, "-0.1% .. +0.1%"},
	{0.1, 0.5, "+0.1% .. +0.5%"},
	{0.5, 1.0, "+0.5% .. +1%"},
	{1.0, 2.0, "+1% .. +2%"},
	{2.0, 5.0, "+2% .. +5%"},
	{5.0, math.Inf(1), ">= +5%"},
}

// BuildForensics computes the statistical report for a trade list. It is a
// pure function: identical input always yields identical output, with a
// fixed iteration order throughout.
func BuildForensics(trades []models.RawTrade, meta models.SummaryMetadata, opts ForensicsOptions) *ForensicsReport {
	opts = opts.withDefaults()

	profits := make([]float64, 0, len(trades))
	profitAbs := make([]float64, 0, len(trades))
	tinyEdge := 0

	perPair := newGroupAccumulator()
	perExit := newGroupAccumulator()
	perEnter := newGroupAccumulator()

	for _, t := range trades {
		p, scored := t.ProfitPct()
		if !scored {
			// Some exports carry only absolute profits.
			if pa, ok := t.ProfitAbs(); ok {
				profitAbs = append(profitAbs, pa)
			}
			continue
		}

		profits = append(profits, p)
		if math.Abs(p) <= opts.TinyEdgePct {
			tinyEdge++
		}

		if pair, ok := t.Pair(); ok {
			perPair.add(pair, p)
		}
		if reason, ok := t.ExitReason(); ok {
			perExit.add(reason, p)
		}
		if tag, ok := t.EnterTag(); ok {
			perEnter.add(tag, p)
		}
		if pa, ok := t.ProfitAbs(); ok {
			profitAbs = append(profitAbs, pa)
		}
	}

	report := &ForensicsReport{
		Metadata:       meta,
		TradesDetected: len(trades),
	}

	n := len(profits)
	if n == 0 {
		report.Error = insufficientDataMessage
		return report
	}

	sorted := append([]float64(nil), profits...)
	sort.Float64s(sorted)

	wins := make([]float64, 0, n)
	losses := make([]float64, 0, n)
	for _, p := range profits {
		if p > 0 {
			wins = append(wins, p)
		} else if p < 0 {
			losses = append(losses, p)
		}
	}

	winrate := float64(len(wins)) / float64(n)
	avgWin := meanOrZero(wins)
	avgLoss := meanOrZero(losses)

	grossProfit := sumFloats(wins)
	grossLoss := math.Abs(sumFloats(losses))
	var profitFactor *float64
	if grossLoss > 0 {
		v := grossProfit / grossLoss
		profitFactor = &v
	}

	expectancy := winrate*avgWin + (1.0-winrate)*avgLoss
	var expectancyRatio *float64
	if avgLoss < 0 {
		v := expectancy / math.Abs(avgLoss)
		expectancyRatio = &v
	}

	p05 := sorted[percentileIndex(0.05, n)]
	p95 := sorted[percentileIndex(0.95, n)]

	curve := BuildEquityCurve(profits)
	totalReturn := curve.TotalReturn()
	maxDD := curve.MaxDrawdown()
	var calmar *float64
	if maxDD > 0 {
		v := totalReturn / maxDD
		calmar = &v
	}
	sharpe, sortino, volatility := riskRatios(profits)

	diagnostics := make([]string, 0, 5)
	if winrate > opts.HighWinrate && expectancy < 0 {
		diagnostics = append(diagnostics, "High winrate but negative expectancy: average loss magnitude dominates average win.")
	}
	if winrate < opts.LowWinrate && expectancy > 0 {
		diagnostics = append(diagnostics, "Low winrate but positive expectancy: winners outweigh losers (trend-following profile).")
	}
	if float64(tinyEdge)/float64(n) > opts.TinyEdgeFraction {
		diagnostics = append(diagnostics, "Most trades are tiny outcomes (<= 0.10%): strategy edge may be fee/slippage dominated.")
	}
	if profitFactor != nil && *profitFactor < 1.0 {
		diagnostics = append(diagnostics, "Profit factor < 1: gross losses exceed gross gains.")
	}
	if p05 < opts.TailRiskP05 {
		diagnostics = append(diagnostics, "Heavy left tail: worst 5% of trades are very negative (tail risk).")
	}

	stats := &ForensicsStats{
		TradesScored:          n,
		Winrate:               winrate,
		AvgWin:                avgWin,
		AvgLoss:               avgLoss,
		ProfitFactor:          profitFactor,
		ExpectancyPct:         expectancy,
		ExpectancyRatio:       expectancyRatio,
		MedianProfitPct:       medianOf(sorted),
		P05ProfitPct:          p05,
		P95ProfitPct:          p95,
		TinyEdgeFraction:      float64(tinyEdge) / float64(n),
		MaxWinStreak:          maxStreak(profits, true),
		MaxLossStreak:         maxStreak(profits, false),
		ProfitPctDistribution: buildDistribution(profits),
		RiskAdjusted: RiskAdjusted{
			TotalReturnFraction: totalReturn,
			TotalReturnPct:      totalReturn * 100.0,
			MaxDrawdownFraction: maxDD,
			MaxDrawdownPct:      maxDD * 100.0,
			CalmarTrade:         calmar,
			SharpeTrade:         sharpe,
			SortinoTrade:        sortino,
			VolatilityTrade:     volatility,
		},
		Diagnostics:      diagnostics,
		BestPairs:        perPair.top(opts.MaxGroups, true),
		WorstPairs:       perPair.top(opts.MaxGroups, false),
		BestExitReasons:  perExit.top(opts.MaxGroups, true),
		WorstExitReasons: perExit.top(opts.MaxGroups, false),
		BestEnterTags:    perEnter.top(opts.MaxGroups, true),
		WorstEnterTags:   perEnter.top(opts.MaxGroups, false),
	}

	if len(profitAbs) > 0 {
		total := decimal.Zero
		for _, pa := range profitAbs {
			total = total.Add(decimal.NewFromFloat(pa))
		}
		tf, _ := total.Float64()
		stats.ProfitAbsSummary = &ProfitAbsSummary{
			Count: len(profitAbs),
			Total: tf,
			Avg:   tf / float64(len(profitAbs)),
		}
	}

	report.ForensicsStats = stats
	return report
}

// riskRatios computes the trade-level Sharpe and Sortino proxies, scaled by
// the square root of the trade count. All three are nil below two scored
// trades; Sharpe and Sortino are additionally nil at zero variance.
func riskRatios(profits []float64) (sharpe, sortino, volatility *float64) {
	if len(profits) < 2 {
		return nil, nil, nil
	}

	rs := make([]float64, len(profits))
	for i, p := range profits {
		rs[i] = p / 100.0
	}

	meanR := stat.Mean(rs, nil)
	stdR := stat.StdDev(rs, nil)
	volatility = &stdR

	downside := 0.0
	for _, r := range rs {
		if r < 0 {
			downside += r * r
		}
	}
	dd := math.Sqrt(downside / float64(len(rs)))

	scale := math.Sqrt(float64(len(rs)))
	if stdR > 0 {
		v := meanR / stdR * scale
		sharpe = &v
	}
	if dd > 0 {
		v := meanR / dd * scale
		sortino = &v
	}
	return sharpe, sortino, volatility
}

func buildDistribution(profits []float64) Distribution {
	counts := make(map[string]int, len(profitBuckets))
	for _, b := range profitBuckets {
		counts[b.label] = 0
	}
	for _, p := range profits {
		for _, b := range profitBuckets {
			if b.low < p && p <= b.high {
				counts[b.label]++
				break
			}
		}
	}
	return Distribution{N: len(profits), Counts: counts}
}

func maxStreak(profits []float64, winning bool) int {
	best := 0
	cur := 0
	for _, p := range profits {
		if (winning && p > 0) || (!winning && p < 0) {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}

// groupAccumulator collects profits per key preserving first-seen order so
// ties sort identically run to run.
type groupAccumulator struct {
	order  []string
	values map[string][]float64
}

func newGroupAccumulator() *groupAccumulator {
	return &groupAccumulator{values: make(map[string][]float64)}
}

func (g *groupAccumulator) add(key string, p float64) {
	if _, ok := g.values[key]; !ok {
		g.order = append(g.order, key)
	}
	g.values[key] = append(g.values[key], p)
}

// top ranks all groups by expectancy and returns at most maxGroups rows,
// best first when best is true, worst first otherwise.
func (g *groupAccumulator) top(maxGroups int, best bool) []GroupStats {
	rows := make([]GroupStats, 0, len(g.order))
	for _, k := range g.order {
		rows = append(rows, buildGroupStats(k, g.values[k]))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if best {
			return rows[i].Expectancy > rows[j].Expectancy
		}
		return rows[i].Expectancy < rows[j].Expectancy
	})
	if len(rows) > maxGroups {
		rows = rows[:maxGroups]
	}
	return rows
}

func buildGroupStats(key string, values []float64) GroupStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	wins := make([]float64, 0, len(values))
	losses := make([]float64, 0, len(values))
	for _, p := range values {
		if p > 0 {
			wins = append(wins, p)
		} else if p < 0 {
			losses = append(losses, p)
		}
	}

	n := len(values)
	winrate := float64(len(wins)) / float64(n)
	expectancy := winrate*meanOrZero(wins) + (1.0-winrate)*meanOrZero(losses)

	return GroupStats{
		Key:        key,
		N:          n,
		Winrate:    winrate,
		Avg:        meanOrZero(values),
		Median:     medianOf(sorted),
		P05:        sorted[percentileIndex(0.05, n)],
		P95:        sorted[percentileIndex(0.95, n)],
		Expectancy: expectancy,
	}
}

func meanOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func sumFloats(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func medianOf(sorted []float64) float64 {
	m := len(sorted)
	if m == 0 {
		return 0
	}
	mid := m / 2
	if m%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2.0
}

// percentileIndex mirrors index-based percentiles on a sorted slice:
// floor(q*(n-1)), clamped at zero.
func percentileIndex(q float64, n int) int {
	idx := int(q * float64(n-1))
	if idx < 0 {
		idx = 0
	}
	return idx
}
