package backtest

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/yourusername/strategy-lab/internal/models"
)

func TestBuildForensicsLosingScenario(t *testing.T) {
	trades := []models.RawTrade{
		tradeWithProfit("BTC/USDT", 1.0),
		tradeWithProfit("ETH/USDT", 1.0),
		tradeWithProfit("BTC/USDT", -5.0),
	}

	report := BuildForensics(trades, models.SummaryMetadata{}, DefaultForensicsOptions())
	if report.Insufficient() {
		t.Fatalf("expected full report, got insufficient: %s", report.Error)
	}
	if report.TradesDetected != 3 || report.TradesScored != 3 {
		t.Fatalf("expected 3 detected and scored, got %d/%d", report.TradesDetected, report.TradesScored)
	}

	if !closeTo(report.Winrate, 2.0/3.0) {
		t.Fatalf("expected winrate 2/3, got %f", report.Winrate)
	}
	if report.ProfitFactor == nil || !closeTo(*report.ProfitFactor, 0.4) {
		t.Fatalf("expected profit factor 0.4, got %v", report.ProfitFactor)
	}
	if !closeTo(report.ExpectancyPct, -1.0) {
		t.Fatalf("expected expectancy -1.0, got %f", report.ExpectancyPct)
	}
	if report.MaxWinStreak != 2 {
		t.Fatalf("expected max win streak 2, got %d", report.MaxWinStreak)
	}
	if report.MaxLossStreak != 1 {
		t.Fatalf("expected max loss streak 1, got %d", report.MaxLossStreak)
	}

	if !containsString(report.Diagnostics, "Profit factor < 1: gross losses exceed gross gains.") {
		t.Fatalf("expected profit factor diagnostic, got %v", report.Diagnostics)
	}
	if !containsString(report.Diagnostics, "High winrate but negative expectancy: average loss magnitude dominates average win.") {
		t.Fatalf("expected high winrate diagnostic, got %v", report.Diagnostics)
	}
}

func TestBuildForensicsInsufficientData(t *testing.T) {
	trades := []models.RawTrade{
		{"pair": "BTC/USDT", "open_date": "2024-01-01"},
		{"pair": "ETH/USDT", "open_date": "2024-01-02"},
	}

	report := BuildForensics(trades, models.SummaryMetadata{}, DefaultForensicsOptions())
	if !report.Insufficient() {
		t.Fatalf("expected insufficient report")
	}
	if report.TradesDetected != 2 {
		t.Fatalf("expected trades detected 2, got %d", report.TradesDetected)
	}
	if report.Error != "No profit_pct values detected in trades. Cannot compute detailed forensics." {
		t.Fatalf("unexpected error message: %q", report.Error)
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["winrate"]; ok {
		t.Fatalf("insufficient report must not carry statistics, got %s", data)
	}
	if _, ok := decoded["error"]; !ok {
		t.Fatalf("insufficient report must carry error field, got %s", data)
	}
}

func TestBuildForensicsProfitFactorNilWithoutLosses(t *testing.T) {
	trades := []models.RawTrade{
		tradeWithProfit("BTC/USDT", 1.0),
		tradeWithProfit("BTC/USDT", 2.0),
	}

	report := BuildForensics(trades, models.SummaryMetadata{}, DefaultForensicsOptions())
	if report.ProfitFactor != nil {
		t.Fatalf("expected nil profit factor with zero gross loss, got %v", *report.ProfitFactor)
	}
	if report.ExpectancyRatio != nil {
		t.Fatalf("expected nil expectancy ratio without losses")
	}
	if report.RiskAdjusted.CalmarTrade != nil {
		t.Fatalf("expected nil calmar with zero drawdown")
	}
	if report.RiskAdjusted.MaxDrawdownFraction != 0 {
		t.Fatalf("expected zero drawdown, got %f", report.RiskAdjusted.MaxDrawdownFraction)
	}
}

func TestBuildForensicsDrawdownBounds(t *testing.T) {
	trades := []models.RawTrade{
		tradeWithProfit("BTC/USDT", 50.0),
		tradeWithProfit("BTC/USDT", -90.0),
		tradeWithProfit("BTC/USDT", 10.0),
	}

	report := BuildForensics(trades, models.SummaryMetadata{}, DefaultForensicsOptions())
	dd := report.RiskAdjusted.MaxDrawdownFraction
	if dd < 0 || dd > 1 {
		t.Fatalf("drawdown fraction out of bounds: %f", dd)
	}
	if !closeTo(dd, 0.9) {
		t.Fatalf("expected 90%% drawdown, got %f", dd)
	}
}

func TestBuildForensicsDistributionPartition(t *testing.T) {
	profits := []float64{-10, -3, -1.5, -0.7, -0.3, 0.0, 0.3, 0.7, 1.5, 3, 10, 0.05, -0.05}
	trades := make([]models.RawTrade, 0, len(profits))
	for _, p := range profits {
		trades = append(trades, tradeWithProfit("BTC/USDT", p))
	}

	report := BuildForensics(trades, models.SummaryMetadata{}, DefaultForensicsOptions())
	dist := report.ProfitPctDistribution
	if dist.N != len(profits) {
		t.Fatalf("expected distribution n %d, got %d", len(profits), dist.N)
	}
	if len(dist.Counts) != 11 {
		t.Fatalf("expected 11 buckets, got %d", len(dist.Counts))
	}
	total := 0
	for _, c := range dist.Counts {
		total += c
	}
	if total != len(profits) {
		t.Fatalf("buckets must partition trades: %d != %d", total, len(profits))
	}
	if dist.Counts["<= -5%"] != 1 {
		t.Fatalf("expected one trade in left tail, got %d", dist.Counts["<= -5%"])
	}
	if dist.Counts[">= +5%"] != 1 {
		t.Fatalf("expected one trade in right tail, got %d", dist.Counts[">= +5%"])
	}
}

func TestBuildForensicsZeroProfitResetsStreaks(t *testing.T) {
	trades := []models.RawTrade{
		tradeWithProfit("BTC/USDT", 1.0),
		tradeWithProfit("BTC/USDT", 0.0),
		tradeWithProfit("BTC/USDT", 1.0),
	}

	report := BuildForensics(trades, models.SummaryMetadata{}, DefaultForensicsOptions())
	if report.MaxWinStreak != 1 {
		t.Fatalf("zero profit must reset win streak, got %d", report.MaxWinStreak)
	}
	if report.MaxLossStreak != 0 {
		t.Fatalf("expected no loss streak, got %d", report.MaxLossStreak)
	}
	if !closeTo(report.Winrate, 2.0/3.0) {
		t.Fatalf("zero profit counts as neither win nor loss, got winrate %f", report.Winrate)
	}
}

func TestBuildForensicsRiskRatioEdgeCases(t *testing.T) {
	single := BuildForensics([]models.RawTrade{tradeWithProfit("BTC/USDT", 1.0)}, models.SummaryMetadata{}, DefaultForensicsOptions())
	ra := single.RiskAdjusted
	if ra.SharpeTrade != nil || ra.SortinoTrade != nil || ra.VolatilityTrade != nil {
		t.Fatalf("expected nil ratios below two trades")
	}

	constant := BuildForensics([]models.RawTrade{
		tradeWithProfit("BTC/USDT", 1.0),
		tradeWithProfit("BTC/USDT", 1.0),
	}, models.SummaryMetadata{}, DefaultForensicsOptions())
	ra = constant.RiskAdjusted
	if ra.VolatilityTrade == nil || *ra.VolatilityTrade != 0 {
		t.Fatalf("expected zero volatility for constant profits, got %v", ra.VolatilityTrade)
	}
	if ra.SharpeTrade != nil {
		t.Fatalf("expected nil sharpe at zero variance")
	}
	if ra.SortinoTrade != nil {
		t.Fatalf("expected nil sortino with no downside")
	}
}

func TestBuildForensicsGroupRanking(t *testing.T) {
	trades := []models.RawTrade{
		tradeWithProfit("AAA/USDT", 2.0),
		tradeWithProfit("AAA/USDT", 2.0),
		tradeWithProfit("BBB/USDT", -1.0),
		tradeWithProfit("BBB/USDT", -1.0),
		tradeWithProfit("CCC/USDT", 0.5),
	}

	report := BuildForensics(trades, models.SummaryMetadata{}, DefaultForensicsOptions())
	if len(report.BestPairs) != 3 {
		t.Fatalf("expected 3 pair groups, got %d", len(report.BestPairs))
	}
	if report.BestPairs[0].Key != "AAA/USDT" {
		t.Fatalf("expected AAA/USDT best, got %s", report.BestPairs[0].Key)
	}
	if report.WorstPairs[0].Key != "BBB/USDT" {
		t.Fatalf("expected BBB/USDT worst, got %s", report.WorstPairs[0].Key)
	}
	if report.BestPairs[0].N != 2 {
		t.Fatalf("expected group size 2, got %d", report.BestPairs[0].N)
	}

	capped := BuildForensics(trades, models.SummaryMetadata{}, ForensicsOptions{MaxGroups: 1})
	if len(capped.BestPairs) != 1 || len(capped.WorstPairs) != 1 {
		t.Fatalf("expected group cap of 1, got %d/%d", len(capped.BestPairs), len(capped.WorstPairs))
	}
}

func TestBuildForensicsExitReasonFallback(t *testing.T) {
	trades := []models.RawTrade{
		{"pair": "BTC/USDT", "profit_pct": 1.0, "exit_reason": "roi"},
		{"pair": "BTC/USDT", "profit_pct": -1.0, "exit_tag": "stop_loss"},
		{"pair": "BTC/USDT", "profit_pct": 0.5, "buy_tag": "breakout"},
	}

	report := BuildForensics(trades, models.SummaryMetadata{}, DefaultForensicsOptions())
	keys := make(map[string]bool)
	for _, g := range report.BestExitReasons {
		keys[g.Key] = true
	}
	if !keys["roi"] || !keys["stop_loss"] {
		t.Fatalf("expected exit_reason and exit_tag fallback keys, got %v", keys)
	}
	if len(report.BestEnterTags) != 1 || report.BestEnterTags[0].Key != "breakout" {
		t.Fatalf("expected buy_tag fallback for enter tags, got %v", report.BestEnterTags)
	}
}

func TestBuildForensicsProfitAbsSummary(t *testing.T) {
	trades := []models.RawTrade{
		{"pair": "BTC/USDT", "profit_pct": 1.0, "profit_abs": 12.5},
		{"pair": "BTC/USDT", "profit_abs": -2.5},
	}

	report := BuildForensics(trades, models.SummaryMetadata{}, DefaultForensicsOptions())
	if report.Insufficient() {
		t.Fatalf("one scored trade should be enough")
	}
	if report.TradesScored != 1 || report.TradesDetected != 2 {
		t.Fatalf("expected 1 scored of 2 detected, got %d/%d", report.TradesScored, report.TradesDetected)
	}
	pas := report.ProfitAbsSummary
	if pas == nil {
		t.Fatalf("expected profit abs summary")
	}
	if pas.Count != 2 || !closeTo(pas.Total, 10.0) || !closeTo(pas.Avg, 5.0) {
		t.Fatalf("unexpected abs summary: %+v", pas)
	}
}

func TestBuildForensicsDeterministic(t *testing.T) {
	doc := decodeDoc(t, `{
		"strategy": {
			"results": {
				"trades": [
					{"pair": "BTC/USDT", "profit_pct": 1.2, "exit_reason": "roi"},
					{"pair": "ETH/USDT", "profit_pct": -0.8, "exit_reason": "stop_loss"},
					{"pair": "BTC/USDT", "profit_pct": 0.3, "exit_reason": "roi"}
				]
			}
		},
		"metadata": {"timerange": "20240101-20240301", "timeframe": "5m"}
	}`)

	first := forensicsFromDoc(t, doc)
	second := forensicsFromDoc(t, doc)
	if string(first) != string(second) {
		t.Fatalf("identical input must produce identical report:\n%s\n%s", first, second)
	}
}

func forensicsFromDoc(t *testing.T, doc map[string]interface{}) []byte {
	t.Helper()
	summary, trades := Summarize(doc, DefaultMaxSummaryTrades)
	report := BuildForensics(trades, summary.Metadata, DefaultForensicsOptions())
	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return data
}

func decodeDoc(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("bad test document: %v", err)
	}
	return doc
}

func tradeWithProfit(pair string, p float64) models.RawTrade {
	return models.RawTrade{"pair": pair, "profit_pct": p}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}
