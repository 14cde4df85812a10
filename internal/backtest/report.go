package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// GenerateConsoleReport formats a forensics report for terminal output
func GenerateConsoleReport(report *ForensicsReport) string {
	var builder strings.Builder
	builder.WriteString("Trade Forensics Report\n")
	builder.WriteString("======================\n")
	builder.WriteString(fmt.Sprintf("Trades Detected: %d\n", report.TradesDetected))

	if report.Insufficient() {
		builder.WriteString(fmt.Sprintf("No statistics: %s\n", report.Error))
		return builder.String()
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Trades Scored", report.TradesScored})
	t.AppendRow(table.Row{"Winrate", fmt.Sprintf("%.2f%%", report.Winrate*100)})
	t.AppendRow(table.Row{"Avg Win", fmt.Sprintf("%.4f%%", report.AvgWin)})
	t.AppendRow(table.Row{"Avg Loss", fmt.Sprintf("%.4f%%", report.AvgLoss)})
	t.AppendRow(table.Row{"Profit Factor", formatOptFloat(report.ProfitFactor)})
	t.AppendRow(table.Row{"Expectancy", fmt.Sprintf("%.4f%%", report.ExpectancyPct)})
	t.AppendRow(table.Row{"Expectancy Ratio", formatOptFloat(report.ExpectancyRatio)})
	t.AppendRow(table.Row{"Median Profit", fmt.Sprintf("%.4f%%", report.MedianProfitPct)})
	t.AppendRow(table.Row{"P05 / P95", fmt.Sprintf("%.4f%% / %.4f%%", report.P05ProfitPct, report.P95ProfitPct)})
	t.AppendRow(table.Row{"Tiny Edge Fraction", fmt.Sprintf("%.2f%%", report.TinyEdgeFraction*100)})
	t.AppendRow(table.Row{"Max Win Streak", report.MaxWinStreak})
	t.AppendRow(table.Row{"Max Loss Streak", report.MaxLossStreak})
	t.AppendRow(table.Row{"Total Return", fmt.Sprintf("%.2f%%", report.RiskAdjusted.TotalReturnPct)})
	t.AppendRow(table.Row{"Max Drawdown", fmt.Sprintf("%.2f%%", report.RiskAdjusted.MaxDrawdownPct)})
	t.AppendRow(table.Row{"Calmar (trade)", formatOptFloat(report.RiskAdjusted.CalmarTrade)})
	t.AppendRow(table.Row{"Sharpe (trade)", formatOptFloat(report.RiskAdjusted.SharpeTrade)})
	t.AppendRow(table.Row{"Sortino (trade)", formatOptFloat(report.RiskAdjusted.SortinoTrade)})
	t.AppendRow(table.Row{"Volatility (trade)", formatOptFloat(report.RiskAdjusted.VolatilityTrade)})
	builder.WriteString(t.Render())
	builder.WriteString("\n")

	if len(report.Diagnostics) > 0 {
		builder.WriteString("\nDiagnostics:\n")
		for _, d := range report.Diagnostics {
			builder.WriteString("- " + d + "\n")
		}
	}

	builder.WriteString(renderGroupTable("Best Pairs", report.BestPairs))
	builder.WriteString(renderGroupTable("Worst Pairs", report.WorstPairs))
	builder.WriteString(renderGroupTable("Best Exit Reasons", report.BestExitReasons))
	builder.WriteString(renderGroupTable("Worst Exit Reasons", report.WorstExitReasons))

	return builder.String()
}

func renderGroupTable(title string, rows []GroupStats) string {
	if len(rows) == 0 {
		return ""
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Key", "N", "Winrate", "Avg", "Median", "Expectancy"})
	for _, g := range rows {
		t.AppendRow(table.Row{
			g.Key,
			g.N,
			fmt.Sprintf("%.1f%%", g.Winrate*100),
			fmt.Sprintf("%.4f", g.Avg),
			fmt.Sprintf("%.4f", g.Median),
			fmt.Sprintf("%.4f", g.Expectancy),
		})
	}
	return "\n" + t.Render() + "\n"
}

// GenerateJSONExport writes the full report as indented JSON
func GenerateJSONExport(report *ForensicsReport, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

// GenerateCSVExport exports key metrics for spreadsheets
func GenerateCSVExport(report *ForensicsReport, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	if report.Insufficient() {
		csv := "metric,value\n" +
			fmt.Sprintf("trades_detected,%d\n", report.TradesDetected) +
			fmt.Sprintf("error,%s\n", report.Error)
		return os.WriteFile(outputPath, []byte(csv), 0o644)
	}
	csv := "metric,value\n" +
		fmt.Sprintf("trades_detected,%d\n", report.TradesDetected) +
		fmt.Sprintf("trades_scored,%d\n", report.TradesScored) +
		fmt.Sprintf("winrate,%.4f\n", report.Winrate) +
		fmt.Sprintf("avg_win,%.4f\n", report.AvgWin) +
		fmt.Sprintf("avg_loss,%.4f\n", report.AvgLoss) +
		fmt.Sprintf("profit_factor,%s\n", formatOptFloat(report.ProfitFactor)) +
		fmt.Sprintf("expectancy_pct,%.4f\n", report.ExpectancyPct) +
		fmt.Sprintf("total_return_pct,%.4f\n", report.RiskAdjusted.TotalReturnPct) +
		fmt.Sprintf("max_drawdown_pct,%.4f\n", report.RiskAdjusted.MaxDrawdownPct) +
		fmt.Sprintf("max_win_streak,%d\n", report.MaxWinStreak) +
		fmt.Sprintf("max_loss_streak,%d\n", report.MaxLossStreak)
	return os.WriteFile(outputPath, []byte(csv), 0o644)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}
