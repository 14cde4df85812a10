// Package main provides the labctl command line client for the strategy
// lab. It drives the same service layer as the HTTP API, so results match
// what the server would record.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/strategy-lab/internal/backtest"
	"github.com/yourusername/strategy-lab/internal/config"
	applogger "github.com/yourusername/strategy-lab/internal/logger"
	"github.com/yourusername/strategy-lab/internal/models"
	"github.com/yourusername/strategy-lab/internal/service"
	"github.com/yourusername/strategy-lab/internal/store"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configFile string
	appLog     *logrus.Logger
	cfg        *config.Config
	st         *store.SQLiteStore
	svc        *service.StrategyService

	strategyFile string
	btTimerange  string
	btTimeframe  string
	btPairs      string
	btRecord     bool

	historyLimit int

	feedbackRating   int
	feedbackComments string

	dlTimerange string
	dlTimeframe string
	dlPairs     string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Path to configuration file")

	backtestCmd.Flags().StringVarP(&strategyFile, "file", "f", "", "Path to the strategy source file")
	backtestCmd.Flags().StringVar(&btTimerange, "timerange", "", "Backtest window, e.g. 20240101-20240301")
	backtestCmd.Flags().StringVar(&btTimeframe, "timeframe", "", "Candle timeframe, e.g. 5m")
	backtestCmd.Flags().StringVar(&btPairs, "pairs", "", "Space separated pair list override")
	backtestCmd.Flags().BoolVar(&btRecord, "record", false, "Record the run in the performance store")
	backtestCmd.MarkFlagRequired("file")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Number of runs to list")

	feedbackCmd.Flags().IntVar(&feedbackRating, "rating", 0, "Rating from 1 to 5")
	feedbackCmd.Flags().StringVar(&feedbackComments, "comments", "", "Free-form comments")
	feedbackCmd.MarkFlagRequired("rating")

	downloadCmd.Flags().StringVar(&dlTimerange, "timerange", "", "Download window, e.g. 20240101-")
	downloadCmd.Flags().StringVar(&dlTimeframe, "timeframe", "", "Candle timeframe, e.g. 5m")
	downloadCmd.Flags().StringVar(&dlPairs, "pairs", "", "Space separated pair list")
}

var rootCmd = &cobra.Command{
	Use:   "labctl",
	Short: "Strategy lab command line client",
	Long:  `Run backtests, inspect run history, and record feedback against the local strategy lab.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if st != nil {
			st.Close()
		}
	},
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run one backtest and print the trade forensics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBacktest(context.Background())
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showHistory(context.Background())
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store-wide run and feedback statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStats(context.Background())
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <run-id>",
	Short: "Rate a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("run-id must be an integer: %w", err)
		}
		return recordFeedback(context.Background(), runID)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download market data through the engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(context.Background())
	},
}

func main() {
	rootCmd.AddCommand(backtestCmd, historyCmd, statsCmd, feedbackCmd, downloadCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := config.Validate(loaded); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func setupDependencies() error {
	appLog = applogger.NewFromConfig(&cfg.App)
	// Tables go to stdout; keep runtime logging down to warnings.
	appLog.SetLevel(logrus.WarnLevel)
	appLog.SetOutput(os.Stderr)

	var err error
	st, err = store.NewSQLiteStore(&cfg.Store, appLog)
	if err != nil {
		return fmt.Errorf("failed to open performance store: %w", err)
	}

	runnerCfg, err := backtest.FromConfig(&cfg.Engine)
	if err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}
	runner, err := backtest.NewRunner(runnerCfg, appLog)
	if err != nil {
		return fmt.Errorf("failed to create backtest runner: %w", err)
	}

	// The CLI never calls advisor-backed cycles, so no advisor client.
	svc = service.NewStrategyService(runner, st, nil, cfg, appLog)
	return nil
}

func runBacktest(ctx context.Context) error {
	code, err := os.ReadFile(strategyFile)
	if err != nil {
		return fmt.Errorf("failed to read strategy file: %w", err)
	}

	req := service.BacktestRequest{
		StrategyCode: string(code),
		Timerange:    btTimerange,
		Timeframe:    btTimeframe,
		Pairs:        btPairs,
		SkipRecord:   !btRecord,
	}

	report, err := svc.ManualBacktest(ctx, req, func(line string) {
		fmt.Println(line)
	})
	if err != nil {
		return err
	}

	fmt.Println()
	printSummaryTable(report.Summary)

	if report.Forensics != nil {
		fmt.Println()
		fmt.Print(backtest.GenerateConsoleReport(report.Forensics))
	}

	if report.RunID > 0 {
		fmt.Printf("\nRecorded as run %d\n", report.RunID)
	}
	return nil
}

func showHistory(ctx context.Context) error {
	runs, err := svc.History(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "When", "Type", "Timerange", "Timeframe", "Pairs"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ID", Align: text.AlignRight},
		{Name: "Pairs", WidthMax: 40},
	})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			time.Unix(run.Timestamp, 0).UTC().Format("2006-01-02 15:04"),
			string(run.RunType),
			run.Timerange,
			run.Timeframe,
			run.Pairs,
		})
	}
	t.Render()
	return nil
}

func showStats(ctx context.Context) error {
	stats, err := svc.Stats(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Metric", "Value"})

	t.AppendRow(table.Row{"Total runs", stats.Runs.TotalRuns})
	lastRun := "never"
	if stats.Runs.LastTS != nil {
		lastRun = time.Unix(*stats.Runs.LastTS, 0).UTC().Format(time.RFC3339)
	}
	t.AppendRow(table.Row{"Last run", lastRun})
	for runType, count := range stats.Runs.ByType {
		t.AppendRow(table.Row{"Runs: " + runType, count})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Total feedback", stats.Feedback.TotalFeedback})
	t.AppendRow(table.Row{"Average rating", fmt.Sprintf("%.2f", stats.Feedback.AverageRating)})
	t.AppendRow(table.Row{"With comments", stats.Feedback.FeedbackWithComments})
	for rating := 1; rating <= 5; rating++ {
		if count, ok := stats.Feedback.RatingDistribution[rating]; ok {
			t.AppendRow(table.Row{fmt.Sprintf("Rating %d", rating), count})
		}
	}
	t.Render()
	return nil
}

func recordFeedback(ctx context.Context, runID int64) error {
	id, err := svc.RecordFeedback(ctx, service.FeedbackRequest{
		RunID:    runID,
		Rating:   feedbackRating,
		Comments: feedbackComments,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Feedback %d recorded for run %d\n", id, runID)
	return nil
}

func runDownload(ctx context.Context) error {
	report, err := svc.DownloadData(ctx, service.DownloadRequest{
		Timerange: dlTimerange,
		Timeframe: dlTimeframe,
		Pairs:     dlPairs,
	}, func(line string) {
		fmt.Println(line)
	})
	if err != nil {
		return err
	}
	if report.StdoutTail != "" {
		fmt.Println(report.StdoutTail)
	}
	return nil
}

// printSummaryTable renders the headline backtest metrics. Absent metrics
// are skipped, never shown as zero.
func printSummaryTable(summary *models.BacktestSummary) {
	if summary == nil {
		fmt.Println("No result summary available.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Value", Align: text.AlignRight},
	})

	t.AppendRow(table.Row{"Trades detected", summary.TradesDetected})
	appendMetric(t, "Total trades", firstOf(summary.Metrics.TotalTrades, summary.Metrics.TradeCount), "%.0f")
	appendMetric(t, "Winrate", firstOf(summary.Metrics.Winrate, summary.Metrics.WinRate), "%.4f")
	appendMetric(t, "Profit total %", summary.Metrics.ProfitTotalPct, "%.2f")
	appendMetric(t, "Profit total abs", summary.Metrics.ProfitTotalAbs, "%.2f")
	appendMetric(t, "Max drawdown %", summary.Metrics.MaxDrawdownPct, "%.2f")
	appendMetric(t, "Max drawdown", summary.Metrics.MaxDrawdown, "%.2f")
	t.Render()
}

func appendMetric(t table.Writer, name string, value *float64, format string) {
	if value == nil {
		return
	}
	t.AppendRow(table.Row{name, fmt.Sprintf(format, *value)})
}

func firstOf(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
