package backtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-lab/internal/models"
)

var strategyClassPattern = regexp.MustCompile(`(?m)^\s*class\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(.*IStrategy.*\)\s*:`)

const (
	scratchDirName = "tmp_backtest_strategies"
	resultsDirName = "backtest_results"
)

// Runner invokes the external backtesting engine as a subprocess, materializes
// submitted strategy code into a scratch file for the run, and decodes the
// engine's result JSON.
type Runner struct {
	config RunnerConfig
	logger *logrus.Logger
}

// NewRunner creates a backtest runner
func NewRunner(cfg RunnerConfig, logger *logrus.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{config: cfg, logger: logger}, nil
}

// Config returns the runner configuration
func (r *Runner) Config() RunnerConfig {
	return r.config
}

// RunOptions are per-run overrides; zero values fall through to the engine
// config file.
type RunOptions struct {
	Timerange     string
	Timeframe     string
	Pairs         string
	Fee           *float64
	DryRunWallet  *float64
	MaxOpenTrades *int
}

// RunResult carries everything the engine produced for one run.
type RunResult struct {
	StrategyClass string
	StrategyFile  string
	ResultFile    string
	Stdout        string
	Stderr        string
	Data          map[string]interface{}
}

// DownloadOptions scope a market data download.
type DownloadOptions struct {
	Timerange string
	Timeframe string
	Pairs     string
}

// DownloadResult reports the executed command and its output tails.
type DownloadResult struct {
	Cmd    []string
	Stdout string
	Stderr string
}

// DetectStrategyClass returns the name of the strategy class declared in the
// submitted source. The source must declare exactly one class inheriting
// from IStrategy; zero or multiple declarations are both detection failures.
func DetectStrategyClass(strategyCode string) (string, error) {
	matches := strategyClassPattern.FindAllStringSubmatch(strategyCode, 2)
	if len(matches) != 1 {
		return "", ErrStrategyClassNotFound
	}
	return matches[0][1], nil
}

// Run executes one backtest. The strategy code is written to a scratch file
// the engine can import, the engine runs with the configured timeout, and
// the exported result file is decoded. The scratch file is removed before
// returning regardless of outcome.
func (r *Runner) Run(ctx context.Context, strategyCode string, opts RunOptions) (*RunResult, error) {
	if strings.TrimSpace(strategyCode) == "" {
		return nil, models.ErrEmptyStrategyCode
	}

	class, err := DetectStrategyClass(strategyCode)
	if err != nil {
		return nil, err
	}

	scratchDir := r.ScratchDir()
	resultsDir := r.ResultsDir()
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results dir: %w", err)
	}

	r.CleanupScratch()
	r.CleanupResults()

	ts := time.Now().Format("20060102_150405")
	strategyFile := filepath.Join(scratchDir, "analysis_strategy_"+ts+".py")
	outName := fmt.Sprintf("backtest_%s_%s.json", class, ts)
	outFile := filepath.Join(resultsDir, outName)

	if err := os.WriteFile(strategyFile, []byte(strategyCode), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write strategy file: %w", err)
	}
	defer func() {
		if err := os.Remove(strategyFile); err != nil && !os.IsNotExist(err) {
			r.logger.WithError(err).WithField("file", strategyFile).Warn("Failed to remove temp strategy file")
		}
	}()

	args := r.engineArgs(
		"backtesting",
		"-c", r.config.ConfigPath,
		"-s", class,
		"--strategy-path", scratchDir,
		"--export", "trades",
		"--backtest-directory", resultsDir,
		"--backtest-filename", outName,
	)
	if tf := strings.TrimSpace(opts.Timeframe); tf != "" {
		args = append(args, "-i", tf)
	}
	if tr := strings.TrimSpace(opts.Timerange); tr != "" {
		args = append(args, "--timerange", tr)
	}
	if parts := splitPairs(opts.Pairs); len(parts) > 0 {
		args = append(args, "-p")
		args = append(args, parts...)
	}
	if opts.Fee != nil {
		args = append(args, "--fee", strconv.FormatFloat(*opts.Fee, 'f', -1, 64))
	}
	if opts.DryRunWallet != nil {
		args = append(args, "--dry-run-wallet", strconv.FormatFloat(*opts.DryRunWallet, 'f', -1, 64))
	}
	if opts.MaxOpenTrades != nil {
		args = append(args, "--max-open-trades", strconv.Itoa(*opts.MaxOpenTrades))
	}

	r.logger.WithFields(logrus.Fields{
		"strategy_class": class,
		"timerange":      opts.Timerange,
		"timeframe":      opts.Timeframe,
	}).Info("Running backtest")

	stdout, stderr, err := r.execEngine(ctx, "backtest", args)
	if err != nil {
		return nil, err
	}

	data, err := ReadResultFile(outFile)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"strategy_class": class,
		"result_file":    outFile,
	}).Info("Backtest complete")

	return &RunResult{
		StrategyClass: class,
		StrategyFile:  strategyFile,
		ResultFile:    outFile,
		Stdout:        stdout,
		Stderr:        stderr,
		Data:          data,
	}, nil
}

// DownloadData fetches market data through the engine's downloader.
func (r *Runner) DownloadData(ctx context.Context, opts DownloadOptions) (*DownloadResult, error) {
	args := r.engineArgs("download-data", "-c", r.config.ConfigPath)
	if tr := strings.TrimSpace(opts.Timerange); tr != "" {
		args = append(args, "--timerange", tr)
	}
	if tf := strings.TrimSpace(opts.Timeframe); tf != "" {
		args = append(args, "-t", tf)
	}
	if parts := splitPairs(opts.Pairs); len(parts) > 0 {
		args = append(args, "-p")
		args = append(args, parts...)
	}

	r.logger.WithField("cmd", strings.Join(args, " ")).Info("Downloading data")

	stdout, stderr, err := r.execEngine(ctx, "data download", args)
	if err != nil {
		return nil, err
	}
	return &DownloadResult{Cmd: args, Stdout: stdout, Stderr: stderr}, nil
}

// ScratchDir is where submitted strategy code is staged for the engine.
func (r *Runner) ScratchDir() string {
	return filepath.Join(r.config.DataDir, scratchDirName)
}

// ResultsDir is where engine result files accumulate.
func (r *Runner) ResultsDir() string {
	return filepath.Join(r.config.DataDir, resultsDirName)
}

// engineArgs prepends the configured engine command so its first element is
// the binary and the rest lead every invocation.
func (r *Runner) engineArgs(extra ...string) []string {
	args := make([]string, 0, len(r.config.EngineCommand)+len(extra))
	args = append(args, r.config.EngineCommand...)
	args = append(args, extra...)
	return args
}

// execEngine runs the engine with the configured timeout. A non-zero exit
// becomes a ProcessError carrying truncated output tails; on success the
// full streams are returned.
func (r *Runner) execEngine(ctx context.Context, op string, args []string) (string, string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	if r.config.WorkDir != "" {
		cmd.Dir = r.config.WorkDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := stdout.String()
	errOut := stderr.String()

	if runCtx.Err() == context.DeadlineExceeded {
		return out, errOut, fmt.Errorf("%s timed out after %s: %w", op, r.config.Timeout, runCtx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, errOut, &ProcessError{
				Op:       op,
				ExitCode: exitErr.ExitCode(),
				Stdout:   Tail(out, r.config.TailBytes),
				Stderr:   Tail(errOut, r.config.TailBytes),
			}
		}
		return out, errOut, fmt.Errorf("failed to start %s engine: %w", op, err)
	}
	return out, errOut, nil
}

// splitPairs accepts comma or whitespace separated pair lists.
func splitPairs(raw string) []string {
	return strings.Fields(strings.ReplaceAll(raw, ",", " "))
}

// Tail returns the last n bytes of s.
func Tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
