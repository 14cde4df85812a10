package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/yourusername/strategy-lab/internal/config"
	"github.com/yourusername/strategy-lab/internal/metrics"
)

// Compile-time interface checks.
var _ RunStore = (*SQLiteStore)(nil)
var _ FeedbackStore = (*SQLiteStore)(nil)
var _ PerformanceStore = (*SQLiteStore)(nil)

// SQLiteStore implements PerformanceStore backed by a single-file SQLite
// database. The schema is created on open, so a fresh path is immediately
// usable.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *logrus.Logger
}

// NewSQLiteStore opens (or creates) the database at the configured path and
// applies the schema.
func NewSQLiteStore(cfg *config.StoreConfig, logger *logrus.Logger) (*SQLiteStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store config is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create store dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// An in-memory database exists per connection, so the pool must not
	// grow past one.
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, path: cfg.Path, logger: logger}
	if err := s.applyPragmas(cfg.BusyTimeoutMS); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithField("path", cfg.Path).Info("Performance store ready")
	return s, nil
}

// Ping verifies store connectivity
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) applyPragmas(busyTimeoutMS int) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMS),
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// observeQuery starts timing a store operation; deferring the returned func
// records the elapsed time under the operation label.
func observeQuery(operation string) func() {
	start := time.Now()
	return func() {
		metrics.RecordStoreQueryDuration(operation, time.Since(start).Seconds())
	}
}

func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS strategy_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			run_type TEXT NOT NULL,
			strategy_hash TEXT NOT NULL,
			strategy_code TEXT NOT NULL,
			user_goal TEXT,
			scenario_name TEXT,
			iteration INTEGER,
			timerange TEXT,
			timeframe TEXT,
			pairs TEXT,
			result_file TEXT,
			model_analysis TEXT,
			model_risk TEXT,
			analysis_text TEXT,
			risk_text TEXT,
			backtest_summary_json TEXT,
			trade_forensics_json TEXT,
			market_context_json TEXT,
			extra_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_runs_ts ON strategy_runs(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_runs_hash ON strategy_runs(strategy_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_runs_type ON strategy_runs(run_type)`,
		`CREATE TABLE IF NOT EXISTS run_feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			run_id INTEGER NOT NULL,
			rating INTEGER NOT NULL,
			comments TEXT,
			FOREIGN KEY(run_id) REFERENCES strategy_runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_feedback_ts ON run_feedback(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_run_feedback_run_id ON run_feedback(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
