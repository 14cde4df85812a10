package backtest

import (
	"fmt"
	"time"

	"github.com/yourusername/strategy-lab/internal/config"
)

// RunnerConfig extends core config with engine invocation settings
type RunnerConfig struct {
	EngineCommand   []string
	ConfigPath      string
	DataDir         string
	WorkDir         string
	Timeout         time.Duration
	TailBytes       int
	ScratchMaxAge   time.Duration
	ResultsMaxFiles int
}

// FromConfig converts app config to runner config
func FromConfig(cfg *config.EngineConfig) (RunnerConfig, error) {
	if cfg == nil {
		return RunnerConfig{}, fmt.Errorf("engine config is required")
	}

	rc := RunnerConfig{
		EngineCommand:   append([]string(nil), cfg.Command...),
		ConfigPath:      cfg.ConfigPath,
		DataDir:         cfg.DataDir,
		WorkDir:         cfg.WorkDir,
		Timeout:         cfg.EngineTimeout(),
		TailBytes:       cfg.TailBytes,
		ScratchMaxAge:   cfg.ScratchMaxAge(),
		ResultsMaxFiles: cfg.ResultsMaxFiles,
	}

	return rc, rc.Validate()
}

// Validate validates runner config parameters
func (c RunnerConfig) Validate() error {
	if len(c.EngineCommand) == 0 {
		return fmt.Errorf("engine command is required")
	}
	if c.ConfigPath == "" {
		return fmt.Errorf("engine config path is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("engine timeout must be positive")
	}
	if c.TailBytes <= 0 {
		return fmt.Errorf("tail bytes must be positive")
	}
	if c.ScratchMaxAge <= 0 {
		return fmt.Errorf("scratch max age must be positive")
	}
	if c.ResultsMaxFiles <= 0 {
		return fmt.Errorf("results max files must be positive")
	}
	return nil
}
