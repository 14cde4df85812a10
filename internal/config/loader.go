// Package config provides configuration management for the Strategy Lab service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Read the configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the configuration (${VAR} syntax)
	expanded := os.ExpandEnv(string(data))

	// Create a new viper instance
	v := viper.New()
	v.SetConfigType("yaml")

	// Read the expanded configuration
	if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set environment variable prefix
	v.SetEnvPrefix("STRATEGY_LAB")

	// Enable automatic binding of environment variables
	v.AutomaticEnv()

	// Replace dots with underscores in environment variable names
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Unmarshal configuration into Config struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional fields
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()

	// Set configuration file path with default
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v.SetConfigType("yaml")

	// Set environment variable prefix
	v.SetEnvPrefix("STRATEGY_LAB")

	// Enable automatic binding of environment variables
	v.AutomaticEnv()

	// Replace dots with underscores in environment variable names
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set some reasonable defaults
	v.SetDefault("app.name", "strategy-lab")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8099)
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("server.health_port", 8098)
	v.SetDefault("store.path", "data/ai_performance.sqlite3")
	v.SetDefault("store.busy_timeout_ms", 5000)
	v.SetDefault("engine.command", []string{"freqtrade"})
	v.SetDefault("engine.config_path", "user_data/config.json")
	v.SetDefault("engine.data_dir", "data")
	v.SetDefault("engine.timeout_minutes", 20)
	v.SetDefault("engine.tail_bytes", 4000)
	v.SetDefault("engine.scratch_max_age_hours", 24)
	v.SetDefault("engine.results_max_files", 20)
	v.SetDefault("advisor.base_url", "http://localhost:11434")
	v.SetDefault("advisor.model", "llama2")
	v.SetDefault("advisor.timeout_seconds", 120)
	v.SetDefault("advisor.retry_attempts", 3)
	v.SetDefault("advisor.rate_limit", 2.0)
	v.SetDefault("advisor.cache_ttl_seconds", 900)
	v.SetDefault("analysis.max_summary_trades", 30)
	v.SetDefault("analysis.max_groups", 8)
	v.SetDefault("analysis.tiny_edge_pct", 0.10)
	v.SetDefault("analysis.tiny_edge_fraction", 0.60)
	v.SetDefault("analysis.high_winrate", 0.55)
	v.SetDefault("analysis.low_winrate", 0.45)
	v.SetDefault("analysis.tail_risk_p05", -5.0)
	v.SetDefault("jobs.retention_hours", 24)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("housekeeping.enabled", true)
	v.SetDefault("housekeeping.schedule", "0 * * * *")

	// Read and expand the configuration file if it exists
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand environment variables in the configuration (${VAR} syntax)
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// If file doesn't exist, continue with defaults and environment variables

	// Unmarshal configuration into Config struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}
