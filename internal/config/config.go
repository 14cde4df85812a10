// Package config provides configuration management for the Strategy Lab service.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app" validate:"required"`
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Store        StoreConfig        `mapstructure:"store" validate:"required"`
	Engine       EngineConfig       `mapstructure:"engine" validate:"required"`
	Advisor      AdvisorConfig      `mapstructure:"advisor" validate:"required"`
	Analysis     AnalysisConfig     `mapstructure:"analysis" validate:"required"`
	Jobs         JobsConfig         `mapstructure:"jobs" validate:"required"`
	Metrics      MetricsConfig      `mapstructure:"metrics" validate:"required"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// ServerConfig represents the HTTP API server configuration
type ServerConfig struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds" validate:"required,gt=0"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds" validate:"required,gt=0"`
	HealthPort          int    `mapstructure:"health_port" validate:"required,min=1,max=65535"`
}

// StoreConfig represents the embedded performance store configuration
type StoreConfig struct {
	Path          string `mapstructure:"path" validate:"required"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms" validate:"gte=0"`
}

// EngineConfig represents the external backtesting engine configuration
type EngineConfig struct {
	Command            []string `mapstructure:"command" validate:"required,min=1"`
	ConfigPath         string   `mapstructure:"config_path" validate:"required"`
	DataDir            string   `mapstructure:"data_dir" validate:"required"`
	WorkDir            string   `mapstructure:"work_dir"`
	TimeoutMinutes     int      `mapstructure:"timeout_minutes" validate:"required,gt=0"`
	TailBytes          int      `mapstructure:"tail_bytes" validate:"required,gt=0"`
	ScratchMaxAgeHours int      `mapstructure:"scratch_max_age_hours" validate:"required,gt=0"`
	ResultsMaxFiles    int      `mapstructure:"results_max_files" validate:"required,gt=0"`
}

// AdvisorConfig represents the AI advisor endpoint configuration
type AdvisorConfig struct {
	BaseURL         string            `mapstructure:"base_url" validate:"required,url"`
	Model           string            `mapstructure:"model" validate:"required"`
	TaskModels      map[string]string `mapstructure:"task_models"`
	TimeoutSeconds  int               `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	RetryAttempts   int               `mapstructure:"retry_attempts" validate:"gte=0"`
	RateLimit       float64           `mapstructure:"rate_limit" validate:"required,gt=0"`
	CacheTTLSeconds int               `mapstructure:"cache_ttl_seconds" validate:"required,gt=0"`
}

// AnalysisConfig represents forensics and summary tuning
type AnalysisConfig struct {
	MaxSummaryTrades int     `mapstructure:"max_summary_trades" validate:"required,gt=0"`
	MaxGroups        int     `mapstructure:"max_groups" validate:"required,gt=0"`
	TinyEdgePct      float64 `mapstructure:"tiny_edge_pct" validate:"required,gt=0"`
	TinyEdgeFraction float64 `mapstructure:"tiny_edge_fraction" validate:"required,gt=0,lte=1"`
	HighWinrate      float64 `mapstructure:"high_winrate" validate:"required,gt=0,lt=1"`
	LowWinrate       float64 `mapstructure:"low_winrate" validate:"required,gt=0,lt=1"`
	TailRiskP05      float64 `mapstructure:"tail_risk_p05" validate:"required,lt=0"`
}

// JobsConfig represents background job registry configuration
type JobsConfig struct {
	RetentionHours int `mapstructure:"retention_hours" validate:"required,gt=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// HousekeepingConfig represents the periodic cleanup schedule
type HousekeepingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required,cronexpr"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// ListenAddress returns the host:port the API server binds to
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// EngineTimeout returns the per-run engine timeout
func (c *EngineConfig) EngineTimeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// ScratchMaxAge returns the retention age for staged strategy files
func (c *EngineConfig) ScratchMaxAge() time.Duration {
	return time.Duration(c.ScratchMaxAgeHours) * time.Hour
}

// AdvisorTimeout returns the per-request advisor timeout
func (c *AdvisorConfig) AdvisorTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns the advisor response cache lifetime
func (c *AdvisorConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// JobRetention returns how long finished jobs stay queryable
func (c *JobsConfig) JobRetention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}
