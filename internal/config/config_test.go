package config

import (
	"os"
	"testing"
	"time"
)

const (
	validConfigPath       = "testdata/valid_config.yaml"
	expansionConfigPath   = "testdata/expansion_config.yaml"
	nonexistentConfigPath = "testdata/nonexistent_config.yaml"
	expectedNoErrorMsg    = "expected no error, got %v"
)

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.App.Name != "strategy-lab" {
		t.Errorf("expected app name 'strategy-lab', got '%s'", cfg.App.Name)
	}

	if cfg.App.Environment != "development" {
		t.Errorf("expected environment 'development', got '%s'", cfg.App.Environment)
	}

	if cfg.Server.Port != 8099 {
		t.Errorf("expected server port 8099, got %d", cfg.Server.Port)
	}

	if len(cfg.Engine.Command) != 1 || cfg.Engine.Command[0] != "freqtrade" {
		t.Errorf("expected engine command [freqtrade], got %v", cfg.Engine.Command)
	}

	if cfg.Store.Path != "data/ai_performance.sqlite3" {
		t.Errorf("unexpected store path '%s'", cfg.Store.Path)
	}

	if cfg.Advisor.TaskModels["risk"] != "llama3.1" {
		t.Errorf("expected risk task model 'llama3.1', got '%s'", cfg.Advisor.TaskModels["risk"])
	}
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load(nonexistentConfigPath)
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// TestLoadConfigEnvironmentVariables tests environment variable override
func TestLoadConfigEnvironmentVariables(t *testing.T) {
	os.Setenv("STRATEGY_LAB_APP_NAME", "test-app")
	defer os.Unsetenv("STRATEGY_LAB_APP_NAME")

	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg.App.Name != "test-app" {
		t.Errorf("expected app name 'test-app' from environment, got '%s'", cfg.App.Name)
	}
}

// TestLoadConfigExpandsPlaceholders tests ${VAR} expansion in the file
func TestLoadConfigExpandsPlaceholders(t *testing.T) {
	os.Setenv("TEST_STORE_PATH", "/tmp/lab.sqlite3")
	os.Setenv("TEST_ADVISOR_URL", "http://advisor.internal:11434")
	defer os.Unsetenv("TEST_STORE_PATH")
	defer os.Unsetenv("TEST_ADVISOR_URL")

	cfg, err := Load(expansionConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg.Store.Path != "/tmp/lab.sqlite3" {
		t.Errorf("expected expanded store path, got '%s'", cfg.Store.Path)
	}
	if cfg.Advisor.BaseURL != "http://advisor.internal:11434" {
		t.Errorf("expected expanded advisor url, got '%s'", cfg.Advisor.BaseURL)
	}
}

// TestLoadConfigMissingPlaceholder tests that an unset ${VAR} leaves the
// field empty and fails validation rather than load
func TestLoadConfigMissingPlaceholder(t *testing.T) {
	os.Setenv("TEST_STORE_PATH", "/tmp/lab.sqlite3")
	os.Unsetenv("TEST_ADVISOR_URL")
	defer os.Unsetenv("TEST_STORE_PATH")

	cfg, err := Load(expansionConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg.Advisor.BaseURL != "" {
		t.Errorf("expected empty advisor url, got '%s'", cfg.Advisor.BaseURL)
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for empty advisor url")
	}
}

// TestLoadWithDefaultsMissingFile tests that defaults alone form a valid
// configuration
func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(nonexistentConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}

	if cfg.Server.Port != 8099 {
		t.Errorf("expected default server port 8099, got %d", cfg.Server.Port)
	}
	if cfg.Housekeeping.Schedule != "0 * * * *" {
		t.Errorf("expected default housekeeping schedule, got '%s'", cfg.Housekeeping.Schedule)
	}
}

// TestValidateSuccess tests validation of a valid configuration
func TestValidateSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected no validation error, got %v", err)
	}
}

// TestValidateInvalidEnvironment tests validation of invalid environment
func TestValidateInvalidEnvironment(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	cfg.App.Environment = "invalid"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid environment")
	}
}

// TestValidateInvalidLogLevel tests validation of invalid log level
func TestValidateInvalidLogLevel(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	cfg.App.LogLevel = "loud"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
}

// TestValidatePortCollisions tests that every listener needs its own port
func TestValidatePortCollisions(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	cfg.Server.HealthPort = cfg.Server.Port
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for health port collision")
	}

	cfg, _ = Load(validConfigPath)
	cfg.Metrics.Port = cfg.Server.Port
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for metrics port collision")
	}

	// A disabled metrics listener cannot collide
	cfg.Metrics.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected no error with metrics disabled, got %v", err)
	}
}

// TestValidateWinrateBands tests the diagnostic band ordering rule
func TestValidateWinrateBands(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	cfg.Analysis.LowWinrate = 0.60
	cfg.Analysis.HighWinrate = 0.55
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for overlapping winrate bands")
	}
}

// TestValidateBadCronSchedule tests the housekeeping schedule check
func TestValidateBadCronSchedule(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	cfg.Housekeeping.Schedule = "whenever"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid cron expression")
	}
}

// TestValidateProductionMemoryStore tests the persistent store rule in
// production
func TestValidateProductionMemoryStore(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	cfg.App.Environment = "production"
	cfg.Store.Path = ":memory:"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for in-memory store in production")
	}
}

// TestEnvironmentHelpers tests the environment check functions
func TestEnvironmentHelpers(t *testing.T) {
	cfg := &Config{App: AppConfig{Environment: "development"}}
	if !cfg.IsDevelopment() || cfg.IsProduction() || cfg.IsStaging() {
		t.Error("development environment misreported")
	}

	cfg.App.Environment = "production"
	if !cfg.IsProduction() || cfg.IsDevelopment() {
		t.Error("production environment misreported")
	}

	cfg.App.Environment = "staging"
	if !cfg.IsStaging() || cfg.IsProduction() {
		t.Error("staging environment misreported")
	}
}

// TestDurationHelpers tests the typed duration accessors
func TestDurationHelpers(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if got := cfg.Engine.EngineTimeout(); got != 20*time.Minute {
		t.Errorf("expected 20m engine timeout, got %v", got)
	}
	if got := cfg.Engine.ScratchMaxAge(); got != 24*time.Hour {
		t.Errorf("expected 24h scratch max age, got %v", got)
	}
	if got := cfg.Advisor.AdvisorTimeout(); got != 120*time.Second {
		t.Errorf("expected 120s advisor timeout, got %v", got)
	}
	if got := cfg.Advisor.CacheTTL(); got != 900*time.Second {
		t.Errorf("expected 900s cache ttl, got %v", got)
	}
	if got := cfg.Jobs.JobRetention(); got != 24*time.Hour {
		t.Errorf("expected 24h job retention, got %v", got)
	}
}
