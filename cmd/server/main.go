// Package main provides the entry point for the strategy lab server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-lab/internal/advisor"
	"github.com/yourusername/strategy-lab/internal/api"
	"github.com/yourusername/strategy-lab/internal/backtest"
	"github.com/yourusername/strategy-lab/internal/config"
	"github.com/yourusername/strategy-lab/internal/health"
	"github.com/yourusername/strategy-lab/internal/jobs"
	"github.com/yourusername/strategy-lab/internal/logger"
	"github.com/yourusername/strategy-lab/internal/metrics"
	"github.com/yourusername/strategy-lab/internal/scheduler"
	"github.com/yourusername/strategy-lab/internal/service"
	"github.com/yourusername/strategy-lab/internal/store"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set up logging
	appLog := logger.NewFromConfig(&cfg.App)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"log_level":   cfg.App.LogLevel,
		"version":     Version,
		"commit":      GitCommit,
	}).Info("Strategy Lab server starting")

	// Initialize metrics registry before any component records
	metrics.InitRegistry()

	// Open the performance store
	st, err := store.NewSQLiteStore(&cfg.Store, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to open performance store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			appLog.WithError(err).Error("Failed to close performance store")
		}
	}()

	appLog.WithField("path", cfg.Store.Path).Info("Performance store opened")

	// Initialize the backtest runner
	runnerCfg, err := backtest.FromConfig(&cfg.Engine)
	if err != nil {
		appLog.WithError(err).Fatal("Invalid engine configuration")
	}
	runner, err := backtest.NewRunner(runnerCfg, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create backtest runner")
	}

	// Initialize the advisor client
	adv, err := advisor.NewClient(&cfg.Advisor, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create advisor client")
	}

	appLog.WithFields(logrus.Fields{
		"base_url": cfg.Advisor.BaseURL,
		"model":    cfg.Advisor.Model,
	}).Info("Advisor client initialized")

	// Best-effort reachability probe; the server still starts without the
	// advisor, analysis requests just fail until it comes up.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := adv.Ping(pingCtx); err != nil {
		appLog.WithError(err).Warn("Advisor endpoint not reachable")
	}
	pingCancel()

	// Wire the service and job registry
	registry := jobs.NewRegistry(appLog)
	svc := service.NewStrategyService(runner, st, adv, cfg, appLog)

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start the health check server
	healthServer := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Commit:      GitCommit,
		Port:        cfg.Server.HealthPort,
		Logger:      appLog,
		Store:       st,
		EngineCheck: engineCheck(runner),
	})
	if err := healthServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}

	// Start the metrics listener
	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, &cfg.Metrics, appLog)
	}

	// Start the API server
	apiServer := api.NewServer(api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		Service:      svc,
		Registry:     registry,
		Logger:       appLog,
	})
	if err := apiServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start API server")
	}

	// Start housekeeping
	janitor := scheduler.NewScheduler(runner, registry, cfg.Jobs.JobRetention(), appLog)
	if cfg.Housekeeping.Enabled {
		if err := janitor.ScheduleHousekeeping(cfg.Housekeeping.Schedule); err != nil {
			appLog.WithError(err).Fatal("Failed to schedule housekeeping")
		}
		if err := janitor.Start(); err != nil {
			appLog.WithError(err).Fatal("Failed to start housekeeping scheduler")
		}
	} else {
		appLog.Info("Housekeeping disabled; scratch and result files grow unbounded")
	}

	healthServer.SetReady(true)
	appLog.WithFields(logrus.Fields{
		"api_port":     cfg.Server.Port,
		"health_port":  cfg.Server.HealthPort,
		"housekeeping": cfg.Housekeeping.Enabled,
	}).Info("Strategy Lab server is running")

	// Wait for shutdown signal
	sig := <-sigChan
	appLog.WithField("signal", sig).Info("Shutdown signal received")

	healthServer.SetReady(false)

	if err := janitor.Stop(); err != nil {
		appLog.WithError(err).Error("Error stopping housekeeping scheduler")
	}
	if err := apiServer.Shutdown(); err != nil {
		appLog.WithError(err).Error("Error during API server shutdown")
	}
	if err := healthServer.Shutdown(); err != nil {
		appLog.WithError(err).Error("Error during health server shutdown")
	}
	cancel()

	// Jobs still in flight are abandoned with the process; their run
	// records only exist once a cycle completes.
	if n := registry.Len(); n > 0 {
		appLog.WithField("jobs", n).Warn("Shutting down with jobs still tracked")
	}

	appLog.Info("Strategy Lab server shut down successfully")
}

// engineCheck reports whether the configured engine binary resolves on
// PATH, for the readiness probe.
func engineCheck(runner *backtest.Runner) func(ctx context.Context) error {
	command := runner.Config().EngineCommand
	return func(ctx context.Context) error {
		if len(command) == 0 {
			return fmt.Errorf("engine command is empty")
		}
		if _, err := exec.LookPath(command[0]); err != nil {
			return fmt.Errorf("engine binary not found: %w", err)
		}
		return nil
	}
}

// startMetricsServer serves the Prometheus handler on its own listener so
// scrapes never contend with API traffic.
func startMetricsServer(ctx context.Context, cfg *config.MetricsConfig, appLog *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLog.WithFields(logrus.Fields{
			"port": cfg.Port,
			"path": cfg.Path,
		}).Info("Metrics server starting")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Error("Metrics server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			appLog.WithError(err).Error("Metrics server shutdown error")
		}
	}()
}
