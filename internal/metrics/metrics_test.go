package metrics

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistry(t *testing.T) {
	// Initialize the registry
	InitRegistry()
	registry := GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
}

func TestInitRegistryIdempotent(t *testing.T) {
	first := InitRegistry()
	second := InitRegistry()

	assert.Same(t, first, second)
}

func TestRecordRunRecorded(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordRunRecorded()
	})
}

func TestRecordEngineCommand(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name    string
		command string
		status  string
	}{
		{
			name:    "successful backtest",
			command: "backtest",
			status:  "success",
		},
		{
			name:    "failed backtest",
			command: "backtest",
			status:  "failure",
		},
		{
			name:    "timed out download",
			command: "download-data",
			status:  "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordEngineCommand(tt.command, tt.status)
			})
		})
	}
}

func TestRecordEngineRunDuration(t *testing.T) {
	InitRegistry()
	durationSeconds := 12.5

	assert.NotPanics(t, func() {
		RecordEngineRunDuration(durationSeconds)
	})
}

func TestRecordStoreQueryDuration(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name      string
		operation string
		duration  float64
	}{
		{
			name:      "run insert",
			operation: "record_run",
			duration:  0.004,
		},
		{
			name:      "history listing",
			operation: "get_recent_runs",
			duration:  0.012,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordStoreQueryDuration(tt.operation, tt.duration)
			})
		})
	}
}

func TestJobsActiveGauge(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		IncJobsActive()
		DecJobsActive()
	})
}

func TestRecordJobCompleted(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name   string
		kind   string
		status string
	}{
		{
			name:   "successful backtest job",
			kind:   "backtest",
			status: "succeeded",
		},
		{
			name:   "failed refine job",
			kind:   "refine",
			status: "failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordJobCompleted(tt.kind, tt.status)
			})
		})
	}
}

func TestRecordAdvisorRequest(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name     string
		task     string
		model    string
		cacheHit bool
		duration float64
	}{
		{
			name:     "cache miss analysis",
			task:     "analysis",
			model:    "llama3",
			cacheHit: false,
			duration: 3.2,
		},
		{
			name:     "cache hit risk assessment",
			task:     "risk",
			model:    "mistral",
			cacheHit: true,
			duration: 0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordAdvisorRequest(tt.task, tt.model, tt.cacheHit, tt.duration)
			})
		})
	}
}

func TestRecordAdvisorError(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordAdvisorError("analysis")
	})
}

func TestRecordScratchRemoved(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name  string
		count int
	}{
		{
			name:  "several files",
			count: 4,
		},
		{
			name:  "nothing removed",
			count: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordScratchRemoved(tt.count)
			})
		})
	}
}

func TestUpdateLastRunTimestamp(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		UpdateLastRunTimestamp(1700000000)
	})
}

func TestObserveTradesDetected(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		ObserveTradesDetected("manual_backtest", 42)
	})
}

func TestMetricsHandler(t *testing.T) {
	InitRegistry()

	handler := Handler()
	assert.NotNil(t, handler)
	assert.Implements(t, (*http.Handler)(nil), handler)
}
