package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/strategy-lab/internal/config"
)

func testAdvisorConfig(baseURL string) *config.AdvisorConfig {
	return &config.AdvisorConfig{
		BaseURL:         baseURL,
		Model:           "base-model",
		TimeoutSeconds:  5,
		RetryAttempts:   0,
		RateLimit:       100,
		CacheTTLSeconds: 60,
	}
}

// TestResponseCacheHitAndMiss tests cache lookup accounting
func TestResponseCacheHitAndMiss(t *testing.T) {
	cache := NewResponseCache(time.Hour)
	defer cache.Clear()

	_, found := cache.Get(TaskAnalysis, "m", "prompt")
	assert.False(t, found)

	cache.Set(TaskAnalysis, "m", "prompt", "cached text")
	text, found := cache.Get(TaskAnalysis, "m", "prompt")
	require.True(t, found)
	assert.Equal(t, "cached text", text)

	hits, misses, ratio := cache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.InDelta(t, 0.5, ratio, 0.0001)
}

// TestResponseCacheExpiration tests cache TTL expiration
func TestResponseCacheExpiration(t *testing.T) {
	cache := NewResponseCache(50 * time.Millisecond)
	defer cache.Clear()

	cache.Set(TaskRisk, "m", "prompt", "short lived")
	_, found := cache.Get(TaskRisk, "m", "prompt")
	require.True(t, found)

	time.Sleep(80 * time.Millisecond)
	_, found = cache.Get(TaskRisk, "m", "prompt")
	assert.False(t, found)
}

// TestResponseCacheKeysAreDistinct tests that task, model and prompt all
// contribute to the cache key
func TestResponseCacheKeysAreDistinct(t *testing.T) {
	cache := NewResponseCache(time.Hour)
	defer cache.Clear()

	cache.Set(TaskAnalysis, "m1", "prompt", "a")
	cache.Set(TaskRisk, "m1", "prompt", "b")
	cache.Set(TaskAnalysis, "m2", "prompt", "c")
	cache.Set(TaskAnalysis, "m1", "other prompt", "d")

	assert.Equal(t, 4, cache.ItemCount())
}

// TestClientAnalyze tests a full analysis round trip
func TestClientAnalyze(t *testing.T) {
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(generateResponse{Response: "LOSS_MECHANISM:\nlate exits"})
	}))
	defer server.Close()

	client, err := NewClient(testAdvisorConfig(server.URL), nil)
	require.NoError(t, err)
	defer client.Close()

	payload := map[string]interface{}{"backtest_summary": map[string]interface{}{"trades_detected": 12}}
	text, err := client.Analyze(context.Background(), "class SampleStrategy(IStrategy):\n    pass", payload)
	require.NoError(t, err)
	assert.Contains(t, text, "LOSS_MECHANISM")

	assert.Equal(t, "base-model", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.Contains(t, gotReq.Prompt, "class SampleStrategy(IStrategy)")
	assert.Contains(t, gotReq.Prompt, "trades_detected")
}

// TestClientTaskModelOverride tests per-task model routing
func TestClientTaskModelOverride(t *testing.T) {
	models := make(chan string, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		models <- req.Model
		json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	}))
	defer server.Close()

	cfg := testAdvisorConfig(server.URL)
	cfg.TaskModels = map[string]string{TaskRefine: "coder-model"}

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Refine(context.Background(), "reduce drawdown", "code", nil)
	require.NoError(t, err)
	assert.Equal(t, "coder-model", <-models)

	_, err = client.AssessRisk(context.Background(), "code", nil)
	require.NoError(t, err)
	assert.Equal(t, "base-model", <-models)
}

// TestClientCachesRepeatedPrompts tests that identical requests hit the
// advisor only once within the cache TTL
func TestClientCachesRepeatedPrompts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(generateResponse{Response: "analysis text"})
	}))
	defer server.Close()

	client, err := NewClient(testAdvisorConfig(server.URL), nil)
	require.NoError(t, err)
	defer client.Close()

	payload := map[string]interface{}{"winrate": 0.5}
	first, err := client.Analyze(context.Background(), "code", payload)
	require.NoError(t, err)
	second, err := client.Analyze(context.Background(), "code", payload)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	hits, misses, _ := client.CacheStats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

// TestClientEmptyResponse tests rejection of blank completions
func TestClientEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "   \n"})
	}))
	defer server.Close()

	client, err := NewClient(testAdvisorConfig(server.URL), nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Analyze(context.Background(), "code", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

// TestClientRetriesServerErrors tests transparent retry on 5xx responses
func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "recovered"})
	}))
	defer server.Close()

	cfg := testAdvisorConfig(server.URL)
	cfg.RetryAttempts = 2

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	text, err := client.AssessRisk(context.Background(), "code", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// TestClientDoesNotRetryClientErrors tests that 4xx responses fail fast
func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := testAdvisorConfig(server.URL)
	cfg.RetryAttempts = 3

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Analyze(context.Background(), "code", nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// TestClientPingAndModels tests endpoint discovery calls
func TestClientPingAndModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"qwen"},{"name":"llama3"},{"name":"llama3"},{"name":"  "}]}`))
	}))
	defer server.Close()

	client, err := NewClient(testAdvisorConfig(server.URL), nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))

	models, err := client.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3", "qwen"}, models)
}

// TestClientModelsEmpty tests the no-models error
func TestClientModelsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	client, err := NewClient(testAdvisorConfig(server.URL), nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Models(context.Background())
	assert.ErrorIs(t, err, ErrNoModels)
}

// TestClientUnreachableEndpoint tests connection failures
func TestClientUnreachableEndpoint(t *testing.T) {
	cfg := testAdvisorConfig("http://127.0.0.1:1")
	cfg.TimeoutSeconds = 1

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	err = client.Ping(context.Background())
	assert.ErrorIs(t, err, ErrAdvisorUnavailable)
}

// TestNewClientRequiresConfig tests constructor validation
func TestNewClientRequiresConfig(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.Error(t, err)
}

// TestStrategyClassDetection tests class extraction for the refine prompt
func TestStrategyClassDetection(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "explicit class",
			code: "class MomentumStrategy(IStrategy):\n    pass",
			want: "MomentumStrategy",
		},
		{
			name: "no class falls back",
			code: "def helper():\n    pass",
			want: defaultStrategyClass,
		},
		{
			name: "empty code falls back",
			code: "",
			want: defaultStrategyClass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, strategyClassFor(tt.code))
		})
	}
}
