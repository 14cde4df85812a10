// Package advisor provides the HTTP advisor client implementation.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourusername/strategy-lab/internal/config"
	applogger "github.com/yourusername/strategy-lab/internal/logger"
	"github.com/yourusername/strategy-lab/internal/metrics"
)

var _ Advisor = (*Client)(nil)

// Client talks to an Ollama-style completion endpoint with retries, rate
// limiting and response caching. All five advisor tasks go through the same
// /api/generate call, differing only in prompt and model routing.
type Client struct {
	http       *retryablehttp.Client
	limiter    *rate.Limiter
	baseURL    string
	model      string
	taskModels map[string]string
	cache      *ResponseCache
	logger     *logrus.Logger
	advisorLog *applogger.AdvisorLogger
}

// NewClient creates a new advisor client
func NewClient(cfg *config.AdvisorConfig, logger *logrus.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("advisor config is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.AdvisorTimeout()
	retryClient.RetryMax = cfg.RetryAttempts
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.CheckRetry = customRetryPolicy()

	// Silence per-attempt logging, the advisor logger reports outcomes
	retryClient.Logger = nil

	return &Client{
		http:       retryClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		taskModels: cfg.TaskModels,
		cache:      NewResponseCache(cfg.CacheTTL()),
		logger:     logger,
		advisorLog: applogger.NewAdvisorLogger(logger),
	}, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Analyze reviews strategy code against backtest evidence.
func (c *Client) Analyze(ctx context.Context, strategyCode string, payload map[string]interface{}) (string, error) {
	payloadJSON, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, TaskAnalysis, analysisPrompt(strategyCode, payloadJSON))
}

// AssessRisk produces a risk assessment for one backtest.
func (c *Client) AssessRisk(ctx context.Context, strategyCode string, payload map[string]interface{}) (string, error) {
	payloadJSON, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, TaskRisk, riskPrompt(strategyCode, payloadJSON))
}

// Refine proposes a revised strategy file.
func (c *Client) Refine(ctx context.Context, goal, strategyCode string, payload map[string]interface{}) (string, error) {
	payloadJSON, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, TaskRefine, refinePrompt(goal, strategyCode, payloadJSON))
}

// AnalyzeScenarios compares one strategy across scenarios.
func (c *Client) AnalyzeScenarios(ctx context.Context, strategyCode string, payload map[string]interface{}) (string, error) {
	payloadJSON, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, TaskScenarioAnalysis, scenarioAnalysisPrompt(strategyCode, payloadJSON))
}

// AssessScenarioRisk rates risk across scenarios.
func (c *Client) AssessScenarioRisk(ctx context.Context, strategyCode string, payload map[string]interface{}) (string, error) {
	payloadJSON, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, TaskScenarioRisk, scenarioRiskPrompt(strategyCode, payloadJSON))
}

// Ping checks whether the advisor endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to build advisor request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAdvisorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAdvisorUnavailable, resp.StatusCode)
	}
	return nil
}

// Models lists the models installed at the advisor endpoint, sorted and
// deduplicated.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build advisor request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdvisorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var decoded tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	seen := make(map[string]bool)
	names := make([]string, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		name := strings.TrimSpace(m.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, ErrNoModels
	}

	sort.Strings(names)
	return names, nil
}

// CacheStats returns advisor cache statistics.
func (c *Client) CacheStats() (hits, misses uint64, ratio float64) {
	return c.cache.Stats()
}

// Close closes any resources held by the client
func (c *Client) Close() error {
	c.http.HTTPClient.CloseIdleConnections()
	return nil
}

// ModelFor resolves the model serving a task: the task_models override when
// one is configured, the base model otherwise.
func (c *Client) ModelFor(task string) string {
	if override, ok := c.taskModels[task]; ok && strings.TrimSpace(override) != "" {
		return override
	}
	return c.model
}

// modelFor is ModelFor plus a selection log line on actual use.
func (c *Client) modelFor(task string) string {
	model := c.ModelFor(task)
	if model != c.model {
		c.advisorLog.LogModelSelection(task, model, true)
	}
	return model
}

// generate executes one completion round trip, serving cached responses
// when the same prompt was answered within the cache TTL.
func (c *Client) generate(ctx context.Context, task, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	model := c.modelFor(task)

	if cached, ok := c.cache.Get(task, model, prompt); ok {
		c.advisorLog.LogAdvisorRequest(task, model, true, 0, len(cached))
		metrics.RecordAdvisorRequest(task, model, true, 0)
		return cached, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to encode advisor request: %w", err)
	}

	start := time.Now()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", body)
	if err != nil {
		return "", fmt.Errorf("failed to build advisor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordAdvisorError(task)
		c.advisorLog.LogAdvisorError(task, model, err.Error())
		return "", fmt.Errorf("%w: %v", ErrAdvisorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordAdvisorError(task)
		c.advisorLog.LogAdvisorError(task, model, fmt.Sprintf("status %d", resp.StatusCode))
		return "", fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		metrics.RecordAdvisorError(task)
		c.advisorLog.LogAdvisorError(task, model, err.Error())
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if strings.TrimSpace(decoded.Response) == "" {
		metrics.RecordAdvisorError(task)
		c.advisorLog.LogAdvisorError(task, model, "empty response body")
		return "", ErrEmptyResponse
	}

	duration := time.Since(start)
	c.cache.Set(task, model, prompt, decoded.Response)
	c.advisorLog.LogAdvisorRequest(task, model, false, float64(duration.Milliseconds()), len(decoded.Response))
	metrics.RecordAdvisorRequest(task, model, false, duration.Seconds())

	return decoded.Response, nil
}

func encodePayload(payload map[string]interface{}) (string, error) {
	if payload == nil {
		return "{}", nil
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode advisor payload: %w", err)
	}
	return string(data), nil
}

// customRetryPolicy defines which HTTP responses should trigger a retry
func customRetryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			// Retry on network errors
			return true, err
		}

		// Retry on rate limit and server-side errors
		if resp.StatusCode == 429 || resp.StatusCode == 500 || resp.StatusCode == 502 || resp.StatusCode == 503 || resp.StatusCode == 504 {
			return true, nil
		}

		// Don't retry on client errors (4xx) except 429
		return false, nil
	}
}
