package parsemux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blueberrycongee/parsemux/internal/config"
	"github.com/blueberrycongee/parsemux/internal/metrics"
	"github.com/blueberrycongee/parsemux/internal/secret"
	"github.com/blueberrycongee/parsemux/pkg/provider"
	"github.com/blueberrycongee/parsemux/pkg/types"
	"github.com/blueberrycongee/parsemux/providers"
)

// ErrNoProviders is returned when a parse call found no candidate with a
// configured API key, so no provider was even attempted.
var ErrNoProviders = errors.New("no providers available: no provider has an API key configured")

// Client orchestrates completion calls across the registered providers with
// retry, cross-provider fallback, and persisted health state.
//
// Providers are always tried strictly one at a time, never concurrently, so
// that health-state writes do not race within one call.
type Client struct {
	store      *config.Store
	httpClient *http.Client
	logger     *slog.Logger
	config     *ClientConfig
}

// New creates a client with the given options.
//
// Example:
//
//	client, err := parsemux.New(
//	    parsemux.WithConfigFile(filepath.Join(dir, "config.json")),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	storage := cfg.Storage
	if storage == nil {
		if cfg.ConfigPath != "" {
			storage = config.NewFileStorage(cfg.ConfigPath)
		} else {
			storage = config.NewMemoryStorage()
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		store:      config.NewStore(storage, secret.NewVault(), cfg.Logger),
		httpClient: httpClient,
		logger:     cfg.Logger,
		config:     cfg,
	}

	c.logger.Info("parsemux client initialized",
		"providers", len(providers.DefaultOrder()),
		"default_fields", cfg.DefaultFields,
	)
	return c, nil
}

// Config loads the current configuration with decrypted API keys.
func (c *Client) Config(ctx context.Context) (*config.Config, error) {
	return c.store.Load(ctx)
}

// SaveConfig persists a configuration, encrypting API keys first.
func (c *Client) SaveConfig(ctx context.Context, cfg *config.Config) error {
	return c.store.Save(ctx, cfg)
}

// DefaultConfig returns a fresh default configuration.
func (c *Client) DefaultConfig() *config.Config {
	return c.store.Default()
}

// WatchConfig invokes fn with the freshly loaded config after every
// external change to the persisted blob, debounced. Requires file-backed
// storage.
func (c *Client) WatchConfig(ctx context.Context, fn func(*config.Config)) error {
	return c.store.Watch(ctx, fn)
}

// ProviderHealth returns the persisted per-provider state, including the
// health verdict and last error of the most recent attempt. Callers that
// need to know which provider actually failed inspect this rather than the
// final error of a parse call.
func (c *Client) ProviderHealth(ctx context.Context, providerID string) (*config.ModelState, error) {
	cfg, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	st, ok := cfg.Models[providers.Canonical(providerID)]
	if !ok {
		return nil, NewConfigurationError(providerID, "unknown provider id")
	}
	return st, nil
}

// TestConnection performs a single minimal completion against one provider
// using the supplied credentials, and records the outcome in the provider's
// health state.
func (c *Client) TestConnection(ctx context.Context, providerID, apiKey, model string) *types.ConnectionTestResult {
	id := providers.Canonical(providerID)
	d, ok := providers.Get(id)
	if !ok {
		return &types.ConnectionTestResult{Message: fmt.Sprintf("unknown provider id %q", providerID)}
	}
	if apiKey == "" {
		return &types.ConnectionTestResult{Message: "API key is required"}
	}
	if model == "" {
		model = d.TestModel
	}

	_, err := c.callOnce(ctx, d, &types.CompletionRequest{
		APIKey:      apiKey,
		Model:       model,
		Prompt:      "Reply with OK.",
		Temperature: 0,
		MaxTokens:   10,
		BaseURL:     c.storedBaseURL(ctx, id),
	})
	c.persistHealth(ctx, id, err)

	if err != nil {
		return &types.ConnectionTestResult{Message: err.Error()}
	}
	return &types.ConnectionTestResult{Success: true, Message: "connection ok"}
}

// CallProviderAPI performs one completion against a single provider with no
// fallback. Retry still applies per the provider's policy.
func (c *Client) CallProviderAPI(ctx context.Context, providerID, apiKey, model, prompt string, opts *types.CallOptions) (string, error) {
	id := providers.Canonical(providerID)
	d, ok := providers.Get(id)
	if !ok {
		return "", NewConfigurationError(providerID, "unknown provider id")
	}
	if apiKey == "" {
		return "", NewConfigurationError(id, "API key is required")
	}
	if model == "" {
		model = d.DefaultModel
	}
	if model == "" {
		model = d.TestModel
	}
	if model == "" {
		return "", NewConfigurationError(id, "no model configured")
	}

	cfg, err := c.store.Load(ctx)
	if err != nil {
		return "", err
	}

	req := &types.CompletionRequest{
		APIKey:      apiKey,
		Model:       model,
		Prompt:      prompt,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}
	if st, ok := cfg.Models[id]; ok {
		req.BaseURL = st.APIURL
	}
	if opts != nil {
		if opts.Temperature > 0 {
			req.Temperature = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			req.MaxTokens = opts.MaxTokens
		}
	}

	return c.runWithRetry(ctx, id, c.retryPolicyFor(cfg, id), func() (string, error) {
		return c.callOnce(ctx, d, req)
	})
}

// storedBaseURL returns the provider's configured API URL override, empty
// when the descriptor default applies.
func (c *Client) storedBaseURL(ctx context.Context, providerID string) string {
	cfg, err := c.store.Load(ctx)
	if err != nil {
		return ""
	}
	if st, ok := cfg.Models[providerID]; ok {
		return st.APIURL
	}
	return ""
}

// completeWithFallback sequences one prompt across the candidate providers:
// the configured active provider first, then the configured fallback order,
// then the registry's default order, each id tried at most once. Health
// state is persisted after every outcome.
func (c *Client) completeWithFallback(ctx context.Context, prompt string, opts types.CallOptions) (string, string, error) {
	cfg, err := c.store.Load(ctx)
	if err != nil {
		return "", "", err
	}

	requestID := uuid.NewString()
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = c.config.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.config.MaxTokens
	}

	var lastErr error
	attempted := 0
	for _, id := range candidateOrder(cfg) {
		// Skips are recorded in the log and the skipped-outcome metric, not
		// in health state: an unconfigured provider was never attempted, so
		// its stored verdict stays whatever the last real attempt left.
		d, ok := providers.Get(id)
		if !ok {
			c.logger.Warn("skipping unknown provider id", "request_id", requestID, "provider", id)
			metrics.AttemptsTotal.WithLabelValues(id, "skipped").Inc()
			continue
		}
		st := cfg.Models[id]
		if st == nil || st.APIKey == "" {
			c.logger.Warn("skipping provider without API key", "request_id", requestID, "provider", id)
			metrics.AttemptsTotal.WithLabelValues(id, "skipped").Inc()
			continue
		}
		attempted++

		model := st.Model
		if model == "" {
			model = d.DefaultModel
		}
		if model == "" {
			model = d.TestModel
		}

		req := &types.CompletionRequest{
			APIKey:      st.APIKey,
			Model:       model,
			Prompt:      prompt,
			Temperature: temperature,
			MaxTokens:   maxTokens,
			BaseURL:     st.APIURL,
		}

		text, err := c.runWithRetry(ctx, id, c.retryPolicyFor(cfg, id), func() (string, error) {
			return c.callOnce(ctx, d, req)
		})
		c.persistHealth(ctx, id, err)
		if err == nil {
			metrics.AttemptsTotal.WithLabelValues(id, "success").Inc()
			c.logger.Debug("provider call succeeded", "request_id", requestID, "provider", id, "model", model)
			return text, id, nil
		}

		metrics.AttemptsTotal.WithLabelValues(id, "error").Inc()
		c.logger.Warn("provider failed, falling back",
			"request_id", requestID,
			"provider", id,
			"error", err,
		)
		lastErr = err
	}

	if attempted == 0 {
		return "", "", ErrNoProviders
	}
	metrics.FallbackExhaustedTotal.Inc()
	// Only the most recent failure surfaces; earlier ones live in the
	// persisted per-provider health state.
	return "", "", fmt.Errorf("all providers failed: %w", lastErr)
}

// candidateOrder builds the deduplicated candidate sequence for one call.
func candidateOrder(cfg *config.Config) []string {
	out := make([]string, 0, len(providers.DefaultOrder()))
	seen := make(map[string]bool)
	add := func(id string) {
		id = providers.Canonical(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(cfg.Provider)
	for _, id := range cfg.FallbackOrder {
		add(id)
	}
	for _, id := range providers.DefaultOrder() {
		add(id)
	}
	return out
}

func (c *Client) retryPolicyFor(cfg *config.Config, providerID string) config.RetryPolicy {
	return cfg.RetryPolicyFor(providerID, c.config.DefaultRetry)
}

// runWithRetry executes fn up to policy.MaxAttempts times with deterministic
// exponential backoff: the delay before attempt n+1 is
// baseDelay × backoffFactor^(n-1), with no jitter.
func (c *Client) runWithRetry(ctx context.Context, providerID string, policy config.RetryPolicy, fn func() (string, error)) (string, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if delay := backoffDelay(policy, attempt-1); delay > 0 {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(delay):
				}
			}
		}

		text, err := fn()
		if err == nil {
			return text, nil
		}
		lastErr = err

		var perr *ParseError
		if errors.As(err, &perr) && !perr.Retryable {
			break
		}
		if attempt < attempts {
			c.logger.Debug("retrying provider call",
				"provider", providerID,
				"attempt", attempt,
				"error", err,
			)
		}
	}
	return "", lastErr
}

// backoffDelay returns the delay after the n-th failed attempt (n >= 1),
// rounded to the nearest millisecond. A zero base delay disables waiting.
func backoffDelay(policy config.RetryPolicy, n int) time.Duration {
	if policy.BaseDelayMs <= 0 {
		return 0
	}
	ms := float64(policy.BaseDelayMs) * math.Pow(policy.BackoffFactor, float64(n-1))
	return time.Duration(math.Round(ms)) * time.Millisecond
}

// callOnce issues a single HTTP call and normalizes the outcome to either
// completion text or a typed error.
func (c *Client) callOnce(ctx context.Context, d *provider.Descriptor, req *types.CompletionRequest) (string, error) {
	adapter, ok := providers.Adapter(d.Mode)
	if !ok {
		return "", NewConfigurationError(d.ID, fmt.Sprintf("no adapter registered for compatibility mode %q", d.Mode))
	}

	httpReq, err := adapter.BuildRequest(ctx, d, req)
	if err != nil {
		return "", NewConfigurationError(d.ID, fmt.Sprintf("build request: %v", err))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", NewTransportError(d.ID, 0, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RequestDuration.WithLabelValues(d.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", NewTransportError(d.ID, resp.StatusCode, fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", adapter.MapError(d.ID, resp.StatusCode, resp.Status, body)
	}

	text, err := adapter.ParseResponse(body)
	if err != nil {
		return "", NewTransportError(d.ID, resp.StatusCode, fmt.Sprintf("unparsable success response: %v", err))
	}
	return stripCodeFence(strings.TrimSpace(text)), nil
}

// persistHealth records the outcome of an attempt in the provider's stored
// model state via read-modify-write.
func (c *Client) persistHealth(ctx context.Context, providerID string, callErr error) {
	now := time.Now().UnixMilli()
	_, err := c.store.Update(ctx, func(cfg *config.Config) {
		st, ok := cfg.Models[providerID]
		if !ok {
			return
		}
		st.LastChecked = &now
		if callErr != nil {
			st.Status = config.HealthError
			st.LastError = callErr.Error()
		} else {
			st.Status = config.HealthHealthy
			st.LastError = ""
		}
	})
	if err != nil {
		c.logger.Error("failed to persist provider health", "provider", providerID, "error", err)
	}
}
