package parsemux

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/parsemux/internal/config"
	"github.com/blueberrycongee/parsemux/providers"
)

func TestRetry_ExactAttemptCount(t *testing.T) {
	log := &callLog{}
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		log.record("openai")
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})

	client := newTestClient(t, WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelayMs: 1, BackoffFactor: 2}))
	seedConfig(t, client, func(cfg *config.Config) {
		cfg.Models[providers.OpenAI].APIURL = srv.URL
	})

	_, err := client.CallProviderAPI(context.Background(), providers.OpenAI, "sk", "", "hi", nil)
	require.Error(t, err)
	require.Len(t, log.sequence(), 3)
}

func TestRetry_StopsAfterSuccess(t *testing.T) {
	log := &callLog{}
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		log.record("openai")
		if len(log.sequence()) < 2 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(openaiPayload("recovered")))
	})

	client := newTestClient(t, WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelayMs: 1, BackoffFactor: 2}))
	seedConfig(t, client, func(cfg *config.Config) {
		cfg.Models[providers.OpenAI].APIURL = srv.URL
	})

	text, err := client.CallProviderAPI(context.Background(), providers.OpenAI, "sk", "", "hi", nil)
	require.NoError(t, err)
	require.Equal(t, "recovered", text)
	require.Len(t, log.sequence(), 2)
}

func TestRetry_MinimumOneAttempt(t *testing.T) {
	log := &callLog{}
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		log.record("openai")
		w.Write([]byte(openaiPayload("ok")))
	})

	client := newTestClient(t, WithRetryPolicy(RetryPolicy{MaxAttempts: 0, BaseDelayMs: 0, BackoffFactor: 0}))
	seedConfig(t, client, func(cfg *config.Config) {
		cfg.Models[providers.OpenAI].APIURL = srv.URL
	})

	_, err := client.CallProviderAPI(context.Background(), providers.OpenAI, "sk", "", "hi", nil)
	require.NoError(t, err)
	require.Len(t, log.sequence(), 1)
}

func TestRetry_ContextCancellation(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})

	client := newTestClient(t, WithRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseDelayMs: 60_000, BackoffFactor: 2}))
	seedConfig(t, client, func(cfg *config.Config) {
		cfg.Models[providers.OpenAI].APIURL = srv.URL
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.CallProviderAPI(ctx, providers.OpenAI, "sk", "", "hi", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second, "cancellation must interrupt the backoff wait")
}

func TestBackoffDelay(t *testing.T) {
	policy := config.RetryPolicy{MaxAttempts: 3, BaseDelayMs: 100, BackoffFactor: 2}

	require.Equal(t, 100*time.Millisecond, backoffDelay(policy, 1))
	require.Equal(t, 200*time.Millisecond, backoffDelay(policy, 2))
	require.Equal(t, 400*time.Millisecond, backoffDelay(policy, 3))
	require.GreaterOrEqual(t, backoffDelay(policy, 2), backoffDelay(policy, 1))

	// Deterministic: same inputs, same delay.
	require.Equal(t, backoffDelay(policy, 2), backoffDelay(policy, 2))

	// Zero base delay disables waiting entirely.
	require.Equal(t, time.Duration(0), backoffDelay(config.RetryPolicy{BaseDelayMs: 0, BackoffFactor: 2}, 3))

	// Factor 1 keeps the delay flat.
	flat := config.RetryPolicy{BaseDelayMs: 50, BackoffFactor: 1}
	require.Equal(t, 50*time.Millisecond, backoffDelay(flat, 1))
	require.Equal(t, 50*time.Millisecond, backoffDelay(flat, 4))
}

func TestRetry_PerProviderPolicyOverridesDefault(t *testing.T) {
	log := &callLog{}
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		log.record("openai")
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})

	client := newTestClient(t)
	seedConfig(t, client, func(cfg *config.Config) {
		cfg.Models[providers.OpenAI].APIKey = "sk"
		cfg.Models[providers.OpenAI].APIURL = srv.URL
		cfg.Models[providers.OpenAI].Retry = &config.RetryPolicy{MaxAttempts: 2, BaseDelayMs: 1, BackoffFactor: 2}
	})

	_, err := client.ParseWithDynamicFields(context.Background(), "text", []string{"word"}, "")
	require.Error(t, err)
	// The stored per-provider policy, not the client default of 1, governs.
	require.Len(t, log.sequence(), 2)
}

func TestCallProviderAPI_UsesStoredRetryPolicy(t *testing.T) {
	log := &callLog{}
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		log.record("openai")
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})

	client := newTestClient(t)
	seedConfig(t, client, func(cfg *config.Config) {
		cfg.Models[providers.OpenAI].APIURL = srv.URL
		cfg.Models[providers.OpenAI].Retry = &config.RetryPolicy{MaxAttempts: 3, BaseDelayMs: 1, BackoffFactor: 2}
	})

	_, err := client.CallProviderAPI(context.Background(), providers.OpenAI, "sk", "", "hi", nil)
	require.Error(t, err)
	// Single-shot calls honor the stored policy too, not just the fallback path.
	require.Len(t, log.sequence(), 3)
}
