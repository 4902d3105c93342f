package parsemux

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/parsemux/internal/config"
)

// callLog records provider hits across the test servers of one scenario.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, provider)
}

func (l *callLog) sequence() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// openaiPayload wraps content in the openai-like response envelope.
func openaiPayload(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	})
	return string(raw)
}

// geminiPayload wraps content in the generateContent response envelope.
func geminiPayload(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{"content": map[string]any{
			"parts": []any{map[string]any{"text": content}},
		}}},
	})
	return string(raw)
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// newTestClient builds a client over in-memory storage with fast retries.
func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithStorage(config.NewMemoryStorage()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 1, BaseDelayMs: 0, BackoffFactor: 1}),
	}
	client, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return client
}

// seedConfig persists a config built by mutate on top of the default.
func seedConfig(t *testing.T, client *Client, mutate func(*config.Config)) {
	t.Helper()
	cfg := client.DefaultConfig()
	mutate(cfg)
	require.NoError(t, client.SaveConfig(context.Background(), cfg))
}

func requireProviderStatus(t *testing.T, client *Client, id string, want HealthStatus) *ModelState {
	t.Helper()
	st, err := client.ProviderHealth(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, want, st.Status, "health status for %s", id)
	return st
}

// drainBody reads and returns a request body for assertions.
func drainBody(t *testing.T, r *http.Request) []byte {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return raw
}
