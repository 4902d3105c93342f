package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/parsemux/internal/secret"
	"github.com/blueberrycongee/parsemux/providers"
)

func newTestStore(t *testing.T) (*Store, *MemoryStorage) {
	t.Helper()
	storage := NewMemoryStorage()
	return NewStore(storage, secret.NewVault(), nil), storage
}

func TestStore_FirstLoadCreatesDefault(t *testing.T) {
	store, storage := newTestStore(t)
	ctx := context.Background()

	cfg, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, cfg.Version)

	// The default was persisted, not just returned.
	data, err := storage.Load(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestStore_KeysEncryptedAtRest(t *testing.T) {
	store, storage := newTestStore(t)
	ctx := context.Background()

	cfg := Default()
	cfg.Models[providers.OpenAI].APIKey = "sk-plaintext-key"
	require.NoError(t, store.Save(ctx, cfg))

	// The caller's copy keeps its plaintext.
	require.Equal(t, "sk-plaintext-key", cfg.Models[providers.OpenAI].APIKey)

	data, err := storage.Load(ctx)
	require.NoError(t, err)
	require.NotContains(t, string(data), "sk-plaintext-key")

	var persisted Config
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.NotEmpty(t, persisted.Models[providers.OpenAI].APIKey)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "sk-plaintext-key", loaded.Models[providers.OpenAI].APIKey)
}

func TestStore_CorruptCiphertextYieldsEmptyKey(t *testing.T) {
	store, storage := newTestStore(t)
	ctx := context.Background()

	cfg := Default()
	cfg.Models[providers.Gemini].APIKey = "g-key"
	require.NoError(t, store.Save(ctx, cfg))

	data, _ := storage.Load(ctx)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	var models map[string]*ModelState
	require.NoError(t, json.Unmarshal(raw["models"], &models))
	models[providers.Gemini].APIKey = "bm90LXJlYWwtY2lwaGVydGV4dA=="
	raw["models"], _ = json.Marshal(models)
	corrupted, _ := json.Marshal(raw)
	require.NoError(t, storage.Save(ctx, corrupted))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded.Models[providers.Gemini].APIKey)
}

func TestStore_LoadMigratesOldVersion(t *testing.T) {
	store, storage := newTestStore(t)
	ctx := context.Background()

	old := []byte(`{
		"version": 1,
		"provider": "google",
		"models": {"google": {"apiKey": "", "status": "healthy", "lastChecked": null, "lastError": ""}},
		"fallbackOrder": ["google"],
		"templates": {"keep": true}
	}`)
	require.NoError(t, storage.Save(ctx, old))

	cfg, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, cfg.Version)
	require.Equal(t, providers.Gemini, cfg.Provider)
	require.Equal(t, HealthHealthy, cfg.Models[providers.Gemini].Status)
	require.Contains(t, cfg.Extra, "templates")
}

func TestStore_Update_ReadModifyWrite(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := Default()
	first.Models[providers.OpenAI].APIKey = "sk-first"
	require.NoError(t, store.Save(ctx, first))

	// A patch touching only health state must not clobber the stored key.
	updated, err := store.Update(ctx, func(cfg *Config) {
		cfg.Models[providers.OpenAI].Status = HealthError
		cfg.Models[providers.OpenAI].LastError = "request failed"
	})
	require.NoError(t, err)
	require.Equal(t, "sk-first", updated.Models[providers.OpenAI].APIKey)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, HealthError, loaded.Models[providers.OpenAI].Status)
	require.Equal(t, "request failed", loaded.Models[providers.OpenAI].LastError)
	require.Equal(t, "sk-first", loaded.Models[providers.OpenAI].APIKey)
}

func TestFileStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	fs := NewFileStorage(path)
	ctx := context.Background()

	data, err := fs.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, data)

	require.NoError(t, fs.Save(ctx, []byte(`{"version":3}`)))
	data, err = fs.Load(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"version":3}`, string(data))

	// Atomic write leaves no temp files behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
