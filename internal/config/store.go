package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/parsemux/internal/secret"
	"github.com/blueberrycongee/parsemux/providers"
)

// Store loads and saves the configuration blob, encrypting API keys on the
// way out and decrypting them on the way in. Mutations go through Update,
// which is read-modify-write: the latest persisted value is reloaded, the
// patch applied, and the full blob written back. Two writers in separate
// processes remain last-writer-wins.
type Store struct {
	storage Storage
	vault   *secret.Vault
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewStore creates a store over the given storage.
func NewStore(storage Storage, vault *secret.Vault, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{storage: storage, vault: vault, logger: logger}
}

// Load reads, migrates, and decrypts the configuration. An empty storage
// yields a freshly persisted default config. The returned config holds
// plaintext API keys; it must never be persisted directly.
func (s *Store) Load(ctx context.Context) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) (*Config, error) {
	data, err := s.storage.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		cfg := Default()
		if err := s.saveLocked(ctx, cfg); err != nil {
			return nil, fmt.Errorf("persist initial config: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	loaded := &cfg
	if loaded.Version != CurrentVersion {
		s.logger.Info("migrating config",
			"from_version", loaded.Version,
			"to_version", CurrentVersion,
		)
		loaded = Migrate(loaded)
	}
	loaded.Normalize()

	for id, st := range loaded.Models {
		d, ok := providers.Get(id)
		if !ok || st.APIKey == "" {
			continue
		}
		plaintext := s.vault.Decrypt(id, d.Salt[:], st.APIKey)
		if plaintext == "" {
			// Corrupt ciphertext is downgraded to a missing key, never an
			// error: a bad stored credential must not break config load.
			s.logger.Warn("credential decrypt failed, treating as unset", "provider", id)
		}
		st.APIKey = plaintext
	}
	return loaded, nil
}

// Save normalizes and persists the configuration, encrypting every API key.
// The caller's config is not modified.
func (s *Store) Save(ctx context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, cfg)
}

func (s *Store) saveLocked(ctx context.Context, cfg *Config) error {
	out := cfg.Clone()
	out.Version = CurrentVersion
	out.Normalize()

	for id, st := range out.Models {
		if st.APIKey == "" {
			continue
		}
		d, ok := providers.Get(id)
		if !ok {
			continue
		}
		encrypted, err := s.vault.Encrypt(id, d.Salt[:], st.APIKey)
		if err != nil {
			return fmt.Errorf("encrypt credential for %s: %w", id, err)
		}
		st.APIKey = encrypted
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return s.storage.Save(ctx, data)
}

// Update applies a patch under the store lock: reload the latest persisted
// value, run fn against it, write the result back. Returns the updated
// config with plaintext keys.
func (s *Store) Update(ctx context.Context, fn func(*Config)) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	fn(cfg)
	if err := s.saveLocked(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a fresh default configuration.
func (s *Store) Default() *Config {
	return Default()
}
