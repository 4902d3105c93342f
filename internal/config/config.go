// Package config implements the versioned, per-provider-encrypted
// configuration store. The persisted blob is a single JSON document; API
// keys are the only encrypted values, everything else is plaintext JSON.
// Sections owned by external collaborators (templates, UI preferences) are
// round-tripped unmodified.
package config

import (
	"sort"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/parsemux/providers"
)

// CurrentVersion is the schema version this code reads and writes. Blobs
// with any other version are migrated on load.
const CurrentVersion = 3

// HealthStatus is the per-provider cached verdict from the most recent
// attempt.
type HealthStatus string

const (
	HealthUnknown HealthStatus = "unknown"
	HealthHealthy HealthStatus = "healthy"
	HealthError   HealthStatus = "error"
)

// coerce maps any stored value outside the enum back to unknown.
func (h HealthStatus) coerce() HealthStatus {
	switch h {
	case HealthHealthy, HealthError:
		return h
	default:
		return HealthUnknown
	}
}

// RetryPolicy bounds the transport retry loop for one provider.
type RetryPolicy struct {
	MaxAttempts   int     `json:"maxAttempts"`
	BaseDelayMs   int     `json:"baseDelayMs"`
	BackoffFactor float64 `json:"backoffFactor"`
}

// DefaultRetryPolicy is used for providers without an explicit policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelayMs:   500,
	BackoffFactor: 2,
}

// ModelState is the mutable per-provider configuration. APIKey holds
// ciphertext at rest and plaintext in memory after Store.Load.
type ModelState struct {
	APIKey      string       `json:"apiKey"`
	Model       string       `json:"model,omitempty"`
	APIURL      string       `json:"apiUrl,omitempty"`
	Status      HealthStatus `json:"status"`
	LastChecked *int64       `json:"lastChecked"`
	LastError   string       `json:"lastError"`
	Retry       *RetryPolicy `json:"retryPolicy,omitempty"`
}

// Config is the versioned root object of the persisted blob.
type Config struct {
	Version       int                    `json:"version"`
	Provider      string                 `json:"provider"`
	Models        map[string]*ModelState `json:"models"`
	FallbackOrder []string               `json:"fallbackOrder"`

	// Extra holds external-collaborator sections that this subsystem
	// passes through unmodified.
	Extra map[string]json.RawMessage `json:"-"`
}

var knownKeys = []string{"version", "provider", "models", "fallbackOrder"}

// UnmarshalJSON decodes the known schema and captures every other top-level
// section verbatim.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*c = Config(known)

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) > 0 {
		c.Extra = all
	}
	return nil
}

// MarshalJSON emits the known schema plus the preserved sections. Keys are
// sorted by the encoder, so marshaling is deterministic.
func (c Config) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(c.Extra)+len(knownKeys))
	for k, v := range c.Extra {
		out[k] = v
	}

	type plain Config
	knownRaw, err := json.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(knownRaw, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		out[k] = v
	}
	return json.Marshal(out)
}

// Default returns a fresh config covering every registered provider.
func Default() *Config {
	cfg := &Config{
		Version:       CurrentVersion,
		Provider:      providers.DefaultOrder()[0],
		Models:        make(map[string]*ModelState),
		FallbackOrder: providers.DefaultOrder(),
	}
	for _, id := range providers.DefaultOrder() {
		cfg.Models[id] = defaultModelState()
	}
	return cfg
}

func defaultModelState() *ModelState {
	return &ModelState{Status: HealthUnknown}
}

// Clone returns a deep copy. Store.Save encrypts the copy so the caller's
// in-memory config keeps its plaintext keys.
func (c *Config) Clone() *Config {
	out := &Config{
		Version:       c.Version,
		Provider:      c.Provider,
		Models:        make(map[string]*ModelState, len(c.Models)),
		FallbackOrder: append([]string(nil), c.FallbackOrder...),
	}
	for id, st := range c.Models {
		copied := *st
		if st.LastChecked != nil {
			v := *st.LastChecked
			copied.LastChecked = &v
		}
		if st.Retry != nil {
			r := *st.Retry
			copied.Retry = &r
		}
		out.Models[id] = &copied
	}
	if c.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Normalize enforces the schema invariants in place: the active provider id
// is registry-known, every registered provider has a model state, health
// values are within the enum, and fallbackOrder is a deduplicated order
// covering every registered provider.
func (c *Config) Normalize() {
	if c.Models == nil {
		c.Models = make(map[string]*ModelState)
	}
	if _, ok := providers.Get(providers.Canonical(c.Provider)); !ok {
		c.Provider = providers.DefaultOrder()[0]
	} else {
		c.Provider = providers.Canonical(c.Provider)
	}
	for _, id := range providers.DefaultOrder() {
		if _, ok := c.Models[id]; !ok {
			c.Models[id] = defaultModelState()
		}
		c.Models[id].Status = c.Models[id].Status.coerce()
	}
	c.FallbackOrder = rebuildOrder(c.FallbackOrder)
}

// rebuildOrder filters an order to registry-known canonical ids, removes
// duplicates keeping the first occurrence, and appends any missing
// registered ids in registry order.
func rebuildOrder(order []string) []string {
	out := make([]string, 0, len(providers.DefaultOrder()))
	seen := make(map[string]bool)
	for _, id := range order {
		id = providers.Canonical(id)
		if _, ok := providers.Get(id); !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range providers.DefaultOrder() {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Migrate builds a fresh default config and deep-merges the old config's
// values into it, canonicalizing legacy provider ids. Migrating an
// already-current config is a no-op beyond re-stamping the version.
func Migrate(old *Config) *Config {
	fresh := Default()
	if old == nil {
		return fresh
	}

	if id := providers.Canonical(old.Provider); id != "" {
		if _, ok := providers.Get(id); ok {
			fresh.Provider = id
		}
	}

	// Exact canonical ids win over aliases when both are present.
	merged := make(map[string]bool)
	mergeModels := func(requireExact bool) {
		ids := make([]string, 0, len(old.Models))
		for id := range old.Models {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			canonical := providers.Canonical(id)
			if requireExact != (canonical == id) {
				continue
			}
			if _, ok := providers.Get(canonical); !ok || merged[canonical] {
				continue
			}
			merged[canonical] = true
			mergeModelState(fresh.Models[canonical], old.Models[id])
		}
	}
	mergeModels(true)
	mergeModels(false)

	fresh.FallbackOrder = rebuildOrder(old.FallbackOrder)

	if old.Extra != nil {
		fresh.Extra = make(map[string]json.RawMessage, len(old.Extra))
		for k, v := range old.Extra {
			fresh.Extra[k] = v
		}
	}
	return fresh
}

func mergeModelState(dst, src *ModelState) {
	if src == nil {
		return
	}
	if src.APIKey != "" {
		dst.APIKey = src.APIKey
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.APIURL != "" {
		dst.APIURL = src.APIURL
	}
	dst.Status = src.Status.coerce()
	if src.LastChecked != nil {
		v := *src.LastChecked
		dst.LastChecked = &v
	}
	if src.LastError != "" {
		dst.LastError = src.LastError
	}
	if src.Retry != nil {
		r := *src.Retry
		dst.Retry = &r
	}
}

// RetryPolicyFor resolves the effective retry policy for a provider:
// its stored policy when present, clamped to at least one attempt,
// otherwise the given fallback.
func (c *Config) RetryPolicyFor(providerID string, fallback RetryPolicy) RetryPolicy {
	if st, ok := c.Models[providerID]; ok && st.Retry != nil {
		policy := *st.Retry
		if policy.MaxAttempts < 1 {
			policy.MaxAttempts = 1
		}
		return policy
	}
	return fallback
}
