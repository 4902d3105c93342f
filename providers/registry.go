// Package providers holds the static catalog of built-in provider
// descriptors and the wire-format adapter for each compatibility mode.
package providers

import (
	"sync"

	"github.com/blueberrycongee/parsemux/pkg/provider"
	"github.com/blueberrycongee/parsemux/providers/anthropic"
	"github.com/blueberrycongee/parsemux/providers/gemini"
	"github.com/blueberrycongee/parsemux/providers/openailike"
)

// Canonical provider identifiers.
const (
	OpenAI    = "openai"
	Gemini    = "gemini"
	Anthropic = "anthropic"
)

// aliases maps historical provider ids to their canonical form. Old config
// blobs are canonicalized through this table during migration.
var aliases = map[string]string{
	"google":        Gemini,
	"google-gemini": Gemini,
	"chatgpt":       OpenAI,
	"gpt":           OpenAI,
	"claude":        Anthropic,
}

// descriptors is the built-in catalog in registry order. The order doubles
// as the last-resort fallback sequence.
var descriptors = []*provider.Descriptor{
	{
		ID:           OpenAI,
		Label:        "OpenAI",
		Mode:         provider.ModeOpenAILike,
		DefaultModel: "gpt-4o-mini",
		TestModel:    "gpt-4o-mini",
		BaseURL:      "https://api.openai.com/v1",
		Salt: [provider.SaltSize]byte{
			0x6f, 0x70, 0x65, 0x6e, 0x61, 0x69, 0x2d, 0x73,
			0x61, 0x6c, 0x74, 0x2d, 0x76, 0x31, 0x00, 0x01,
		},
		Origins: []string{"https://api.openai.com/"},
	},
	{
		ID:           Gemini,
		Label:        "Google Gemini",
		Mode:         provider.ModeGoogleGenerative,
		DefaultModel: "gemini-2.0-flash",
		TestModel:    "gemini-2.0-flash",
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
		Salt: [provider.SaltSize]byte{
			0x67, 0x65, 0x6d, 0x69, 0x6e, 0x69, 0x2d, 0x73,
			0x61, 0x6c, 0x74, 0x2d, 0x76, 0x31, 0x00, 0x02,
		},
		Origins: []string{"https://generativelanguage.googleapis.com/"},
	},
	{
		ID:           Anthropic,
		Label:        "Anthropic Claude",
		Mode:         provider.ModeAnthropicMessages,
		DefaultModel: "claude-3-5-haiku-20241022",
		TestModel:    "claude-3-5-haiku-20241022",
		BaseURL:      "https://api.anthropic.com/v1",
		Salt: [provider.SaltSize]byte{
			0x61, 0x6e, 0x74, 0x68, 0x72, 0x6f, 0x70, 0x69,
			0x63, 0x2d, 0x73, 0x61, 0x6c, 0x74, 0x00, 0x03,
		},
		Origins: []string{"https://api.anthropic.com/"},
	},
}

var (
	adapters   = make(map[provider.CompatMode]provider.Provider)
	byID       = make(map[string]*provider.Descriptor)
	registryMu sync.RWMutex
)

func init() {
	RegisterAdapter(openailike.New())
	RegisterAdapter(gemini.New())
	RegisterAdapter(anthropic.New())
	for _, d := range descriptors {
		byID[d.ID] = d
	}
}

// RegisterAdapter registers the wire codec for a compatibility mode.
func RegisterAdapter(p provider.Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	adapters[p.Mode()] = p
}

// Adapter returns the wire codec for the given compatibility mode.
func Adapter(mode provider.CompatMode) (provider.Provider, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := adapters[mode]
	return p, ok
}

// Get returns the descriptor for a canonical provider id.
func Get(id string) (*provider.Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := byID[id]
	return d, ok
}

// Canonical resolves legacy aliases to the canonical provider id. Unknown
// ids pass through unchanged.
func Canonical(id string) string {
	if canonical, ok := aliases[id]; ok {
		return canonical
	}
	return id
}

// List returns the catalog in registry order.
func List() []*provider.Descriptor {
	out := make([]*provider.Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// DefaultOrder returns the provider ids in registry order.
func DefaultOrder() []string {
	ids := make([]string, len(descriptors))
	for i, d := range descriptors {
		ids[i] = d.ID
	}
	return ids
}
