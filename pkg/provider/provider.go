// Package provider defines the public interface for AI provider adapters.
// Each compatibility mode (OpenAI-like, Google generateContent, Anthropic
// Messages) implements this interface to translate the abstract completion
// request into the provider's wire format and back.
package provider

import (
	"context"
	"net/http"

	"github.com/blueberrycongee/parsemux/pkg/types"
)

// CompatMode identifies the wire-format family a provider's API matches.
// The set is closed: request building fails with a configuration error for
// any mode without a registered adapter, rather than silently falling back
// to the OpenAI-compatible path.
type CompatMode string

const (
	ModeOpenAILike        CompatMode = "openai-like"
	ModeGoogleGenerative  CompatMode = "google-generative"
	ModeAnthropicMessages CompatMode = "anthropic-messages"
)

// SaltSize is the length of every per-provider encryption salt.
const SaltSize = 16

// Descriptor is the immutable catalog entry for one provider. Descriptors
// are defined at process start and never mutated.
type Descriptor struct {
	// ID is the canonical provider identifier (e.g. "openai").
	ID string

	// Label is the human-readable display name.
	Label string

	// Mode selects the wire-format adapter.
	Mode CompatMode

	// DefaultModel is used when configuration carries no model override.
	DefaultModel string

	// TestModel is the cheap model used for credential tests, and the last
	// resort when neither an override nor a default resolves.
	TestModel string

	// BaseURL is the default API endpoint, without a trailing slash.
	BaseURL string

	// Salt is the fixed per-provider salt for credential key derivation.
	// Distinct salts mean a key encrypted for one provider cannot be
	// decrypted under another provider's derived key.
	Salt [SaltSize]byte

	// Origins lists the network origins the host environment must permit
	// for this provider, including any configured proxy origin.
	Origins []string
}

// Provider is the wire codec for one compatibility mode. Implementations
// are stateless; descriptor and credentials are passed per call. No network
// or storage side effects: pure transformation.
type Provider interface {
	// Mode returns the compatibility mode this adapter implements.
	Mode() CompatMode

	// BuildRequest transforms a completion request into a provider-specific
	// HTTP request. It handles endpoint layout, auth headers, and body
	// serialization.
	BuildRequest(ctx context.Context, d *Descriptor, req *types.CompletionRequest) (*http.Request, error)

	// ParseResponse extracts the completion text from a successful (2xx)
	// response body. An unparsable body or empty content is an error.
	ParseResponse(body []byte) (string, error)

	// MapError converts a non-2xx response into a standardized error. A
	// non-JSON body is tolerated; the message then falls back to
	// "{status} {statusText}".
	MapError(providerID string, statusCode int, status string, body []byte) error
}
