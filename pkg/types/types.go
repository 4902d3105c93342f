// Package types holds the request and result types exchanged between the
// parsemux client and provider adapters.
package types

// CompletionRequest carries everything an adapter needs to build one
// provider HTTP call. Credentials live here, not on the adapter: adapters
// are stateless wire codecs and keys are resolved from configuration per
// call.
type CompletionRequest struct {
	// APIKey is the plaintext credential for this call.
	APIKey string

	// Model is the fully resolved model name.
	Model string

	// Prompt is the user prompt, already assembled by the prompt builder.
	Prompt string

	// Temperature for sampling.
	Temperature float64

	// MaxTokens caps the completion length.
	MaxTokens int

	// BaseURL, when non-empty, replaces the descriptor's base URL verbatim
	// (proxies, self-hosted gateways).
	BaseURL string
}

// CallOptions are the caller-tunable knobs for a single completion.
// Zero values fall back to the client defaults (0.3 / 2000).
type CallOptions struct {
	Temperature float64
	MaxTokens   int
}

// ConnectionTestResult reports the outcome of a credential test.
type ConnectionTestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
