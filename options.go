package parsemux

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/blueberrycongee/parsemux/internal/config"
)

// ClientConfig holds all configuration for the parsemux client.
type ClientConfig struct {
	// ConfigPath is the location of the persisted configuration blob.
	// Ignored when Storage is set.
	ConfigPath string

	// Storage overrides the blob storage backend.
	Storage config.Storage

	// HTTPClient overrides the transport used for provider calls.
	HTTPClient *http.Client

	// Timeout applies to the default HTTP client only.
	Timeout time.Duration

	// Logger receives structured log output.
	Logger *slog.Logger

	// DefaultRetry is the transport retry policy for providers without an
	// explicit policy in configuration.
	DefaultRetry config.RetryPolicy

	// DefaultFields is the field schema used by ParseText.
	DefaultFields []string

	// ParseAttempts is the explicit validation retry budget of the dynamic
	// parsing driver. The effective budget is the larger of this and the
	// active provider's retry policy.
	ParseAttempts int

	// Temperature and MaxTokens are the completion defaults applied when a
	// call supplies no overrides.
	Temperature float64
	MaxTokens   int
}

// Option is a function that configures the Client.
type Option func(*ClientConfig)

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:       30 * time.Second,
		Logger:        slog.Default(),
		DefaultRetry:  config.DefaultRetryPolicy,
		DefaultFields: []string{"word", "reading", "meaning", "example"},
		ParseAttempts: 2,
		Temperature:   0.3,
		MaxTokens:     2000,
	}
}

// WithConfigFile stores the configuration blob at path.
func WithConfigFile(path string) Option {
	return func(c *ClientConfig) {
		c.ConfigPath = path
	}
}

// WithStorage sets a custom blob storage backend. Overrides WithConfigFile.
func WithStorage(storage config.Storage) Option {
	return func(c *ClientConfig) {
		c.Storage = storage
	}
}

// WithHTTPClient sets the HTTP client used for provider calls. The caller
// owns its timeout configuration.
func WithHTTPClient(client *http.Client) Option {
	return func(c *ClientConfig) {
		c.HTTPClient = client
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *ClientConfig) {
		c.Timeout = d
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}

// WithRetryPolicy sets the default transport retry policy. Providers can
// still carry their own policy in configuration.
func WithRetryPolicy(policy config.RetryPolicy) Option {
	return func(c *ClientConfig) {
		c.DefaultRetry = policy
	}
}

// WithDefaultFields sets the field schema ParseText requests.
func WithDefaultFields(fields []string) Option {
	return func(c *ClientConfig) {
		c.DefaultFields = fields
	}
}

// WithParseAttempts sets the validation retry budget of the dynamic parsing
// driver.
func WithParseAttempts(n int) Option {
	return func(c *ClientConfig) {
		c.ParseAttempts = n
	}
}

// WithCompletionDefaults sets the temperature and max-token defaults used
// when a call provides no overrides.
func WithCompletionDefaults(temperature float64, maxTokens int) Option {
	return func(c *ClientConfig) {
		c.Temperature = temperature
		c.MaxTokens = maxTokens
	}
}
