// Package errors defines the structured error type shared by all parsemux
// components. Provider wire errors, credential problems, and output
// validation failures are all mapped onto ParseError so that callers can
// branch on a machine-readable kind instead of matching message text.
package errors

import (
	"fmt"
	"strings"
)

// Kind classifies a ParseError.
type Kind string

const (
	// KindConfiguration covers missing or invalid provider ids, API keys,
	// and models. Not retryable; the attempt is recorded and skipped.
	KindConfiguration Kind = "configuration_error"

	// KindTransport covers network failures, non-2xx responses, and
	// unparsable success bodies. Retried up to the provider's policy.
	KindTransport Kind = "transport_error"

	// KindValidation covers structurally valid responses whose JSON has
	// disallowed fields or no content. Retried by the dynamic parsing
	// driver, never by the transport retry engine.
	KindValidation Kind = "validation_error"

	// KindCrypto covers credential decryption failures. Never surfaced to
	// callers; downgraded to an empty credential at the point of failure.
	KindCrypto Kind = "crypto_error"
)

// ParseError is the standardized error for a failed provider operation.
type ParseError struct {
	Kind          Kind     `json:"kind"`
	Provider      string   `json:"provider,omitempty"`
	StatusCode    int      `json:"status_code,omitempty"`
	Message       string   `json:"message"`
	InvalidFields []string `json:"invalid_fields,omitempty"`
	Retryable     bool     `json:"-"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if e.Provider != "" {
		fmt.Fprintf(&b, " (provider=%s", e.Provider)
		if e.StatusCode > 0 {
			fmt.Fprintf(&b, ", status=%d", e.StatusCode)
		}
		b.WriteString(")")
	}
	if len(e.InvalidFields) > 0 {
		fmt.Fprintf(&b, " invalid_fields=%v", e.InvalidFields)
	}
	return b.String()
}

// NewConfigurationError creates a non-retryable configuration error.
func NewConfigurationError(provider, message string) *ParseError {
	return &ParseError{
		Kind:     KindConfiguration,
		Provider: provider,
		Message:  message,
	}
}

// NewTransportError creates a retryable transport error. statusCode may be
// zero for network-level failures that never produced a response.
func NewTransportError(provider string, statusCode int, message string) *ParseError {
	return &ParseError{
		Kind:       KindTransport,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  true,
	}
}

// NewValidationError creates a validation error for output that parsed but
// did not conform to the expected field schema.
func NewValidationError(message string, invalidFields []string) *ParseError {
	return &ParseError{
		Kind:          KindValidation,
		Message:       message,
		InvalidFields: invalidFields,
		Retryable:     true,
	}
}

// NewCryptoError creates a crypto error. Config loading downgrades these to
// empty credentials; the type exists so the downgrade site can log the kind.
func NewCryptoError(provider, message string) *ParseError {
	return &ParseError{
		Kind:     KindCrypto,
		Provider: provider,
		Message:  message,
	}
}
