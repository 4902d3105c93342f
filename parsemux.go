// Package parsemux turns free-form text into a bounded set of named fields
// by orchestrating heterogeneous AI completion providers: per-provider wire
// formats, bounded retry with deterministic backoff, cross-provider
// fallback with persisted health state, and a versioned configuration store
// that encrypts each provider's credential under its own derived key.
//
// Basic usage:
//
//	client, err := parsemux.New(
//	    parsemux.WithConfigFile(filepath.Join(configDir, "config.json")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fields, err := client.ParseWithDynamicFields(ctx, selection,
//	    []string{"word", "reading", "meaning"}, "")
package parsemux

import (
	"github.com/blueberrycongee/parsemux/internal/config"
	"github.com/blueberrycongee/parsemux/pkg/errors"
	"github.com/blueberrycongee/parsemux/pkg/provider"
	"github.com/blueberrycongee/parsemux/pkg/types"
)

// Version is the current version of parsemux.
const Version = "1.2.0"

// Re-export configuration types.
type (
	// Config is the versioned root object of the persisted blob.
	Config = config.Config

	// ModelState is the mutable per-provider configuration.
	ModelState = config.ModelState

	// RetryPolicy bounds the transport retry loop for one provider.
	RetryPolicy = config.RetryPolicy

	// HealthStatus is the per-provider cached verdict.
	HealthStatus = config.HealthStatus

	// Storage persists the raw configuration blob.
	Storage = config.Storage
)

// Re-export health status values.
const (
	HealthUnknown = config.HealthUnknown
	HealthHealthy = config.HealthHealthy
	HealthError   = config.HealthError
)

// Re-export provider types.
type (
	// Descriptor is the immutable catalog entry for one provider.
	Descriptor = provider.Descriptor

	// CompatMode identifies a provider's wire-format family.
	CompatMode = provider.CompatMode
)

// Re-export request/result types.
type (
	// CallOptions are the caller-tunable knobs for a single completion.
	CallOptions = types.CallOptions

	// ConnectionTestResult reports the outcome of a credential test.
	ConnectionTestResult = types.ConnectionTestResult
)

// Re-export error types.
type (
	// ParseError is the standardized error for a failed provider operation.
	ParseError = errors.ParseError

	// ErrorKind classifies a ParseError.
	ErrorKind = errors.Kind
)

// Re-export error kind constants.
const (
	KindConfiguration = errors.KindConfiguration
	KindTransport     = errors.KindTransport
	KindValidation    = errors.KindValidation
	KindCrypto        = errors.KindCrypto
)

// Re-export error factory functions.
var (
	NewConfigurationError = errors.NewConfigurationError
	NewTransportError     = errors.NewTransportError
	NewValidationError    = errors.NewValidationError
	NewCryptoError        = errors.NewCryptoError
)

// NewFileStorage creates a file-backed configuration storage.
var NewFileStorage = config.NewFileStorage

// NewMemoryStorage creates an in-memory configuration storage.
var NewMemoryStorage = config.NewMemoryStorage
