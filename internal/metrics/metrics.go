// Package metrics exposes Prometheus instrumentation for the orchestration
// pipeline. Metrics register on the default registry via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parsemux"

var (
	// AttemptsTotal counts provider call attempts by final outcome
	// ("success", "error", "skipped").
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider call attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// FallbackExhaustedTotal counts calls where every candidate provider
	// failed.
	FallbackExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_exhausted_total",
			Help:      "Calls that exhausted all fallback candidates",
		},
	)

	// ValidationRetriesTotal counts dynamic-parsing retries triggered by
	// schema validation failures, as opposed to transport retries.
	ValidationRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_retries_total",
			Help:      "Dynamic parsing retries caused by output validation failures",
		},
	)

	// RequestDuration observes the wall time of individual provider calls.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of individual provider HTTP calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)
