package parsemux

import (
	"context"
	"math"
	"strings"

	"github.com/blueberrycongee/parsemux/internal/metrics"
	"github.com/blueberrycongee/parsemux/pkg/types"
	"github.com/blueberrycongee/parsemux/providers"
)

// ParseText parses free-form text into the client's default field schema,
// with cross-provider fallback. template may be empty for the built-in
// prompt template.
func (c *Client) ParseText(ctx context.Context, text, template string) (map[string]string, error) {
	return c.ParseWithDynamicFields(ctx, text, c.config.DefaultFields, template)
}

// ParseWithDynamicFields parses free-form text into a caller-supplied field
// schema. The call retries within its own validation budget, distinct from
// transport retries: output that is valid JSON but carries disallowed
// fields, or is entirely empty, triggers another attempt at a slightly
// lower temperature.
//
// With a fully custom template (see IsFullyCustomTemplate) no structure is
// enforced; the raw completion is returned under the "text" field.
func (c *Client) ParseWithDynamicFields(ctx context.Context, text string, fields []string, template string) (map[string]string, error) {
	fullyCustom := IsFullyCustomTemplate(template)

	fields = sanitizeFields(fields)
	if len(fields) == 0 && !fullyCustom {
		return nil, NewConfigurationError("", "at least one field name is required")
	}

	cfg, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	budget := c.config.ParseAttempts
	if policy := c.retryPolicyFor(cfg, providers.Canonical(cfg.Provider)); policy.MaxAttempts > budget {
		budget = policy.MaxAttempts
	}
	if budget < 1 {
		budget = 1
	}

	prompt := BuildIntegratedPrompt(text, fields, template)

	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		temperature := math.Max(0.1, 0.3-0.1*float64(attempt-1))

		raw, providerID, err := c.completeWithFallback(ctx, prompt, types.CallOptions{
			Temperature: temperature,
			MaxTokens:   c.config.MaxTokens,
		})
		if err != nil {
			// Transport exhaustion and configuration failures are final;
			// only validation failures are retried here.
			return nil, err
		}

		if fullyCustom {
			return map[string]string{"text": raw}, nil
		}

		res := ValidateOutput(raw, fields)
		switch {
		case res.ParseErr != "":
			lastErr = NewValidationError("output is not valid JSON: "+res.ParseErr, nil)
		case !res.IsValid:
			lastErr = NewValidationError("output contains disallowed fields", res.InvalidFields)
		case !res.HasContent:
			lastErr = NewValidationError("output contained no content for any requested field", nil)
		default:
			c.logger.Debug("dynamic parse succeeded",
				"provider", providerID,
				"attempt", attempt,
				"fields", len(res.Fields),
			)
			return res.Fields, nil
		}

		c.logger.Warn("dynamic parse output rejected",
			"provider", providerID,
			"attempt", attempt,
			"error", lastErr,
		)
		if attempt < budget {
			metrics.ValidationRetriesTotal.Inc()
		}
	}
	return nil, lastErr
}

// sanitizeFields trims entries, drops empties, and removes duplicates while
// preserving the caller's order.
func sanitizeFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
