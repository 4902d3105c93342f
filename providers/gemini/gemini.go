// Package gemini implements the Google generateContent wire format.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/parsemux/pkg/errors"
	"github.com/blueberrycongee/parsemux/pkg/provider"
	"github.com/blueberrycongee/parsemux/pkg/types"
)

// Provider implements the google-generative compatibility mode.
type Provider struct{}

// New creates the adapter.
func New() *Provider { return &Provider{} }

// Mode returns the compatibility mode identifier.
func (p *Provider) Mode() provider.CompatMode { return provider.ModeGoogleGenerative }

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// BuildRequest creates a POST {base}/models/{model}:generateContent request
// authenticated with the x-goog-api-key header.
func (p *Provider) BuildRequest(ctx context.Context, d *provider.Descriptor, req *types.CompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	base := d.BaseURL
	if req.BaseURL != "" {
		base = req.BaseURL
	}
	endpoint := strings.TrimSuffix(base, "/") + "/models/" + url.PathEscape(req.Model) + ":generateContent"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)
	return httpReq, nil
}

// ParseResponse extracts candidates[0].content.parts[0].text.
func (p *Provider) ParseResponse(body []byte) (string, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("response contained no candidates")
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", fmt.Errorf("response contained no completion content")
	}
	return text, nil
}

// MapError parses the Google error envelope when present.
func (p *Provider) MapError(providerID string, statusCode int, status string, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := provider.StatusLine(statusCode, status)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return errors.NewTransportError(providerID, statusCode, message)
}
