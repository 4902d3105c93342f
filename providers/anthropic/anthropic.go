// Package anthropic implements the Anthropic Messages wire format.
package anthropic

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/parsemux/pkg/errors"
	"github.com/blueberrycongee/parsemux/pkg/provider"
	"github.com/blueberrycongee/parsemux/pkg/types"
)

// APIVersion is the fixed anthropic-version header value.
const APIVersion = "2023-06-01"

// Provider implements the anthropic-messages compatibility mode.
type Provider struct{}

// New creates the adapter.
func New() *Provider { return &Provider{} }

// Mode returns the compatibility mode identifier.
func (p *Provider) Mode() provider.CompatMode { return provider.ModeAnthropicMessages }

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// BuildRequest creates a POST {base}/messages request with x-api-key auth
// and the fixed anthropic-version header.
func (p *Provider) BuildRequest(ctx context.Context, d *provider.Descriptor, req *types.CompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	base := d.BaseURL
	if req.BaseURL != "" {
		base = req.BaseURL
	}
	url := strings.TrimSuffix(base, "/") + "/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", req.APIKey)
	httpReq.Header.Set("anthropic-version", APIVersion)
	return httpReq, nil
}

// ParseResponse extracts content[0].text.
func (p *Provider) ParseResponse(body []byte) (string, error) {
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == "" {
		return "", fmt.Errorf("response contained no completion content")
	}
	return resp.Content[0].Text, nil
}

// MapError parses the Anthropic error envelope when present.
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
