// Package openailike implements the OpenAI-compatible chat completions wire
// format. Most hosted completion APIs follow this format with minor
// variations, so the adapter works off the descriptor's base URL rather
// than hard-coding a vendor endpoint.
package openailike

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

// Provider implements the openai-like compatibility mode.
type Provider struct{}

// New creates the adapter. It holds no per-call state.
func New() *Provider { return &Provider{} }

// Mode returns the compatibility mode identifier.
func (p *Provider) Mode() provider.CompatMode { return provider.ModeOpenAILike }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// BuildRequest creates a POST {base}/chat/completions request with bearer
// auth. A non-empty req.BaseURL replaces the descriptor base verbatim.
func (p *Provider) BuildRequest(ctx context.Context, d *provider.Descriptor, req *types.CompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	base := d.BaseURL
	if req.BaseURL != "" {
		base = req.BaseURL
	}
	url := strings.TrimSuffix(base, "/") + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	return httpReq, nil
}

// ParseResponse extracts choices[0].message.content.
func (p *Provider) ParseResponse(body []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("response contained no completion content")
	}
	return resp.Choices[0].Message.Content, nil
}

// MapError parses the OpenAI error envelope when present.
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
