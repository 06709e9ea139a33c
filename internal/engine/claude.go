package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

const claudeURL = "https://api.anthropic.com/v1/messages"

// ClaudeClient implements ModelClient using the Anthropic Messages API.
type ClaudeClient struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
}

// ClaudeOption configures the Claude client.
type ClaudeOption func(*ClaudeClient)

// WithClaudeModel sets the model name.
func WithClaudeModel(model string) ClaudeOption {
	return func(c *ClaudeClient) { c.model = model }
}

// WithClaudeTimeout sets the HTTP timeout.
func WithClaudeTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeClient) { c.httpClient.Timeout = d }
}

// NewClaudeClient creates a new Anthropic Claude model client.
func NewClaudeClient(apiKey string, opts ...ClaudeOption) *ClaudeClient {
	c := &ClaudeClient{
		apiKey:     apiKey,
		model:      "claude-sonnet-4-20250514",
		url:        claudeURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type claudeRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt to the Anthropic Messages API and returns the response text.
func (c *ClaudeClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(claudeRequest{
		Model:       c.model,
		MaxTokens:   4096,
		Temperature: 0.4,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	return withRetry(ctx, "claude", func() (string, error) { return c.doRequest(ctx, body) })
}

func (c *ClaudeClient) doRequest(ctx context.Context, body []byte) (string, error) {
	respBody, err := postJSON(ctx, c.httpClient, c.url, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}, body)
	if err != nil {
		return "", err
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if claudeResp.Error != nil {
		return "", fmt.Errorf("api error: %s", claudeResp.Error.Message)
	}
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
