package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// OllamaClient implements ModelClient using the local Ollama API.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OllamaOption configures the Ollama client.
type OllamaOption func(*OllamaClient)

// WithOllamaModel sets the model name.
func WithOllamaModel(model string) OllamaOption {
	return func(c *OllamaClient) { c.model = model }
}

// NewOllamaClient creates a new Ollama model client.
func NewOllamaClient(baseURL string, opts ...OllamaOption) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	c := &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      "llama3",
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Complete sends a prompt to the Ollama API and returns the response text.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:   c.model,
		Prompt:  prompt,
		Format:  "json",
		Options: ollamaOptions{Temperature: 0.4},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	return withRetry(ctx, "ollama", func() (string, error) { return c.doRequest(ctx, body) })
}

func (c *OllamaClient) doRequest(ctx context.Context, body []byte) (string, error) {
	respBody, err := postJSON(ctx, c.httpClient, c.baseURL+"/api/generate", nil, body)
	if err != nil {
		return "", err
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if ollamaResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", ollamaResp.Error)
	}
	if ollamaResp.Response == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return ollamaResp.Response, nil
}
