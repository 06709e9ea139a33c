package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// OpenAIClient implements ModelClient using the OpenAI Chat Completions API.
// It also works with any OpenAI-compatible service by setting a custom base URL.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// OpenAIOption configures the OpenAI client.
type OpenAIOption func(*OpenAIClient)

// WithModel sets the model name (default: gpt-4o-mini).
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) { c.model = model }
}

// WithBaseURL overrides the API endpoint (default: https://api.openai.com/v1).
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithOpenAITimeout sets the HTTP timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAIClient) { c.httpClient.Timeout = d }
}

// NewOpenAIClient creates a new OpenAI model client.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    "https://api.openai.com/v1",
		model:      "gpt-4o-mini",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

// Complete sends a prompt to OpenAI and returns the assistant's response text.
// Generation prompts always ask for a JSON object, so JSON mode is requested.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    0.4,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	return withRetry(ctx, "openai", func() (string, error) { return c.doRequest(ctx, body) })
}

func (c *OpenAIClient) doRequest(ctx context.Context, body []byte) (string, error) {
	respBody, err := postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.apiKey}, body)
	if err != nil {
		return "", err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("api error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return chatResp.Choices[0].Message.Content, nil
}
