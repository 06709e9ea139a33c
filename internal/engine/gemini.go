package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// GeminiClient implements ModelClient using the Google Generative AI REST API.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// GeminiOption configures the Gemini client.
type GeminiOption func(*GeminiClient)

// WithGeminiModel sets the model name.
func WithGeminiModel(model string) GeminiOption {
	return func(c *GeminiClient) { c.model = model }
}

// WithGeminiBaseURL overrides the API endpoint.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithGeminiTimeout sets the HTTP timeout.
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(c *GeminiClient) { c.httpClient.Timeout = d }
}

// NewGeminiClient creates a new Google Gemini model client.
func NewGeminiClient(apiKey string, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		apiKey:     apiKey,
		model:      "gemini-2.0-flash",
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig geminiGenConfig   `json:"generationConfig"`
	SafetySettings   []geminiSafetySet `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type geminiSafetySet struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt to the Gemini API and returns the response text.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenConfig{
			Temperature:      0.4,
			MaxOutputTokens:  8192,
			ResponseMIMEType: "application/json",
		},
		SafetySettings: []geminiSafetySet{
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	return withRetry(ctx, "gemini", func() (string, error) { return c.doRequest(ctx, body) })
}

func (c *GeminiClient) doRequest(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	respBody, err := postJSON(ctx, c.httpClient, url, map[string]string{"x-goog-api-key": c.apiKey}, body)
	if err != nil {
		return "", err
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if geminiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", geminiResp.Error.Message)
	}
	if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
		return geminiResp.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("no content in response")
}
