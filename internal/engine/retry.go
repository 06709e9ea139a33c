package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiError represents an error from a provider API that may or may not be retryable.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// isRetryable returns true for transient errors (rate limit, server errors).
func (e *apiError) isRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

const maxAttempts = 2

// retryBackoff is the wait before attempt n+1. Tests shrink it.
var retryBackoff = func(attempt int) time.Duration {
	return time.Duration(attempt+1) * 2 * time.Second
}

// withRetry runs do up to maxAttempts times, retrying only transport errors
// and retryable API errors. The returned error is prefixed with provider.
func withRetry(ctx context.Context, provider string, do func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := do()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var ae *apiError
		if errors.As(err, &ae) && !ae.isRetryable() {
			return "", fmt.Errorf("%s: %w", provider, err)
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryBackoff(attempt)):
			}
		}
	}
	return "", fmt.Errorf("%s: %w", provider, lastErr)
}

// postJSON sends body to url and returns the raw response body. Non-200
// responses become *apiError so withRetry can classify them.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
