package engine

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/yangwenmai/coursegen/internal/logger"
	"github.com/yangwenmai/coursegen/internal/metrics"
)

// BreakerConfig tunes the circuit breaker around a model provider.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before letting a trial request through.
	OpenTimeout time.Duration
}

// DefaultBreakerConfig returns the production breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

// BreakerClient wraps a ModelClient with a circuit breaker.
type BreakerClient struct {
	name string
	next ModelClient
	cb   *gobreaker.CircuitBreaker[string]
}

// NewBreakerClient wraps next. name labels logs and metrics.
func NewBreakerClient(name string, next ModelClient, cfg BreakerConfig, log *logger.Logger) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("provider breaker state changed", "provider", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	return &BreakerClient{
		name: name,
		next: next,
		cb:   gobreaker.NewCircuitBreaker[string](settings),
	}
}

// Complete forwards to the wrapped client unless the breaker is open.
func (b *BreakerClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := b.cb.Execute(func() (string, error) {
		return b.next.Complete(ctx, prompt)
	})
	metrics.ProviderLatency.WithLabelValues(b.name).Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	case err != nil:
		result = "error"
	}
	metrics.ProviderCalls.WithLabelValues(b.name, result).Inc()
	return out, err
}

// State reports the breaker state ("closed", "half-open", "open").
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}
