package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/yangwenmai/coursegen/internal/logger"
)

type countingModel struct {
	calls int
	err   error
}

func (c *countingModel) Complete(context.Context, string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "ok", nil
}

func TestBreakerClient_OpensAfterThreshold(t *testing.T) {
	next := &countingModel{err: errors.New("upstream down")}
	b := NewBreakerClient("test-open", next, BreakerConfig{FailureThreshold: 3, OpenTimeout: time.Minute}, logger.Nop())

	for i := 0; i < 3; i++ {
		if _, err := b.Complete(context.Background(), "p"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if b.State() != "open" {
		t.Fatalf("State = %q, want open", b.State())
	}

	_, err := b.Complete(context.Background(), "p")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want ErrOpenState", err)
	}
	if next.calls != 3 {
		t.Errorf("next.calls = %d, want 3 (open breaker must not call through)", next.calls)
	}
}

func TestBreakerClient_IgnoresCancellation(t *testing.T) {
	next := &countingModel{err: context.Canceled}
	b := NewBreakerClient("test-cancel", next, BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Minute}, logger.Nop())

	for i := 0; i < 3; i++ {
		b.Complete(context.Background(), "p")
	}
	if b.State() != "closed" {
		t.Errorf("State = %q, want closed", b.State())
	}
}

func TestBreakerClient_PassesThrough(t *testing.T) {
	next := &countingModel{}
	b := NewBreakerClient("test-pass", next, DefaultBreakerConfig(), logger.Nop())

	got, err := b.Complete(context.Background(), "p")
	if err != nil || got != "ok" {
		t.Errorf("Complete = %q, %v", got, err)
	}
}
