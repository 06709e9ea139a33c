package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yangwenmai/coursegen/internal/logger"
	"github.com/yangwenmai/coursegen/internal/model"
)

type mockLessons struct {
	mu      sync.Mutex
	pending map[string]bool
	order   []string
	failFor map[string]bool
	listErr error
	lists   int
}

func newMockLessons(ids ...string) *mockLessons {
	m := &mockLessons{pending: map[string]bool{}, failFor: map[string]bool{}}
	for _, id := range ids {
		m.pending[id] = true
		m.order = append(m.order, id)
	}
	return m
}

func (m *mockLessons) ListPendingLessons(_ context.Context, limit int) ([]model.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Lesson
	for _, id := range m.order {
		if m.pending[id] && len(out) < limit {
			out = append(out, model.Lesson{ID: id, Title: "Lesson " + id})
		}
	}
	return out, nil
}

func (m *mockLessons) EnsureHydrated(_ context.Context, id string) (*model.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[id] {
		return nil, &model.ProviderError{Op: "content", Err: errors.New("down"), Retryable: true}
	}
	m.pending[id] = false
	return &model.Lesson{ID: id, Content: []model.ContentBlock{{Type: model.KindParagraph, Text: "x"}}}, nil
}

func (m *mockLessons) stillPending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.pending {
		if p {
			n++
		}
	}
	return n
}

func TestRunOnce(t *testing.T) {
	m := newMockLessons("a", "b", "c")
	m.failFor["b"] = true
	w := New(m, m, time.Minute, logger.Nop())

	if got := w.RunOnce(context.Background()); got != 2 {
		t.Errorf("RunOnce = %d, want 2", got)
	}
	if n := m.stillPending(); n != 1 {
		t.Errorf("pending = %d, want 1 (the failed lesson)", n)
	}

	// The provider recovers; the failed lesson is retried on the next tick.
	m.mu.Lock()
	m.failFor["b"] = false
	m.mu.Unlock()
	if got := w.RunOnce(context.Background()); got != 1 {
		t.Errorf("second RunOnce = %d, want 1", got)
	}
}

func TestRunOnce_RespectsBatchSize(t *testing.T) {
	ids := make([]string, 25)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	m := newMockLessons(ids...)
	w := New(m, m, time.Minute, logger.Nop())

	if got := w.RunOnce(context.Background()); got != DefaultBatchSize {
		t.Errorf("RunOnce = %d, want %d", got, DefaultBatchSize)
	}
}

func TestRunOnce_ListError(t *testing.T) {
	m := newMockLessons("a")
	m.listErr = errors.New("db locked")
	w := New(m, m, time.Minute, logger.Nop())

	if got := w.RunOnce(context.Background()); got != 0 {
		t.Errorf("RunOnce = %d, want 0", got)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	m := newMockLessons("a", "b")
	w := New(m, m, 10*time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for m.stillPending() > 0 {
		select {
		case <-deadline:
			t.Fatal("worker did not drain pending lessons")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
