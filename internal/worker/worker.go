// Package worker runs background hydration of lessons whose content could not
// be generated during course assembly.
package worker

import (
	"context"
	"time"

	"github.com/yangwenmai/coursegen/internal/logger"
	"github.com/yangwenmai/coursegen/internal/model"
)

// DefaultBatchSize is the number of pending lessons picked up per tick.
const DefaultBatchSize = 10

// Hydrator fills in a pending lesson.
type Hydrator interface {
	EnsureHydrated(ctx context.Context, lessonID string) (*model.Lesson, error)
}

// PendingLister lists lessons still awaiting content, oldest first.
type PendingLister interface {
	ListPendingLessons(ctx context.Context, limit int) ([]model.Lesson, error)
}

// Worker polls for pending lessons and hydrates them.
type Worker struct {
	lister    PendingLister
	hydrator  Hydrator
	interval  time.Duration
	batchSize int
	log       *logger.Logger
}

// New creates a new Worker.
func New(lister PendingLister, hydrator Hydrator, interval time.Duration, log *logger.Logger) *Worker {
	return &Worker{
		lister:    lister,
		hydrator:  hydrator,
		interval:  interval,
		batchSize: DefaultBatchSize,
		log:       log,
	}
}

// Start begins the polling loop. It blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("backfill worker started", "interval", w.interval.String(), "batch", w.batchSize)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("backfill worker stopped")
			return
		default:
		}

		w.RunOnce(ctx)
		w.sleep(ctx)
	}
}

// RunOnce hydrates one batch of pending lessons and returns how many
// succeeded. Failures are logged and left for the next tick.
func (w *Worker) RunOnce(ctx context.Context) int {
	lessons, err := w.lister.ListPendingLessons(ctx, w.batchSize)
	if err != nil {
		w.log.Error("list pending lessons", "error", err)
		return 0
	}
	if len(lessons) == 0 {
		return 0
	}

	done := 0
	for _, l := range lessons {
		if ctx.Err() != nil {
			break
		}
		if _, err := w.hydrator.EnsureHydrated(ctx, l.ID); err != nil {
			w.log.Warn("backfill hydration failed", "lesson_id", l.ID, "title", l.Title, "error", err)
			continue
		}
		done++
	}
	w.log.Info("backfill batch finished", "pending", len(lessons), "hydrated", done)
	return done
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.interval):
	}
}
