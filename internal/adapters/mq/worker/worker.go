// Package worker drains the outbound queue and hands each event to the
// poster.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/pkg/logger"
	"github.com/okian/mafiabot/pkg/metrics"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
)

// Event is what workers read off the queue.
type Event = model.Event

// Poster publishes one report to the thread.
type Poster interface {
	Post(ctx context.Context, e model.Event) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the current event.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker posts queued events one at a time, so reports reach the
// thread in the order the resolution loop produced them.
type InMemoryWorker struct {
	queue  Queue
	poster Poster
	name   string

	attempts int
	backoff  time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, poster Poster, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		poster:   poster,
		name:     "poster",
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logger.OrGet(w.logger).Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := w.deliver(ctx, e); err != nil {
				w.logger.Error(ctx, "dropping event after failed deliveries",
					logger.String("kind", string(e.Kind)), logger.Int("post", e.PostID), logger.Error(err))
			}
		}
	}
}

// Shutdown signals the worker to stop and waits for it.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) deliver(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: events travel by value
	kind := string(e.Kind)
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if err = w.poster.Post(ctx, e); err == nil {
			metrics.RecordEventPosted(kind)
			w.logger.Debug(ctx, "event posted", logger.String("kind", kind), logger.Int("attempt", attempt))
			return nil
		}
		metrics.RecordEventFailed(kind)
		w.logger.Warn(ctx, "post failed", logger.String("kind", kind), logger.Int("attempt", attempt), logger.Error(err))

		if attempt == w.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("post %s: %w", kind, ctx.Err())
		case <-w.shutdown:
			return fmt.Errorf("post %s: %w", kind, ErrStopped)
		case <-time.After(w.backoff):
		}
	}
	return fmt.Errorf("post %s: %w", kind, err)
}
