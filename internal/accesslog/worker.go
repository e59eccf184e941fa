// Package accesslog persists API access events off the request path.
package accesslog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/metrics"
	"github.com/kurihiro0119/docsync/internal/queue"
)

// DefaultDrainTimeout bounds how long Drain keeps persisting after shutdown starts
const DefaultDrainTimeout = 30 * time.Second

// Sink persists one event
type Sink interface {
	SaveAccessLog(ctx context.Context, event *domain.AccessLogEvent) error
}

// Config configures a Worker
type Config struct {
	Capacity     int
	Overflow     queue.OverflowPolicy
	ErrorBackoff time.Duration // pause after a failed write while running
	Logger       *slog.Logger
}

// DefaultConfig returns the worker defaults
func DefaultConfig() Config {
	return Config{
		Capacity:     10000,
		Overflow:     queue.DropOldest,
		ErrorBackoff: 5 * time.Second,
		Logger:       slog.Default(),
	}
}

// Worker is the single consumer of the access-log queue
type Worker struct {
	queue        *queue.Queue[*domain.AccessLogEvent]
	sink         Sink
	errorBackoff time.Duration
	logger       *slog.Logger

	mu sync.Mutex
	// an event whose write was interrupted by shutdown, persisted first by Drain
	pending *domain.AccessLogEvent
}

// NewWorker creates a worker with its own bounded queue
func NewWorker(sink Sink, cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	q := queue.New[*domain.AccessLogEvent](cfg.Capacity, cfg.Overflow)
	q.OnDrop(metrics.QueueDropped.Inc)

	return &Worker{
		queue:        q,
		sink:         sink,
		errorBackoff: cfg.ErrorBackoff,
		logger:       cfg.Logger,
	}
}

// Record enqueues an event without blocking. It reports whether the event was accepted.
func (w *Worker) Record(event *domain.AccessLogEvent) bool {
	ok := w.queue.Enqueue(event)
	metrics.QueueDepth.Set(float64(w.queue.Len()))
	return ok
}

// Pending returns the number of events not yet persisted
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.queue.Len()
	if w.pending != nil {
		n++
	}
	return n
}

// Dropped returns how many events the overflow policy discarded
func (w *Worker) Dropped() uint64 {
	return w.queue.Dropped()
}

// Run persists events until ctx is cancelled. A failed write is logged and
// the event is not retried.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("access log worker started")
	defer w.logger.Info("access log worker stopped")

	for {
		event, ok := w.queue.Dequeue(ctx)
		if !ok {
			return
		}
		metrics.QueueDepth.Set(float64(w.queue.Len()))

		if err := w.sink.SaveAccessLog(ctx, event); err != nil {
			if ctx.Err() != nil {
				w.mu.Lock()
				w.pending = event
				w.mu.Unlock()
				w.logger.Warn("access log write interrupted by shutdown, left for drain", "path", event.Path, "error", err)
				return
			}
			metrics.AccessLogWriteFailures.Inc()
			w.logger.Error("failed to persist access log", "path", event.Path, "error", err)

			if w.errorBackoff > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.errorBackoff):
				}
			}
		}
	}
}

// Drain persists what is left in the queue for at most grace. Events still
// queued at the deadline are discarded and counted. It returns that count.
func (w *Worker) Drain(grace time.Duration) int {
	if grace <= 0 {
		grace = DefaultDrainTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	w.mu.Lock()
	event := w.pending
	w.pending = nil
	w.mu.Unlock()

	persisted, discarded := 0, 0
	for ctx.Err() == nil {
		if event == nil {
			var ok bool
			if event, ok = w.queue.TryDequeue(); !ok {
				break
			}
		}
		err := w.sink.SaveAccessLog(ctx, event)
		switch {
		case err == nil:
			persisted++
		case ctx.Err() != nil:
			// cut off by the deadline
			discarded++
		default:
			metrics.AccessLogWriteFailures.Inc()
			w.logger.Error("failed to persist access log during drain", "path", event.Path, "error", err)
		}
		event = nil
	}
	if event != nil {
		discarded++
	}

	for {
		if _, ok := w.queue.TryDequeue(); !ok {
			break
		}
		discarded++
	}
	metrics.QueueDepth.Set(0)

	if discarded > 0 {
		metrics.QueueDiscarded.Add(float64(discarded))
		w.logger.Warn("access log drain deadline reached, events discarded",
			"persisted", persisted, "discarded", discarded, "grace", grace)
	} else {
		w.logger.Info("access log drained", "persisted", persisted)
	}
	return discarded
}
