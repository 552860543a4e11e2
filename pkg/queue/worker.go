package queue

import (
	"context"
	"log"
	"time"
)

// Handler processes one parked entry. A nil return acknowledges the entry; an
// error requeues it.
type Handler func(ctx context.Context, entry *Entry) error

// Worker drains the retry queue on an interval.
//
// Each tick drains every ready entry. Failures go back to the queue via Nack
// rather than being retried in process, so a persistently failing entry waits
// a full interval between attempts. Entries that exhaust MaxAttempts are
// dropped with a log line.
type Worker struct {
	store   Store
	handler Handler

	// Interval is the pause between drain passes. Zero selects 30 seconds.
	Interval time.Duration

	// MaxAttempts is the attempt ceiling before an entry is dropped. Zero
	// selects 5.
	MaxAttempts int

	// Logger receives drop and error lines. Nil disables logging.
	Logger *log.Logger
}

// NewWorker creates a retry worker over a store and handler.
func NewWorker(store Store, handler Handler) *Worker {
	return &Worker{store: store, handler: handler}
}

// Run drains the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		w.Drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// failedAttempt is one handler failure awaiting its end-of-pass nack.
type failedAttempt struct {
	contentHash string
	err         error
}

// Drain processes every currently ready entry once.
//
// A failed entry stays in flight until the pass ends and is nacked in one
// batch afterwards. Nacking it mid-pass would put it back at the head of the
// queue, where re-dequeueing it blocks every ready entry behind it.
func (w *Worker) Drain(ctx context.Context) {
	maxAttempts := w.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	var failed []failedAttempt
	defer func() {
		for _, f := range failed {
			if err := w.store.Nack(ctx, f.contentHash, f.err); err != nil {
				w.logf("retry queue nack failed: %v", err)
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		entry, err := w.store.Dequeue(ctx)
		if err == ErrEmpty {
			return
		}
		if err != nil {
			w.logf("retry queue dequeue failed: %v", err)
			return
		}

		if entry.Attempts > maxAttempts {
			w.logf("dropping entry %s after %d attempts (last error: %s)",
				entry.ContentHash, entry.Attempts-1, entry.LastError)
			if err := w.store.Ack(ctx, entry.ContentHash); err != nil {
				w.logf("retry queue ack failed: %v", err)
			}
			continue
		}

		if err := w.handler(ctx, entry); err != nil {
			failed = append(failed, failedAttempt{entry.ContentHash, err})
			continue
		}
		if err := w.store.Ack(ctx, entry.ContentHash); err != nil {
			w.logf("retry queue ack failed: %v", err)
		}
	}
}

func (w *Worker) logf(format string, args ...interface{}) {
	if w.Logger != nil {
		w.Logger.Printf(format, args...)
	}
}
