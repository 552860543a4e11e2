package core

import (
	"context"
	"sync"
	"time"

	"github.com/engram-ai/engram-go/pkg/queue"
)

// CaptureQueue runs the embedding+storage portion of ingestions in the
// background so the capture path returns to its caller quickly, independent
// of vector-store latency.
//
// The queue is bounded: Submit never blocks, and a full queue is reported to
// the caller rather than absorbed. A job that fails in the background is
// parked on the durable retry queue when one is configured, otherwise it is
// logged and dropped.
type CaptureQueue struct {
	engine *Engine
	jobs   chan *captureJob

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// newCaptureQueue starts the background workers.
func newCaptureQueue(engine *Engine, size, workers int) *CaptureQueue {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 2
	}

	q := &CaptureQueue{
		engine: engine,
		jobs:   make(chan *captureJob, size),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit hands a job to the background workers. A full queue returns
// ErrQueueFull immediately; a shut-down queue returns ErrEngineClosed.
//
// The queue owns its lifecycle: Submit and Shutdown synchronize on the
// queue's mutex, so a Submit racing Shutdown sees the closed flag instead of
// the closed channel.
func (q *CaptureQueue) Submit(job *captureJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrEngineClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports the number of jobs waiting for a worker.
func (q *CaptureQueue) Pending() int {
	return len(q.jobs)
}

// Shutdown stops accepting jobs and waits for in-flight work to finish.
// Calling it more than once is safe.
func (q *CaptureQueue) Shutdown() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *CaptureQueue) worker() {
	defer q.wg.Done()

	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		_, err := q.engine.persist(ctx, job)
		cancel()

		if err != nil {
			q.engine.logf("background capture %s failed: %v", job.contentHash, err)
			q.park(job, err)
		}
	}
}

// park hands a failed job to the durable retry queue. The retry worker
// re-ingests from the original screened text, so the entry carries everything
// Ingest needs.
func (q *CaptureQueue) park(job *captureJob, cause error) {
	if q.engine.retry == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry := &queue.Entry{
		ContentHash: job.contentHash,
		Content:     job.text,
		TypeHint:    string(job.memType),
		GroupID:     job.options.GroupID,
		Source:      job.options.Source,
		EnqueuedAt:  time.Now().UTC(),
		LastError:   cause.Error(),
	}
	if err := q.engine.retry.Enqueue(ctx, entry); err != nil {
		q.engine.logf("retry enqueue %s failed: %v", job.contentHash, err)
	}
}

// RetryHandler adapts the engine into a retry-queue worker handler, so parked
// captures are re-ingested by pkg/queue's Worker.
//
// Example:
//
//	worker := queue.NewWorker(retryStore, engine.RetryHandler())
//	go worker.Run(ctx)
func (e *Engine) RetryHandler() queue.Handler {
	return func(ctx context.Context, entry *queue.Entry) error {
		_, err := e.Ingest(ctx, entry.Content,
			WithGroupID(entry.GroupID),
			WithSource(entry.Source),
			WithTypeHint(MemoryType(entry.TypeHint)),
		)
		return err
	}
}
