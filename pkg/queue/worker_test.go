package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/queue"
)

func TestDrainAcksSuccessfulEntries(t *testing.T) {
	store := queue.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "h1"}))
	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "h2"}))

	var handled []string
	worker := queue.NewWorker(store, func(ctx context.Context, e *queue.Entry) error {
		handled = append(handled, e.ContentHash)
		return nil
	})

	worker.Drain(ctx)

	assert.Equal(t, []string{"h1", "h2"}, handled)
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainGivesEachEntryOneAttemptPerPass(t *testing.T) {
	store := queue.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "h1"}))

	attempts := 0
	worker := queue.NewWorker(store, func(ctx context.Context, e *queue.Entry) error {
		attempts++
		return errors.New("still failing")
	})

	// A failing entry goes back to the store, not back to the handler.
	worker.Drain(ctx)
	assert.Equal(t, 1, attempts)

	worker.Drain(ctx)
	assert.Equal(t, 2, attempts)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDrainFailingHeadDoesNotStarveLaterEntries(t *testing.T) {
	store := queue.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "stuck"}))
	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "healthy"}))

	handled := map[string]int{}
	worker := queue.NewWorker(store, func(ctx context.Context, e *queue.Entry) error {
		handled[e.ContentHash]++
		if e.ContentHash == "stuck" {
			return errors.New("still failing")
		}
		return nil
	})

	worker.Drain(ctx)

	// The healthy entry behind the failing head completes in the same pass,
	// and the head is charged exactly one attempt.
	assert.Equal(t, map[string]int{"stuck": 1, "healthy": 1}, handled)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, err := store.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stuck", entry.ContentHash)
	assert.Equal(t, 2, entry.Attempts)
	assert.Equal(t, "still failing", entry.LastError)
}

func TestDrainDropsAfterMaxAttempts(t *testing.T) {
	store := queue.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "h1"}))

	attempts := 0
	worker := queue.NewWorker(store, func(ctx context.Context, e *queue.Entry) error {
		attempts++
		return errors.New("permanent failure")
	})
	worker.MaxAttempts = 2

	for i := 0; i < 5; i++ {
		worker.Drain(ctx)
	}

	assert.Equal(t, 2, attempts)
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainStopsOnCancel(t *testing.T) {
	store := queue.NewMemoryStore()
	require.NoError(t, store.Enqueue(context.Background(), &queue.Entry{ContentHash: "h1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := queue.NewWorker(store, func(ctx context.Context, e *queue.Entry) error {
		t.Fatal("handler must not run after cancellation")
		return nil
	})

	worker.Drain(ctx)
}
