package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/queue"
)

func TestMemoryStoreEnqueueDedupesByHash(t *testing.T) {
	store := queue.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "h1", Content: "first"}))
	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "h1", Content: "second"}))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, err := store.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", entry.Content)
}

func TestMemoryStoreDequeueOrderAndInFlight(t *testing.T) {
	store := queue.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "h1"}))
	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "h2"}))

	first, err := store.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h1", first.ContentHash)
	assert.Equal(t, 1, first.Attempts)

	// h1 is in flight; the next dequeue skips it.
	second, err := store.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h2", second.ContentHash)

	_, err = store.Dequeue(ctx)
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

func TestMemoryStoreNackRequeuesWithFailure(t *testing.T) {
	store := queue.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "h1"}))

	entry, err := store.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Nack(ctx, entry.ContentHash, errors.New("embedder down")))

	entry, err = store.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Attempts)
	assert.Equal(t, "embedder down", entry.LastError)
}

func TestMemoryStoreAckDrops(t *testing.T) {
	store := queue.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, &queue.Entry{ContentHash: "h1"}))
	entry, err := store.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Ack(ctx, entry.ContentHash))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
