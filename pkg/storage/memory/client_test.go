package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/storage"
	"github.com/engram-ai/engram-go/pkg/storage/memory"
)

func sharedClient(t *testing.T) *memory.Client {
	t.Helper()
	client := memory.NewClient()
	err := client.EnsureCollection(context.Background(), &storage.CollectionSchema{
		Name:   "memories",
		Shared: true,
		Indexes: []storage.PayloadIndex{
			{Field: "group_id", IsTenant: true},
			{Field: "content_hash"},
		},
	})
	require.NoError(t, err)
	return client
}

func upsertOne(t *testing.T, client *memory.Client, id string, vector []float64, payload map[string]interface{}) {
	t.Helper()
	err := client.Upsert(context.Background(), "memories", []*storage.Point{{
		ID: id, Vector: vector, Payload: payload,
	}})
	require.NoError(t, err)
}

func TestUpsertAndQuery(t *testing.T) {
	client := sharedClient(t)
	upsertOne(t, client, "a", []float64{1, 0}, map[string]interface{}{"group_id": "g1", "memory_type": "decision"})
	upsertOne(t, client, "b", []float64{0, 1}, map[string]interface{}{"group_id": "g1", "memory_type": "discussion"})

	results, err := client.Query(context.Background(), "memories", []float64{1, 0}, &storage.QueryOptions{
		GroupID: "g1",
		TopK:    1,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
}

func TestUpsertOverwritesByID(t *testing.T) {
	client := sharedClient(t)
	upsertOne(t, client, "a", []float64{1, 0}, map[string]interface{}{"group_id": "g1", "version": 1})
	upsertOne(t, client, "a", []float64{1, 0}, map[string]interface{}{"group_id": "g1", "version": 2})

	points, err := client.Scroll(context.Background(), "memories", &storage.ScrollOptions{GroupID: "g1"})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 2, points[0].Payload["version"])
}

func TestQueryTenantRequiredOnSharedCollection(t *testing.T) {
	client := sharedClient(t)

	_, err := client.Query(context.Background(), "memories", []float64{1, 0}, &storage.QueryOptions{})
	assert.ErrorIs(t, err, storage.ErrMissingGroup)

	_, err = client.Scroll(context.Background(), "memories", &storage.ScrollOptions{})
	assert.ErrorIs(t, err, storage.ErrMissingGroup)

	err = client.Upsert(context.Background(), "memories", []*storage.Point{{
		ID: "a", Vector: []float64{1, 0}, Payload: map[string]interface{}{},
	}})
	assert.ErrorIs(t, err, storage.ErrMissingGroup)
}

func TestQueryNeverCrossesTenants(t *testing.T) {
	client := sharedClient(t)
	upsertOne(t, client, "a", []float64{1, 0}, map[string]interface{}{"group_id": "g1"})
	upsertOne(t, client, "b", []float64{1, 0}, map[string]interface{}{"group_id": "g2"})

	results, err := client.Query(context.Background(), "memories", []float64{1, 0}, &storage.QueryOptions{
		GroupID: "g1",
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestQueryListFilterMatchesAnyOf(t *testing.T) {
	client := sharedClient(t)
	upsertOne(t, client, "a", []float64{1, 0}, map[string]interface{}{"group_id": "g1", "memory_type": "decision"})
	upsertOne(t, client, "b", []float64{1, 0}, map[string]interface{}{"group_id": "g1", "memory_type": "convention"})
	upsertOne(t, client, "c", []float64{1, 0}, map[string]interface{}{"group_id": "g1", "memory_type": "discussion"})

	results, err := client.Query(context.Background(), "memories", []float64{1, 0}, &storage.QueryOptions{
		GroupID: "g1",
		Filters: map[string]interface{}{"memory_type": []string{"decision", "convention"}},
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestQueryAppliesDecayFormula(t *testing.T) {
	client := sharedClient(t)
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -28).Format(time.RFC3339)
	recent := now.Format(time.RFC3339)

	upsertOne(t, client, "old", []float64{1, 0}, map[string]interface{}{
		"group_id": "g1", "created_at": old, "decay_half_life_days": 14.0,
	})
	upsertOne(t, client, "recent", []float64{1, 0}, map[string]interface{}{
		"group_id": "g1", "created_at": recent, "decay_half_life_days": 14.0,
	})

	results, err := client.Query(context.Background(), "memories", []float64{1, 0}, &storage.QueryOptions{
		GroupID: "g1",
		Formula: &storage.DecayFormula{
			CreatedAtField: "created_at",
			StoredAtField:  "stored_at",
			HalfLifeField:  "decay_half_life_days",
			Now:            now,
		},
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "recent", results[0].ID)
	// Two half-lives take the older record to a quarter of its similarity.
	assert.InDelta(t, 0.25, results[1].Score, 0.01)
	assert.InDelta(t, 1.0, results[1].Similarity, 1e-9)
}

func TestScrollOrderAndLimit(t *testing.T) {
	client := sharedClient(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		upsertOne(t, client, id, []float64{1, 0}, map[string]interface{}{
			"group_id":  "g1",
			"stored_at": base.AddDate(0, 0, i).Format(time.RFC3339),
		})
	}

	points, err := client.Scroll(context.Background(), "memories", &storage.ScrollOptions{
		GroupID:    "g1",
		OrderBy:    "stored_at",
		Descending: true,
		Limit:      2,
	})

	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "c", points[0].ID)
	assert.Equal(t, "b", points[1].ID)
}

func TestDeleteIgnoresMissing(t *testing.T) {
	client := sharedClient(t)
	upsertOne(t, client, "a", []float64{1, 0}, map[string]interface{}{"group_id": "g1"})

	err := client.Delete(context.Background(), "memories", []string{"a", "missing"})
	require.NoError(t, err)

	points, err := client.Scroll(context.Background(), "memories", &storage.ScrollOptions{GroupID: "g1"})
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestQueryUnknownCollectionReturnsNothing(t *testing.T) {
	client := memory.NewClient()

	results, err := client.Query(context.Background(), "nope", []float64{1, 0}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSyncStateRoundTrip(t *testing.T) {
	client := memory.NewClient()

	_, err := client.GetSyncState(context.Background(), "tracker", "proj-1")
	assert.ErrorIs(t, err, storage.ErrStateNotFound)

	state := &storage.SyncState{
		SourceKind: "tracker",
		SourceID:   "proj-1",
		Cursor:     "42",
		ErrorCount: 2,
	}
	require.NoError(t, client.PutSyncState(context.Background(), state))

	// Mutating the caller's copy must not leak into the store.
	state.Cursor = "mutated"

	loaded, err := client.GetSyncState(context.Background(), "tracker", "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.Cursor)
	assert.Equal(t, 2, loaded.ErrorCount)

	require.NoError(t, client.DeleteSyncState(context.Background(), "tracker", "proj-1"))
	_, err = client.GetSyncState(context.Background(), "tracker", "proj-1")
	assert.ErrorIs(t, err, storage.ErrStateNotFound)
}
