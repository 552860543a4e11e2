package intelligence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/intelligence"
	"github.com/engram-ai/engram-go/pkg/storage"
	"github.com/engram-ai/engram-go/pkg/storage/memory"
)

func seedPoint(t *testing.T, store *memory.Client, id, hash string, vector []float64, authority float64) {
	t.Helper()
	err := store.Upsert(context.Background(), "memories", []*storage.Point{{
		ID:     id,
		Vector: vector,
		Payload: map[string]interface{}{
			"group_id":         "team-a",
			"content_hash":     hash,
			"source_authority": authority,
		},
	}})
	require.NoError(t, err)
}

func TestShouldStoreFreshContent(t *testing.T) {
	store := memory.NewClient()
	engine := intelligence.NewDedupEngine(store, 0)

	decision, existing, err := engine.ShouldStore(context.Background(), "memories", &intelligence.Candidate{
		ContentHash: "hash-1",
		Embedding:   []float64{1, 0, 0},
		GroupID:     "team-a",
	})

	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionStore, decision)
	assert.Nil(t, existing)
}

func TestShouldStoreExactDuplicateSkips(t *testing.T) {
	store := memory.NewClient()
	engine := intelligence.NewDedupEngine(store, 0)
	seedPoint(t, store, "p1", "hash-1", []float64{1, 0, 0}, 0.7)

	decision, existing, err := engine.ShouldStore(context.Background(), "memories", &intelligence.Candidate{
		ContentHash:     "hash-1",
		Embedding:       []float64{0, 1, 0},
		GroupID:         "team-a",
		SourceAuthority: 0.7,
	})

	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionSkip, decision)
	require.NotNil(t, existing)
	assert.Equal(t, "p1", existing.ID)
}

func TestShouldStoreExactDuplicateWithHigherAuthorityMerges(t *testing.T) {
	store := memory.NewClient()
	engine := intelligence.NewDedupEngine(store, 0)
	seedPoint(t, store, "p1", "hash-1", []float64{1, 0, 0}, 0.5)

	decision, existing, err := engine.ShouldStore(context.Background(), "memories", &intelligence.Candidate{
		ContentHash:     "hash-1",
		GroupID:         "team-a",
		SourceAuthority: 1.0,
	})

	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionMerge, decision)
	require.NotNil(t, existing)
	assert.Equal(t, "p1", existing.ID)
}

func TestShouldStoreSemanticDuplicateThreshold(t *testing.T) {
	store := memory.NewClient()
	engine := intelligence.NewDedupEngine(store, 0.92)
	seedPoint(t, store, "p1", "hash-other", []float64{1, 0, 0}, 0.7)

	// Just above the threshold: cos(angle) ~ 0.995.
	decision, _, err := engine.ShouldStore(context.Background(), "memories", &intelligence.Candidate{
		ContentHash: "hash-new",
		Embedding:   []float64{1, 0.1, 0},
		GroupID:     "team-a",
	})
	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionSkip, decision)

	// Well below the threshold: orthogonal vector stores.
	decision, _, err = engine.ShouldStore(context.Background(), "memories", &intelligence.Candidate{
		ContentHash: "hash-new-2",
		Embedding:   []float64{0, 0, 1},
		GroupID:     "team-a",
	})
	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionStore, decision)
}

func TestShouldStoreScopedToTenant(t *testing.T) {
	store := memory.NewClient()
	engine := intelligence.NewDedupEngine(store, 0.92)
	seedPoint(t, store, "p1", "hash-1", []float64{1, 0, 0}, 0.7)

	// Same hash, different tenant: no hit.
	decision, _, err := engine.ShouldStore(context.Background(), "memories", &intelligence.Candidate{
		ContentHash: "hash-1",
		Embedding:   []float64{1, 0, 0},
		GroupID:     "team-b",
	})

	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionStore, decision)
}

func TestDedupEngineDefaultThreshold(t *testing.T) {
	engine := intelligence.NewDedupEngine(memory.NewClient(), 0)
	assert.InDelta(t, intelligence.DefaultSimilarityThreshold, engine.Threshold(), 1e-9)
}
