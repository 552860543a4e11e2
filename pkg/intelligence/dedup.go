// Package intelligence provides the knowledge-quality features of the memory
// engine: duplicate suppression, time-decayed relevance ranking, freshness
// assessment against source history, and memory-type classification.
package intelligence

import (
	"context"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// Decision is the dedup verdict for a candidate document.
type Decision string

const (
	// DecisionStore admits the candidate as a new record.
	DecisionStore Decision = "store"

	// DecisionSkip suppresses the candidate as a duplicate.
	DecisionSkip Decision = "skip"

	// DecisionMerge folds improved metadata onto the existing record instead
	// of storing a new one.
	DecisionMerge Decision = "merge"
)

// Candidate is the pre-chunk view of a document offered for storage.
//
// Dedup always runs on the pre-chunk content and its embedding; comparing
// partial chunks against whole records produces false negatives.
type Candidate struct {
	// ContentHash is the exact-dedup key: the hash of the original pre-chunk,
	// pre-mask content.
	ContentHash string

	// Embedding is the embedding of the full pre-chunk content.
	Embedding []float64

	// GroupID is the tenant isolation key.
	GroupID string

	// SourceAuthority is the provenance trust weight of the candidate.
	SourceAuthority float64
}

// DedupEngine suppresses exact and semantic duplicates.
//
// The check is two-stage, cheap before expensive: an indexed content-hash
// lookup first, then a nearest-neighbor query against the candidate's
// embedding within the same collection and tenant.
//
// Example usage:
//
//	engine := NewDedupEngine(store, 0.92)
//	decision, existing, err := engine.ShouldStore(ctx, "memories", candidate)
//	if decision == DecisionSkip {
//	    // report skip outcome to caller
//	}
type DedupEngine struct {
	// store is the vector store used for both stages.
	store storage.VectorStore

	// threshold is the cosine-similarity threshold for near-duplicates.
	// Results at or above it are skipped. Domain default: 0.92.
	threshold float64
}

// DefaultSimilarityThreshold is the near-duplicate cosine threshold used when
// none is configured.
const DefaultSimilarityThreshold = 0.92

// NewDedupEngine creates a dedup engine.
//
// A zero threshold selects DefaultSimilarityThreshold.
func NewDedupEngine(store storage.VectorStore, threshold float64) *DedupEngine {
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &DedupEngine{store: store, threshold: threshold}
}

// Threshold returns the configured near-duplicate threshold.
func (d *DedupEngine) Threshold() float64 {
	return d.threshold
}

// ShouldStore decides whether a candidate should be stored, skipped, or
// merged onto an existing record.
//
// Stage one looks up the content hash in the target collection: a hit is an
// exact duplicate and yields skip, or merge when the candidate carries a
// higher source authority than the stored record. Stage two runs a
// nearest-neighbor query scoped to the candidate's tenant; any result at or
// above the similarity threshold yields skip.
//
// Returns the decision and, for skip/merge, the existing point it matched.
func (d *DedupEngine) ShouldStore(ctx context.Context, collection string, candidate *Candidate) (Decision, *storage.Point, error) {
	// Stage 1: exact hash lookup on the indexed field.
	existing, err := d.store.Scroll(ctx, collection, &storage.ScrollOptions{
		GroupID: candidate.GroupID,
		Filters: map[string]interface{}{"content_hash": candidate.ContentHash},
		Limit:   1,
	})
	if err != nil {
		return "", nil, err
	}
	if len(existing) > 0 {
		hit := existing[0]
		if candidate.SourceAuthority > payloadAuthority(hit.Payload) {
			return DecisionMerge, hit, nil
		}
		return DecisionSkip, hit, nil
	}

	// Stage 2: semantic nearest-neighbor within the same collection/tenant.
	if len(candidate.Embedding) == 0 {
		return DecisionStore, nil, nil
	}
	neighbors, err := d.store.Query(ctx, collection, candidate.Embedding, &storage.QueryOptions{
		GroupID: candidate.GroupID,
		TopK:    5,
	})
	if err != nil {
		return "", nil, err
	}
	for _, neighbor := range neighbors {
		if neighbor.Similarity >= d.threshold {
			point := neighbor.Point
			return DecisionSkip, &point, nil
		}
	}

	return DecisionStore, nil, nil
}

func payloadAuthority(payload map[string]interface{}) float64 {
	switch v := payload["source_authority"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
