package core

import (
	"context"
	"fmt"
	"time"

	"github.com/engram-ai/engram-go/pkg/chunker"
	"github.com/engram-ai/engram-go/pkg/intelligence"
	"github.com/engram-ai/engram-go/pkg/storage"
)

// defaultPinnedTypes are the types the deterministic tier always surfaces:
// the latest session handoffs and decisions.
var defaultPinnedTypes = []MemoryType{TypeSessionSummary, TypeDecision}

// defaultAllowTypes is the semantic tier's injection allow-list. Raw
// conversational turns and external comments stay out; they only surface
// through the broad confidence-filtered tier.
var defaultAllowTypes = []MemoryType{
	TypeConvention, TypeDecision, TypeImplementationPattern,
	TypeErrorFix, TypeSessionSummary, TypeExternalIssue,
}

// Retrieve composes a context payload for a query under a token budget.
//
// Three tiers are filled in order. Tier 1 is deterministic: the most recent
// records of the pinned types, no similarity threshold. Tier 2 is semantic
// search restricted to the injection allow-list, ranked by decayed score.
// Tier 3 is broad semantic search admitted only above a similarity floor
// derived from Tier 2's statistics (Tier 1 is deliberately excluded from
// those statistics). Admission stops before the token budget would be
// exceeded.
//
// Parameters:
//   - query: The natural-language query
//   - opts: Functional options (WithGroupIDForRetrieve is required)
//
// Example:
//
//	result, err := engine.Retrieve(ctx, "how do we handle db retries",
//	    core.WithGroupIDForRetrieve("team-a"),
//	    core.WithTokenBudget(2000))
func (e *Engine) Retrieve(ctx context.Context, query string, opts ...RetrieveOption) (*RetrieveResult, error) {
	options := &RetrieveOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.GroupID == "" {
		return nil, NewEngineError("Retrieve", fmt.Errorf("%w: group id is required", ErrInvalidInput))
	}

	started := time.Now()
	defer func() {
		e.recorder.RecordDuration(ctx, "retrieve", time.Since(started))
	}()

	collection := options.Collection
	if collection == "" {
		collection = e.collection
	}
	budget := options.TokenBudget
	if budget <= 0 {
		budget = e.cfg.Retrieval.TokenBudget
	}
	if budget <= 0 {
		budget = 4000
	}

	e.recorder.RecordRetrieve(ctx, collection, options.GroupID)

	result := &RetrieveResult{Budget: budget}
	seen := make(map[string]bool)

	// Tier 1: deterministic recents, always first.
	if err := e.tierOne(ctx, collection, options, result, seen); err != nil {
		return nil, NewEngineError("Retrieve", err)
	}

	queryVector, err := e.embedWithRetry(ctx, query, KindProse)
	if err != nil {
		return nil, NewEngineError("Retrieve", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}
	formula := intelligence.RankingFormula(time.Now().UTC())

	// Tier 2: semantic, restricted to the allow-list.
	tier2Sims, err := e.tierTwo(ctx, collection, queryVector, formula, options, result, seen)
	if err != nil {
		return nil, NewEngineError("Retrieve", err)
	}

	// Tier 3: broad, above a floor set by Tier 2's statistics only.
	if err := e.tierThree(ctx, collection, queryVector, formula, tier2Sims, options, result, seen); err != nil {
		return nil, NewEngineError("Retrieve", err)
	}

	return result, nil
}

func (e *Engine) tierOne(ctx context.Context, collection string, options *RetrieveOptions, result *RetrieveResult, seen map[string]bool) error {
	pinned := options.PinnedTypes
	if len(pinned) == 0 {
		pinned = defaultPinnedTypes
	}
	count := e.cfg.Retrieval.Tier1Count
	if count <= 0 {
		count = 3
	}

	for _, t := range pinned {
		points, err := e.store.Scroll(ctx, collection, &storage.ScrollOptions{
			GroupID: options.GroupID,
			Filters: map[string]interface{}{
				fieldMemoryType: string(t),
				fieldIsCurrent:  true,
			},
			OrderBy:    fieldStoredAt,
			Descending: true,
			Limit:      count,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageOperation, err)
		}
		for _, p := range points {
			e.admit(ctx, result, seen, &storage.ScoredPoint{Point: *p, Score: 1, Similarity: 1}, collection, 1)
		}
	}
	return nil
}

func (e *Engine) tierTwo(ctx context.Context, collection string, vector []float64, formula *storage.DecayFormula, options *RetrieveOptions, result *RetrieveResult, seen map[string]bool) ([]float64, error) {
	allow := options.AllowTypes
	if len(allow) == 0 {
		allow = defaultAllowTypes
	}
	allowNames := make([]string, len(allow))
	for i, t := range allow {
		allowNames[i] = string(t)
	}
	topK := e.cfg.Retrieval.Tier2TopK
	if topK <= 0 {
		topK = 10
	}

	scored, err := e.store.Query(ctx, collection, vector, &storage.QueryOptions{
		GroupID: options.GroupID,
		Filters: map[string]interface{}{
			fieldMemoryType: allowNames,
			fieldIsCurrent:  true,
		},
		TopK:    topK,
		Formula: formula,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageOperation, err)
	}

	var sims []float64
	for _, sp := range scored {
		sims = append(sims, sp.Similarity)
		e.admit(ctx, result, seen, sp, collection, 2)
	}
	return sims, nil
}

func (e *Engine) tierThree(ctx context.Context, collection string, vector []float64, formula *storage.DecayFormula, tier2Sims []float64, options *RetrieveOptions, result *RetrieveResult, seen map[string]bool) error {
	topK := e.cfg.Retrieval.Tier3TopK
	if topK <= 0 {
		topK = 10
	}
	floor := similarityFloor(tier2Sims)

	scored, err := e.store.Query(ctx, collection, vector, &storage.QueryOptions{
		GroupID: options.GroupID,
		Filters: map[string]interface{}{fieldIsCurrent: true},
		TopK:    topK,
		Formula: formula,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageOperation, err)
	}

	for _, sp := range scored {
		if sp.Similarity < floor {
			continue
		}
		e.admit(ctx, result, seen, sp, collection, 3)
	}
	return nil
}

// similarityFloor derives Tier 3's admission floor from Tier 2's similarity
// statistics. Tier 1's deterministic hits never enter these statistics, so a
// few very confident pinned results cannot distort the floor.
func similarityFloor(sims []float64) float64 {
	const base = 0.65
	if len(sims) == 0 {
		return base
	}

	sum := 0.0
	for _, s := range sims {
		sum += s
	}
	mean := sum / float64(len(sims))

	floor := mean - 0.1
	if floor < base {
		floor = base
	}
	return floor
}

// admit adds one scored point to the result unless it was already admitted by
// an earlier tier or the token budget would be exceeded.
func (e *Engine) admit(ctx context.Context, result *RetrieveResult, seen map[string]bool, sp *storage.ScoredPoint, collection string, tier int) {
	if seen[sp.ID] {
		return
	}

	record := payloadToRecord(sp.ID, collection, sp.Payload)
	tokens := chunker.EstimateTokens(record.Content)
	if result.TokensUsed+tokens > result.Budget {
		return
	}

	seen[sp.ID] = true
	result.TokensUsed += tokens
	result.Items = append(result.Items, &RetrievedItem{
		Record:     record,
		Score:      sp.Score,
		Similarity: sp.Similarity,
		Tier:       tier,
		Stale:      e.assessStale(ctx, record),
	})
}

// assessStale flags code patterns whose originating commit is far behind the
// current head. Advisory only; a record is never removed for being stale.
func (e *Engine) assessStale(ctx context.Context, record *MemoryRecord) bool {
	if e.history == nil {
		return false
	}
	if record.Type != TypeImplementationPattern && record.Type != TypeCodeBlob {
		return false
	}
	commit, _ := record.Metadata["commit"].(string)
	if commit == "" {
		return false
	}
	verdict, ok := e.freshness.AssessCommit(ctx, e.history, commit)
	return ok && verdict == intelligence.StalenessStale
}
