package intelligence

import (
	"math"
	"time"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// Relevance at query time is never stored; it is computed per query as
//
//	score = similarity * exp(-ln2 * age_days / half_life_days)
//
// where age derives from the record's source truth time (created_at) with a
// fallback to ingestion time (stored_at), and the half-life was resolved from
// the record's memory type at ingestion. Expressed as a single query-side
// formula it composes with the store's native top-k search instead of
// requiring a rescoring pass.

// DecayWeight returns the time-decay factor for an age and half-life.
//
// The weight is 1.0 at age zero and halves every halfLifeDays. A non-positive
// half-life disables decay (weight 1.0). Negative ages clamp to zero so clock
// skew never boosts a record above its similarity.
func DecayWeight(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1.0
	}
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

// DecayedScore computes the query-time relevance of a record.
//
// createdAt is the source truth time; when zero, storedAt is used. The result
// is strictly decreasing in age for fixed similarity and half-life.
func DecayedScore(similarity float64, createdAt, storedAt time.Time, halfLifeDays float64, now time.Time) float64 {
	ts := createdAt
	if ts.IsZero() {
		ts = storedAt
	}
	if ts.IsZero() {
		return similarity
	}
	ageDays := now.Sub(ts).Hours() / 24.0
	return similarity * DecayWeight(ageDays, halfLifeDays)
}

// RankingFormula builds the query-side decay formula over the engine's
// payload field names, for passing into storage.QueryOptions.
func RankingFormula(now time.Time) *storage.DecayFormula {
	return &storage.DecayFormula{
		CreatedAtField: "created_at",
		StoredAtField:  "stored_at",
		HalfLifeField:  "decay_half_life_days",
		Now:            now,
	}
}
