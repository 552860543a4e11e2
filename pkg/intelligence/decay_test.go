package intelligence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/engram-ai/engram-go/pkg/intelligence"
)

func TestDecayWeightHalvesAtHalfLife(t *testing.T) {
	assert.InDelta(t, 1.0, intelligence.DecayWeight(0, 14), 1e-9)
	assert.InDelta(t, 0.5, intelligence.DecayWeight(14, 14), 1e-9)
	assert.InDelta(t, 0.25, intelligence.DecayWeight(28, 14), 1e-9)
	assert.InDelta(t, 0.5, intelligence.DecayWeight(60, 60), 1e-9)
}

func TestDecayWeightClamps(t *testing.T) {
	// Clock skew never boosts a record above its similarity.
	assert.InDelta(t, 1.0, intelligence.DecayWeight(-5, 14), 1e-9)

	// Non-positive half-life disables decay.
	assert.InDelta(t, 1.0, intelligence.DecayWeight(100, 0), 1e-9)
}

func TestDecayedScoreMonotonicInAge(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for _, halfLife := range []float64{14, 21, 30, 60, 90} {
		prev := 2.0
		for days := 0; days <= 180; days += 5 {
			createdAt := now.AddDate(0, 0, -days)
			score := intelligence.DecayedScore(0.9, createdAt, createdAt, halfLife, now)
			assert.Less(t, score, prev,
				"score must strictly decrease with age (half-life %v, age %d)", halfLife, days)
			prev = score
		}
	}
}

func TestDecayedScoreOrdersTypesByHalfLife(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	createdAt := now.AddDate(0, 0, -30)

	// Same similarity, same age: the longer half-life wins.
	pattern := intelligence.DecayedScore(0.8, createdAt, createdAt, 14, now)
	convention := intelligence.DecayedScore(0.8, createdAt, createdAt, 60, now)
	decision := intelligence.DecayedScore(0.8, createdAt, createdAt, 90, now)

	assert.Less(t, pattern, convention)
	assert.Less(t, convention, decision)
}

func TestDecayedScoreFallsBackToStoredAt(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	storedAt := now.AddDate(0, 0, -14)

	score := intelligence.DecayedScore(1.0, time.Time{}, storedAt, 14, now)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestRankingFormulaFieldNames(t *testing.T) {
	now := time.Now()
	f := intelligence.RankingFormula(now)

	assert.Equal(t, "created_at", f.CreatedAtField)
	assert.Equal(t, "stored_at", f.StoredAtField)
	assert.Equal(t, "decay_half_life_days", f.HalfLifeField)
	assert.Equal(t, now, f.Now)
}
