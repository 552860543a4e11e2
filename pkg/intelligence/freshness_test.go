package intelligence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/engram-ai/engram-go/pkg/intelligence"
)

type fakeHistory struct {
	distances map[string]int
}

func (f *fakeHistory) DistanceFromHead(ctx context.Context, commit string) (int, error) {
	d, ok := f.distances[commit]
	if !ok {
		return 0, errors.New("unknown commit")
	}
	return d, nil
}

func TestAssessTierBoundaries(t *testing.T) {
	tiers := intelligence.DefaultFreshnessTiers()

	assert.Equal(t, intelligence.StalenessFresh, tiers.Assess(0))
	assert.Equal(t, intelligence.StalenessFresh, tiers.Assess(3))
	assert.Equal(t, intelligence.StalenessAging, tiers.Assess(4))
	assert.Equal(t, intelligence.StalenessAging, tiers.Assess(24))
	assert.Equal(t, intelligence.StalenessStale, tiers.Assess(25))
	assert.Equal(t, intelligence.StalenessStale, tiers.Assess(200))
}

func TestAssessCommit(t *testing.T) {
	tiers := intelligence.DefaultFreshnessTiers()
	history := &fakeHistory{distances: map[string]int{
		"abc123": 1,
		"def456": 40,
	}}

	verdict, ok := tiers.AssessCommit(context.Background(), history, "abc123")
	assert.True(t, ok)
	assert.Equal(t, intelligence.StalenessFresh, verdict)

	verdict, ok = tiers.AssessCommit(context.Background(), history, "def456")
	assert.True(t, ok)
	assert.Equal(t, intelligence.StalenessStale, verdict)
}

func TestAssessCommitUnknownIsNotStale(t *testing.T) {
	tiers := intelligence.DefaultFreshnessTiers()
	history := &fakeHistory{distances: map[string]int{}}

	// A rewritten branch loses the commit; the verdict must not punish the
	// record for that.
	verdict, ok := tiers.AssessCommit(context.Background(), history, "gone")
	assert.False(t, ok)
	assert.Equal(t, intelligence.StalenessFresh, verdict)
}

func TestAssessCommitWithoutHistory(t *testing.T) {
	tiers := intelligence.DefaultFreshnessTiers()

	_, ok := tiers.AssessCommit(context.Background(), nil, "abc123")
	assert.False(t, ok)

	_, ok = tiers.AssessCommit(context.Background(), &fakeHistory{}, "")
	assert.False(t, ok)
}
