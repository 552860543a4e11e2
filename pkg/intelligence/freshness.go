package intelligence

import "context"

// Freshness is a mechanism independent of decay: instead of weighting by wall
// clock age it compares a code pattern's originating commit against the
// current source history. The verdict is advisory metadata, never a deletion
// trigger, and retrieval surfaces it alongside the decayed score.

// Staleness is the freshness verdict for a code pattern.
type Staleness string

const (
	// StalenessFresh means the pattern's commit is at or near head.
	StalenessFresh Staleness = "fresh"

	// StalenessAging means meaningful churn has happened since the commit.
	StalenessAging Staleness = "aging"

	// StalenessStale means the pattern is far behind head and should be
	// treated with suspicion.
	StalenessStale Staleness = "stale"
)

// FreshnessTiers are the commit-distance thresholds for each verdict.
type FreshnessTiers struct {
	// Fresh is the maximum commits-behind still considered fresh.
	Fresh int

	// Aging is the maximum commits-behind considered aging.
	Aging int

	// Stale is the distance at or beyond which a pattern is stale. Distances
	// between Aging and Stale remain aging.
	Stale int
}

// DefaultFreshnessTiers returns the default 3/10/25 tiers.
func DefaultFreshnessTiers() FreshnessTiers {
	return FreshnessTiers{Fresh: 3, Aging: 10, Stale: 25}
}

// SourceHistory answers how far a commit is behind the current head.
//
// Implementations wrap a repository; a zero distance means the commit is
// head itself. Unknown commits should return an error, which freshness
// assessment treats as "cannot assess" rather than stale.
type SourceHistory interface {
	DistanceFromHead(ctx context.Context, commit string) (int, error)
}

// Assess maps a commit distance onto a staleness verdict.
func (t FreshnessTiers) Assess(commitsBehind int) Staleness {
	switch {
	case commitsBehind <= t.Fresh:
		return StalenessFresh
	case commitsBehind >= t.Stale:
		return StalenessStale
	default:
		return StalenessAging
	}
}

// AssessCommit looks up a commit's distance from head and maps it onto a
// verdict. A history error reports fresh with ok=false so callers can tell
// "assessed fresh" from "could not assess".
func (t FreshnessTiers) AssessCommit(ctx context.Context, history SourceHistory, commit string) (Staleness, bool) {
	if history == nil || commit == "" {
		return StalenessFresh, false
	}
	distance, err := history.DistanceFromHead(ctx, commit)
	if err != nil {
		return StalenessFresh, false
	}
	return t.Assess(distance), true
}
