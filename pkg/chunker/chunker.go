// Package chunker splits oversized or structured content into bounded,
// order-preserving pieces with reconstructable provenance.
//
// Chunking is deterministic: the same input always yields the same pieces.
// Thresholds are content-type specific and come from a configuration table,
// not code. Prose splits at a token-bounded target size with a fractional
// token-measured overlap so context spanning a boundary is not lost; source
// code splits at syntax-tree boundaries when a parser is available and falls
// back to the prose strategy otherwise.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ContentKind selects the splitting strategy.
type ContentKind string

const (
	// KindProse splits at token boundaries with overlap.
	KindProse ContentKind = "prose"

	// KindCode splits at syntax-tree boundaries when possible.
	KindCode ContentKind = "code"
)

// Piece is one chunk of a larger document.
//
// Every piece carries its position and the total count of its sibling group so
// the original can be reconstructed or understood out of order.
type Piece struct {
	// Content is the chunk text.
	Content string

	// Index is the zero-based position within the sibling group.
	Index int

	// Total is the number of pieces in the sibling group. Identical across
	// all siblings.
	Total int

	// OverlapRunes is the number of leading runes duplicated from the
	// previous piece. Zero for the first piece and for structural code
	// chunks. Trimming this prefix from each non-first piece and
	// concatenating reproduces the original exactly.
	OverlapRunes int

	// OriginalSizeTokens is the estimated token count of the whole pre-chunk
	// document. Identical across all siblings.
	OriginalSizeTokens int
}

// Policy is the chunking threshold set for one content type.
type Policy struct {
	// AtomicMaxTokens is the size up to which content is stored as a single
	// atomic piece.
	AtomicMaxTokens int

	// TargetTokens is the target chunk size once splitting happens.
	TargetTokens int

	// OverlapFraction is the fraction of TargetTokens duplicated across
	// adjacent prose chunks. Measured in tokens, not characters.
	OverlapFraction float64

	// AlwaysSplit forces splitting whenever content exceeds TargetTokens,
	// ignoring the atomic grace zone. Guideline-class content sets this.
	AlwaysSplit bool
}

// Config is the per-type policy table, keyed by memory type hint.
type Config struct {
	// Policies maps a type hint to its policy.
	Policies map[string]Policy

	// Default applies to hints without an entry.
	Default Policy
}

// DefaultConfig returns the default threshold table.
//
// Short conversational content stays atomic; guideline-class content
// (conventions, decisions) always splits once it exceeds the target.
func DefaultConfig() Config {
	return Config{
		Policies: map[string]Policy{
			"discussion":      {AtomicMaxTokens: 600, TargetTokens: 400, OverlapFraction: 0.15},
			"session_summary": {AtomicMaxTokens: 800, TargetTokens: 500, OverlapFraction: 0.15},
			"convention":      {AtomicMaxTokens: 400, TargetTokens: 400, OverlapFraction: 0.15, AlwaysSplit: true},
			"decision":        {AtomicMaxTokens: 400, TargetTokens: 400, OverlapFraction: 0.15, AlwaysSplit: true},
			"code_blob":       {AtomicMaxTokens: 700, TargetTokens: 500, OverlapFraction: 0.15},
		},
		Default: Policy{AtomicMaxTokens: 500, TargetTokens: 400, OverlapFraction: 0.15},
	}
}

// PolicyFor returns the policy for a type hint.
func (c Config) PolicyFor(hint string) Policy {
	if p, ok := c.Policies[hint]; ok {
		return p
	}
	return c.Default
}

// EstimateTokens estimates the token count of text.
//
// The heuristic is one token per four runes, the conventional approximation
// for subword tokenizers. It is the single token measure shared by chunking
// thresholds and the retrieval token budget so the two never disagree.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	tokens := (n + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// Chunk splits text according to the policy for the given type hint.
//
// The result is deterministic and order-preserving. Content at or below the
// atomic threshold (and not forced by AlwaysSplit) comes back as a single
// piece.
func Chunk(text string, kind ContentKind, hint string, cfg Config) []Piece {
	if text == "" {
		return nil
	}

	policy := cfg.PolicyFor(hint)
	total := EstimateTokens(text)

	atomic := total <= policy.AtomicMaxTokens
	if policy.AlwaysSplit && total > policy.TargetTokens {
		atomic = false
	}
	if atomic {
		return []Piece{{Content: text, Index: 0, Total: 1, OriginalSizeTokens: total}}
	}

	if kind == KindCode {
		if pieces, ok := chunkCode(text, policy, total); ok {
			return pieces
		}
		// No parser for this source; fall through to the prose strategy.
	}

	return chunkProse(text, policy, total)
}

// segment is a word plus its trailing whitespace. Segments partition the
// input exactly, so concatenating them reproduces it byte for byte.
type segment struct {
	text  string
	runes int
}

// chunkProse splits at segment boundaries, targeting the policy token size,
// with a token-measured overlap carried into each following chunk.
func chunkProse(text string, policy Policy, totalTokens int) []Piece {
	segments := splitSegments(text)
	if len(segments) == 0 {
		return nil
	}

	target := policy.TargetTokens
	if target <= 0 {
		target = 400
	}
	overlapBudget := int(float64(target) * policy.OverlapFraction)

	var groups [][]segment
	var current []segment
	currentTokens := 0

	for _, seg := range segments {
		current = append(current, seg)
		currentTokens += tokensOf(seg)
		if currentTokens >= target {
			groups = append(groups, current)
			current = nil
			currentTokens = 0
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	pieces := make([]Piece, len(groups))
	for i, group := range groups {
		var b strings.Builder
		overlapRunes := 0

		if i > 0 && overlapBudget > 0 {
			overlap := tailSegments(groups[i-1], overlapBudget)
			for _, seg := range overlap {
				b.WriteString(seg.text)
				overlapRunes += seg.runes
			}
		}
		for _, seg := range group {
			b.WriteString(seg.text)
		}

		pieces[i] = Piece{
			Content:            b.String(),
			Index:              i,
			Total:              len(groups),
			OverlapRunes:       overlapRunes,
			OriginalSizeTokens: totalTokens,
		}
	}
	return pieces
}

// splitSegments cuts text into word-plus-trailing-whitespace segments.
// Leading whitespace attaches to the first segment.
func splitSegments(text string) []segment {
	var segments []segment
	runes := []rune(text)
	i := 0

	// Leading whitespace becomes part of the first segment.
	start := 0
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}

	for i < len(runes) {
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		segments = append(segments, segment{text: string(runes[start:i]), runes: i - start})
		start = i
	}

	// All-whitespace input yields one segment so nothing is lost.
	if len(segments) == 0 && len(runes) > 0 {
		segments = append(segments, segment{text: string(runes), runes: len(runes)})
	}
	return segments
}

// tailSegments returns the trailing segments of a group whose combined token
// count fits the overlap budget, preserving order.
func tailSegments(group []segment, budget int) []segment {
	tokens := 0
	start := len(group)
	for start > 0 {
		next := tokensOf(group[start-1])
		if tokens+next > budget {
			break
		}
		tokens += next
		start--
	}
	return group[start:]
}

func tokensOf(seg segment) int {
	tokens := (seg.runes + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// Reconstruct joins pieces back into the original document, trimming each
// piece's overlap region once. It is the inverse of Chunk for any input.
func Reconstruct(pieces []Piece) string {
	var b strings.Builder
	for i, p := range pieces {
		if i == 0 || p.OverlapRunes == 0 {
			b.WriteString(p.Content)
			continue
		}
		runes := []rune(p.Content)
		if p.OverlapRunes >= len(runes) {
			continue
		}
		b.WriteString(string(runes[p.OverlapRunes:]))
	}
	return b.String()
}
