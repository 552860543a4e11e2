package core

import (
	"time"

	"github.com/engram-ai/engram-go/pkg/security"
)

// MemoryType classifies what a record is, which drives its decay half-life,
// default source authority and chunking policy.
type MemoryType string

// Memory types. The set is closed but extensible: adding a type means adding
// its half-life and authority defaults here.
const (
	// TypeImplementationPattern is an auto-captured code pattern.
	TypeImplementationPattern MemoryType = "implementation_pattern"

	// TypeErrorFix is a diagnosed error and its fix.
	TypeErrorFix MemoryType = "error_fix"

	// TypeConvention is a human-authored project convention or guideline.
	TypeConvention MemoryType = "convention"

	// TypeDecision is a recorded engineering decision.
	TypeDecision MemoryType = "decision"

	// TypeSessionSummary is an end-of-session handoff summary.
	TypeSessionSummary MemoryType = "session_summary"

	// TypeDiscussion is conversational content.
	TypeDiscussion MemoryType = "discussion"

	// TypeExternalIssue is a synced issue or pull request.
	TypeExternalIssue MemoryType = "external_issue"

	// TypeExternalComment is a synced comment on an external item.
	TypeExternalComment MemoryType = "external_comment"

	// TypeCodeBlob is raw source code stored verbatim.
	TypeCodeBlob MemoryType = "code_blob"
)

// AllMemoryTypes lists every assignable memory type.
func AllMemoryTypes() []MemoryType {
	return []MemoryType{
		TypeImplementationPattern, TypeErrorFix, TypeConvention, TypeDecision,
		TypeSessionSummary, TypeDiscussion, TypeExternalIssue,
		TypeExternalComment, TypeCodeBlob,
	}
}

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	switch t {
	case TypeImplementationPattern, TypeErrorFix, TypeConvention, TypeDecision,
		TypeSessionSummary, TypeDiscussion, TypeExternalIssue,
		TypeExternalComment, TypeCodeBlob:
		return true
	}
	return false
}

// HalfLifeDays returns the decay half-life resolved at ingestion time.
//
// Conventions and decisions age slowly; code patterns and synced external
// items age fast. The value is stamped onto the record and never changes
// afterwards, so re-tuning defaults only affects new records.
func (t MemoryType) HalfLifeDays() float64 {
	switch t {
	case TypeImplementationPattern, TypeCodeBlob, TypeExternalIssue, TypeExternalComment:
		return 14
	case TypeErrorFix:
		return 30
	case TypeConvention:
		return 60
	case TypeDecision:
		return 90
	default:
		return 21
	}
}

// DefaultAuthority returns the provenance trust weight used when the caller
// supplies none. Human-authored guidance outranks auto-captured patterns,
// which outrank synced external content.
func (t MemoryType) DefaultAuthority() float64 {
	switch t {
	case TypeConvention, TypeDecision:
		return 1.0
	case TypeImplementationPattern, TypeErrorFix, TypeCodeBlob:
		return 0.7
	case TypeExternalIssue:
		return 0.5
	case TypeExternalComment:
		return 0.4
	default:
		return 0.6
	}
}

// ContentKind selects the embedding space and chunking strategy for content.
type ContentKind string

const (
	// KindProse is natural-language content.
	KindProse ContentKind = "prose"

	// KindCode is source code.
	KindCode ContentKind = "code"
)

// ChunkingMetadata records a chunk's position among its siblings. It is
// absent (nil) on records stored atomically.
type ChunkingMetadata struct {
	// ChunkIndex is the zero-based position of this chunk.
	ChunkIndex int `json:"chunk_index"`

	// TotalChunks is the sibling count all chunks of one ingestion agree on.
	TotalChunks int `json:"total_chunks"`

	// OriginalSizeTokens is the approximate token size of the pre-chunk
	// content.
	OriginalSizeTokens int `json:"original_size_tokens"`
}

// MemoryRecord is one stored memory.
type MemoryRecord struct {
	// ID is deterministic: derived from (content_hash, source, chunk_index),
	// so identical content from the same source always lands on the same id.
	ID string `json:"id"`

	// Content is the stored (post-mask, post-chunk) text.
	Content string `json:"content"`

	// ContentHash is the SHA-256 of the original pre-chunk, pre-mask content.
	// All chunks of one ingestion share it.
	ContentHash string `json:"content_hash"`

	// Type is the record's memory type.
	Type MemoryType `json:"memory_type"`

	// Kind is the content kind the embedding was routed by.
	Kind ContentKind `json:"content_kind"`

	// Collection is the partition the record lives in.
	Collection string `json:"collection"`

	// GroupID is the tenant isolation key.
	GroupID string `json:"group_id"`

	// Source identifies provenance (session id, repo, external system).
	Source string `json:"source"`

	// SourceAuthority is the provenance trust weight.
	SourceAuthority float64 `json:"source_authority"`

	// CreatedAt is the source truth time used for decay; StoredAt is the
	// ingestion time and the decay fallback.
	CreatedAt time.Time `json:"created_at"`
	StoredAt  time.Time `json:"stored_at"`

	// DecayHalfLifeDays was resolved from Type at ingestion and is immutable.
	DecayHalfLifeDays float64 `json:"decay_half_life_days"`

	// Chunking is present only on records that were split.
	Chunking *ChunkingMetadata `json:"chunking,omitempty"`

	// IsCurrent and Version are supersession markers for re-synced content.
	IsCurrent bool `json:"is_current"`
	Version   int  `json:"version"`

	// Metadata carries source-specific payload fields.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IngestStatus discriminates the outcome of one ingestion. Expected
// conditions (block, skip) are statuses, not errors.
type IngestStatus string

const (
	// IngestStored means new records were written.
	IngestStored IngestStatus = "stored"

	// IngestSkipped means dedup suppressed the content.
	IngestSkipped IngestStatus = "skipped"

	// IngestMerged means an existing record absorbed improved metadata.
	IngestMerged IngestStatus = "merged"

	// IngestBlocked means the security screen rejected the content; nothing
	// was stored.
	IngestBlocked IngestStatus = "blocked"

	// IngestQueued means the capture path handed the work to the background
	// queue.
	IngestQueued IngestStatus = "queued"
)

// IngestResult reports the outcome of one Ingest call.
type IngestResult struct {
	// Status is the outcome discriminator.
	Status IngestStatus `json:"status"`

	// StoredIDs lists the record ids written, in chunk position order.
	StoredIDs []string `json:"stored_ids,omitempty"`

	// ContentHash is the hash of the original content.
	ContentHash string `json:"content_hash"`

	// Type is the memory type the content was classified as.
	Type MemoryType `json:"memory_type"`

	// Chunks is the number of pieces the content was split into.
	Chunks int `json:"chunks"`

	// SkippedReason explains a skip (e.g. "exact duplicate",
	// "semantic duplicate").
	SkippedReason string `json:"skipped_reason,omitempty"`

	// Findings are the security findings, present for blocked and masked
	// content.
	Findings []security.Finding `json:"findings,omitempty"`
}

// RetrievedItem is one ranked result.
type RetrievedItem struct {
	// Record is the stored memory.
	Record *MemoryRecord `json:"record"`

	// Score is the decayed relevance score; Similarity is the raw cosine
	// similarity before decay.
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`

	// Tier records which retrieval tier admitted the item (1, 2 or 3).
	Tier int `json:"tier"`

	// Stale is the advisory freshness flag for code patterns behind head.
	Stale bool `json:"stale,omitempty"`
}

// RetrieveResult is the composed context payload for one query.
type RetrieveResult struct {
	// Items are the admitted results in tier-then-score order.
	Items []*RetrievedItem `json:"items"`

	// TokensUsed is the approximate token total of the admitted items,
	// always at or under the budget.
	TokensUsed int `json:"tokens_used"`

	// Budget is the token budget the request ran under.
	Budget int `json:"budget"`
}

// DependencyStatus is the health of one engine dependency.
type DependencyStatus struct {
	// Name identifies the dependency (e.g. "vector_store").
	Name string `json:"name"`

	// Healthy reports whether the dependency answered.
	Healthy bool `json:"healthy"`

	// Error is the failure message when unhealthy.
	Error string `json:"error,omitempty"`
}

// HealthReport is the engine's aggregate health.
type HealthReport struct {
	// Healthy is true when every required dependency is healthy.
	Healthy bool `json:"healthy"`

	// Dependencies lists per-dependency status.
	Dependencies []DependencyStatus `json:"dependencies"`
}
