// Package syncer provides the generic incremental-sync framework that mirrors
// external sources (source-control hosts, issue trackers) into the memory
// store.
//
// A source implements pagination over its native payloads plus a composer
// that turns each payload into a canonical document; everything else --
// rate limiting, circuit breaking, per-item fail-open, cursor persistence,
// timeouts -- is shared framework code in the runner.
package syncer

import (
	"context"
	"encoding/json"
	"time"
)

// Mode selects how much of the source a sync run covers.
type Mode string

const (
	// ModeFull ignores the persisted cursor and walks the source from the
	// beginning.
	ModeFull Mode = "full"

	// ModeIncremental resumes from the persisted cursor.
	ModeIncremental Mode = "incremental"
)

// Item is one native payload fetched from a source, still in the source's own
// shape.
type Item struct {
	// ID is the source-native identifier of the item.
	ID string

	// Payload is the raw source payload; only the source's composer decodes it.
	Payload json.RawMessage

	// Cursor is the resume position after this item. The runner persists it
	// only once the item's ingestion fully completes.
	Cursor string

	// CreatedAt is the item's source truth time, when the source knows it.
	CreatedAt time.Time
}

// PageResult is one page of items plus the upstream's paging and quota
// signals.
type PageResult struct {
	// Items are the page's payloads in source order.
	Items []*Item

	// NextCursor resumes after this page.
	NextCursor string

	// HasMore reports whether another page follows.
	HasMore bool

	// QuotaRemaining is the upstream's remaining-quota signal; -1 when the
	// upstream does not report one.
	QuotaRemaining int

	// ResetAfter is how long until the quota resets, when known.
	ResetAfter time.Duration
}

// Document is the canonical text-plus-metadata shape every composer produces
// for the shared ingestion pipeline.
type Document struct {
	// Content is the composed text to ingest.
	Content string

	// TypeHint is the memory type the composer assigns (e.g. external_issue).
	TypeHint string

	// GroupID is the tenant the document belongs to.
	GroupID string

	// Source identifies provenance (e.g. "github:owner/repo#123").
	Source string

	// ExternalID is the source-native id, used for supersession of re-synced
	// items.
	ExternalID string

	// CreatedAt is the source truth time for decay.
	CreatedAt time.Time

	// Authority is the provenance trust weight.
	Authority float64

	// Metadata carries additional payload fields onto the stored record.
	Metadata map[string]interface{}
}

// Source is the connector shape instantiated per external source.
//
// Page fetches one page of native payloads starting at a cursor; Compose is
// the only source-specific transformation, turning one native payload into a
// canonical document.
type Source interface {
	// Kind names the source family (e.g. "github", "tracker").
	Kind() string

	// ID identifies the concrete source instance (e.g. "owner/repo").
	ID() string

	// Page fetches the page at cursor. An empty cursor starts from the
	// beginning.
	Page(ctx context.Context, cursor string, mode Mode) (*PageResult, error)

	// Compose converts one native item into a canonical document.
	Compose(item *Item) (*Document, error)
}

// Result summarizes one sync run.
type Result struct {
	// Ingested counts items stored or merged into the memory store.
	Ingested int

	// Skipped counts items suppressed as duplicates or blocked by policy.
	Skipped int

	// Failed counts items that failed composition or ingestion and were
	// fail-opened.
	Failed int

	// NewCursor is the cursor persisted at the end of the run.
	NewCursor string
}
