// Package storage provides interfaces and types for vector storage backends.
//
// It defines the VectorStore interface that all storage implementations must satisfy,
// along with the point/payload model, query options, and the persisted sync-state
// contract used by the sync framework.
package storage

import (
	"context"
	"errors"
	"time"
)

// Predefined errors for storage operations.
var (
	// ErrNotFound indicates that a requested point was not found.
	ErrNotFound = errors.New("point not found")

	// ErrStateNotFound indicates that no sync state exists for a source.
	ErrStateNotFound = errors.New("sync state not found")

	// ErrMissingGroup indicates that an operation was attempted without a tenant group.
	ErrMissingGroup = errors.New("group id is required")
)

// Point is a single stored unit in a collection: an id, a vector, and a payload.
//
// IDs are deterministic functions of content in this system, so upserting the
// same point twice is a harmless overwrite (last write wins on identical keys).
type Point struct {
	// ID is the stable point identifier.
	ID string

	// Vector is the embedding used for similarity search.
	Vector []float64

	// Payload contains the structured fields stored alongside the vector.
	// Indexed fields (content_hash, group_id, memory_type, ...) are declared
	// per collection via CollectionSchema.
	Payload map[string]interface{}
}

// ScoredPoint is a point returned from a similarity query together with its score.
//
// When a DecayFormula is supplied the score is the decayed score, otherwise it
// is the raw similarity.
type ScoredPoint struct {
	Point

	// Score is the (possibly decay-weighted) relevance score, higher is better.
	Score float64

	// Similarity is the raw cosine similarity before any decay weighting.
	Similarity float64
}

// PayloadIndex declares an indexed payload field on a collection.
type PayloadIndex struct {
	// Field is the payload field name.
	Field string

	// IsTenant marks the field as a tenant isolation key. Backends must treat
	// a tenant field as a mandatory filter on every query and scroll.
	IsTenant bool
}

// CollectionSchema describes a logical partition in the vector store.
type CollectionSchema struct {
	// Name is the collection name.
	Name string

	// Dimensions is the expected embedding dimensionality.
	Dimensions int

	// Indexes are the payload index declarations for the collection.
	Indexes []PayloadIndex

	// Shared marks collections that hold records from multiple tenants.
	// Shared collections must declare a tenant index.
	Shared bool
}

// DecayFormula describes query-side time-decayed scoring:
//
//	score = similarity * exp(-ln2 * age_days / half_life_days)
//
// Age derives from the payload field named by CreatedAtField when present,
// falling back to StoredAtField. The formula is applied inside Query so it
// composes with the backend's native top-k search in a single pass.
type DecayFormula struct {
	// CreatedAtField is the payload field holding source truth time (RFC3339).
	CreatedAtField string

	// StoredAtField is the payload field holding ingestion time (RFC3339).
	StoredAtField string

	// HalfLifeField is the payload field holding the decay half-life in days.
	HalfLifeField string

	// Now is the reference time for age computation. Zero means time.Now().
	Now time.Time
}

// QueryOptions contains options for similarity queries.
type QueryOptions struct {
	// GroupID filters results to a tenant group. Required when the collection
	// declares a tenant index.
	GroupID string

	// Filters provides additional payload equality filters.
	// A filter value of []string matches any of the listed values.
	Filters map[string]interface{}

	// TopK sets the maximum number of results to return.
	TopK int

	// MinScore sets the minimum final score for results.
	MinScore float64

	// Formula, when non-nil, applies time-decayed scoring inside the query.
	Formula *DecayFormula
}

// ScrollOptions contains options for ordered, filter-based listing.
type ScrollOptions struct {
	// GroupID filters results to a tenant group.
	GroupID string

	// Filters provides payload equality filters.
	Filters map[string]interface{}

	// OrderBy names a payload field to order by (RFC3339 timestamps and
	// numbers order naturally; everything else orders lexically).
	OrderBy string

	// Descending reverses the order.
	Descending bool

	// Limit sets the maximum number of points to return.
	Limit int
}

// VectorStore defines the interface for vector storage backends.
//
// All storage implementations (memory, SQLite, PostgreSQL) must implement this
// interface. The engine treats the store as an external dependency: it never
// assumes more than upsert/query/scroll semantics plus payload indexing.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not exist and declares
	// its payload indexes. Idempotent.
	EnsureCollection(ctx context.Context, schema *CollectionSchema) error

	// Upsert inserts or overwrites points by id, in slice order.
	Upsert(ctx context.Context, collection string, points []*Point) error

	// Query performs similarity search with optional payload filters and an
	// optional query-side decay formula.
	//
	// Returns matching points sorted by final score (highest first).
	Query(ctx context.Context, collection string, vector []float64, opts *QueryOptions) ([]*ScoredPoint, error)

	// Scroll lists points matching payload filters in a stable order.
	Scroll(ctx context.Context, collection string, opts *ScrollOptions) ([]*Point, error)

	// Delete removes points by id. Missing ids are not an error.
	Delete(ctx context.Context, collection string, ids []string) error

	// Count returns the number of points matching the filters.
	Count(ctx context.Context, collection string, opts *ScrollOptions) (int, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// SyncState is the persisted cursor state for one external source, keyed by
// (SourceKind, SourceID). It is created on the first sync of a source, mutated
// after every cycle, and deleted only by explicit deregistration.
type SyncState struct {
	// SourceKind identifies the connector kind (e.g. "source_control", "tracker").
	SourceKind string

	// SourceID identifies the concrete source instance (e.g. a repository).
	SourceID string

	// Cursor is the last successfully processed position. It only advances
	// past items whose ingestion fully completed.
	Cursor string

	// ErrorCount is the running consecutive item-failure count used for
	// circuit breaking.
	ErrorCount int

	// LastSuccess is when the last successful cycle (full or partial) finished.
	LastSuccess time.Time

	// CreatedAt is when the state was first persisted.
	CreatedAt time.Time

	// UpdatedAt is when the state was last mutated.
	UpdatedAt time.Time
}

// StateStore persists SyncState records.
//
// Implementations live alongside the vector store backends so sync state and
// memory records share one durability story.
type StateStore interface {
	// GetSyncState loads the state for a source, or ErrStateNotFound.
	GetSyncState(ctx context.Context, sourceKind, sourceID string) (*SyncState, error)

	// PutSyncState inserts or updates the state for a source.
	PutSyncState(ctx context.Context, state *SyncState) error

	// DeleteSyncState removes the state for a source (source deregistration).
	DeleteSyncState(ctx context.Context, sourceKind, sourceID string) error
}
