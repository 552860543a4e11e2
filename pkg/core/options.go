package core

import "time"

// IngestOption is a function type for configuring Ingest operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type IngestOption func(*IngestOptions)

// IngestOptions contains configuration options for Ingest operations.
type IngestOptions struct {
	// GroupID is the tenant the content belongs to.
	GroupID string

	// TypeHint is the caller's memory-type suggestion; invalid or empty
	// hints route the content through the classifier.
	TypeHint MemoryType

	// Source identifies provenance (session id, repo, external system).
	Source string

	// ExternalID enables supersession of re-synced external items.
	ExternalID string

	// Collection overrides the engine's default collection.
	Collection string

	// CreatedAt is the source truth time for decay. Zero means now.
	CreatedAt time.Time

	// Authority overrides the type's default source authority. Zero keeps
	// the default.
	Authority float64

	// Kind forces the content kind. Empty means prose unless the classifier
	// assigns a code type.
	Kind ContentKind

	// Async hands the embedding+storage work to the background capture
	// queue so the call returns quickly.
	Async bool

	// Metadata carries additional payload fields onto the stored records.
	Metadata map[string]interface{}
}

// WithGroupID sets the tenant for an ingestion.
//
// Example:
//
//	result, _ := engine.Ingest(ctx, content, core.WithGroupID("team-a"))
func WithGroupID(groupID string) IngestOption {
	return func(opts *IngestOptions) {
		opts.GroupID = groupID
	}
}

// WithTypeHint suggests the memory type, skipping classification when valid.
func WithTypeHint(t MemoryType) IngestOption {
	return func(opts *IngestOptions) {
		opts.TypeHint = t
	}
}

// WithSource sets the provenance identifier.
func WithSource(source string) IngestOption {
	return func(opts *IngestOptions) {
		opts.Source = source
	}
}

// WithExternalID marks the content as a versioned external item; a re-ingest
// with the same external id supersedes the prior version.
func WithExternalID(id string) IngestOption {
	return func(opts *IngestOptions) {
		opts.ExternalID = id
	}
}

// WithCollection overrides the target collection.
func WithCollection(collection string) IngestOption {
	return func(opts *IngestOptions) {
		opts.Collection = collection
	}
}

// WithCreatedAt sets the source truth time used for decay.
func WithCreatedAt(t time.Time) IngestOption {
	return func(opts *IngestOptions) {
		opts.CreatedAt = t
	}
}

// WithAuthority overrides the default source authority.
func WithAuthority(authority float64) IngestOption {
	return func(opts *IngestOptions) {
		opts.Authority = authority
	}
}

// WithContentKind forces the embedding space and chunking strategy.
func WithContentKind(kind ContentKind) IngestOption {
	return func(opts *IngestOptions) {
		opts.Kind = kind
	}
}

// WithMetadata attaches additional payload fields to the stored records.
func WithMetadata(metadata map[string]interface{}) IngestOption {
	return func(opts *IngestOptions) {
		opts.Metadata = metadata
	}
}

// WithAsync hands the embedding+storage work to the background capture queue.
// The call returns IngestQueued immediately; failures land on the retry
// queue.
func WithAsync() IngestOption {
	return func(opts *IngestOptions) {
		opts.Async = true
	}
}

// RetrieveOption is a function type for configuring Retrieve operations.
type RetrieveOption func(*RetrieveOptions)

// RetrieveOptions contains configuration options for Retrieve operations.
type RetrieveOptions struct {
	// GroupID is the tenant to retrieve from.
	GroupID string

	// Collection overrides the engine's default collection.
	Collection string

	// TokenBudget overrides the configured budget.
	TokenBudget int

	// PinnedTypes overrides the deterministic-tier type list.
	PinnedTypes []MemoryType

	// AllowTypes overrides the semantic-tier type allow-list.
	AllowTypes []MemoryType
}

// WithGroupIDForRetrieve sets the tenant for a retrieval.
//
// Example:
//
//	result, _ := engine.Retrieve(ctx, "how do we handle retries",
//	    core.WithGroupIDForRetrieve("team-a"))
func WithGroupIDForRetrieve(groupID string) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.GroupID = groupID
	}
}

// WithCollectionForRetrieve overrides the collection for a retrieval.
func WithCollectionForRetrieve(collection string) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.Collection = collection
	}
}

// WithTokenBudget overrides the configured token budget.
func WithTokenBudget(budget int) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.TokenBudget = budget
	}
}

// WithPinnedTypes overrides the types always included by the deterministic
// tier.
func WithPinnedTypes(types ...MemoryType) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.PinnedTypes = types
	}
}

// WithAllowTypes overrides the semantic tier's type allow-list.
func WithAllowTypes(types ...MemoryType) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.AllowTypes = types
	}
}
