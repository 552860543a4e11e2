// Package embedder provides interfaces for text embedding providers.
//
// It defines the Provider interface that all embedding implementations must
// satisfy. Providers are content-kind routed: source code and natural language
// are embedded into separate spaces, selected per call.
package embedder

import "context"

// ContentKind selects the embedding space for a piece of content.
type ContentKind string

const (
	// KindProse embeds natural-language content.
	KindProse ContentKind = "prose"

	// KindCode embeds source-code content.
	KindCode ContentKind = "code"
)

// Provider defines the interface for embedding providers.
//
// All embedding implementations must implement this interface.
type Provider interface {
	// Embed converts a text string into a vector embedding in the space
	// selected by kind.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - text: The input text to embed
	//   - kind: The embedding space (code or prose)
	//
	// Returns the embedding vector and any error.
	Embed(ctx context.Context, text string, kind ContentKind) ([]float64, error)

	// EmbedBatch converts multiple text strings into vector embeddings.
	//
	// This method is more efficient than calling Embed multiple times,
	// as it can batch process requests. All texts share one content kind.
	EmbedBatch(ctx context.Context, texts []string, kind ContentKind) ([][]float64, error)

	// Dimensions returns the dimension of vectors produced for a content kind.
	Dimensions(kind ContentKind) int

	// Close closes the provider and releases resources.
	Close() error
}
