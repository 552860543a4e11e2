// Package llm provides interfaces and utilities for Large Language Model (LLM) providers.
//
// It defines the Provider interface that all LLM implementations must satisfy.
// In this engine LLM providers are consumed exclusively by the classifier
// router as an ordered fallback chain behind the rule layer.
package llm

import "context"

// Provider defines the interface for LLM providers.
//
// All LLM implementations (OpenAI-compatible, Ollama, etc.) must implement
// this interface.
type Provider interface {
	// Generate generates text from a prompt.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - prompt: The input prompt text
	//   - opts: Optional generation parameters (temperature, max tokens, etc.)
	//
	// Returns the generated text and any error.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// Name returns a short provider name used in logs and classification
	// provenance.
	Name() string

	// Close closes the provider and releases resources.
	Close() error
}

// GenerateOptions contains options for text generation.
type GenerateOptions struct {
	// Temperature controls randomness (0.0-2.0). Higher = more random.
	Temperature float64

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int
}

// GenerateOption is a function type for configuring generation.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = t
	}
}

// WithMaxTokens limits the response length.
func WithMaxTokens(n int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = n
	}
}

// ApplyGenerateOptions applies options over defaults.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
