// Package openai provides an OpenAI-compatible embedding client.
//
// The client implements the embedder.Provider interface and routes content
// kinds to separate models, so code and prose land in distinct embedding
// spaces. Any OpenAI-compatible endpoint works via BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/engram-ai/engram-go/pkg/embedder"
)

// Client is an OpenAI-compatible embedding client.
type Client struct {
	client     *openai.Client
	proseModel openai.EmbeddingModel
	codeModel  openai.EmbeddingModel
	dimensions int
}

// Config is the configuration for the OpenAI embedding client.
type Config struct {
	// APIKey is the API key (required).
	APIKey string

	// BaseURL is the API base URL. Empty uses the OpenAI default; any
	// OpenAI-compatible embedding endpoint is accepted.
	BaseURL string

	// ProseModel is the model for natural-language content.
	// Default: text-embedding-3-small.
	ProseModel string

	// CodeModel is the model for source-code content. Default: ProseModel.
	// Pointing this at a code-tuned model gives code its own embedding space.
	CodeModel string

	// Dimensions is the vector dimensionality. Default: 1536.
	Dimensions int
}

// NewClient creates a new OpenAI embedding client.
//
// Returns an error if the API key is missing.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	proseModel := cfg.ProseModel
	if proseModel == "" {
		proseModel = string(openai.SmallEmbedding3)
	}
	codeModel := cfg.CodeModel
	if codeModel == "" {
		codeModel = proseModel
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		proseModel: openai.EmbeddingModel(proseModel),
		codeModel:  openai.EmbeddingModel(codeModel),
		dimensions: dimensions,
	}, nil
}

// Embed converts a single text into a vector in the space selected by kind.
func (c *Client) Embed(ctx context.Context, text string, kind embedder.ContentKind) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text}, kind)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts into vectors in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, kind embedder.ContentKind) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model(kind),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float64, len(resp.Data))
	for i, data := range resp.Data {
		vector := make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			vector[j] = float64(v)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// Dimensions returns the vector dimensionality for a content kind.
//
// Both spaces share one dimensionality in this client; a provider backed by
// heterogeneous models can vary it per kind.
func (c *Client) Dimensions(kind embedder.ContentKind) int {
	return c.dimensions
}

// Close releases client resources.
func (c *Client) Close() error {
	return nil
}

func (c *Client) model(kind embedder.ContentKind) openai.EmbeddingModel {
	if kind == embedder.KindCode {
		return c.codeModel
	}
	return c.proseModel
}
