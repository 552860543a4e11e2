// Package openai provides an OpenAI-compatible LLM client.
//
// It implements the llm.Provider interface over the chat completions API.
// DeepSeek, Qwen, and other OpenAI-compatible services work via BaseURL, so
// one client covers every hosted provider in the classifier fallback chain.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/engram-ai/engram-go/pkg/llm"
)

// Client is an OpenAI-compatible LLM client.
type Client struct {
	client *openai.Client
	model  string
	name   string
}

// Config is the configuration for the OpenAI LLM client.
type Config struct {
	// APIKey is the API key (required).
	APIKey string

	// Model is the model name. Default: gpt-4o-mini.
	Model string

	// BaseURL is the API base URL. Empty uses the OpenAI default.
	BaseURL string

	// Name overrides the provider name reported in classification provenance.
	// Default: "openai".
	Name string
}

// NewClient creates a new OpenAI-compatible LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai llm: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		name:   name,
	}, nil
}

// Generate generates text based on the prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if options.Temperature > 0 {
		req.Temperature = float32(options.Temperature)
	}
	if options.MaxTokens > 0 {
		req.MaxTokens = options.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai llm: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai llm: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Close releases client resources.
func (c *Client) Close() error {
	return nil
}
