// Package ollama provides an Ollama LLM client.
//
// It implements the llm.Provider interface against a local or remote Ollama
// service, giving the classifier fallback chain an offline option. Ollama uses
// different parameter names than the OpenAI API (num_predict instead of
// max_tokens), so this client speaks the native /api/chat protocol.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/engram-ai/engram-go/pkg/llm"
)

// Client is an Ollama LLM client.
type Client struct {
	client  *http.Client
	model   string
	baseURL string
}

// Config is the configuration for the Ollama client.
type Config struct {
	// Model is the model name. Default: "llama3.1:8b".
	Model string

	// BaseURL is the Ollama service address. Default: "http://localhost:11434".
	BaseURL string

	// HTTPClient is a custom HTTP client. Nil uses a 120s-timeout default;
	// local models can be slow to first token.
	HTTPClient *http.Client
}

// NewClient creates a new Ollama client.
func NewClient(cfg *Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	model := cfg.Model
	if model == "" {
		model = "llama3.1:8b"
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	return &Client{client: client, model: model, baseURL: baseURL}, nil
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []chatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// Generate generates text based on the prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	reqBody := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	}
	if options.Temperature > 0 || options.MaxTokens > 0 {
		reqBody.Options = map[string]interface{}{}
		if options.Temperature > 0 {
			reqBody.Options["temperature"] = options.Temperature
		}
		if options.MaxTokens > 0 {
			reqBody.Options["num_predict"] = options.MaxTokens
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama: %s", parsed.Error)
	}
	return parsed.Message.Content, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "ollama"
}

// Close releases client resources.
func (c *Client) Close() error {
	return nil
}
