package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config contains the complete configuration for an Engram engine.
//
// It includes settings for:
//   - Embedding provider (for vector generation, routed by content kind)
//   - Classifier LLM chain (for type assignment of ambiguous content)
//   - Vector store (for memory persistence and sync state)
//   - Retrieval, dedup and capture tuning
//
// Example:
//
//	config := &core.Config{
//	    Embedder: core.EmbedderConfig{
//	        Provider:   "openai",
//	        APIKey:     "sk-...",
//	        Dimensions: 1536,
//	    },
//	    VectorStore: core.VectorStoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./engram.db",
//	        },
//	    },
//	}
type Config struct {
	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder" yaml:"embedder"`

	// Classifier contains the classifier LLM fallback chain configuration
	// (optional; without it classification is rules-only).
	Classifier ClassifierConfig `json:"classifier,omitempty" yaml:"classifier,omitempty"`

	// VectorStore contains vector store configuration.
	VectorStore VectorStoreConfig `json:"vector_store" yaml:"vector_store"`

	// Collection is the collection records are stored in. Default "memories".
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`

	// Retrieval contains retrieval tuning.
	Retrieval RetrievalConfig `json:"retrieval,omitempty" yaml:"retrieval,omitempty"`

	// Dedup contains deduplication tuning.
	Dedup DedupConfig `json:"dedup,omitempty" yaml:"dedup,omitempty"`

	// Capture contains background capture queue tuning.
	Capture CaptureConfig `json:"capture,omitempty" yaml:"capture,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai (any OpenAI-compatible endpoint via BaseURL).
type EmbedderConfig struct {
	// Provider is the embedding provider name.
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key" yaml:"api_key"`

	// ProseModel is the embedding model for natural-language content.
	ProseModel string `json:"prose_model,omitempty" yaml:"prose_model,omitempty"`

	// CodeModel is the embedding model for source code. Empty reuses
	// ProseModel.
	CodeModel string `json:"code_model,omitempty" yaml:"code_model,omitempty"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors.
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// LLMProviderConfig configures one link of the classifier fallback chain.
type LLMProviderConfig struct {
	// Provider is the LLM provider name (openai, ollama).
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key, where the provider needs one.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the model name.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// ClassifierConfig contains the classifier router configuration.
type ClassifierConfig struct {
	// Chain is the ordered provider list tried for ambiguous content.
	Chain []LLMProviderConfig `json:"chain,omitempty" yaml:"chain,omitempty"`

	// TimeoutSeconds is the shared wall-clock budget for the whole chain.
	// Zero selects 10.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// VectorStoreConfig contains configuration for the vector store backend.
//
// Supported providers: memory, sqlite, postgres.
type VectorStoreConfig struct {
	// Provider is the vector store provider name (memory, sqlite, postgres).
	Provider string `json:"provider" yaml:"provider"`

	// Config contains provider-specific settings (db_path for sqlite; host,
	// port, user, password, db_name, ssl_mode for postgres).
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// RetrievalConfig contains retrieval tuning.
type RetrievalConfig struct {
	// TokenBudget caps the composed context payload. Zero selects 4000.
	TokenBudget int `json:"token_budget,omitempty" yaml:"token_budget,omitempty"`

	// Tier1Count is the fixed number of deterministic recents per pinned
	// type. Zero selects 3.
	Tier1Count int `json:"tier1_count,omitempty" yaml:"tier1_count,omitempty"`

	// Tier2TopK and Tier3TopK bound the semantic tiers. Zero selects 10.
	Tier2TopK int `json:"tier2_top_k,omitempty" yaml:"tier2_top_k,omitempty"`
	Tier3TopK int `json:"tier3_top_k,omitempty" yaml:"tier3_top_k,omitempty"`
}

// DedupConfig contains deduplication tuning.
type DedupConfig struct {
	// SimilarityThreshold is the cosine threshold for semantic duplicates.
	// Zero selects 0.92.
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty" yaml:"similarity_threshold,omitempty"`
}

// CaptureConfig contains background capture queue tuning.
type CaptureConfig struct {
	// QueueSize bounds the in-flight background tasks. Zero selects 256.
	QueueSize int `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`

	// Workers is the number of background workers. Zero selects 2.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// Validate checks that the configuration is complete enough to start.
//
// Missing required settings are configuration errors: they surface
// immediately rather than letting the engine run half-configured.
func (c *Config) Validate() error {
	if c.VectorStore.Provider == "" {
		return NewEngineError("Validate", fmt.Errorf("%w: vector store provider is required", ErrInvalidConfig))
	}
	switch c.VectorStore.Provider {
	case "memory", "sqlite", "postgres":
	default:
		return NewEngineError("Validate", fmt.Errorf("%w: unsupported vector store provider %q", ErrInvalidConfig, c.VectorStore.Provider))
	}

	if c.Embedder.Provider != "" && c.Embedder.Provider != "openai" {
		return NewEngineError("Validate", fmt.Errorf("%w: unsupported embedder provider %q", ErrInvalidConfig, c.Embedder.Provider))
	}
	if c.Embedder.Provider == "openai" && c.Embedder.APIKey == "" {
		return NewEngineError("Validate", fmt.Errorf("%w: embedder api key is required", ErrInvalidConfig))
	}

	for _, p := range c.Classifier.Chain {
		switch p.Provider {
		case "openai", "ollama":
		default:
			return NewEngineError("Validate", fmt.Errorf("%w: unsupported llm provider %q", ErrInvalidConfig, p.Provider))
		}
	}
	return nil
}

// FindEnvFile searches for a .env file starting at the working directory and
// walking upward, so tools run from a subdirectory still find the project
// configuration.
//
// Returns the path and true when found.
func FindEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// A .env file is loaded first when present (upward search from the working
// directory). Variables use the ENGRAM_ prefix:
//
//	ENGRAM_STORE_PROVIDER      memory | sqlite | postgres (default sqlite)
//	ENGRAM_SQLITE_PATH         sqlite database file (default ./engram.db)
//	ENGRAM_POSTGRES_HOST/PORT/USER/PASSWORD/DATABASE/SSLMODE
//	ENGRAM_OPENAI_API_KEY      embedder + classifier key
//	ENGRAM_EMBED_MODEL         prose embedding model
//	ENGRAM_EMBED_CODE_MODEL    code embedding model
//	ENGRAM_EMBED_DIMS          embedding dimensions (default 1536)
//	ENGRAM_CLASSIFIER_MODEL    classifier chat model (chain of one)
//	ENGRAM_OLLAMA_BASE_URL     appends an ollama link to the chain
//	ENGRAM_COLLECTION          collection name (default memories)
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("ENGRAM_STORE_PROVIDER", "sqlite")

	storeConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		storeConfig["db_path"] = getEnvOrDefault("ENGRAM_SQLITE_PATH", "./engram.db")
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("ENGRAM_POSTGRES_PORT", "5432"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("ENGRAM_POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("ENGRAM_POSTGRES_USER", "postgres"),
			"password": os.Getenv("ENGRAM_POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("ENGRAM_POSTGRES_DATABASE", "engram"),
			"ssl_mode": getEnvOrDefault("ENGRAM_POSTGRES_SSLMODE", "disable"),
		}
	}

	dims, _ := strconv.Atoi(getEnvOrDefault("ENGRAM_EMBED_DIMS", "1536"))
	apiKey := os.Getenv("ENGRAM_OPENAI_API_KEY")

	cfg := &Config{
		Embedder: EmbedderConfig{
			Provider:   "openai",
			APIKey:     apiKey,
			ProseModel: getEnvOrDefault("ENGRAM_EMBED_MODEL", "text-embedding-3-small"),
			CodeModel:  os.Getenv("ENGRAM_EMBED_CODE_MODEL"),
			BaseURL:    os.Getenv("ENGRAM_OPENAI_BASE_URL"),
			Dimensions: dims,
		},
		VectorStore: VectorStoreConfig{
			Provider: provider,
			Config:   storeConfig,
		},
		Collection: getEnvOrDefault("ENGRAM_COLLECTION", "memories"),
	}

	if model := os.Getenv("ENGRAM_CLASSIFIER_MODEL"); model != "" {
		cfg.Classifier.Chain = append(cfg.Classifier.Chain, LLMProviderConfig{
			Provider: "openai",
			APIKey:   apiKey,
			Model:    model,
			BaseURL:  os.Getenv("ENGRAM_OPENAI_BASE_URL"),
		})
	}
	if base := os.Getenv("ENGRAM_OLLAMA_BASE_URL"); base != "" {
		cfg.Classifier.Chain = append(cfg.Classifier.Chain, LLMProviderConfig{
			Provider: "ollama",
			Model:    getEnvOrDefault("ENGRAM_OLLAMA_MODEL", "llama3.1"),
			BaseURL:  base,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfig", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, NewEngineError("LoadConfig", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFromYAML loads configuration from a YAML file.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfig", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewEngineError("LoadConfig", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
