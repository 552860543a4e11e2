package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/core"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     core.Config
		wantErr bool
	}{
		{
			name: "memory store without embedder",
			cfg: core.Config{
				VectorStore: core.VectorStoreConfig{Provider: "memory"},
			},
		},
		{
			name:    "missing store provider",
			cfg:     core.Config{},
			wantErr: true,
		},
		{
			name: "unknown store provider",
			cfg: core.Config{
				VectorStore: core.VectorStoreConfig{Provider: "qdrant"},
			},
			wantErr: true,
		},
		{
			name: "openai embedder without key",
			cfg: core.Config{
				VectorStore: core.VectorStoreConfig{Provider: "memory"},
				Embedder:    core.EmbedderConfig{Provider: "openai"},
			},
			wantErr: true,
		},
		{
			name: "unknown llm provider in chain",
			cfg: core.Config{
				VectorStore: core.VectorStoreConfig{Provider: "memory"},
				Classifier: core.ClassifierConfig{
					Chain: []core.LLMProviderConfig{{Provider: "bedrock"}},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"embedder": {"provider": "openai", "api_key": "test-key", "dimensions": 1536},
		"vector_store": {"provider": "sqlite", "config": {"db_path": "/tmp/engram.db"}},
		"collection": "memories",
		"retrieval": {"token_budget": 2000}
	}`), 0o600))

	cfg, err := core.LoadConfigFromJSON(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedder.Provider)
	assert.Equal(t, 1536, cfg.Embedder.Dimensions)
	assert.Equal(t, "sqlite", cfg.VectorStore.Provider)
	assert.Equal(t, "/tmp/engram.db", cfg.VectorStore.Config["db_path"])
	assert.Equal(t, 2000, cfg.Retrieval.TokenBudget)
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  provider: openai
  api_key: test-key
vector_store:
  provider: memory
classifier:
  chain:
    - provider: ollama
      model: llama3.1
  timeout_seconds: 5
dedup:
  similarity_threshold: 0.95
`), 0o600))

	cfg, err := core.LoadConfigFromYAML(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.VectorStore.Provider)
	require.Len(t, cfg.Classifier.Chain, 1)
	assert.Equal(t, "ollama", cfg.Classifier.Chain[0].Provider)
	assert.Equal(t, 5, cfg.Classifier.TimeoutSeconds)
	assert.InDelta(t, 0.95, cfg.Dedup.SimilarityThreshold, 1e-9)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := core.LoadConfigFromJSON(path)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = core.LoadConfigFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ENGRAM_STORE_PROVIDER", "memory")
	t.Setenv("ENGRAM_OPENAI_API_KEY", "test-key")
	t.Setenv("ENGRAM_EMBED_DIMS", "256")
	t.Setenv("ENGRAM_COLLECTION", "project_memories")
	t.Setenv("ENGRAM_CLASSIFIER_MODEL", "gpt-4o-mini")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.VectorStore.Provider)
	assert.Equal(t, 256, cfg.Embedder.Dimensions)
	assert.Equal(t, "project_memories", cfg.Collection)
	require.Len(t, cfg.Classifier.Chain, 1)
	assert.Equal(t, "gpt-4o-mini", cfg.Classifier.Chain[0].Model)
	assert.Equal(t, "test-key", cfg.Classifier.Chain[0].APIKey)
}
