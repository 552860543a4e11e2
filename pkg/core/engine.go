package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/engram-ai/engram-go/pkg/chunker"
	"github.com/engram-ai/engram-go/pkg/embedder"
	openaiembed "github.com/engram-ai/engram-go/pkg/embedder/openai"
	"github.com/engram-ai/engram-go/pkg/intelligence"
	"github.com/engram-ai/engram-go/pkg/llm"
	ollamallm "github.com/engram-ai/engram-go/pkg/llm/ollama"
	openaillm "github.com/engram-ai/engram-go/pkg/llm/openai"
	"github.com/engram-ai/engram-go/pkg/metrics"
	"github.com/engram-ai/engram-go/pkg/queue"
	"github.com/engram-ai/engram-go/pkg/security"
	"github.com/engram-ai/engram-go/pkg/storage"
	"github.com/engram-ai/engram-go/pkg/storage/memory"
	"github.com/engram-ai/engram-go/pkg/storage/postgres"
	"github.com/engram-ai/engram-go/pkg/storage/sqlite"
	"github.com/engram-ai/engram-go/pkg/syncer"
)

// Engine is the public surface of the memory system: Ingest, Retrieve, Sync
// and Health.
//
// One engine owns one vector store connection, one embedder, the security
// screen, the chunker, the dedup engine and the classifier router. All
// methods are safe for concurrent use; within a single ingestion the chunk
// pieces are upserted in position order, but no ordering is guaranteed across
// concurrent ingestions.
//
// Example:
//
//	config, _ := core.LoadConfigFromEnv()
//	engine, err := core.NewEngine(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	result, err := engine.Ingest(ctx, "Always run migrations in CI",
//	    core.WithGroupID("team-a"), core.WithTypeHint(core.TypeConvention))
type Engine struct {
	cfg *Config

	store    storage.VectorStore
	states   storage.StateStore
	embedder embedder.Provider

	screen     *security.Screen
	chunking   chunker.Config
	dedup      *intelligence.DedupEngine
	classifier *intelligence.ClassifierRouter
	freshness  intelligence.FreshnessTiers
	history    intelligence.SourceHistory

	recorder *metrics.Recorder
	logger   *log.Logger

	capture *CaptureQueue
	retry   queue.Store

	chain []llm.Provider

	runner  *syncer.Runner
	sources map[string]syncer.Source

	collection string

	mu     sync.RWMutex
	closed bool
}

// EngineOption injects a dependency into NewEngine, mainly for tests and for
// callers that build providers themselves.
type EngineOption func(*engineDeps)

type engineDeps struct {
	store    storage.VectorStore
	states   storage.StateStore
	embedder embedder.Provider
	chain    []llm.Provider
	meter    metric.Meter
	logger   *log.Logger
	retry    queue.Store
	history  intelligence.SourceHistory
	screen   *security.Screen
}

// WithVectorStore injects a vector store and state store, bypassing the
// config factory.
func WithVectorStore(store storage.VectorStore, states storage.StateStore) EngineOption {
	return func(d *engineDeps) {
		d.store = store
		d.states = states
	}
}

// WithEmbedderProvider injects an embedding provider.
func WithEmbedderProvider(p embedder.Provider) EngineOption {
	return func(d *engineDeps) {
		d.embedder = p
	}
}

// WithClassifierChain injects the classifier's LLM fallback chain.
func WithClassifierChain(chain ...llm.Provider) EngineOption {
	return func(d *engineDeps) {
		d.chain = chain
	}
}

// WithMeter wires metric instruments onto the engine's operations.
func WithMeter(meter metric.Meter) EngineOption {
	return func(d *engineDeps) {
		d.meter = meter
	}
}

// WithLogger redirects the engine's log output.
func WithLogger(logger *log.Logger) EngineOption {
	return func(d *engineDeps) {
		d.logger = logger
	}
}

// WithRetryQueue injects the durable retry queue for failed background
// captures.
func WithRetryQueue(store queue.Store) EngineOption {
	return func(d *engineDeps) {
		d.retry = store
	}
}

// WithSourceHistory enables freshness assessment of code patterns against a
// repository history.
func WithSourceHistory(history intelligence.SourceHistory) EngineOption {
	return func(d *engineDeps) {
		d.history = history
	}
}

// WithSecurityScreen replaces the default security screen, e.g. to add a NER
// layer or override per-layer actions.
func WithSecurityScreen(screen *security.Screen) EngineOption {
	return func(d *engineDeps) {
		d.screen = screen
	}
}

// NewEngine creates an engine from configuration.
//
// The vector store, embedder and classifier chain are built from config
// unless injected through options. An unreachable vector store or a missing
// required credential fails here, loudly, rather than at first use.
//
// Parameters:
//   - cfg: Engine configuration (see Config)
//   - opts: Optional dependency injections
//
// Returns the engine or a configuration error.
func NewEngine(cfg *Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return nil, NewEngineError("NewEngine", ErrInvalidConfig)
	}

	var deps engineDeps
	for _, opt := range opts {
		opt(&deps)
	}

	if deps.store == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		store, states, err := buildStore(&cfg.VectorStore)
		if err != nil {
			return nil, NewEngineError("NewEngine", err)
		}
		deps.store = store
		deps.states = states
	}

	if deps.embedder == nil && cfg.Embedder.Provider != "" {
		provider, err := buildEmbedder(&cfg.Embedder)
		if err != nil {
			return nil, NewEngineError("NewEngine", err)
		}
		deps.embedder = provider
	}
	if deps.embedder == nil {
		return nil, NewEngineError("NewEngine", fmt.Errorf("%w: no embedder configured", ErrInvalidConfig))
	}

	if deps.chain == nil {
		chain, err := buildChain(cfg.Classifier.Chain)
		if err != nil {
			return nil, NewEngineError("NewEngine", err)
		}
		deps.chain = chain
	}

	recorder, err := metrics.NewRecorder(deps.meter)
	if err != nil {
		return nil, NewEngineError("NewEngine", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "memories"
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := deps.store.Ping(startupCtx); err != nil {
		return nil, NewEngineError("NewEngine", fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}
	schema := &storage.CollectionSchema{
		Name:       collection,
		Dimensions: cfg.Embedder.Dimensions,
		Shared:     true,
		Indexes: []storage.PayloadIndex{
			{Field: "group_id", IsTenant: true},
			{Field: "content_hash"},
		},
	}
	if err := deps.store.EnsureCollection(startupCtx, schema); err != nil {
		return nil, NewEngineError("NewEngine", err)
	}

	screen := deps.screen
	if screen == nil {
		screen = security.NewScreen()
	}

	timeout := time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second
	typeNames := make([]string, 0, len(AllMemoryTypes()))
	for _, t := range AllMemoryTypes() {
		typeNames = append(typeNames, string(t))
	}

	engine := &Engine{
		cfg:        cfg,
		store:      deps.store,
		states:     deps.states,
		embedder:   deps.embedder,
		screen:     screen,
		chunking:   chunker.DefaultConfig(),
		dedup:      intelligence.NewDedupEngine(deps.store, cfg.Dedup.SimilarityThreshold),
		classifier: intelligence.NewClassifierRouter(typeNames, deps.chain, timeout),
		freshness:  intelligence.DefaultFreshnessTiers(),
		history:    deps.history,
		recorder:   recorder,
		logger:     deps.logger,
		retry:      deps.retry,
		chain:      deps.chain,
		sources:    make(map[string]syncer.Source),
		collection: collection,
	}

	engine.capture = newCaptureQueue(engine, cfg.Capture.QueueSize, cfg.Capture.Workers)

	runner, err := syncer.NewRunner(deps.states, engine)
	if err != nil {
		return nil, NewEngineError("NewEngine", err)
	}
	runner.Metrics = recorder
	runner.Logger = deps.logger
	engine.runner = runner

	return engine, nil
}

// RegisterSource registers a sync source under its ID.
func (e *Engine) RegisterSource(source syncer.Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[source.ID()] = source
}

// Sync runs one sync of a registered source.
//
// Parameters:
//   - sourceID: The ID the source was registered under
//   - mode: syncer.ModeFull or syncer.ModeIncremental
//
// Returns the per-run counts and new cursor. Item-level failures are counted
// in the result, not returned as errors.
func (e *Engine) Sync(ctx context.Context, sourceID string, mode syncer.Mode) (*syncer.Result, error) {
	e.mu.RLock()
	source, ok := e.sources[sourceID]
	closed := e.closed
	e.mu.RUnlock()

	if closed {
		return nil, NewEngineError("Sync", ErrEngineClosed)
	}
	if !ok {
		return nil, NewEngineError("Sync", fmt.Errorf("%w: %q", ErrUnknownSource, sourceID))
	}

	result, err := e.runner.Run(ctx, source, mode)
	if err != nil {
		return result, NewEngineError("Sync", err)
	}
	return result, nil
}

// Health pings the engine's dependencies and reports per-dependency status.
func (e *Engine) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{Healthy: true}

	storeStatus := DependencyStatus{Name: "vector_store", Healthy: true}
	if err := e.store.Ping(ctx); err != nil {
		storeStatus.Healthy = false
		storeStatus.Error = err.Error()
		report.Healthy = false
	}
	report.Dependencies = append(report.Dependencies, storeStatus)

	queueStatus := DependencyStatus{Name: "capture_queue", Healthy: true}
	if e.capture == nil {
		queueStatus.Healthy = false
		queueStatus.Error = "not running"
		report.Healthy = false
	}
	report.Dependencies = append(report.Dependencies, queueStatus)

	if e.retry != nil {
		retryStatus := DependencyStatus{Name: "retry_queue", Healthy: true}
		if _, err := e.retry.Len(ctx); err != nil {
			retryStatus.Healthy = false
			retryStatus.Error = err.Error()
			report.Healthy = false
		}
		report.Dependencies = append(report.Dependencies, retryStatus)
	}
	return report
}

// Close drains the capture queue and releases every held resource.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.capture.Shutdown()

	var firstErr error
	for _, p := range e.chain {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return NewEngineError("Close", firstErr)
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// buildStore is the vector store factory.
func buildStore(cfg *VectorStoreConfig) (storage.VectorStore, storage.StateStore, error) {
	switch cfg.Provider {
	case "memory":
		client := memory.NewClient()
		return client, client, nil

	case "sqlite":
		dbPath, _ := cfg.Config["db_path"].(string)
		if dbPath == "" {
			dbPath = "./engram.db"
		}
		client, err := sqlite.NewClient(&sqlite.Config{DBPath: dbPath})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil

	case "postgres":
		port, _ := cfg.Config["port"].(int)
		if port == 0 {
			port = 5432
		}
		host, _ := cfg.Config["host"].(string)
		user, _ := cfg.Config["user"].(string)
		password, _ := cfg.Config["password"].(string)
		dbName, _ := cfg.Config["db_name"].(string)
		sslMode, _ := cfg.Config["ssl_mode"].(string)
		client, err := postgres.NewClient(&postgres.Config{
			Host:     host,
			Port:     port,
			User:     user,
			Password: password,
			DBName:   dbName,
			SSLMode:  sslMode,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil

	default:
		return nil, nil, fmt.Errorf("%w: unsupported vector store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// buildEmbedder is the embedding provider factory.
func buildEmbedder(cfg *EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiembed.NewClient(&openaiembed.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			ProseModel: cfg.ProseModel,
			CodeModel:  cfg.CodeModel,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported embedder provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// buildChain builds the classifier's ordered LLM fallback chain.
func buildChain(configs []LLMProviderConfig) ([]llm.Provider, error) {
	var chain []llm.Provider
	for _, c := range configs {
		switch c.Provider {
		case "openai":
			client, err := openaillm.NewClient(&openaillm.Config{
				APIKey:  c.APIKey,
				Model:   c.Model,
				BaseURL: c.BaseURL,
			})
			if err != nil {
				return nil, err
			}
			chain = append(chain, client)

		case "ollama":
			client, err := ollamallm.NewClient(&ollamallm.Config{
				Model:   c.Model,
				BaseURL: c.BaseURL,
			})
			if err != nil {
				return nil, err
			}
			chain = append(chain, client)

		default:
			return nil, fmt.Errorf("%w: unsupported llm provider %q", ErrInvalidConfig, c.Provider)
		}
	}
	return chain, nil
}
