package core_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/core"
	"github.com/engram-ai/engram-go/pkg/embedder"
	"github.com/engram-ai/engram-go/pkg/storage/memory"
	"github.com/engram-ai/engram-go/pkg/syncer"
)

const fakeDims = 64

// fakeEmbedder is a deterministic embedding provider: every distinct text gets
// its own orthogonal one-hot vector, so nothing is a semantic duplicate of
// anything else unless a test says so via a fixed substring vector.
type fakeEmbedder struct {
	mu       sync.Mutex
	fixed    map[string][]float64
	assigned map[string]int
	failN    int
	calls    int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		fixed:    make(map[string][]float64),
		assigned: make(map[string]int),
	}
}

// setFixed pins every text containing the substring to one vector.
func (f *fakeEmbedder) setFixed(substring string, components map[int]float64) {
	v := make([]float64, fakeDims)
	for i, x := range components {
		v[i] = x
	}
	f.fixed[substring] = v
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, kind embedder.ContentKind) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failN > 0 {
		f.failN--
		return nil, errors.New("embedder unavailable")
	}

	for sub, v := range f.fixed {
		if strings.Contains(text, sub) {
			return append([]float64(nil), v...), nil
		}
	}

	idx, ok := f.assigned[text]
	if !ok {
		idx = len(f.assigned) % fakeDims
		f.assigned[text] = idx
	}
	v := make([]float64, fakeDims)
	v[idx] = 1
	return v, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, kind embedder.ContentKind) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text, kind)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions(kind embedder.ContentKind) int { return fakeDims }
func (f *fakeEmbedder) Close() error                             { return nil }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// testEngine builds an engine over the in-memory store, the fake embedder and
// a rules-only classifier.
func testEngine(t *testing.T, cfg *core.Config, opts ...core.EngineOption) (*core.Engine, *memory.Client, *fakeEmbedder) {
	t.Helper()

	if cfg == nil {
		cfg = &core.Config{}
	}
	store := memory.NewClient()
	embed := newFakeEmbedder()

	opts = append([]core.EngineOption{
		core.WithVectorStore(store, store),
		core.WithEmbedderProvider(embed),
		core.WithClassifierChain(),
	}, opts...)

	engine, err := core.NewEngine(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine, store, embed
}

func TestNewEngineRequiresConfig(t *testing.T) {
	_, err := core.NewEngine(nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestNewEngineRequiresEmbedder(t *testing.T) {
	store := memory.NewClient()
	_, err := core.NewEngine(&core.Config{},
		core.WithVectorStore(store, store),
		core.WithClassifierChain(),
	)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestHealthReportsDependencies(t *testing.T) {
	engine, _, _ := testEngine(t, nil)

	report := engine.Health(context.Background())

	assert.True(t, report.Healthy)
	names := make([]string, 0, len(report.Dependencies))
	for _, d := range report.Dependencies {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "vector_store")
	assert.Contains(t, names, "capture_queue")
}

func TestCloseMakesEngineUnusable(t *testing.T) {
	engine, _, _ := testEngine(t, nil)
	require.NoError(t, engine.Close())

	_, err := engine.Ingest(context.Background(), "anything", core.WithGroupID("g"))
	assert.ErrorIs(t, err, core.ErrEngineClosed)

	// Closing twice is fine.
	assert.NoError(t, engine.Close())
}

func TestCloseRacesAsyncIngest(t *testing.T) {
	engine, _, _ := testEngine(t, nil)
	ctx := context.Background()

	// Async submissions racing Close must resolve to a queued job or
	// ErrEngineClosed, never a send on a closed channel.
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-start
			for j := 0; j < 25; j++ {
				_, err := engine.Ingest(ctx,
					fmt.Sprintf("note %d-%d from the standup", worker, j),
					core.WithGroupID("team-a"),
					core.WithAsync(),
				)
				if err != nil {
					assert.ErrorIs(t, err, core.ErrEngineClosed)
				}
			}
		}(i)
	}

	close(start)
	require.NoError(t, engine.Close())
	wg.Wait()
}

func TestSyncUnknownSource(t *testing.T) {
	engine, _, _ := testEngine(t, nil)

	_, err := engine.Sync(context.Background(), "nope", syncer.ModeIncremental)
	assert.ErrorIs(t, err, core.ErrUnknownSource)
}
