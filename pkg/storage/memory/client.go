// Package memory provides an embedded, in-process implementation of the
// vector store and sync-state contracts.
//
// It is intended for local development and tests. Visibility follows Go memory
// semantics under an internal lock; there is no durability.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// Client implements storage.VectorStore and storage.StateStore in process.
type Client struct {
	mu          sync.RWMutex
	collections map[string]*collection
	states      map[string]*storage.SyncState
}

type collection struct {
	schema *storage.CollectionSchema
	points map[string]*storage.Point
	// order preserves insertion sequence for stable scroll output when the
	// order field ties.
	order []string
}

// NewClient creates a new in-memory store.
func NewClient() *Client {
	return &Client{
		collections: make(map[string]*collection),
		states:      make(map[string]*storage.SyncState),
	}
}

// EnsureCollection creates the collection if missing. Idempotent.
func (c *Client) EnsureCollection(ctx context.Context, schema *storage.CollectionSchema) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.collections[schema.Name]; !ok {
		c.collections[schema.Name] = &collection{
			schema: schema,
			points: make(map[string]*storage.Point),
		}
	}
	return nil
}

// Upsert inserts or overwrites points by id, in slice order.
func (c *Client) Upsert(ctx context.Context, name string, points []*storage.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	col := c.getOrCreate(name)

	for _, p := range points {
		if err := c.requireTenant(col, payloadGroup(p.Payload)); err != nil {
			return err
		}
		if _, exists := col.points[p.ID]; !exists {
			col.order = append(col.order, p.ID)
		}
		col.points[p.ID] = clonePoint(p)
	}
	return nil
}

// Query performs cosine similarity search with optional decay scoring.
func (c *Client) Query(ctx context.Context, name string, vector []float64, opts *storage.QueryOptions) ([]*storage.ScoredPoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	col, ok := c.collections[name]
	if !ok {
		return nil, nil
	}
	if opts == nil {
		opts = &storage.QueryOptions{}
	}
	if err := c.requireTenant(col, opts.GroupID); err != nil {
		return nil, err
	}

	var results []*storage.ScoredPoint
	for _, id := range col.order {
		p := col.points[id]
		if !storage.MatchFilters(p.Payload, opts.GroupID, opts.Filters) {
			continue
		}
		sim := storage.CosineSimilarity(vector, p.Vector)
		score := storage.ApplyDecay(opts.Formula, p.Payload, sim)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		results = append(results, &storage.ScoredPoint{
			Point:      *clonePoint(p),
			Score:      score,
			Similarity: sim,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

// Scroll lists points matching payload filters in a stable order.
func (c *Client) Scroll(ctx context.Context, name string, opts *storage.ScrollOptions) ([]*storage.Point, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	col, ok := c.collections[name]
	if !ok {
		return nil, nil
	}
	if opts == nil {
		opts = &storage.ScrollOptions{}
	}
	if err := c.requireTenant(col, opts.GroupID); err != nil {
		return nil, err
	}

	var results []*storage.Point
	for _, id := range col.order {
		p := col.points[id]
		if storage.MatchFilters(p.Payload, opts.GroupID, opts.Filters) {
			results = append(results, clonePoint(p))
		}
	}

	if opts.OrderBy != "" {
		field := opts.OrderBy
		sort.SliceStable(results, func(i, j int) bool {
			cmp := storage.ComparePayloadValues(results[i].Payload[field], results[j].Payload[field])
			if opts.Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Delete removes points by id. Missing ids are not an error.
func (c *Client) Delete(ctx context.Context, name string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	col := c.getOrCreate(name)
	for _, id := range ids {
		if _, ok := col.points[id]; !ok {
			continue
		}
		delete(col.points, id)
		for i, existing := range col.order {
			if existing == id {
				col.order = append(col.order[:i], col.order[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Count returns the number of points matching the filters.
func (c *Client) Count(ctx context.Context, name string, opts *storage.ScrollOptions) (int, error) {
	points, err := c.Scroll(ctx, name, &storage.ScrollOptions{
		GroupID: scrollGroup(opts),
		Filters: scrollFilters(opts),
	})
	if err != nil {
		return 0, err
	}
	return len(points), nil
}

// Ping always succeeds for the in-memory store.
func (c *Client) Ping(ctx context.Context) error {
	return nil
}

// Close releases the store contents.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections = make(map[string]*collection)
	return nil
}

// GetSyncState loads the state for a source, or storage.ErrStateNotFound.
func (c *Client) GetSyncState(ctx context.Context, sourceKind, sourceID string) (*storage.SyncState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.states[sourceKind+"/"+sourceID]
	if !ok {
		return nil, storage.ErrStateNotFound
	}
	cloned := *state
	return &cloned, nil
}

// PutSyncState inserts or updates the state for a source.
func (c *Client) PutSyncState(ctx context.Context, state *storage.SyncState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cloned := *state
	c.states[state.SourceKind+"/"+state.SourceID] = &cloned
	return nil
}

// DeleteSyncState removes the state for a source.
func (c *Client) DeleteSyncState(ctx context.Context, sourceKind, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.states, sourceKind+"/"+sourceID)
	return nil
}

// getOrCreate auto-creates missing collections with a permissive schema so
// the embedded store stays friction-free in tests. Callers must hold the
// write lock.
func (c *Client) getOrCreate(name string) *collection {
	col, ok := c.collections[name]
	if !ok {
		col = &collection{
			schema: &storage.CollectionSchema{Name: name},
			points: make(map[string]*storage.Point),
		}
		c.collections[name] = col
	}
	return col
}

// requireTenant enforces the tenant index declaration: shared collections
// refuse operations without a group id.
func (c *Client) requireTenant(col *collection, groupID string) error {
	if col.schema == nil || !col.schema.Shared {
		return nil
	}
	if groupID == "" {
		return storage.ErrMissingGroup
	}
	return nil
}

func clonePoint(p *storage.Point) *storage.Point {
	cloned := &storage.Point{
		ID:      p.ID,
		Vector:  append([]float64(nil), p.Vector...),
		Payload: make(map[string]interface{}, len(p.Payload)),
	}
	for k, v := range p.Payload {
		cloned.Payload[k] = v
	}
	return cloned
}

func payloadGroup(payload map[string]interface{}) string {
	g, _ := payload["group_id"].(string)
	return g
}

func scrollGroup(opts *storage.ScrollOptions) string {
	if opts == nil {
		return ""
	}
	return opts.GroupID
}

func scrollFilters(opts *storage.ScrollOptions) map[string]interface{} {
	if opts == nil {
		return nil
	}
	return opts.Filters
}
