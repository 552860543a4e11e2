// Package sqlite provides a SQLite implementation of the vector store and
// sync-state contracts.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-machine agents. Vectors are stored as JSON strings in TEXT fields
// and similarity search uses in-process cosine similarity. Decay weighting is
// computed in Go as part of the query pass because SQLite math functions are a
// compile-time option that cannot be relied on.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// Client implements storage.VectorStore and storage.StateStore using SQLite.
type Client struct {
	db *sql.DB

	// shared records which collections declared a tenant index, enforced on
	// every query and scroll.
	shared map[string]bool
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient creates a new SQLite store client.
//
// The parent directory is created if missing. The connection uses WAL mode so
// concurrent ingestion contexts and sync jobs do not serialize on writes.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	client := &Client{db: db, shared: make(map[string]bool)}
	if err := client.initStateTable(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

// EnsureCollection creates the collection table and its indexes if missing.
func (c *Client) EnsureCollection(ctx context.Context, schema *storage.CollectionSchema) error {
	table := tableName(schema.Name)
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			vector TEXT NOT NULL,
			payload TEXT NOT NULL
		)
	`, table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite: ensure collection: %w", err)
	}

	// group_id and content_hash are the hot lookup paths (tenant filtering and
	// exact dedup), so they get real columns and indexes; everything else
	// lives in the payload JSON.
	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_group ON %s(group_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_hash ON %s(content_hash)`, table, table),
	}
	for _, idx := range indexes {
		if _, err := c.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("sqlite: ensure index: %w", err)
		}
	}

	c.shared[schema.Name] = schema.Shared
	return nil
}

// Upsert inserts or overwrites points by id, in slice order.
func (c *Client) Upsert(ctx context.Context, name string, points []*storage.Point) error {
	table := tableName(name)
	query := fmt.Sprintf(`
		INSERT INTO %s (id, group_id, content_hash, vector, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_id = excluded.group_id,
			content_hash = excluded.content_hash,
			vector = excluded.vector,
			payload = excluded.payload
	`, table)

	for _, p := range points {
		groupID, _ := p.Payload["group_id"].(string)
		if err := c.requireTenant(name, groupID); err != nil {
			return err
		}
		hash, _ := p.Payload["content_hash"].(string)

		vectorJSON, err := json.Marshal(p.Vector)
		if err != nil {
			return fmt.Errorf("sqlite: upsert: %w", err)
		}
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("sqlite: upsert: %w", err)
		}

		if _, err := c.db.ExecContext(ctx, query, p.ID, groupID, hash, string(vectorJSON), string(payloadJSON)); err != nil {
			return fmt.Errorf("sqlite: upsert: %w", err)
		}
	}
	return nil
}

// Query performs similarity search with optional decay scoring.
//
// Candidate rows are narrowed by the indexed group_id column in SQL; cosine
// similarity and decay weighting run in Go over the narrowed set.
func (c *Client) Query(ctx context.Context, name string, vector []float64, opts *storage.QueryOptions) ([]*storage.ScoredPoint, error) {
	if opts == nil {
		opts = &storage.QueryOptions{}
	}
	if err := c.requireTenant(name, opts.GroupID); err != nil {
		return nil, err
	}

	points, err := c.loadPoints(ctx, name, opts.GroupID, exactFilter(opts.Filters, "content_hash"))
	if err != nil {
		return nil, err
	}

	var results []*storage.ScoredPoint
	for _, p := range points {
		if !storage.MatchFilters(p.Payload, opts.GroupID, opts.Filters) {
			continue
		}
		sim := storage.CosineSimilarity(vector, p.Vector)
		score := storage.ApplyDecay(opts.Formula, p.Payload, sim)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		results = append(results, &storage.ScoredPoint{Point: *p, Score: score, Similarity: sim})
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
	if opts == nil {
		opts = &storage.ScrollOptions{}
	}
	if err := c.requireTenant(name, opts.GroupID); err != nil {
		return nil, err
	}

	points, err := c.loadPoints(ctx, name, opts.GroupID, exactFilter(opts.Filters, "content_hash"))
	if err != nil {
		return nil, err
	}

	var results []*storage.Point
	for _, p := range points {
		if storage.MatchFilters(p.Payload, opts.GroupID, opts.Filters) {
			results = append(results, p)
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
	if len(ids) == 0 {
		return nil
	}
	table := tableName(name)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, table, placeholders)

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	return nil
}

// Count returns the number of points matching the filters.
func (c *Client) Count(ctx context.Context, name string, opts *storage.ScrollOptions) (int, error) {
	points, err := c.Scroll(ctx, name, opts)
	if err != nil {
		return 0, err
	}
	return len(points), nil
}

// Ping verifies the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

// loadPoints loads candidate rows, narrowing by group_id and, when the caller
// filters on content_hash, by the indexed hash column.
func (c *Client) loadPoints(ctx context.Context, name, groupID, contentHash string) ([]*storage.Point, error) {
	table := tableName(name)
	query := fmt.Sprintf(`SELECT id, vector, payload FROM %s WHERE 1=1`, table)
	var args []interface{}

	if groupID != "" {
		query += ` AND group_id = ?`
		args = append(args, groupID)
	}
	if contentHash != "" {
		query += ` AND content_hash = ?`
		args = append(args, contentHash)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}
	defer rows.Close()

	var points []*storage.Point
	for rows.Next() {
		var id, vectorJSON, payloadJSON string
		if err := rows.Scan(&id, &vectorJSON, &payloadJSON); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}

		p := &storage.Point{ID: id}
		if err := json.Unmarshal([]byte(vectorJSON), &p.Vector); err != nil {
			return nil, fmt.Errorf("sqlite: decode vector: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p.Payload); err != nil {
			return nil, fmt.Errorf("sqlite: decode payload: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (c *Client) requireTenant(name, groupID string) error {
	if c.shared[name] && groupID == "" {
		return storage.ErrMissingGroup
	}
	return nil
}

// tableName maps a collection name onto a safe SQL identifier.
func tableName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return "engram_" + b.String()
}

func exactFilter(filters map[string]interface{}, field string) string {
	if filters == nil {
		return ""
	}
	s, _ := filters[field].(string)
	return s
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
