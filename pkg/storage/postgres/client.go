// Package postgres provides a PostgreSQL implementation of the vector store
// and sync-state contracts.
//
// It targets stock PostgreSQL: vectors are stored as JSON in TEXT columns and
// similarity plus decay weighting are computed in Go over rows narrowed by the
// indexed group_id and content_hash columns. Deployments with a dedicated
// vector index can swap in a different VectorStore implementation without
// touching the engine.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// Client implements storage.VectorStore and storage.StateStore using PostgreSQL.
type Client struct {
	db     *sql.DB
	shared map[string]bool
}

// Config contains configuration for creating a PostgreSQL store.
type Config struct {
	// Host is the database host.
	Host string

	// Port is the database port.
	Port int

	// User is the database user.
	User string

	// Password is the database password.
	Password string

	// DBName is the database name.
	DBName string

	// SSLMode is the sslmode connection parameter (default "disable").
	SSLMode string
}

// NewClient creates a new PostgreSQL store client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
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
			payload JSONB NOT NULL
		)
	`, table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres: ensure collection: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_group ON %s(group_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_hash ON %s(content_hash)`, table, table),
	}
	for _, idx := range indexes {
		if _, err := c.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("postgres: ensure index: %w", err)
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
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			content_hash = EXCLUDED.content_hash,
			vector = EXCLUDED.vector,
			payload = EXCLUDED.payload
	`, table)

	for _, p := range points {
		groupID, _ := p.Payload["group_id"].(string)
		if err := c.requireTenant(name, groupID); err != nil {
			return err
		}
		hash, _ := p.Payload["content_hash"].(string)

		vectorJSON, err := json.Marshal(p.Vector)
		if err != nil {
			return fmt.Errorf("postgres: upsert: %w", err)
		}
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("postgres: upsert: %w", err)
		}

		if _, err := c.db.ExecContext(ctx, query, p.ID, groupID, hash, string(vectorJSON), string(payloadJSON)); err != nil {
			return fmt.Errorf("postgres: upsert: %w", err)
		}
	}
	return nil
}

// Query performs similarity search with optional decay scoring.
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

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, table, strings.Join(placeholders, ","))
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
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

func (c *Client) loadPoints(ctx context.Context, name, groupID, contentHash string) ([]*storage.Point, error) {
	table := tableName(name)
	query := fmt.Sprintf(`SELECT id, vector, payload FROM %s WHERE 1=1`, table)
	var args []interface{}

	if groupID != "" {
		args = append(args, groupID)
		query += fmt.Sprintf(` AND group_id = $%d`, len(args))
	}
	if contentHash != "" {
		args = append(args, contentHash)
		query += fmt.Sprintf(` AND content_hash = $%d`, len(args))
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: load: %w", err)
	}
	defer rows.Close()

	var points []*storage.Point
	for rows.Next() {
		var id, vectorJSON string
		var payloadJSON []byte
		if err := rows.Scan(&id, &vectorJSON, &payloadJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}

		p := &storage.Point{ID: id}
		if err := json.Unmarshal([]byte(vectorJSON), &p.Vector); err != nil {
			return nil, fmt.Errorf("postgres: decode vector: %w", err)
		}
		if err := json.Unmarshal(payloadJSON, &p.Payload); err != nil {
			return nil, fmt.Errorf("postgres: decode payload: %w", err)
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
	return err != nil && strings.Contains(err.Error(), "does not exist")
}
