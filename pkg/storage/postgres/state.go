package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// initStateTable creates the sync-state table shared by all connectors.
func (c *Client) initStateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS engram_sync_state (
			source_kind TEXT NOT NULL,
			source_id TEXT NOT NULL,
			cursor TEXT NOT NULL DEFAULT '',
			error_count INTEGER NOT NULL DEFAULT 0,
			last_success TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (source_kind, source_id)
		)
	`
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres: init state table: %w", err)
	}
	return nil
}

// GetSyncState loads the state for a source, or storage.ErrStateNotFound.
func (c *Client) GetSyncState(ctx context.Context, sourceKind, sourceID string) (*storage.SyncState, error) {
	query := `
		SELECT cursor, error_count, last_success, created_at, updated_at
		FROM engram_sync_state
		WHERE source_kind = $1 AND source_id = $2
	`
	state := &storage.SyncState{SourceKind: sourceKind, SourceID: sourceID}
	var lastSuccess sql.NullTime

	err := c.db.QueryRowContext(ctx, query, sourceKind, sourceID).Scan(
		&state.Cursor, &state.ErrorCount, &lastSuccess, &state.CreatedAt, &state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get sync state: %w", err)
	}
	if lastSuccess.Valid {
		state.LastSuccess = lastSuccess.Time
	}
	return state, nil
}

// PutSyncState inserts or updates the state for a source.
func (c *Client) PutSyncState(ctx context.Context, state *storage.SyncState) error {
	now := time.Now().UTC()
	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO engram_sync_state
			(source_kind, source_id, cursor, error_count, last_success, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_kind, source_id) DO UPDATE SET
			cursor = EXCLUDED.cursor,
			error_count = EXCLUDED.error_count,
			last_success = EXCLUDED.last_success,
			updated_at = EXCLUDED.updated_at
	`
	var lastSuccess interface{}
	if !state.LastSuccess.IsZero() {
		lastSuccess = state.LastSuccess
	}

	if _, err := c.db.ExecContext(ctx, query,
		state.SourceKind, state.SourceID, state.Cursor, state.ErrorCount,
		lastSuccess, createdAt, now,
	); err != nil {
		return fmt.Errorf("postgres: put sync state: %w", err)
	}
	return nil
}

// DeleteSyncState removes the state for a source (source deregistration).
func (c *Client) DeleteSyncState(ctx context.Context, sourceKind, sourceID string) error {
	query := `DELETE FROM engram_sync_state WHERE source_kind = $1 AND source_id = $2`
	if _, err := c.db.ExecContext(ctx, query, sourceKind, sourceID); err != nil {
		return fmt.Errorf("postgres: delete sync state: %w", err)
	}
	return nil
}
