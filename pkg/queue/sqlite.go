package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a durable Store backed by a SQLite table.
//
// Entries survive process restarts; the in-flight flag is a column rather than
// process memory, and stale in-flight entries (from a crashed worker) become
// dequeueable again after a visibility timeout.
type SQLiteStore struct {
	db *sql.DB

	// visibility is how long an in-flight entry stays hidden before it is
	// offered again.
	visibility time.Duration
}

// SQLiteConfig contains configuration for creating a SQLite retry queue.
type SQLiteConfig struct {
	// DBPath is the path to the SQLite database file. The queue can share a
	// file with the sqlite vector store.
	DBPath string

	// Visibility is the in-flight timeout. Zero selects 5 minutes.
	Visibility time.Duration
}

// NewSQLiteStore opens or creates the retry queue table.
func NewSQLiteStore(cfg *SQLiteConfig) (*SQLiteStore, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("queue: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("queue: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("queue: ping: %w", err)
	}

	query := `
		CREATE TABLE IF NOT EXISTS engram_retry_queue (
			content_hash TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			type_hint TEXT NOT NULL DEFAULT '',
			group_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			enqueued_at TIMESTAMP NOT NULL,
			last_error TEXT NOT NULL DEFAULT '',
			in_flight_until TIMESTAMP
		)
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("queue: ensure table: %w", err)
	}

	visibility := cfg.Visibility
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &SQLiteStore{db: db, visibility: visibility}, nil
}

// Enqueue parks an entry, ignoring hashes already present.
func (s *SQLiteStore) Enqueue(ctx context.Context, entry *Entry) error {
	enqueuedAt := entry.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO engram_retry_queue
			(content_hash, content, type_hint, group_id, source, attempts, enqueued_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ContentHash, entry.Content, entry.TypeHint, entry.GroupID,
		entry.Source, entry.Attempts, enqueuedAt, entry.LastError)
	if err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

// Dequeue claims the oldest entry that is not in flight.
func (s *SQLiteStore) Dequeue(ctx context.Context) (*Entry, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT content_hash, content, type_hint, group_id, source, attempts, enqueued_at, last_error
		FROM engram_retry_queue
		WHERE in_flight_until IS NULL OR in_flight_until < ?
		ORDER BY enqueued_at ASC
		LIMIT 1
	`, now)

	var e Entry
	err = row.Scan(&e.ContentHash, &e.Content, &e.TypeHint, &e.GroupID,
		&e.Source, &e.Attempts, &e.EnqueuedAt, &e.LastError)
	if err == sql.ErrNoRows {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}

	e.Attempts++
	_, err = tx.ExecContext(ctx, `
		UPDATE engram_retry_queue
		SET attempts = ?, in_flight_until = ?
		WHERE content_hash = ?
	`, e.Attempts, now.Add(s.visibility), e.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	return &e, nil
}

// Ack drops a completed entry.
func (s *SQLiteStore) Ack(ctx context.Context, contentHash string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM engram_retry_queue WHERE content_hash = ?`, contentHash); err != nil {
		return fmt.Errorf("queue: ack: %w", err)
	}
	return nil
}

// Nack returns an entry to the queue with its failure recorded.
func (s *SQLiteStore) Nack(ctx context.Context, contentHash string, failure error) error {
	message := ""
	if failure != nil {
		message = failure.Error()
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE engram_retry_queue
		SET in_flight_until = NULL, last_error = ?
		WHERE content_hash = ?
	`, message, contentHash); err != nil {
		return fmt.Errorf("queue: nack: %w", err)
	}
	return nil
}

// Len reports the number of parked entries.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM engram_retry_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue: len: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
