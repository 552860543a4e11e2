// Package queue provides the durable retry queue for failed ingestions.
//
// Failure handling is queue-based rather than in-process: an ingestion that
// fails after screening is parked as a queue entry keyed by its content hash,
// and a worker loop re-offers it later. Re-enqueueing the same content is a
// no-op, so crash-and-retry loops cannot multiply work.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEmpty is returned by Dequeue when no entry is ready.
var ErrEmpty = errors.New("queue: empty")

// Entry is one parked ingestion awaiting retry.
type Entry struct {
	// ContentHash is the dedup key; one entry per hash.
	ContentHash string

	// Content is the original pre-chunk content to re-ingest.
	Content string

	// TypeHint is the caller's memory-type hint, if any.
	TypeHint string

	// GroupID is the tenant the content belongs to.
	GroupID string

	// Source is the provenance identifier of the content.
	Source string

	// Attempts counts how many times this entry has been dequeued.
	Attempts int

	// EnqueuedAt is when the entry was first parked.
	EnqueuedAt time.Time

	// LastError is the message of the most recent failure.
	LastError string
}

// Store is a durable FIFO of retry entries, deduplicated by content hash.
//
// Dequeue hands out the oldest ready entry and marks it in flight; the caller
// must finish with Ack (drop) or Nack (requeue with the failure recorded).
type Store interface {
	Enqueue(ctx context.Context, entry *Entry) error
	Dequeue(ctx context.Context) (*Entry, error)
	Ack(ctx context.Context, contentHash string) error
	Nack(ctx context.Context, contentHash string, failure error) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryStore is an in-process Store for tests and single-shot tools.
type MemoryStore struct {
	mu       sync.Mutex
	order    []string
	entries  map[string]*Entry
	inFlight map[string]bool
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*Entry),
		inFlight: make(map[string]bool),
	}
}

// Enqueue parks an entry. An entry with the same content hash already present
// is left untouched.
func (s *MemoryStore) Enqueue(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.ContentHash]; ok {
		return nil
	}

	e := *entry
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now().UTC()
	}
	s.entries[e.ContentHash] = &e
	s.order = append(s.order, e.ContentHash)
	return nil
}

// Dequeue returns the oldest entry not currently in flight.
func (s *MemoryStore) Dequeue(ctx context.Context) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, hash := range s.order {
		if s.inFlight[hash] {
			continue
		}
		e, ok := s.entries[hash]
		if !ok {
			continue
		}
		s.inFlight[hash] = true
		e.Attempts++
		out := *e
		return &out, nil
	}
	return nil, ErrEmpty
}

// Ack drops a completed entry.
func (s *MemoryStore) Ack(ctx context.Context, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, contentHash)
	delete(s.inFlight, contentHash)
	for i, hash := range s.order {
		if hash == contentHash {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Nack returns an entry to the queue with its failure recorded.
func (s *MemoryStore) Nack(ctx context.Context, contentHash string, failure error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, contentHash)
	if e, ok := s.entries[contentHash]; ok && failure != nil {
		e.LastError = failure.Error()
	}
	return nil
}

// Len reports the number of parked entries, in flight included.
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// Close releases nothing; it exists to satisfy Store.
func (s *MemoryStore) Close() error {
	return nil
}
