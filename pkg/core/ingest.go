package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/engram-ai/engram-go/pkg/chunker"
	"github.com/engram-ai/engram-go/pkg/embedder"
	"github.com/engram-ai/engram-go/pkg/intelligence"
	"github.com/engram-ai/engram-go/pkg/security"
	"github.com/engram-ai/engram-go/pkg/storage"
	"github.com/engram-ai/engram-go/pkg/syncer"
)

// Ingest runs one piece of content through the full pipeline: classify if
// ambiguous, screen, chunk, dedup, embed, stamp and store.
//
// Expected conditions are statuses, not errors: blocked content returns
// IngestBlocked with the findings, duplicates return IngestSkipped, and only
// infrastructure failures return a non-nil error. With WithAsync the
// embedding+storage portion runs on the background capture queue and the call
// returns IngestQueued immediately.
//
// Parameters:
//   - content: The raw content to ingest
//   - opts: Functional options (WithGroupID is required)
//
// Example:
//
//	result, err := engine.Ingest(ctx, transcript,
//	    core.WithGroupID("team-a"),
//	    core.WithSource("session:42"))
//	if result.Status == core.IngestBlocked {
//	    // content carried a secret; nothing was stored
//	}
func (e *Engine) Ingest(ctx context.Context, content string, opts ...IngestOption) (*IngestResult, error) {
	options := &IngestOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if strings.TrimSpace(content) == "" {
		return nil, NewEngineError("Ingest", fmt.Errorf("%w: empty content", ErrInvalidInput))
	}
	if options.GroupID == "" {
		return nil, NewEngineError("Ingest", fmt.Errorf("%w: group id is required", ErrInvalidInput))
	}

	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, NewEngineError("Ingest", ErrEngineClosed)
	}

	started := time.Now()
	defer func() {
		e.recorder.RecordDuration(ctx, "ingest", time.Since(started))
	}()

	// The content hash is always the hash of the original pre-chunk,
	// pre-mask content, so identical submissions dedup regardless of what
	// the screen later masked.
	contentHash := hashContent(content)
	collection := options.Collection
	if collection == "" {
		collection = e.collection
	}

	memType := options.TypeHint
	if !memType.Valid() {
		c := e.classifier.Classify(ctx, content, string(options.TypeHint))
		memType = MemoryType(c.Type)
	}

	kind := options.Kind
	if kind == "" {
		kind = KindProse
		if memType == TypeCodeBlob {
			kind = KindCode
		}
	}

	screened := e.screen.Screen(content)
	if screened.Action == security.ActionBlock {
		e.recorder.RecordIngest(ctx, collection, string(memType), options.GroupID, "blocked")
		return &IngestResult{
			Status:      IngestBlocked,
			ContentHash: contentHash,
			Type:        memType,
			Findings:    screened.Findings,
		}, nil
	}

	text := content
	if screened.Action == security.ActionMask {
		text = screened.MaskedText
	}

	job := &captureJob{
		text:        text,
		contentHash: contentHash,
		memType:     memType,
		kind:        kind,
		collection:  collection,
		options:     options,
		findings:    screened.Findings,
	}

	if options.Async {
		if err := e.capture.Submit(job); err != nil {
			return nil, NewEngineError("Ingest", err)
		}
		return &IngestResult{
			Status:      IngestQueued,
			ContentHash: contentHash,
			Type:        memType,
			Findings:    screened.Findings,
		}, nil
	}

	result, err := e.persist(ctx, job)
	if err != nil {
		return nil, NewEngineError("Ingest", err)
	}
	return result, nil
}

// captureJob is the embedding+storage portion of one ingestion, either run
// inline or handed to the capture queue.
type captureJob struct {
	text        string
	contentHash string
	memType     MemoryType
	kind        ContentKind
	collection  string
	options     *IngestOptions
	findings    []security.Finding
}

// persist is the post-screen pipeline: dedup, supersession, chunk, embed,
// stamp, upsert.
func (e *Engine) persist(ctx context.Context, job *captureJob) (*IngestResult, error) {
	options := job.options

	authority := options.Authority
	if authority == 0 {
		authority = job.memType.DefaultAuthority()
	}

	// Dedup runs on the pre-chunk content and its embedding; comparing
	// chunk fragments against whole records produces false negatives.
	preEmbedding, err := e.embedWithRetry(ctx, job.text, job.kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	decision, existing, err := e.dedup.ShouldStore(ctx, job.collection, &intelligence.Candidate{
		ContentHash:     job.contentHash,
		Embedding:       preEmbedding,
		GroupID:         options.GroupID,
		SourceAuthority: authority,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageOperation, err)
	}

	switch decision {
	case intelligence.DecisionSkip:
		reason := "semantic duplicate"
		if existing != nil && asString(existing.Payload[fieldContentHash]) == job.contentHash {
			reason = "exact duplicate"
		}
		e.recorder.RecordIngest(ctx, job.collection, string(job.memType), options.GroupID, "skipped")
		return &IngestResult{
			Status:        IngestSkipped,
			ContentHash:   job.contentHash,
			Type:          job.memType,
			SkippedReason: reason,
		}, nil

	case intelligence.DecisionMerge:
		// A chunked prior submission stored several records under this hash;
		// the improved authority and the version bump apply to all of them.
		siblings, err := e.store.Scroll(ctx, job.collection, &storage.ScrollOptions{
			GroupID: options.GroupID,
			Filters: map[string]interface{}{fieldContentHash: job.contentHash},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageOperation, err)
		}
		if len(siblings) == 0 {
			siblings = []*storage.Point{existing}
		}

		ids := make([]string, 0, len(siblings))
		for _, p := range siblings {
			p.Payload[fieldSourceAuthority] = authority
			p.Payload[fieldVersion] = int(asFloat(p.Payload[fieldVersion])) + 1
			ids = append(ids, p.ID)
		}
		if err := e.store.Upsert(ctx, job.collection, siblings); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageOperation, err)
		}
		e.recorder.RecordIngest(ctx, job.collection, string(job.memType), options.GroupID, "merged")
		return &IngestResult{
			Status:      IngestMerged,
			StoredIDs:   ids,
			ContentHash: job.contentHash,
			Type:        job.memType,
		}, nil
	}

	version := 1
	if options.ExternalID != "" {
		prior, err := e.supersede(ctx, job.collection, options.GroupID, options.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageOperation, err)
		}
		version = prior + 1
	}

	pieces := chunker.Chunk(job.text, chunker.ContentKind(job.kind), string(job.memType), e.chunking)

	now := time.Now().UTC()
	createdAt := options.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	points := make([]*storage.Point, 0, len(pieces))
	ids := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		vector := preEmbedding
		if len(pieces) > 1 {
			vector, err = e.embedWithRetry(ctx, piece.Content, job.kind)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
			}
		}

		record := &MemoryRecord{
			ID:                recordID(job.contentHash, options.Source, piece.Index),
			Content:           piece.Content,
			ContentHash:       job.contentHash,
			Type:              job.memType,
			Kind:              job.kind,
			Collection:        job.collection,
			GroupID:           options.GroupID,
			Source:            options.Source,
			SourceAuthority:   authority,
			CreatedAt:         createdAt,
			StoredAt:          now,
			DecayHalfLifeDays: job.memType.HalfLifeDays(),
			IsCurrent:         true,
			Version:           version,
			Metadata:          options.Metadata,
		}
		if len(pieces) > 1 {
			record.Chunking = &ChunkingMetadata{
				ChunkIndex:         piece.Index,
				TotalChunks:        piece.Total,
				OriginalSizeTokens: piece.OriginalSizeTokens,
			}
		}

		payload := recordToPayload(record)
		if options.ExternalID != "" {
			payload[fieldExternalID] = options.ExternalID
		}
		points = append(points, &storage.Point{
			ID:      record.ID,
			Vector:  vector,
			Payload: payload,
		})
		ids = append(ids, record.ID)
	}

	// Points are upserted in chunk position order. Identical concurrent
	// ingestions land on identical deterministic ids, so the race resolves
	// to last-write-wins on the same rows.
	if err := e.store.Upsert(ctx, job.collection, points); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageOperation, err)
	}

	e.recorder.RecordIngest(ctx, job.collection, string(job.memType), options.GroupID, "stored")
	return &IngestResult{
		Status:      IngestStored,
		StoredIDs:   ids,
		ContentHash: job.contentHash,
		Type:        job.memType,
		Chunks:      len(pieces),
		Findings:    job.findings,
	}, nil
}

// supersede marks every current version of an external item as superseded and
// returns the highest prior version number.
func (e *Engine) supersede(ctx context.Context, collection, groupID, externalID string) (int, error) {
	prior, err := e.store.Scroll(ctx, collection, &storage.ScrollOptions{
		GroupID: groupID,
		Filters: map[string]interface{}{fieldExternalID: externalID},
	})
	if err != nil {
		return 0, err
	}

	maxVersion := 0
	var updates []*storage.Point
	for _, p := range prior {
		if v := int(asFloat(p.Payload[fieldVersion])); v > maxVersion {
			maxVersion = v
		}
		if asBool(p.Payload[fieldIsCurrent]) {
			p.Payload[fieldIsCurrent] = false
			updates = append(updates, p)
		}
	}
	if len(updates) > 0 {
		if err := e.store.Upsert(ctx, collection, updates); err != nil {
			return 0, err
		}
	}
	return maxVersion, nil
}

// embedWithRetry retries transient embedding failures with a short backoff
// before giving up.
func (e *Engine) embedWithRetry(ctx context.Context, text string, kind ContentKind) ([]float64, error) {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		vector, err := e.embedder.Embed(ctx, text, embedder.ContentKind(kind))
		if err == nil {
			return vector, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// IngestDocument feeds one composed sync document through the pipeline. It
// implements the sync framework's ingestor contract.
func (e *Engine) IngestDocument(ctx context.Context, doc *syncer.Document) (syncer.Outcome, error) {
	opts := []IngestOption{
		WithGroupID(doc.GroupID),
		WithSource(doc.Source),
		WithTypeHint(MemoryType(doc.TypeHint)),
	}
	if doc.ExternalID != "" {
		opts = append(opts, WithExternalID(doc.ExternalID))
	}
	if !doc.CreatedAt.IsZero() {
		opts = append(opts, WithCreatedAt(doc.CreatedAt))
	}
	if doc.Authority > 0 {
		opts = append(opts, WithAuthority(doc.Authority))
	}
	if doc.Metadata != nil {
		opts = append(opts, WithMetadata(doc.Metadata))
	}

	result, err := e.Ingest(ctx, doc.Content, opts...)
	if err != nil {
		return "", err
	}

	switch result.Status {
	case IngestStored, IngestMerged:
		return syncer.OutcomeIngested, nil
	default:
		return syncer.OutcomeSkipped, nil
	}
}

// hashContent returns the hex SHA-256 of content.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// recordID derives the deterministic record id from the content hash, source
// and chunk position.
func recordID(contentHash, source string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", contentHash, source, chunkIndex)))
	return hex.EncodeToString(sum[:])
}
