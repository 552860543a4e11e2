package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/engram-ai/engram-go/pkg/metrics"
	"github.com/engram-ai/engram-go/pkg/storage"
)

// ErrCircuitOpen is returned when a run stops because the circuit breaker
// opened.
var ErrCircuitOpen = errors.New("syncer: circuit open")

// Outcome is the per-item result an ingestor reports back to the runner.
type Outcome string

const (
	// OutcomeIngested means the item was stored or merged.
	OutcomeIngested Outcome = "ingested"

	// OutcomeSkipped means the item was suppressed (duplicate or policy
	// block). Skips are expected, not failures.
	OutcomeSkipped Outcome = "skipped"
)

// Ingestor hands composed documents to the shared ingestion pipeline.
type Ingestor interface {
	IngestDocument(ctx context.Context, doc *Document) (Outcome, error)
}

// Runner drives one run-to-completion sync of a source.
//
// The runner owns everything source-independent: pagination via the one
// iterator contract, rate limiting, circuit breaking, per-item fail-open,
// both timeout levels, and cursor persistence. The cursor is persisted only
// after an item's processing fully completes, so an interrupted run replays
// at most the in-flight item and the pipeline's deterministic ids absorb the
// duplicate attempt.
type Runner struct {
	states   storage.StateStore
	ingestor Ingestor

	// Limiter paces upstream page fetches. Nil selects a one-second fixed
	// interval.
	Limiter *Limiter

	// Breaker guards the upstream. Nil selects threshold 5, cooldown 60s.
	Breaker *Breaker

	// PerItemTimeout bounds one item's compose+ingest. Zero selects 30s.
	PerItemTimeout time.Duration

	// TotalTimeout bounds the whole run. Zero selects 10 minutes.
	TotalTimeout time.Duration

	// Metrics receives per-item outcome counts. Nil records nothing.
	Metrics *metrics.Recorder

	// Logger receives fail-open and breaker lines. Nil disables logging.
	Logger *log.Logger

	node *snowflake.Node
}

// NewRunner creates a sync runner over a state store and ingestor.
func NewRunner(states storage.StateStore, ingestor Ingestor) (*Runner, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("syncer: snowflake node: %w", err)
	}
	return &Runner{states: states, ingestor: ingestor, node: node}, nil
}

// Run syncs one source in the given mode.
//
// The returned Result always reflects the work completed, including partial
// runs; the error reports why a run ended early (cancellation, page fetch
// failure, open breaker). Item-level failures never end the run.
func (r *Runner) Run(ctx context.Context, source Source, mode Mode) (*Result, error) {
	runID := r.node.Generate().String()
	started := time.Now()

	totalTimeout := r.TotalTimeout
	if totalTimeout <= 0 {
		totalTimeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	limiter := r.Limiter
	if limiter == nil {
		limiter = NewLimiter(time.Second)
	}
	breaker := r.Breaker
	if breaker == nil {
		breaker = NewBreaker(5, 60*time.Second)
	}

	state, err := r.loadState(ctx, source)
	if err != nil {
		return nil, err
	}

	result := &Result{NewCursor: state.Cursor}
	paginator := NewPaginator(source, mode, state.Cursor)

	runErr := r.runPages(ctx, source, paginator, limiter, breaker, state, result, runID)

	if runErr == nil && result.Failed == 0 {
		state.ErrorCount = 0
		state.LastSuccess = time.Now().UTC()
	} else {
		state.ErrorCount += result.Failed
		if runErr != nil && result.Failed == 0 {
			state.ErrorCount++
		}
	}
	// The final state write happens on its own context so a cancelled run
	// still records its error count and last-success timestamp.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer persistCancel()
	state.UpdatedAt = time.Now().UTC()
	if err := r.states.PutSyncState(persistCtx, state); err != nil && runErr == nil {
		runErr = err
	}

	r.Metrics.RecordDuration(ctx, "sync."+source.Kind(), time.Since(started))
	result.NewCursor = state.Cursor
	return result, runErr
}

func (r *Runner) runPages(ctx context.Context, source Source, paginator *Paginator, limiter *Limiter, breaker *Breaker, state *storage.SyncState, result *Result, runID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !breaker.Allow() {
			r.logf("sync %s %s/%s: circuit open, stopping run", runID, source.Kind(), source.ID())
			return ErrCircuitOpen
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		page, err := paginator.Next(ctx)
		if err != nil {
			breaker.Failure()
			return fmt.Errorf("syncer: fetch page: %w", err)
		}
		if page == nil {
			return nil
		}
		limiter.Observe(page)

		for _, item := range page.Items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !breaker.Allow() {
				r.logf("sync %s %s/%s: circuit open, stopping run", runID, source.Kind(), source.ID())
				return ErrCircuitOpen
			}

			r.processItem(ctx, source, item, breaker, result, runID)

			// A cancelled run must not advance past the in-flight item; it
			// will be replayed and absorbed by the deterministic ids.
			if err := ctx.Err(); err != nil {
				return err
			}

			// The item is fully processed (ingested, skipped, or
			// deliberately fail-opened); its cursor may now be persisted.
			if item.Cursor != "" {
				state.Cursor = item.Cursor
				state.UpdatedAt = time.Now().UTC()
				if err := r.states.PutSyncState(ctx, state); err != nil {
					return fmt.Errorf("syncer: persist cursor: %w", err)
				}
			}
		}

		if page.NextCursor != "" && !page.HasMore {
			state.Cursor = page.NextCursor
		}
	}
}

// processItem composes and ingests one item, fail-open on any error.
func (r *Runner) processItem(ctx context.Context, source Source, item *Item, breaker *Breaker, result *Result, runID string) {
	perItem := r.PerItemTimeout
	if perItem <= 0 {
		perItem = 30 * time.Second
	}
	itemCtx, cancel := context.WithTimeout(ctx, perItem)
	defer cancel()

	doc, err := source.Compose(item)
	if err != nil {
		// Malformed payload: permanent, logged, counted, skipped. Does not
		// trip the breaker since the upstream itself answered.
		result.Failed++
		r.Metrics.RecordSyncItem(ctx, source.Kind(), "failed")
		r.logf("sync %s %s/%s: compose item %s: %v", runID, source.Kind(), source.ID(), item.ID, err)
		return
	}

	outcome, err := r.ingestor.IngestDocument(itemCtx, doc)
	if err != nil {
		result.Failed++
		breaker.Failure()
		r.Metrics.RecordSyncItem(ctx, source.Kind(), "failed")
		r.logf("sync %s %s/%s: ingest item %s: %v", runID, source.Kind(), source.ID(), item.ID, err)
		return
	}

	breaker.Success()
	switch outcome {
	case OutcomeSkipped:
		result.Skipped++
		r.Metrics.RecordSyncItem(ctx, source.Kind(), "skipped")
	default:
		result.Ingested++
		r.Metrics.RecordSyncItem(ctx, source.Kind(), "ingested")
	}
}

func (r *Runner) loadState(ctx context.Context, source Source) (*storage.SyncState, error) {
	state, err := r.states.GetSyncState(ctx, source.Kind(), source.ID())
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, storage.ErrStateNotFound) {
		return nil, fmt.Errorf("syncer: load state: %w", err)
	}

	now := time.Now().UTC()
	return &storage.SyncState{
		SourceKind: source.Kind(),
		SourceID:   source.ID(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (r *Runner) logf(format string, args ...interface{}) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}
