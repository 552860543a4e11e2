// Package metrics provides OpenTelemetry instrumentation for the memory
// engine. All instruments are optional: a nil Recorder (or one built without a
// meter) records nothing, so callers never guard their hot paths.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder holds the engine's metric instruments.
//
// Instruments are created once by NewRecorder and reused for every operation.
// Every recording method is safe to call on a nil receiver.
type Recorder struct {
	// ingestCounter counts ingestion outcomes, labeled by collection,
	// memory type, tenant and outcome (stored/skipped/merged/blocked/failed).
	ingestCounter metric.Int64Counter

	// retrieveCounter counts retrieval requests, labeled by collection and
	// tenant.
	retrieveCounter metric.Int64Counter

	// syncCounter counts sync item outcomes, labeled by source kind and
	// outcome (ingested/skipped/failed).
	syncCounter metric.Int64Counter

	// durationHistogram records operation durations in milliseconds, labeled
	// by operation name.
	durationHistogram metric.Float64Histogram
}

// NewRecorder creates a Recorder from an OpenTelemetry meter.
//
// Parameters:
//   - meter: The meter to create instruments from; nil yields a no-op Recorder
//
// Returns the recorder and any instrument-creation error.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		return nil, nil
	}

	r := &Recorder{}
	var err error

	r.ingestCounter, err = meter.Int64Counter(
		"engram.ingest.outcomes",
		metric.WithDescription("Ingestion outcomes by collection, type, tenant and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest counter: %w", err)
	}

	r.retrieveCounter, err = meter.Int64Counter(
		"engram.retrieve.requests",
		metric.WithDescription("Retrieval requests by collection and tenant"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create retrieve counter: %w", err)
	}

	r.syncCounter, err = meter.Int64Counter(
		"engram.sync.items",
		metric.WithDescription("Sync item outcomes by source kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sync counter: %w", err)
	}

	r.durationHistogram, err = meter.Float64Histogram(
		"engram.operation.duration",
		metric.WithDescription("Operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return r, nil
}

// RecordIngest counts one ingestion outcome.
func (r *Recorder) RecordIngest(ctx context.Context, collection, memoryType, groupID, outcome string) {
	if r == nil || r.ingestCounter == nil {
		return
	}
	r.ingestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("memory_type", memoryType),
		attribute.String("group_id", groupID),
		attribute.String("outcome", outcome),
	))
}

// RecordRetrieve counts one retrieval request.
func (r *Recorder) RecordRetrieve(ctx context.Context, collection, groupID string) {
	if r == nil || r.retrieveCounter == nil {
		return
	}
	r.retrieveCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("group_id", groupID),
	))
}

// RecordSyncItem counts one sync item outcome for a source kind.
func (r *Recorder) RecordSyncItem(ctx context.Context, sourceKind, outcome string) {
	if r == nil || r.syncCounter == nil {
		return
	}
	r.syncCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source_kind", sourceKind),
		attribute.String("outcome", outcome),
	))
}

// RecordDuration records the wall-clock duration of a named operation.
func (r *Recorder) RecordDuration(ctx context.Context, operation string, elapsed time.Duration) {
	if r == nil || r.durationHistogram == nil {
		return
	}
	r.durationHistogram.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
