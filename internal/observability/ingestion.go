package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// IngestionMetrics records the ingestion pipeline, taxonomy proposals, and the jobs it enqueues.
type IngestionMetrics interface {
	RecordIngest(ctx context.Context, status string, duration time.Duration)
	RecordChunksProduced(ctx context.Context, chunkType string, count int)
	RecordTechnologiesProposed(ctx context.Context, count int)
	RecordNarrative(ctx context.Context, status string)
	RecordIngestJobsEnqueued(ctx context.Context, count int)
	RecordReembedJobsEnqueued(ctx context.Context, count int)
	RecordNarrativeJobsEnqueued(ctx context.Context, count int)
	SetPendingChunks(count int)
}

type ingestionMetrics struct {
	outcomes           metric.Int64Counter
	duration           metric.Float64Histogram
	chunks             metric.Int64Counter
	proposed           metric.Int64Counter
	narratives         metric.Int64Counter
	ingestEnqueued     metric.Int64Counter
	reembedEnqueued    metric.Int64Counter
	narrativeEnqueued  metric.Int64Counter
	pendingChunks      atomic.Int64
	pendingChunksGauge metric.Int64ObservableGauge
}

// NewIngestionMetrics creates IngestionMetrics and registers the pending-chunk gauge.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewIngestionMetrics(meter metric.Meter) (IngestionMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	m := &ingestionMetrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.outcomes, MetricNameIngestOutcomes, "Total ingestion runs by status"},
		{&m.chunks, MetricNameChunksProduced, "Total chunks produced by chunk type"},
		{&m.proposed, MetricNameTechnologiesProposed, "Total pending technologies proposed by extraction"},
		{&m.narratives, MetricNameNarrativeOutcomes, "Total capability narrative jobs by status"},
		{&m.ingestEnqueued, MetricNameIngestJobsEnqueued, "Total pp_ingest jobs enqueued"},
		{&m.reembedEnqueued, MetricNameReembedJobsEnqueued, "Total chunk_reembed jobs enqueued"},
		{&m.narrativeEnqueued, MetricNameNarrativeJobsEnqueued, "Total capability_narrative jobs enqueued"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create %s counter: %w", c.name, err)
		}

		*c.dst = counter
	}

	duration, err := meter.Float64Histogram(
		MetricNameIngestDuration,
		metric.WithDescription("Ingestion run duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest duration histogram: %w", err)
	}

	m.duration = duration

	gauge, err := meter.Int64ObservableGauge(
		MetricNamePendingChunks,
		metric.WithDescription("Chunks persisted without a vector (embedding_pending)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.pendingChunks.Load())

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create pending chunks gauge: %w", err)
	}

	m.pendingChunksGauge = gauge

	return m, nil
}

func (m *ingestionMetrics) RecordIngest(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrStatus, NormalizeReason(status, AllowedIngestStatuses)))
	m.outcomes.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}

func (m *ingestionMetrics) RecordChunksProduced(ctx context.Context, chunkType string, count int) {
	m.chunks.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String(AttrChunkType, NormalizeReason(chunkType, AllowedChunkTypes)),
	))
}

func (m *ingestionMetrics) RecordTechnologiesProposed(ctx context.Context, count int) {
	m.proposed.Add(ctx, int64(count))
}

func (m *ingestionMetrics) RecordNarrative(ctx context.Context, status string) {
	m.narratives.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStatus, NormalizeReason(status, AllowedNarrativeStatuses)),
	))
}

func (m *ingestionMetrics) RecordIngestJobsEnqueued(ctx context.Context, count int) {
	m.ingestEnqueued.Add(ctx, int64(count))
}

func (m *ingestionMetrics) RecordReembedJobsEnqueued(ctx context.Context, count int) {
	m.reembedEnqueued.Add(ctx, int64(count))
}

func (m *ingestionMetrics) RecordNarrativeJobsEnqueued(ctx context.Context, count int) {
	m.narrativeEnqueued.Add(ctx, int64(count))
}

func (m *ingestionMetrics) SetPendingChunks(count int) {
	m.pendingChunks.Store(int64(count))
}
