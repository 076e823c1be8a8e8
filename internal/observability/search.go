package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SearchMetrics records search endpoint metrics by mode (project_context, freetext, research, context).
type SearchMetrics interface {
	RecordSearch(ctx context.Context, mode string, duration time.Duration, results int)
	RecordSearchError(ctx context.Context, mode, reason string)
}

type searchMetrics struct {
	duration metric.Float64Histogram
	results  metric.Int64Histogram
	errors   metric.Int64Counter
}

// NewSearchMetrics creates SearchMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewSearchMetrics(meter metric.Meter) (SearchMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	duration, err := meter.Float64Histogram(
		MetricNameSearchDuration,
		metric.WithDescription("Search duration by mode (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search duration histogram: %w", err)
	}

	results, err := meter.Int64Histogram(
		MetricNameSearchResults,
		metric.WithDescription("Total ranked records found per search"),
		metric.WithExplicitBucketBoundaries(0, 1, 3, 6, 10, 25, 50, 100, 250),
	)
	if err != nil {
		return nil, fmt.Errorf("create search results histogram: %w", err)
	}

	errs, err := meter.Int64Counter(
		MetricNameSearchErrors,
		metric.WithDescription("Total failed searches by mode and reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search errors counter: %w", err)
	}

	return &searchMetrics{duration: duration, results: results, errors: errs}, nil
}

func attrMode(mode string) attribute.KeyValue {
	return attribute.String(AttrMode, NormalizeReason(mode, AllowedSearchModes))
}

func (s *searchMetrics) RecordSearch(ctx context.Context, mode string, duration time.Duration, results int) {
	attrs := metric.WithAttributes(attrMode(mode))
	s.duration.Record(ctx, duration.Seconds(), attrs)
	s.results.Record(ctx, int64(results), attrs)
}

func (s *searchMetrics) RecordSearchError(ctx context.Context, mode, reason string) {
	s.errors.Add(ctx, 1, metric.WithAttributes(
		attrMode(mode),
		attribute.String(AttrReason, NormalizeReason(reason, AllowedSearchErrorReasons)),
	))
}
