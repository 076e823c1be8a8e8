package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// APIMetrics records HTTP API metrics: request count and duration per route, and requests
// rejected for an oversized body.
type APIMetrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordRequestBodyTooLarge(ctx context.Context)
}

type apiMetrics struct {
	requestCount        metric.Int64Counter
	requestDuration     metric.Float64Histogram
	requestBodyTooLarge metric.Int64Counter
}

// NewAPIMetrics creates APIMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewAPIMetrics(meter metric.Meter) (APIMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	requestCount, err := meter.Int64Counter(
		MetricNameHTTPRequests,
		metric.WithDescription("Total HTTP requests by method, route and status class"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http requests counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		MetricNameHTTPRequestDuration,
		metric.WithDescription("HTTP request duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http request duration histogram: %w", err)
	}

	desc := "Total number of requests rejected because the request body exceeded the configured limit (413)."

	tooLarge, err := meter.Int64Counter(
		MetricNameRequestBodyTooLarge,
		metric.WithDescription(desc),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request body too large counter: %w", err)
	}

	return &apiMetrics{
		requestCount:        requestCount,
		requestDuration:     requestDuration,
		requestBodyTooLarge: tooLarge,
	}, nil
}

func (a *apiMetrics) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	attrs := attribute.NewSet(
		attribute.String(AttrMethod, method),
		attribute.String(AttrRoute, route),
		attribute.String(AttrStatusClass, statusClass),
	)
	a.requestCount.Add(ctx, 1, metric.WithAttributeSet(attrs))
	a.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(attrs))
}

func (a *apiMetrics) RecordRequestBodyTooLarge(ctx context.Context) {
	a.requestBodyTooLarge.Add(ctx, 1)
}
