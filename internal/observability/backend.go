package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BackendMetrics records embed and complete calls made through the backend gateway.
type BackendMetrics interface {
	RecordCall(ctx context.Context, operation, status string, duration time.Duration)
	RecordBreakerStateChange(ctx context.Context, operation, to string)
}

type backendMetrics struct {
	calls         metric.Int64Counter
	duration      metric.Float64Histogram
	breakerChange metric.Int64Counter
}

// NewBackendMetrics creates BackendMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewBackendMetrics(meter metric.Meter) (BackendMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	calls, err := meter.Int64Counter(
		MetricNameBackendCalls,
		metric.WithDescription("Total backend call attempts by operation and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create backend calls counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameBackendDuration,
		metric.WithDescription("Backend call attempt duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create backend duration histogram: %w", err)
	}

	breakerChange, err := meter.Int64Counter(
		MetricNameBreakerStateChanges,
		metric.WithDescription("Circuit breaker transitions by operation and target state"),
	)
	if err != nil {
		return nil, fmt.Errorf("create breaker state counter: %w", err)
	}

	return &backendMetrics{calls: calls, duration: duration, breakerChange: breakerChange}, nil
}

func (b *backendMetrics) RecordCall(ctx context.Context, operation, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrOperation, NormalizeReason(operation, AllowedBackendOperations)),
		attribute.String(AttrStatus, NormalizeReason(status, AllowedBackendStatuses)),
	)
	b.calls.Add(ctx, 1, attrs)
	b.duration.Record(ctx, duration.Seconds(), attrs)
}

func (b *backendMetrics) RecordBreakerStateChange(ctx context.Context, operation, to string) {
	b.breakerChange.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrOperation, NormalizeReason(operation, AllowedBackendOperations)),
		attribute.String(AttrState, NormalizeReason(to, AllowedBreakerStates)),
	))
}
