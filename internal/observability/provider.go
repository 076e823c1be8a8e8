package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/config"
)

const (
	serviceName      = "pp-recommender"
	cardinalityLimit = 2000
)

// newResource returns a resource with the service name merged with default.
func newResource() (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("merge resource: %w", err)
	}

	return res, nil
}

// durationView applies second-based buckets to every pp_*_duration_seconds histogram.
// OTel default boundaries are millisecond-oriented.
func durationView() sdkmetric.View {
	bounds := []float64{0, 0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.3, 0.5, 0.75, 1, 2.5, 5, 7.5, 10, 30}

	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: "pp_*_duration_seconds"},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: bounds}},
	)
}

// NewMeterProvider creates a MeterProvider for cfg.OtelMetricsExporter:
//   - "otlp": periodic push over OTLP HTTP; handler is nil.
//   - "prometheus": pull exporter; handler serves /metrics.
//
// Any other value disables metrics and returns (nil, nil, nil).
func NewMeterProvider(cfg *config.Config) (provider *sdkmetric.MeterProvider, handler http.Handler, err error) {
	if cfg == nil {
		return nil, nil, nil
	}

	var reader sdkmetric.Reader

	switch cfg.OtelMetricsExporter {
	case "otlp":
		// SDK reads OTEL_EXPORTER_OTLP_ENDPOINT (and scheme/insecure) from env.
		exp, err := otlpmetrichttp.New(context.Background())
		if err != nil {
			return nil, nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}

		const metricExportInterval = 60 * time.Second

		reader = sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricExportInterval))
	case "prometheus":
		reg := prometheus.NewRegistry()

		exp, err := prometheusexporter.New(prometheusexporter.WithRegisterer(reg))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		reader = exp
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	default:
		return nil, nil, nil
	}

	res, err := newResource()
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	provider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(durationView()),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
	)

	return provider, handler, nil
}

// ShutdownMeterProvider flushes and shuts down the MeterProvider. Safe to call with nil.
func ShutdownMeterProvider(ctx context.Context, provider *sdkmetric.MeterProvider) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}

	return nil
}

// NewTracerProvider creates a TracerProvider when tracing is enabled.
// When cfg.OtelTracesExporter is empty, returns (nil, nil).
func NewTracerProvider(cfg *config.Config) (*sdktrace.TracerProvider, error) {
	if cfg == nil || cfg.OtelTracesExporter == "" {
		//nolint:nilnil // intentional: tracing disabled, caller checks for nil
		return nil, nil
	}

	res, err := newResource()
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	exp, err := newTraceExporter(context.Background(), cfg.OtelTracesExporter)
	if err != nil {
		return nil, err
	}

	if exp == nil {
		//nolint:nilnil // unknown exporter value: treat as disabled, caller checks for nil
		return nil, nil
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler()),
		sdktrace.WithBatcher(exp),
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

// ShutdownTracerProvider flushes and shuts down the TracerProvider. Safe to call with nil.
func ShutdownTracerProvider(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}

	return nil
}
