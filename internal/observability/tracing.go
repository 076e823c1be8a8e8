package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
)

const instrumentationName = "github.com/jzebell/gov-proposal-ai-sub006"

// JobSpanPrefix names the root span of every background job: "job.<kind>".
const JobSpanPrefix = "job."

// Span attribute keys.
const (
	SpanAttrRecordID     = "pp.record_id"
	SpanAttrTechnologyID = "pp.technology_id"
	SpanAttrJobKind      = "pp.job.kind"
	SpanAttrJobID        = "pp.job.id"
	SpanAttrOutcome      = "pp.outcome"
)

// newTraceExporter creates the exporter for OTEL_TRACES_EXPORTER. "otlp" reads
// OTEL_EXPORTER_OTLP_ENDPOINT (and scheme/insecure) from the environment.
func newTraceExporter(ctx context.Context, kind string) (sdktrace.SpanExporter, error) {
	switch kind {
	case "otlp":
		exp, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("create OTLP HTTP trace exporter: %w", err)
		}

		return exp, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}

		return exp, nil
	default:
		return nil, nil
	}
}

// RecordIDAttr is the span attribute for a past-performance record.
func RecordIDAttr(id uuid.UUID) attribute.KeyValue {
	return attribute.String(SpanAttrRecordID, id.String())
}

// TechnologyIDAttr is the span attribute for a taxonomy technology.
func TechnologyIDAttr(id uuid.UUID) attribute.KeyValue {
	return attribute.String(SpanAttrTechnologyID, id.String())
}

// StartJobSpan starts the root span of a River job and tags ctx for log correlation. It uses the
// global tracer provider, which is a no-op when tracing is disabled.
func StartJobSpan(ctx context.Context, kind string, jobID int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = WithJob(ctx, kind, jobID)

	attrs = append(attrs,
		attribute.String(SpanAttrJobKind, kind),
		attribute.Int64(SpanAttrJobID, jobID),
	)

	return otel.Tracer(instrumentationName).Start(ctx, JobSpanPrefix+kind,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
}

// EndJobSpan records how the job ended and ends the span. A superseded run is not an error.
func EndJobSpan(span trace.Span, err error) {
	defer span.End()

	switch {
	case err == nil:
		span.SetAttributes(attribute.String(SpanAttrOutcome, "success"))
	case errors.Is(err, apperrors.ErrConsistency):
		span.SetAttributes(attribute.String(SpanAttrOutcome, "superseded"))
	default:
		span.SetAttributes(attribute.String(SpanAttrOutcome, "failed"))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
