package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type (
	requestIDKey struct{}
	recordIDKey  struct{}
	jobKey       struct{}
)

// RequestIDKey is the context key for the request ID (X-Request-ID). The RequestID middleware sets it.
var RequestIDKey = &requestIDKey{}

type jobRef struct {
	kind string
	id   int64
}

// WithRecordID tags ctx with the past-performance record being worked on, so every log line
// written under ctx carries record_id.
func WithRecordID(ctx context.Context, recordID uuid.UUID) context.Context {
	return context.WithValue(ctx, recordIDKey{}, recordID)
}

// RecordIDFromContext returns the record set by WithRecordID.
func RecordIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(recordIDKey{}).(uuid.UUID)

	return id, ok && id != uuid.Nil
}

// WithJob tags ctx with the River job being worked.
func WithJob(ctx context.Context, kind string, jobID int64) context.Context {
	return context.WithValue(ctx, jobKey{}, jobRef{kind: kind, id: jobID})
}

// CorrelationHandler wraps a slog.Handler and adds the correlation IDs found in the context:
// trace_id and span_id, request_id for API calls, record_id, job_kind and job_id for pipeline work.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler returns a handler that adds correlation IDs to records.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

// Enabled reports whether the inner handler is enabled for the given level.
func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds the correlation attributes, then forwards to the inner handler.
func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)

	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("inner handler: %w", err)
	}

	return nil
}

func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}

	if id, ok := RecordIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("record_id", id.String()))
	}

	if job, ok := ctx.Value(jobKey{}).(jobRef); ok {
		attrs = append(attrs, slog.String("job_kind", job.kind), slog.Int64("job_id", job.id))
	}

	return attrs
}

// WithAttrs returns a handler whose attributes are the concatenation of the inner's and attrs.
func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a handler for the given group.
func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
