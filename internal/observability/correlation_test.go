package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
)

func logLine(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()

	var buf bytes.Buffer

	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))
	logger.InfoContext(ctx, "ingest: committed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}

	return line
}

func TestCorrelationHandler(t *testing.T) {
	recordID := uuid.New()

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = WithJob(WithRecordID(ctx, recordID), "ingest", 42)

	line := logLine(t, ctx)

	if line["request_id"] != "req-1" {
		t.Errorf("request_id = %v", line["request_id"])
	}

	if line["record_id"] != recordID.String() {
		t.Errorf("record_id = %v, want %s", line["record_id"], recordID)
	}

	if line["job_kind"] != "ingest" || line["job_id"] != float64(42) {
		t.Errorf("job = %v/%v", line["job_kind"], line["job_id"])
	}

	if _, ok := line["trace_id"]; ok {
		t.Error("trace_id set without a span")
	}
}

func TestCorrelationHandler_NilRecordIsOmitted(t *testing.T) {
	line := logLine(t, WithRecordID(context.Background(), uuid.Nil))

	if _, ok := line["record_id"]; ok {
		t.Errorf("record_id = %v, want absent", line["record_id"])
	}
}

func TestJobSampler(t *testing.T) {
	s := jobSampler{base: sdktrace.AlwaysSample(), jobs: sdktrace.NeverSample()}

	tests := []struct {
		name string
		want sdktrace.SamplingDecision
	}{
		{"job.pending_sweep", sdktrace.Drop},
		{"job.ingest", sdktrace.Drop},
		{"POST /v1/search/freetext", sdktrace.RecordAndSample},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ShouldSample(sdktrace.SamplingParameters{ParentContext: context.Background(), Name: tt.name})
			if got.Decision != tt.want {
				t.Errorf("decision = %v, want %v", got.Decision, tt.want)
			}
		})
	}
}

func TestNewSampler_JobRatio(t *testing.T) {
	t.Setenv(envTracesSampler, "always_on")
	t.Setenv(envJobTracesRatio, "0")

	s := newSampler()

	job := s.ShouldSample(sdktrace.SamplingParameters{ParentContext: context.Background(), Name: "job.reembed"})
	if job.Decision != sdktrace.Drop {
		t.Errorf("job decision = %v, want drop", job.Decision)
	}

	req := s.ShouldSample(sdktrace.SamplingParameters{ParentContext: context.Background(), Name: "pastperformance-api"})
	if req.Decision != sdktrace.RecordAndSample {
		t.Errorf("request decision = %v, want sample", req.Decision)
	}
}

func TestParseTraceIDRatio(t *testing.T) {
	tests := map[string]float64{"": 1, "0.25": 0.25, "2": 1, "-1": 1, "half": 1}
	for in, want := range tests {
		if got := parseTraceIDRatio(in); got != want {
			t.Errorf("parseTraceIDRatio(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJobSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	recordID := uuid.New()
	outcomes := []error{nil, apperrors.NewConsistencyError("superseded"), errors.New("embed failed")}

	for _, err := range outcomes {
		ctx, span := StartJobSpan(context.Background(), "ingest", 9, RecordIDAttr(recordID))
		if !span.SpanContext().IsValid() {
			t.Fatal("job span not recorded")
		}

		if _, ok := RecordIDFromContext(ctx); ok {
			t.Error("StartJobSpan must not invent a record")
		}

		EndJobSpan(span, err)
	}

	ended := recorder.Ended()
	if len(ended) != len(outcomes) {
		t.Fatalf("ended %d spans, want %d", len(ended), len(outcomes))
	}

	wantOutcome := []string{"success", "superseded", "failed"}
	for i, s := range ended {
		if s.Name() != "job.ingest" {
			t.Errorf("span name = %q", s.Name())
		}

		attrs := attribute.NewSet(s.Attributes()...)

		if v, _ := attrs.Value(SpanAttrRecordID); v.AsString() != recordID.String() {
			t.Errorf("record attribute = %q", v.AsString())
		}

		if v, _ := attrs.Value(SpanAttrOutcome); v.AsString() != wantOutcome[i] {
			t.Errorf("outcome = %q, want %q", v.AsString(), wantOutcome[i])
		}

		if wantErr := i == 2; (s.Status().Code == codes.Error) != wantErr {
			t.Errorf("span %d status = %v", i, s.Status().Code)
		}
	}
}
