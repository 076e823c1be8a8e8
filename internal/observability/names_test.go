package observability

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestNormalizeReason(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		allowed  map[string]bool
		expected string
	}{
		{"known search mode", "freetext", AllowedSearchModes, "freetext"},
		{"unknown search mode", "vector", AllowedSearchModes, "other"},
		{"known backend status", "breaker_open", AllowedBackendStatuses, "breaker_open"},
		{"empty backend status", "", AllowedBackendStatuses, "other"},
		{"known ingest status", "superseded", AllowedIngestStatuses, "superseded"},
		{"known breaker state", "half-open", AllowedBreakerStates, "half-open"},
		{"unknown chunk type", "sentence", AllowedChunkTypes, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeReason(tt.input, tt.allowed)
			if got != tt.expected {
				t.Errorf("NormalizeReason(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeCacheName(t *testing.T) {
	if got := NormalizeCacheName("research"); got != "research" {
		t.Errorf("NormalizeCacheName(research) = %q", got)
	}

	if got := NormalizeCacheName("webhook_list"); got != "other" {
		t.Errorf("NormalizeCacheName(webhook_list) = %q, want other", got)
	}
}

func TestNewMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(nil)
	if err != nil || m != nil {
		t.Fatalf("NewMetrics(nil) = %v, %v; want nil, nil", m, err)
	}
}

func TestNewMetricsRecords(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()
	m.Search.RecordSearch(ctx, "freetext", 10*time.Millisecond, 4)
	m.Search.RecordSearchError(ctx, "research", "transient")
	m.Backend.RecordCall(ctx, "embed", "success", time.Second)
	m.Backend.RecordBreakerStateChange(ctx, "complete", "open")
	m.Ingestion.RecordIngest(ctx, "success", time.Second)
	m.Ingestion.RecordChunksProduced(ctx, "capability_level", 3)
	m.Ingestion.SetPendingChunks(2)
	m.Cache.RecordHit(ctx, "query_embedding")
	m.Cache.RecordLoadFailure(ctx, "research")
	m.API.RecordRequest(ctx, "POST", "/v1/search/freetext", "2xx", 20*time.Millisecond)
	m.API.RecordRequestBodyTooLarge(ctx)
}
