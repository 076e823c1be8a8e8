// Package observability provides OpenTelemetry metrics, tracing, and log correlation for the
// past-performance service.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameSearchDuration        = "pp_search_duration_seconds"
	MetricNameSearchResults         = "pp_search_results"
	MetricNameSearchErrors          = "pp_search_errors_total"
	MetricNameBackendCalls          = "pp_backend_calls_total"
	MetricNameBackendDuration       = "pp_backend_call_duration_seconds"
	MetricNameBreakerStateChanges   = "pp_backend_breaker_state_changes_total"
	MetricNameIngestOutcomes        = "pp_ingest_outcomes_total"
	MetricNameIngestDuration        = "pp_ingest_duration_seconds"
	MetricNameChunksProduced        = "pp_chunks_produced_total"
	MetricNamePendingChunks         = "pp_pending_chunks"
	MetricNameNarrativeOutcomes     = "pp_capability_narratives_total"
	MetricNameCacheHits             = "pp_cache_hits_total"
	MetricNameCacheMisses           = "pp_cache_misses_total"
	MetricNameCacheLoadFailures     = "pp_cache_load_failures_total"
	MetricNameRequestBodyTooLarge   = "pp_api_request_body_too_large_total"
	MetricNameHTTPRequests          = "pp_http_requests_total"
	MetricNameHTTPRequestDuration   = "pp_http_request_duration_seconds"
	MetricNameTechnologiesProposed  = "pp_technologies_proposed_total"
	MetricNameIngestJobsEnqueued    = "pp_ingest_jobs_enqueued_total"
	MetricNameReembedJobsEnqueued   = "pp_reembed_jobs_enqueued_total"
	MetricNameNarrativeJobsEnqueued = "pp_narrative_jobs_enqueued_total"
)

// Attribute keys.
const (
	AttrReason      = "reason"
	AttrStatus      = "status"
	AttrOperation   = "operation"
	AttrMode        = "mode"
	AttrChunkType   = "chunk_type"
	AttrState       = "state"
	AttrMethod      = "method"
	AttrRoute       = "route"
	AttrStatusClass = "status_class"
)

// AllowedSearchModes for pp_search_* metrics.
var AllowedSearchModes = map[string]bool{
	"project_context": true,
	"freetext":        true,
	"research":        true,
	"context":         true,
}

// AllowedSearchErrorReasons for pp_search_errors_total.
var AllowedSearchErrorReasons = map[string]bool{
	"validation":    true,
	"configuration": true,
	"not_found":     true,
	"transient":     true,
	"canceled":      true,
	"internal":      true,
}

// AllowedBackendOperations for pp_backend_* metrics.
var AllowedBackendOperations = map[string]bool{
	"embed":    true,
	"complete": true,
}

// AllowedBackendStatuses for pp_backend_calls_total and pp_backend_call_duration_seconds.
var AllowedBackendStatuses = map[string]bool{
	"success":      true,
	"retry":        true,
	"failed":       true,
	"breaker_open": true,
	"canceled":     true,
}

// AllowedBreakerStates for pp_backend_breaker_state_changes_total.
var AllowedBreakerStates = map[string]bool{
	"closed":    true,
	"half-open": true,
	"open":      true,
}

// AllowedIngestStatuses for pp_ingest_outcomes_total and pp_ingest_duration_seconds.
var AllowedIngestStatuses = map[string]bool{
	"success":    true,
	"partial":    true,
	"superseded": true,
	"data_error": true,
	"failed":     true,
}

// AllowedNarrativeStatuses for pp_capability_narratives_total.
var AllowedNarrativeStatuses = map[string]bool{
	"installed": true,
	"stale":     true,
	"failed":    true,
}

// AllowedCacheNames for pp_cache_* metrics.
var AllowedCacheNames = map[string]bool{
	"query_embedding": true,
	"research":        true,
}

// AllowedChunkTypes for pp_chunks_produced_total.
var AllowedChunkTypes = map[string]bool{
	"project_level":    true,
	"capability_level": true,
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeCacheName returns name if it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, AllowedCacheNames)
}
