package middleware

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
)

// UUID-like path segment (e.g. 550e8400-e29b-41d4-a716-446655440000).
var uuidSegmentRegex = regexp.MustCompile(`/[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}(/|$)`)

// Metrics returns middleware that records HTTP request count and duration via APIMetrics.
// When metrics is nil, recording is skipped. The route label is the chi route pattern when
// the request was routed, so /v1/past-performances/{id}/archive stays one series.
func Metrics(metrics observability.APIMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			metrics.RecordRequest(r.Context(), r.Method, routeLabel(r), statusToClass(rw.statusCode), time.Since(start))
		})
	}
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}

		return "unmatched"
	}

	return normalizeRoute(r.URL.Path)
}

// normalizeRoute replaces UUID-like path segments with {id} to bound cardinality.
func normalizeRoute(path string) string {
	return uuidSegmentRegex.ReplaceAllString(path, "/{id}$1")
}

// statusToClass maps HTTP status code to 1xx, 2xx, 3xx, 4xx, 5xx.
func statusToClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status >= 100:
		return "1xx"
	default:
		return "unknown"
	}
}
