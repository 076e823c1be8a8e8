package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

// RequestID runs first in the chain: ensures every request has an X-Request-ID in context
// and in the response header. A client-sent ID is propagated when it is short enough;
// otherwise a UUIDv7 is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.Must(uuid.NewV7()).String()
		}

		ctx := context.WithValue(r.Context(), observability.RequestIDKey, id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request ID stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(observability.RequestIDKey).(string)

	return id
}
