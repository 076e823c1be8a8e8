package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/response"
)

// Auth returns middleware that requires "Authorization: Bearer <apiKey>" on every request.
func Auth(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.RespondUnauthorized(w, "Missing Authorization header")
				return
			}

			// Expected format: "Bearer <api-key>"
			scheme, key, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				response.RespondUnauthorized(w, "Invalid Authorization header format. Expected: Bearer <api-key>")
				return
			}

			key = strings.TrimSpace(key)
			if key == "" {
				response.RespondUnauthorized(w, "API key is empty")
				return
			}

			if subtle.ConstantTimeCompare([]byte(key), want) != 1 {
				response.RespondUnauthorized(w, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
