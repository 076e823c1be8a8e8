// Package response writes JSON and RFC 7807 Problem Details responses.
package response

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
)

// ErrorDetail represents a single error detail in RFC 7807 Problem Details
type ErrorDetail struct {
	Location string `json:"location,omitempty"`
	Message  string `json:"message,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details error response
type ProblemDetails struct {
	Type     string        `json:"type,omitempty"`
	Title    string        `json:"title"`
	Status   int           `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Instance string        `json:"instance,omitempty"`
	Errors   []ErrorDetail `json:"errors,omitempty"`
}

// defaultRetryAfter is sent with 503 responses whose error carries no retry hint.
const defaultRetryAfter = time.Second

// RespondProblem writes problem as an RFC 7807 response with its own status.
func RespondProblem(w http.ResponseWriter, problem *ProblemDetails) {
	if problem.Type == "" {
		problem.Type = "about:blank"
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// RespondError writes an RFC 7807 Problem Details error response
func RespondError(w http.ResponseWriter, statusCode int, title string, detail string) {
	RespondProblem(w, &ProblemDetails{
		Title:  title,
		Status: statusCode,
		Detail: detail,
	})
}

// RespondBadRequest writes a 400 Bad Request error response
func RespondBadRequest(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusBadRequest, "Bad Request", detail)
}

// RespondUnauthorized writes a 401 Unauthorized error response
func RespondUnauthorized(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// RespondNotFound writes a 404 Not Found error response
func RespondNotFound(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusNotFound, "Not Found", detail)
}

// RespondInternalServerError writes a 500 Internal Server Error response
func RespondInternalServerError(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// RespondServiceUnavailable writes a 503 with a Retry-After header (whole seconds, at least 1).
func RespondServiceUnavailable(w http.ResponseWriter, detail string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}

	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	RespondError(w, http.StatusServiceUnavailable, "Service Unavailable", detail)
}

// RespondServiceError maps a service-layer error to its HTTP status:
//   - validation and configuration errors are 400
//   - not found is 404, conflict is 409, limit exceeded is 403
//   - transient failures are 503 with Retry-After
//
// Anything else is logged and answered with a generic 500 carrying fallback.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		validationErr *apperrors.ValidationError
		transientErr  *apperrors.TransientError
	)

	switch {
	case errors.As(err, &validationErr):
		problem := &ProblemDetails{
			Title:  "Validation Error",
			Status: http.StatusBadRequest,
			Detail: validationErr.Error(),
		}
		if validationErr.Field != "" {
			problem.Errors = []ErrorDetail{{Location: validationErr.Field, Message: validationErr.Message}}
		}

		RespondProblem(w, problem)
	case errors.Is(err, apperrors.ErrConfiguration):
		RespondError(w, http.StatusBadRequest, "Invalid Configuration", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		RespondNotFound(w, err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		RespondError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, apperrors.ErrLimitExceeded):
		RespondError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.As(err, &transientErr):
		slog.WarnContext(r.Context(), "request failed with transient error",
			"method", r.Method, "path", r.URL.Path, "error", err)
		RespondServiceUnavailable(w, cmp.Or(transientErr.Message, "temporarily unavailable, try again"), transientErr.RetryAfter)
	case errors.Is(err, context.DeadlineExceeded):
		slog.WarnContext(r.Context(), "request timed out", "method", r.Method, "path", r.URL.Path)
		RespondServiceUnavailable(w, "request timed out, try again", 0)
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		RespondInternalServerError(w, fallback)
	}
}

// RespondJSON writes a JSON response directly without wrapping
func RespondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
