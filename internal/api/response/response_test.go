package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
)

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantTitle  string
		retryAfter string
	}{
		{
			name:       "validation",
			err:        apperrors.NewValidationError("query", "must not be empty"),
			wantStatus: http.StatusBadRequest,
			wantTitle:  "Validation Error",
		},
		{
			name:       "configuration",
			err:        fmt.Errorf("resolve weights: %w", apperrors.NewConfigurationError("weights must sum to 1.0")),
			wantStatus: http.StatusBadRequest,
			wantTitle:  "Invalid Configuration",
		},
		{
			name:       "not found",
			err:        apperrors.NewNotFoundError("solicitation", "solicitation not found"),
			wantStatus: http.StatusNotFound,
			wantTitle:  "Not Found",
		},
		{
			name:       "conflict",
			err:        apperrors.NewConflictError("record is archived"),
			wantStatus: http.StatusConflict,
			wantTitle:  "Conflict",
		},
		{
			name:       "transient with hint",
			err:        apperrors.NewTransientError("query embedding pending, try again", 2500*time.Millisecond, nil),
			wantStatus: http.StatusServiceUnavailable,
			wantTitle:  "Service Unavailable",
			retryAfter: "3",
		},
		{
			name:       "transient without hint",
			err:        fmt.Errorf("embed: %w", apperrors.NewTransientError("backend unavailable", 0, nil)),
			wantStatus: http.StatusServiceUnavailable,
			wantTitle:  "Service Unavailable",
			retryAfter: "1",
		},
		{
			name:       "unknown",
			err:        errors.New("connection reset by peer"),
			wantStatus: http.StatusInternalServerError,
			wantTitle:  "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/search/freetext", nil)
			rec := httptest.NewRecorder()

			RespondServiceError(rec, req, tt.err, "Search failed")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))

			var problem ProblemDetails
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
			assert.Equal(t, tt.wantTitle, problem.Title)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, "about:blank", problem.Type)
		})
	}
}

func TestRespondServiceError_ValidationDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", nil)
	rec := httptest.NewRecorder()

	RespondServiceError(rec, req, apperrors.NewValidationError("unifiedText", "must not be empty"), "Ingest failed")

	var problem ProblemDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "unifiedText", problem.Errors[0].Location)
	assert.Equal(t, "must not be empty", problem.Errors[0].Message)
}

func TestRespondServiceError_HidesInternalDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/technologies", nil)
	rec := httptest.NewRecorder()

	RespondServiceError(rec, req, errors.New("pq: password authentication failed"), "Failed to list technologies")

	var problem ProblemDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, "Failed to list technologies", problem.Detail)
}

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	RespondJSON(rec, http.StatusAccepted, map[string]int{"profileVersion": 2})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"profileVersion":2}`, rec.Body.String())
}
