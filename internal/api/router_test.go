package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/handlers"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/service"
)

const testAPIKey = "test-key"

type stubCapabilities struct{}

func (stubCapabilities) Unified() []models.UnifiedCapability {
	return []models.UnifiedCapability{{TechnologyKey: "aws", TechnologyName: "AWS", ProjectCount: 1}}
}

type stubIngestion struct{}

func (stubIngestion) Submit(_ context.Context, req *service.IngestRequest) (*service.IngestAck, error) {
	return &service.IngestAck{RecordID: req.RecordID, ProfileVersion: 1}, nil
}

func (stubIngestion) Archive(_ context.Context, id uuid.UUID) (*models.PastPerformanceRecord, error) {
	return &models.PastPerformanceRecord{ID: id, Status: models.RecordStatusArchived}, nil
}

type routeRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (r *routeRecorder) RecordRequest(_ context.Context, _, route, _ string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = append(r.routes, route)
}

func (r *routeRecorder) RecordRequestBodyTooLarge(context.Context) {}

func newTestRouter(cfg RouterConfig) http.Handler {
	cfg.APIKey = testAPIKey

	return NewRouter(Handlers{
		Health:               handlers.NewHealthHandler(nil, nil),
		Search:               handlers.NewSearchHandler(nil),
		Technologies:         handlers.NewTechnologiesHandler(nil),
		Capabilities:         handlers.NewCapabilitiesHandler(stubCapabilities{}),
		Ingest:               handlers.NewIngestHandler(stubIngestion{}),
		SearchConfigurations: handlers.NewSearchConfigurationsHandler(nil),
	}, cfg)
}

func serve(h http.Handler, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	if authorized {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestRouter_HealthIsPublic(t *testing.T) {
	rec := serve(newTestRouter(RouterConfig{}), http.MethodGet, "/health", "", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRouter_V1RequiresAPIKey(t *testing.T) {
	router := newTestRouter(RouterConfig{})

	rec := serve(router, http.MethodGet, "/v1/capabilities/unified", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodGet, "/v1/capabilities/unified", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"aws"`)
}

func TestRouter_ArchiveRoute(t *testing.T) {
	metrics := &routeRecorder{}
	router := newTestRouter(RouterConfig{Metrics: metrics})
	id := uuid.New()

	rec := serve(router, http.MethodPost, "/v1/past-performances/"+id.String()+"/archive", "", true)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), id.String())

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []string{"/v1/past-performances/{id}/archive"}, metrics.routes)
}

func TestRouter_MaxBody(t *testing.T) {
	router := newTestRouter(RouterConfig{MaxRequestBodyBytes: 64})

	body := `{"recordID":"` + uuid.NewString() + `","unifiedText":"` + strings.Repeat("x", 200) + `"}`
	rec := serve(router, http.MethodPost, "/v1/ingest", body, true)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	rec := serve(newTestRouter(RouterConfig{}), http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	exporter := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pp_http_requests_total 1\n"))
	})

	rec = serve(newTestRouter(RouterConfig{MetricsHandler: exporter}), http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pp_http_requests_total")
}

func TestRouter_UnknownRoute(t *testing.T) {
	rec := serve(newTestRouter(RouterConfig{}), http.MethodGet, "/v1/nope", "", true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
