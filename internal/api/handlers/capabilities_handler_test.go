package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

type stubCapabilities []models.UnifiedCapability

func (s stubCapabilities) Unified() []models.UnifiedCapability { return s }

func TestCapabilitiesHandler_Unified(t *testing.T) {
	recent := time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC)

	handler := NewCapabilitiesHandler(stubCapabilities{
		{
			TechnologyKey:        "aws",
			TechnologyName:       "AWS",
			ProjectCount:         3,
			TotalExperienceYears: 7.5,
			MostRecentUsage:      &recent,
			Narrative:            "Three programs on AWS GovCloud.",
			Version:              2,
		},
		{TechnologyKey: "cobol", TechnologyName: "COBOL", ProjectCount: 1, TotalExperienceYears: 2},
	})

	rec := httptest.NewRecorder()
	handler.Unified(rec, httptest.NewRequest(http.MethodGet, "/v1/capabilities/unified", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]UnifiedCapabilityItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 2)

	aws := resp["aws"]
	assert.Equal(t, "AWS", aws.Name)
	assert.Equal(t, 3, aws.ProjectCount)
	assert.InDelta(t, 7.5, aws.TotalYears, 1e-9)
	require.NotNil(t, aws.RecentUsage)
	assert.Equal(t, "2024-03-31", *aws.RecentUsage)
	assert.Equal(t, int64(2), aws.Version)

	assert.Nil(t, resp["cobol"].RecentUsage)
	assert.Empty(t, resp["cobol"].NarrativeText)
}

func TestCapabilitiesHandler_UnifiedEmpty(t *testing.T) {
	handler := NewCapabilitiesHandler(stubCapabilities(nil))

	rec := httptest.NewRecorder()
	handler.Unified(rec, httptest.NewRequest(http.MethodGet, "/v1/capabilities/unified", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}
