package handlers

import (
	"net/http"
	"time"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/response"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// CapabilitiesService defines the interface for reading unified capabilities.
type CapabilitiesService interface {
	Unified() []models.UnifiedCapability
}

// CapabilitiesHandler handles HTTP requests for unified capabilities.
type CapabilitiesHandler struct {
	service CapabilitiesService
}

// NewCapabilitiesHandler creates a new capabilities handler.
func NewCapabilitiesHandler(service CapabilitiesService) *CapabilitiesHandler {
	return &CapabilitiesHandler{service: service}
}

// UnifiedCapabilityItem is one rollup in API form. RecentUsage is a calendar date.
type UnifiedCapabilityItem struct {
	Name          string  `json:"name"`
	ProjectCount  int     `json:"projectCount"`
	TotalYears    float64 `json:"totalYears"`
	RecentUsage   *string `json:"recentUsage"`
	NarrativeText string  `json:"narrativeText"`
	Version       int64   `json:"version"`
}

// Unified handles GET /v1/capabilities/unified. The response is keyed by technology key.
func (h *CapabilitiesHandler) Unified(w http.ResponseWriter, _ *http.Request) {
	rollups := h.service.Unified()

	out := make(map[string]UnifiedCapabilityItem, len(rollups))

	for i := range rollups {
		c := &rollups[i]

		var recent *string
		if c.MostRecentUsage != nil {
			d := c.MostRecentUsage.Format(time.DateOnly)
			recent = &d
		}

		out[c.TechnologyKey] = UnifiedCapabilityItem{
			Name:          c.TechnologyName,
			ProjectCount:  c.ProjectCount,
			TotalYears:    c.TotalExperienceYears,
			RecentUsage:   recent,
			NarrativeText: c.Narrative,
			Version:       c.Version,
		}
	}

	response.RespondJSON(w, http.StatusOK, out)
}
