package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/response"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/validation"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/service"
)

// TechnologiesService defines the interface for vocabulary review.
type TechnologiesService interface {
	List() *service.TechnologyListing
	Approve(ctx context.Context, ids []uuid.UUID) ([]models.Technology, error)
	Reject(ctx context.Context, ids []uuid.UUID) ([]models.Technology, error)
}

// TechnologiesHandler handles HTTP requests for the technology vocabulary.
type TechnologiesHandler struct {
	service TechnologiesService
}

// NewTechnologiesHandler creates a new technologies handler.
func NewTechnologiesHandler(service TechnologiesService) *TechnologiesHandler {
	return &TechnologiesHandler{service: service}
}

// ListTechnologiesParams are the query parameters of GET /v1/technologies.
type ListTechnologiesParams struct {
	Category models.TechnologyCategory `form:"category" validate:"omitempty,technology_category"`
}

// TechnologyStateRequest is the body for approve and reject.
type TechnologyStateRequest struct {
	TechnologyIDs []uuid.UUID `json:"technologyIDs" validate:"required,min=1,max=500"`
}

// TechnologyItem is a vocabulary entry in API form.
type TechnologyItem struct {
	ID         uuid.UUID `json:"id"`
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Aliases    []string  `json:"aliases"`
	State      string    `json:"state"`
	UsageCount int64     `json:"usageCount"`
}

// TechnologyListResponse is the response for GET /v1/technologies.
type TechnologyListResponse struct {
	Approved        []TechnologyItem `json:"approved"`
	PendingApproval []TechnologyItem `json:"pendingApproval"`
	Categories      []string         `json:"categories"`
}

// TechnologyStateResponse lists the technologies an approve or reject call touched.
type TechnologyStateResponse struct {
	Updated []TechnologyItem `json:"updated"`
}

// List handles GET /v1/technologies.
func (h *TechnologiesHandler) List(w http.ResponseWriter, r *http.Request) {
	var params ListTechnologiesParams
	if err := validation.ValidateAndDecodeQueryParams(r, &params); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	listing := h.service.List()

	categories := make([]string, len(listing.Categories))
	for i, c := range listing.Categories {
		categories[i] = string(c)
	}

	response.RespondJSON(w, http.StatusOK, TechnologyListResponse{
		Approved:        toTechnologyItems(listing.Approved, params.Category),
		PendingApproval: toTechnologyItems(listing.PendingApproval, params.Category),
		Categories:      categories,
	})
}

// Approve handles POST /v1/technologies/approve.
func (h *TechnologiesHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.changeState(w, r, h.service.Approve)
}

// Reject handles POST /v1/technologies/reject.
func (h *TechnologiesHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.changeState(w, r, h.service.Reject)
}

func (h *TechnologiesHandler) changeState(
	w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, ids []uuid.UUID) ([]models.Technology, error),
) {
	var req TechnologyStateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updated, err := apply(r.Context(), req.TechnologyIDs)
	if err != nil {
		response.RespondServiceError(w, r, err, "Failed to update technologies")
		return
	}

	response.RespondJSON(w, http.StatusOK, TechnologyStateResponse{Updated: toTechnologyItems(updated, "")})
}

// toTechnologyItems converts techs, keeping only category when it is set.
func toTechnologyItems(techs []models.Technology, category models.TechnologyCategory) []TechnologyItem {
	items := make([]TechnologyItem, 0, len(techs))

	for i := range techs {
		t := &techs[i]
		if category != "" && t.Category != category {
			continue
		}

		aliases := t.Aliases
		if aliases == nil {
			aliases = []string{}
		}

		items = append(items, TechnologyItem{
			ID:         t.ID,
			Key:        t.Key,
			Name:       t.Name,
			Category:   string(t.Category),
			Aliases:    aliases,
			State:      string(t.State),
			UsageCount: t.UsageCount,
		})
	}

	return items
}
