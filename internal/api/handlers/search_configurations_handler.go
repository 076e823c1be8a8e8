package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/response"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/service"
)

// SearchConfigurationsService defines the interface for named weight sets.
type SearchConfigurationsService interface {
	List(ctx context.Context) ([]models.SearchConfiguration, error)
	Create(ctx context.Context, req *service.CreateSearchConfigurationRequest) (*models.SearchConfiguration, error)
}

// SearchConfigurationsHandler handles HTTP requests for search configurations.
type SearchConfigurationsHandler struct {
	service SearchConfigurationsService
}

// NewSearchConfigurationsHandler creates a new search configurations handler.
func NewSearchConfigurationsHandler(service SearchConfigurationsService) *SearchConfigurationsHandler {
	return &SearchConfigurationsHandler{service: service}
}

// CreateSearchConfigurationBody is the body for POST /v1/search-configurations.
type CreateSearchConfigurationBody struct {
	Name      string      `json:"name"      validate:"required,max=100,no_null_bytes"`
	Weights   WeightsBody `json:"weights"`
	IsDefault bool        `json:"isDefault"`
}

// SearchConfigurationItem is a named weight set in API form.
type SearchConfigurationItem struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Weights   WeightsBody `json:"weights"`
	IsDefault bool        `json:"isDefault"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// SearchConfigurationListResponse is the response for GET /v1/search-configurations.
type SearchConfigurationListResponse struct {
	Data []SearchConfigurationItem `json:"data"`
}

// List handles GET /v1/search-configurations.
func (h *SearchConfigurationsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		response.RespondServiceError(w, r, err, "Failed to list search configurations")
		return
	}

	items := make([]SearchConfigurationItem, len(list))
	for i := range list {
		items[i] = toSearchConfigurationItem(&list[i])
	}

	response.RespondJSON(w, http.StatusOK, SearchConfigurationListResponse{Data: items})
}

// Create handles POST /v1/search-configurations.
func (h *SearchConfigurationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateSearchConfigurationBody
	if !decodeBody(w, r, &body) {
		return
	}

	created, err := h.service.Create(r.Context(), &service.CreateSearchConfigurationRequest{
		Name:      body.Name,
		Weights:   *body.Weights.model(),
		IsDefault: body.IsDefault,
	})
	if err != nil {
		response.RespondServiceError(w, r, err, "Failed to create search configuration")
		return
	}

	response.RespondJSON(w, http.StatusCreated, toSearchConfigurationItem(created))
}

func toSearchConfigurationItem(c *models.SearchConfiguration) SearchConfigurationItem {
	return SearchConfigurationItem{
		ID:   c.ID,
		Name: c.Name,
		Weights: WeightsBody{
			Technology:   c.Weights.Technology,
			Domain:       c.Weights.Domain,
			ContractSize: c.Weights.ContractSize,
			CustomerType: c.Weights.CustomerType,
		},
		IsDefault: c.IsDefault,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
