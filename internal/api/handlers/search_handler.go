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

// SearchService defines the interface for the four search modes.
type SearchService interface {
	ProjectContext(ctx context.Context, req *service.ProjectContextRequest) (*service.SearchResponse, error)
	Freetext(ctx context.Context, req *service.FreetextRequest) (*service.SearchResponse, error)
	Research(ctx context.Context, req *service.ResearchRequest) (*service.ResearchResponse, error)
	Context(ctx context.Context, req *service.ContextRequest) (*service.ContextResponse, error)
}

// SearchHandler handles HTTP requests for past-performance search.
type SearchHandler struct {
	service SearchService
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service SearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// maxSearchOffset caps how far paging can go. Ranking scores every record on each request,
// so deep offsets only add serialization work.
const maxSearchOffset = 1000

// WeightsBody is the camelCase form of models.Weights. The sum is checked by the service.
type WeightsBody struct {
	Technology   float64 `json:"technology"   validate:"gte=0,lte=1"`
	Domain       float64 `json:"domain"       validate:"gte=0,lte=1"`
	ContractSize float64 `json:"contractSize" validate:"gte=0,lte=1"`
	CustomerType float64 `json:"customerType" validate:"gte=0,lte=1"`
}

func (b *WeightsBody) model() *models.Weights {
	if b == nil {
		return nil
	}

	return &models.Weights{
		Technology:   b.Technology,
		Domain:       b.Domain,
		ContractSize: b.ContractSize,
		CustomerType: b.CustomerType,
	}
}

// FiltersBody holds the optional hard filters of a free-text or context search.
type FiltersBody struct {
	CustomerType         string   `json:"customerType"         validate:"max=100,no_null_bytes"`
	MinContractValue     float64  `json:"minContractValue"     validate:"gte=0"`
	MaxContractValue     float64  `json:"maxContractValue"     validate:"omitempty,gtefield=MinContractValue"`
	IncludeSubcontractor *bool    `json:"includeSubcontractor"`
	Technologies         []string `json:"technologies"         validate:"max=50,dive,required,max=100,no_null_bytes"`
}

func (b *FiltersBody) toService() service.SearchFilters {
	if b == nil {
		return service.SearchFilters{}
	}

	return service.SearchFilters{
		CustomerType:         b.CustomerType,
		MinContractValue:     b.MinContractValue,
		MaxContractValue:     b.MaxContractValue,
		IncludeSubcontractor: b.IncludeSubcontractor,
		Technologies:         b.Technologies,
	}
}

// ProjectContextSearchRequest is the body for POST /v1/search/project-context.
type ProjectContextSearchRequest struct {
	ProjectID            uuid.UUID    `json:"projectID"            validate:"required"`
	Weights              *WeightsBody `json:"weights"`
	Configuration        string       `json:"configuration"        validate:"max=100,no_null_bytes"`
	IncludeSubcontractor *bool        `json:"includeSubcontractor"`
	Offset               int          `json:"offset"               validate:"gte=0,lte=1000"`
}

// FreetextSearchRequest is the body for POST /v1/search/freetext.
type FreetextSearchRequest struct {
	Query         string       `json:"query"         validate:"required,max=4000,no_null_bytes"`
	Weights       *WeightsBody `json:"weights"`
	Configuration string       `json:"configuration" validate:"max=100,no_null_bytes"`
	Filters       *FiltersBody `json:"filters"`
	Offset        int          `json:"offset"        validate:"gte=0,lte=1000"`
}

// ResearchSearchRequest is the body for POST /v1/search/research.
type ResearchSearchRequest struct {
	Query             string `json:"query"             validate:"required,max=4000,no_null_bytes"`
	ReturnSummaryOnly bool   `json:"returnSummaryOnly"`
}

// ContextSearchRequest is the body for POST /v1/search/context.
type ContextSearchRequest struct {
	Query         string       `json:"query"         validate:"required,max=4000,no_null_bytes"`
	BudgetTokens  int          `json:"budgetTokens"  validate:"gt=0,lte=200000"`
	Weights       *WeightsBody `json:"weights"`
	Configuration string       `json:"configuration" validate:"max=100,no_null_bytes"`
	Filters       *FiltersBody `json:"filters"`
}

// SearchResultItem is one ranked record in API form.
type SearchResultItem struct {
	RecordID        uuid.UUID `json:"recordID"`
	Name            string    `json:"name"`
	RelevanceScore  float64   `json:"relevanceScore"`
	MatchTier       string    `json:"matchTier"`
	Explanation     []string  `json:"explanation"`
	KeyCapabilities []string  `json:"keyCapabilities"`
	Summary         string    `json:"summary"`
}

// SearchResultsResponse is the response of project-context and free-text search.
type SearchResultsResponse struct {
	Results      []SearchResultItem `json:"results"`
	TotalFound   int                `json:"totalFound"`
	SearchTimeMs int64              `json:"searchTimeMs"`
	Offset       int                `json:"offset"`
}

// ProjectContext handles POST /v1/search/project-context.
func (h *SearchHandler) ProjectContext(w http.ResponseWriter, r *http.Request) {
	var req ProjectContextSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.service.ProjectContext(r.Context(), &service.ProjectContextRequest{
		ProjectID: req.ProjectID,
		WeightSelection: service.WeightSelection{
			Weights:       req.Weights.model(),
			Configuration: req.Configuration,
		},
		IncludeSubcontractor: req.IncludeSubcontractor,
		Offset:               min(req.Offset, maxSearchOffset),
	})
	if err != nil {
		response.RespondServiceError(w, r, err, "Search failed")
		return
	}

	response.RespondJSON(w, http.StatusOK, toSearchResults(res))
}

// Freetext handles POST /v1/search/freetext.
func (h *SearchHandler) Freetext(w http.ResponseWriter, r *http.Request) {
	var req FreetextSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.service.Freetext(r.Context(), &service.FreetextRequest{
		Query: req.Query,
		WeightSelection: service.WeightSelection{
			Weights:       req.Weights.model(),
			Configuration: req.Configuration,
		},
		Filters: req.Filters.toService(),
		Offset:  min(req.Offset, maxSearchOffset),
	})
	if err != nil {
		response.RespondServiceError(w, r, err, "Search failed")
		return
	}

	response.RespondJSON(w, http.StatusOK, toSearchResults(res))
}

// Research handles POST /v1/search/research.
func (h *SearchHandler) Research(w http.ResponseWriter, r *http.Request) {
	var req ResearchSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.service.Research(r.Context(), &service.ResearchRequest{
		Query:             req.Query,
		ReturnSummaryOnly: req.ReturnSummaryOnly,
	})
	if err != nil {
		response.RespondServiceError(w, r, err, "Research search failed")
		return
	}

	// res may be shared with the research cache.
	out := *res
	if out.Results == nil {
		out.Results = []service.ResearchResult{}
	}

	response.RespondJSON(w, http.StatusOK, out)
}

// Context handles POST /v1/search/context.
func (h *SearchHandler) Context(w http.ResponseWriter, r *http.Request) {
	var req ContextSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.service.Context(r.Context(), &service.ContextRequest{
		Query:        req.Query,
		BudgetTokens: req.BudgetTokens,
		WeightSelection: service.WeightSelection{
			Weights:       req.Weights.model(),
			Configuration: req.Configuration,
		},
		Filters: req.Filters.toService(),
	})
	if err != nil {
		response.RespondServiceError(w, r, err, "Context selection failed")
		return
	}

	response.RespondJSON(w, http.StatusOK, res)
}

func toSearchResults(res *service.SearchResponse) SearchResultsResponse {
	items := make([]SearchResultItem, len(res.Results))
	for i := range res.Results {
		sr := &res.Results[i]
		items[i] = SearchResultItem{
			RecordID:        sr.RecordID,
			Name:            sr.Name,
			RelevanceScore:  sr.RelevanceScore,
			MatchTier:       string(sr.MatchTier),
			Explanation:     nonNil(sr.Explanation),
			KeyCapabilities: nonNil(sr.KeyCapabilities),
			Summary:         sr.Summary,
		}
	}

	return SearchResultsResponse{
		Results:      items,
		TotalFound:   res.TotalFound,
		SearchTimeMs: res.SearchTimeMs,
		Offset:       res.Offset,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}

// decodeBody decodes and validates a JSON body, writing the 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validation.DecodeJSON(r, dst); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return false
	}

	if err := validation.ValidateStruct(dst); err != nil {
		validation.RespondValidationError(w, err)
		return false
	}

	return true
}
