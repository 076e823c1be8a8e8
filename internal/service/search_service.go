package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/backend"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/budget"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/ranking"
	"github.com/jzebell/gov-proposal-ai-sub006/pkg/cache"
)

// Cache names (bounded label values for cache metrics).
const (
	queryEmbeddingCacheName = "query_embedding"
	researchCacheName       = "research"
)

// Search modes (bounded label values for search metrics).
const (
	ModeProjectContext = "project_context"
	ModeFreetext       = "freetext"
	ModeResearch       = "research"
	ModeContext        = "context"
)

const (
	defaultQueryCacheSize    = 1000
	defaultResearchCacheSize = 256
	defaultResearchCacheTTL  = 5 * time.Minute
	maxQueryLength           = 4000
	maxSynthesisResults      = 5
)

const researchSystemPrompt = "You help proposal writers find relevant past performance. " +
	"Given a research question and matching contracts, write a short answer that cites the contracts by name. " +
	"Use only the facts given."

// Ranker scores records.
type Ranker interface {
	Rank(ctx context.Context, query ranking.Query, weights models.Weights) (*ranking.Page, error)
	Score(ctx context.Context, query ranking.Query, weights models.Weights) ([]ranking.Scored, error)
}

// QueryTechnologyExtractor detects technologies mentioned in a query.
type QueryTechnologyExtractor interface {
	ExtractTechnologies(text string) []models.TechMatch
}

// WeightSource resolves named and default weight configurations.
type WeightSource interface {
	GetByName(ctx context.Context, name string) (*models.SearchConfiguration, error)
	GetDefault(ctx context.Context) (*models.SearchConfiguration, error)
}

// SolicitationSource loads the requirements of a proposal project.
type SolicitationSource interface {
	Get(ctx context.Context, projectID uuid.UUID) (*models.SolicitationRequirements, error)
}

// ChunkSource returns a record's current chunks.
type ChunkSource interface {
	Chunks(recordID uuid.UUID, chunkType models.ChunkType) []models.EmbeddingChunk
}

// WeightSelection picks the weights of one search: explicit weights, a named configuration, or the default.
type WeightSelection struct {
	Weights       *models.Weights
	Configuration string
}

// SearchFilters are hard filters applied before scoring.
type SearchFilters struct {
	CustomerType     string
	MinContractValue float64
	MaxContractValue float64
	// IncludeSubcontractor nil means true.
	IncludeSubcontractor *bool
	Technologies         []string
}

func (f SearchFilters) ranking() ranking.Filters {
	return ranking.Filters{
		CustomerType:         f.CustomerType,
		MinContractValue:     f.MinContractValue,
		MaxContractValue:     f.MaxContractValue,
		ExcludeSubcontractor: f.IncludeSubcontractor != nil && !*f.IncludeSubcontractor,
	}
}

// ProjectContextRequest ranks records against a stored solicitation.
type ProjectContextRequest struct {
	ProjectID uuid.UUID
	WeightSelection
	IncludeSubcontractor *bool
	Offset               int
}

// FreetextRequest ranks records against a free-text query.
type FreetextRequest struct {
	Query string
	WeightSelection
	Filters SearchFilters
	Offset  int
}

// ResearchRequest is a lighter free-text search with default weights.
type ResearchRequest struct {
	Query             string
	ReturnSummaryOnly bool
}

// ContextRequest selects passages for a completion prompt within a token budget.
type ContextRequest struct {
	Query        string
	BudgetTokens int
	WeightSelection
	Filters SearchFilters
}

// SearchResponse is one window of ranked results.
type SearchResponse struct {
	Results      []models.SearchResult `json:"results"`
	TotalFound   int                   `json:"totalFound"`
	SearchTimeMs int64                 `json:"searchTimeMs"`
	Offset       int                   `json:"offset"`
}

// ResearchResult is a research hit. Explanation and KeyCapabilities are omitted in summary-only mode.
type ResearchResult struct {
	RecordID        uuid.UUID `json:"recordID"`
	Name            string    `json:"name"`
	RelevanceScore  float64   `json:"relevanceScore"`
	Explanation     []string  `json:"explanation,omitempty"`
	KeyCapabilities []string  `json:"keyCapabilities,omitempty"`
	Summary         string    `json:"summary"`
}

// ResearchResponse holds research hits and, unless summary-only, a synthesized answer.
type ResearchResponse struct {
	Results   []ResearchResult `json:"results"`
	Synthesis string           `json:"synthesis,omitempty"`
}

// ContextResponse is the outcome of a budgeted selection.
type ContextResponse struct {
	Selected     []budget.Selection `json:"selected"`
	Skipped      []uuid.UUID        `json:"skipped"`
	UsedTokens   int                `json:"usedTokens"`
	BudgetTokens int                `json:"budgetTokens"`
	TotalFound   int                `json:"totalFound"`
	SearchTimeMs int64              `json:"searchTimeMs"`
}

// queryKey identifies a cached query embedding. Queries differing only in case or spacing share one.
type queryKey struct {
	model string
	query string
}

func (k queryKey) String() string { return k.model + "\x00" + normalizeQuery(k.query) }

type researchKey struct {
	query       string
	summaryOnly bool
}

func (k researchKey) String() string {
	return fmt.Sprintf("%t\x00%s", k.summaryOnly, normalizeQuery(k.query))
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// SearchServiceParams configures SearchService. Configurations, Solicitations, Selector and the
// metrics may be nil.
type SearchServiceParams struct {
	Ranker         Ranker
	Backend        Backend
	Extractor      QueryTechnologyExtractor
	Configurations WeightSource
	Solicitations  SolicitationSource
	Chunks         ChunkSource
	Selector       *budget.Selector
	// Model keys the query embedding cache.
	Model            string
	QueryCacheSize   int
	ResearchCacheTTL time.Duration
	Metrics          observability.SearchMetrics
	CacheMetrics     observability.CacheMetrics
	Logger           *slog.Logger
}

// SearchService runs project-context, free-text, research and context searches.
type SearchService struct {
	ranker         Ranker
	backend        Backend
	extractor      QueryTechnologyExtractor
	configurations WeightSource
	solicitations  SolicitationSource
	chunks         ChunkSource
	selector       *budget.Selector
	model          string
	queryCache     *cache.LoaderCache[queryKey, []float32]
	researchCache  *cache.LoaderCache[researchKey, *ResearchResponse]
	metrics        observability.SearchMetrics
	cacheMetrics   observability.CacheMetrics
	logger         *slog.Logger
}

// NewSearchService creates a SearchService.
func NewSearchService(p SearchServiceParams) (*SearchService, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	size := p.QueryCacheSize
	if size <= 0 {
		size = defaultQueryCacheSize
	}

	queryCache, err := cache.NewLoaderCache[queryKey, []float32](size, queryKey.String)
	if err != nil {
		return nil, fmt.Errorf("query embedding cache: %w", err)
	}

	ttl := p.ResearchCacheTTL
	if ttl <= 0 {
		ttl = defaultResearchCacheTTL
	}

	researchCache, err := cache.NewLoaderCache[researchKey, *ResearchResponse](
		defaultResearchCacheSize, researchKey.String, cache.WithTTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("research cache: %w", err)
	}

	selector := p.Selector
	if selector == nil {
		selector = budget.NewSelector(nil)
	}

	return &SearchService{
		ranker:         p.Ranker,
		backend:        p.Backend,
		extractor:      p.Extractor,
		configurations: p.Configurations,
		solicitations:  p.Solicitations,
		chunks:         p.Chunks,
		selector:       selector,
		model:          p.Model,
		queryCache:     queryCache,
		researchCache:  researchCache,
		metrics:        p.Metrics,
		cacheMetrics:   p.CacheMetrics,
		logger:         logger,
	}, nil
}

// ProjectContext ranks records against the solicitation of req.ProjectID.
func (s *SearchService) ProjectContext(ctx context.Context, req *ProjectContextRequest) (*SearchResponse, error) {
	start := time.Now()

	resp, err := s.projectContext(ctx, req, start)

	return s.finish(ctx, ModeProjectContext, start, resp, err)
}

func (s *SearchService) projectContext(ctx context.Context, req *ProjectContextRequest, start time.Time) (*SearchResponse, error) {
	if req.ProjectID == uuid.Nil {
		return nil, apperrors.NewValidationError("projectID", "is required")
	}

	if s.solicitations == nil {
		return nil, apperrors.NewNotFoundError("project", "project not found")
	}

	weights, err := s.resolveWeights(ctx, req.WeightSelection)
	if err != nil {
		return nil, err
	}

	sol, err := s.solicitations.Get(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load solicitation: %w", err)
	}

	query := ranking.Query{
		Technologies:  sol.Technologies,
		ContractRange: sol.ContractRange,
		CustomerType:  sol.CustomerType,
		Filters:       SearchFilters{IncludeSubcontractor: req.IncludeSubcontractor}.ranking(),
		Offset:        req.Offset,
	}

	if text := strings.TrimSpace(sol.DomainText()); text != "" {
		query.Vector, err = s.embedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
	}

	return s.rank(ctx, query, weights, start)
}

// Freetext ranks records against a free-text query. Technologies named in the query count as
// requirements alongside filters.Technologies.
func (s *SearchService) Freetext(ctx context.Context, req *FreetextRequest) (*SearchResponse, error) {
	start := time.Now()

	resp, err := s.freetext(ctx, req, start)

	return s.finish(ctx, ModeFreetext, start, resp, err)
}

func (s *SearchService) freetext(ctx context.Context, req *FreetextRequest, start time.Time) (*SearchResponse, error) {
	query, err := s.freetextQuery(ctx, req.Query, req.Filters)
	if err != nil {
		return nil, err
	}

	weights, err := s.resolveWeights(ctx, req.WeightSelection)
	if err != nil {
		return nil, err
	}

	query.Offset = req.Offset

	return s.rank(ctx, query, weights, start)
}

func (s *SearchService) freetextQuery(ctx context.Context, text string, filters SearchFilters) (ranking.Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ranking.Query{}, apperrors.NewValidationError("query", "is required and must be non-empty")
	}

	if len(text) > maxQueryLength {
		return ranking.Query{}, apperrors.NewValidationError("query", fmt.Sprintf("must be at most %d characters", maxQueryLength))
	}

	query := ranking.Query{
		Technologies: s.queryTechnologies(text, filters.Technologies),
		Filters:      filters.ranking(),
	}

	var err error

	query.Vector, err = s.embedQuery(ctx, text)
	if err != nil {
		return ranking.Query{}, err
	}

	return query, nil
}

// queryTechnologies merges explicit technologies with those detected in text, explicit first.
// The ranker drops duplicates.
func (s *SearchService) queryTechnologies(text string, explicit []string) []string {
	out := append([]string(nil), explicit...)
	if s.extractor == nil {
		return out
	}

	// Detected versions are not requirements; "Java 8" in prose should still match Java 17 experience.
	for _, m := range s.extractor.ExtractTechnologies(text) {
		out = append(out, m.TechnologyKey)
	}

	return out
}

func (s *SearchService) rank(ctx context.Context, query ranking.Query, weights models.Weights, start time.Time) (*SearchResponse, error) {
	page, err := s.ranker.Rank(ctx, query, weights)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	return &SearchResponse{
		Results:      page.Results,
		TotalFound:   page.TotalFound,
		SearchTimeMs: time.Since(start).Milliseconds(),
		Offset:       page.Offset,
	}, nil
}

// Research runs a free-text search with the default weights. Responses are cached for the research
// TTL by normalized query and summary flag. Summary-only responses never call the completion backend.
func (s *SearchService) Research(ctx context.Context, req *ResearchRequest) (*ResearchResponse, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		err := apperrors.NewValidationError("query", "is required and must be non-empty")
		s.recordError(ctx, ModeResearch, err)

		return nil, err
	}

	resp, hit, err := s.researchCache.GetWithStats(ctx, researchKey{query: query, summaryOnly: req.ReturnSummaryOnly}, s.loadResearch)
	s.recordCache(ctx, researchCacheName, hit, err)

	if err != nil {
		s.recordError(ctx, ModeResearch, err)

		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSearch(ctx, ModeResearch, time.Since(start), len(resp.Results))
	}

	return resp, nil
}

func (s *SearchService) loadResearch(ctx context.Context, key researchKey) (*ResearchResponse, error) {
	query, err := s.freetextQuery(ctx, key.query, SearchFilters{})
	if err != nil {
		return nil, err
	}

	weights, err := s.resolveWeights(ctx, WeightSelection{})
	if err != nil {
		return nil, err
	}

	page, err := s.ranker.Rank(ctx, query, weights)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	resp := &ResearchResponse{Results: make([]ResearchResult, 0, len(page.Results))}

	for _, r := range page.Results {
		item := ResearchResult{
			RecordID:       r.RecordID,
			Name:           r.Name,
			RelevanceScore: r.RelevanceScore,
			Summary:        r.Summary,
		}

		if !key.summaryOnly {
			item.Explanation = r.Explanation
			item.KeyCapabilities = r.KeyCapabilities
		}

		resp.Results = append(resp.Results, item)
	}

	if !key.summaryOnly && len(resp.Results) > 0 {
		resp.Synthesis = s.synthesize(ctx, key.query, resp.Results)
	}

	return resp, nil
}

// synthesize asks the completion backend for a short answer. Failures leave the answer empty.
func (s *SearchService) synthesize(ctx context.Context, question string, results []ResearchResult) string {
	if s.backend == nil {
		return ""
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n\nContracts:\n", question)

	for _, r := range results[:min(len(results), maxSynthesisResults)] {
		fmt.Fprintf(&b, "- %s: %s\n", r.Name, r.Summary)
	}

	answer, err := s.backend.Complete(ctx, researchSystemPrompt, b.String())
	if err != nil {
		s.logger.WarnContext(ctx, "research: synthesis failed", "error", err)

		return ""
	}

	return strings.TrimSpace(answer)
}

// Context ranks records for req.Query and selects the passages that fit req.BudgetTokens. A record
// whose full text does not fit is offered once more as its best capability chunk.
func (s *SearchService) Context(ctx context.Context, req *ContextRequest) (*ContextResponse, error) {
	start := time.Now()

	resp, err := s.context(ctx, req, start)
	if err != nil {
		s.recordError(ctx, ModeContext, err)

		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSearch(ctx, ModeContext, time.Since(start), len(resp.Selected))
	}

	return resp, nil
}

func (s *SearchService) context(ctx context.Context, req *ContextRequest, start time.Time) (*ContextResponse, error) {
	if req.BudgetTokens <= 0 {
		return nil, apperrors.NewValidationError("budgetTokens", "must be positive")
	}

	query, err := s.freetextQuery(ctx, req.Query, req.Filters)
	if err != nil {
		return nil, err
	}

	weights, err := s.resolveWeights(ctx, req.WeightSelection)
	if err != nil {
		return nil, err
	}

	scored, err := s.ranker.Score(ctx, query, weights)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	candidates := make([]budget.Candidate, 0, len(scored))
	for i := range scored {
		candidates = append(candidates, s.candidate(&scored[i]))
	}

	sel := s.selector.SelectWithinBudget(candidates, req.BudgetTokens)

	skipped := sel.Skipped
	if skipped == nil {
		skipped = []uuid.UUID{}
	}

	return &ContextResponse{
		Selected:     sel.Selected,
		Skipped:      skipped,
		UsedTokens:   sel.UsedTokens,
		BudgetTokens: sel.Budget,
		TotalFound:   len(scored),
		SearchTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// candidate prefers the narrative text and falls back to the best capability chunk, or the first
// embedded one when the query had no vector match.
func (s *SearchService) candidate(sc *ranking.Scored) budget.Candidate {
	text := sc.Entry.NarrativeText
	if strings.TrimSpace(text) == "" {
		text = sc.Entry.UnifiedText
	}

	c := budget.Candidate{RecordID: sc.Entry.Record.ID, Score: sc.Score, Text: text}

	if s.chunks == nil {
		return c
	}

	chunks := s.chunks.Chunks(sc.Entry.Record.ID, models.ChunkTypeCapability)

	for i := range chunks {
		if chunks[i].ID == sc.BestCapabilityChunk {
			c.FallbackChunkID, c.FallbackText = chunks[i].ID, chunks[i].Text

			return c
		}
	}

	for i := range chunks {
		if !chunks[i].IsPending() {
			c.FallbackChunkID, c.FallbackText = chunks[i].ID, chunks[i].Text

			break
		}
	}

	return c
}

// resolveWeights returns explicit weights, the named configuration, the stored default, or
// DefaultWeights, in that order. Weights are validated, never renormalized.
func (s *SearchService) resolveWeights(ctx context.Context, sel WeightSelection) (models.Weights, error) {
	if sel.Weights != nil && sel.Configuration != "" {
		return models.Weights{}, apperrors.NewValidationError("weights", "weights and configuration are mutually exclusive")
	}

	if sel.Weights != nil {
		if err := sel.Weights.Validate(); err != nil {
			return models.Weights{}, err
		}

		return *sel.Weights, nil
	}

	if s.configurations == nil {
		if sel.Configuration != "" {
			return models.Weights{}, apperrors.NewConfigurationError("unknown search configuration " + sel.Configuration)
		}

		return models.DefaultWeights(), nil
	}

	if sel.Configuration != "" {
		cfg, err := s.configurations.GetByName(ctx, sel.Configuration)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return models.Weights{}, apperrors.NewConfigurationError("unknown search configuration " + sel.Configuration)
			}

			return models.Weights{}, fmt.Errorf("get search configuration: %w", err)
		}

		return cfg.Weights, nil
	}

	cfg, err := s.configurations.GetDefault(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return models.DefaultWeights(), nil
		}

		return models.Weights{}, fmt.Errorf("get default search configuration: %w", err)
	}

	return cfg.Weights, nil
}

// embedQuery returns the cached or freshly computed embedding of a query. A query whose embedding
// cannot be produced now fails with a TransientError instead of blocking.
func (s *SearchService) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, hit, err := s.queryCache.GetWithStats(ctx, queryKey{model: s.model, query: text}, s.loadQueryEmbedding)
	s.recordCache(ctx, queryEmbeddingCacheName, hit, err)

	if err != nil {
		s.logger.WarnContext(ctx, "search: query embedding failed", "model", s.model, "error", err)

		return nil, err
	}

	return vec, nil
}

func (s *SearchService) loadQueryEmbedding(ctx context.Context, key queryKey) ([]float32, error) {
	if s.backend == nil {
		return nil, apperrors.NewTransientError("embedding backend unavailable", 0, backend.ErrUnavailable)
	}

	vec, err := s.backend.Embed(ctx, key.query)
	if err != nil {
		if errors.Is(err, backend.ErrUnavailable) {
			return nil, apperrors.NewTransientError("embedding backend unavailable", 0, err)
		}

		return nil, fmt.Errorf("embed query: %w", err)
	}

	return vec, nil
}

// recordCache counts the lookup. A caller that gave up waiting is not a load failure.
func (s *SearchService) recordCache(ctx context.Context, name string, hit bool, err error) {
	if s.cacheMetrics == nil {
		return
	}

	switch {
	case hit:
		s.cacheMetrics.RecordHit(ctx, name)
	case err != nil && ctx.Err() == nil:
		s.cacheMetrics.RecordMiss(ctx, name)
		s.cacheMetrics.RecordLoadFailure(ctx, name)
	default:
		s.cacheMetrics.RecordMiss(ctx, name)
	}
}

func (s *SearchService) finish(ctx context.Context, mode string, start time.Time, resp *SearchResponse, err error) (*SearchResponse, error) {
	if err != nil {
		s.recordError(ctx, mode, err)

		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSearch(ctx, mode, time.Since(start), len(resp.Results))
	}

	return resp, nil
}

func (s *SearchService) recordError(ctx context.Context, mode string, err error) {
	if s.metrics != nil {
		s.metrics.RecordSearchError(ctx, mode, errorReason(err))
	}
}

// errorReason maps err to a bounded metric label.
func errorReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return "validation"
	case errors.Is(err, apperrors.ErrConfiguration):
		return "configuration"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrTransient):
		return "transient"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
