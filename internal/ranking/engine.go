// Package ranking scores past-performance records against a solicitation and explains each score.
//
// Rank is read-only: it reads immutable snapshots of the catalog, the vector index and the taxonomy,
// so any number of calls run in parallel without locks.
package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/catalog"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/taxonomy"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/vectorindex"
)

// Result window sizes.
const (
	PrimaryWindow = 3
	RelatedWindow = 3
	WindowSize    = PrimaryWindow + RelatedWindow

	maxKeyCapabilities = 5
)

// RecordSource lists the records eligible for ranking.
type RecordSource interface {
	Active() []*catalog.RecordEntry
}

// VectorSearcher finds the best chunk per record.
type VectorSearcher interface {
	BestByRecord(ctx context.Context, vector []float32, chunkType models.ChunkType) (map[uuid.UUID]vectorindex.Match, error)
}

// TechnologyResolver maps requirement terms to technologies.
type TechnologyResolver interface {
	Resolve(term string) (taxonomy.Resolution, bool)
	Get(id uuid.UUID) (*models.Technology, bool)
}

// Filters restrict the candidate set before scoring.
type Filters struct {
	CustomerType         string
	MinContractValue     float64
	MaxContractValue     float64
	ExcludeSubcontractor bool
}

func (f Filters) allows(r *models.PastPerformanceRecord) bool {
	if f.ExcludeSubcontractor && r.Role == models.RoleSubcontractor {
		return false
	}

	if f.CustomerType != "" && !strings.EqualFold(f.CustomerType, r.CustomerType) {
		return false
	}

	if f.MinContractValue > 0 && r.ContractValue < f.MinContractValue {
		return false
	}

	if f.MaxContractValue > 0 && r.ContractValue > f.MaxContractValue {
		return false
	}

	return true
}

// Query is a structured or embedded free-text query. Facets left empty contribute nothing.
type Query struct {
	Technologies  []string
	Vector        []float32
	ContractRange *models.ContractRange
	CustomerType  string
	Filters       Filters
	Offset        int
}

// Components are the weighted contributions of each facet.
type Components struct {
	Technology   float64
	Domain       float64
	ContractSize float64
	CustomerType float64
}

// Sum returns the unclamped score.
func (c Components) Sum() float64 {
	return c.Technology + c.Domain + c.ContractSize + c.CustomerType
}

// Scored is one ranked candidate with the evidence behind its score.
type Scored struct {
	Entry      *catalog.RecordEntry
	Score      float64
	Components Components
	// BestCapabilityChunk is the record's most similar capability chunk, uuid.Nil when none.
	BestCapabilityChunk uuid.UUID

	domainSimilarity float64
	sizeFacet        float64
	customerMatch    bool
	evidence         []techEvidence
	requirements     []requirement
}

// Page is one window of ranked results.
type Page struct {
	Results    []models.SearchResult
	TotalFound int
	Offset     int
}

// EngineParams configures an Engine.
type EngineParams struct {
	Records  RecordSource
	Vectors  VectorSearcher
	Taxonomy TechnologyResolver
	Logger   *slog.Logger
}

// Engine ranks records.
type Engine struct {
	records  RecordSource
	vectors  VectorSearcher
	taxonomy TechnologyResolver
	logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(params EngineParams) *Engine {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		records:  params.Records,
		vectors:  params.Vectors,
		taxonomy: params.Taxonomy,
		logger:   logger,
	}
}

// Rank scores all eligible records and returns the window starting at query.Offset: the first
// PrimaryWindow results are primary, the next RelatedWindow related. On any failure it returns an
// error and no results.
func (e *Engine) Rank(ctx context.Context, query Query, weights models.Weights) (*Page, error) {
	scored, err := e.Score(ctx, query, weights)
	if err != nil {
		return nil, err
	}

	offset := max(0, query.Offset)
	page := &Page{TotalFound: len(scored), Offset: offset, Results: []models.SearchResult{}}

	if offset >= len(scored) {
		return page, nil
	}

	window := scored[offset:min(len(scored), offset+WindowSize)]
	for i := range window {
		tier := models.MatchTierPrimary
		if i >= PrimaryWindow {
			tier = models.MatchTierRelated
		}

		page.Results = append(page.Results, e.result(&window[i], tier))
	}

	return page, nil
}

// Score returns every candidate with a positive score, best first. Ties break by newer period end,
// then higher resource count, then record id.
func (e *Engine) Score(ctx context.Context, query Query, weights models.Weights) ([]Scored, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	reqs := e.resolveRequirements(query.Technologies)

	var projectBest, capabilityBest map[uuid.UUID]vectorindex.Match

	if len(query.Vector) > 0 {
		var err error

		projectBest, err = e.vectors.BestByRecord(ctx, query.Vector, models.ChunkTypeProject)
		if err != nil {
			return nil, fmt.Errorf("rank: project vector query: %w", err)
		}

		capabilityBest, err = e.vectors.BestByRecord(ctx, query.Vector, models.ChunkTypeCapability)
		if err != nil {
			return nil, fmt.Errorf("rank: capability vector query: %w", err)
		}
	}

	var out []Scored

	for _, entry := range e.records.Active() {
		if !query.Filters.allows(&entry.Record) {
			continue
		}

		s := Scored{Entry: entry, requirements: reqs}

		if len(reqs) > 0 {
			overlap, evidence := techOverlap(reqs, entry)
			s.evidence = evidence
			s.Components.Technology = weights.Technology * overlap
		}

		if len(query.Vector) > 0 {
			p := clamp01(projectBest[entry.Record.ID].Similarity)
			c := clamp01(capabilityBest[entry.Record.ID].Similarity)

			if m, ok := capabilityBest[entry.Record.ID]; ok {
				s.BestCapabilityChunk = m.ChunkID
			}

			s.domainSimilarity = max(p, c)
			s.Components.Domain = weights.Domain * s.domainSimilarity
		}

		if r := query.ContractRange; r != nil && !r.IsZero() {
			s.sizeFacet = sizeProximity(r.Mid(), entry.Record.ContractValue)
			s.Components.ContractSize = weights.ContractSize * s.sizeFacet
		}

		if query.CustomerType != "" {
			s.customerMatch = strings.EqualFold(query.CustomerType, entry.Record.CustomerType)

			credit := customerTypeMismatch
			if s.customerMatch {
				credit = customerTypeMatch
			}

			s.Components.CustomerType = weights.CustomerType * credit
		}

		s.Score = clamp01(s.Components.Sum())
		if s.Score > 0 {
			out = append(out, s)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	sortScored(out)

	return out, nil
}

func sortScored(out []Scored) {
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}

		ae, be := a.Entry.Record.PeriodEndOrZero(), b.Entry.Record.PeriodEndOrZero()
		if !ae.Equal(be) {
			return ae.After(be)
		}

		if a.Entry.Record.ResourceCount != b.Entry.Record.ResourceCount {
			return a.Entry.Record.ResourceCount > b.Entry.Record.ResourceCount
		}

		return a.Entry.Record.ID.String() < b.Entry.Record.ID.String()
	})
}

// resolveRequirements parses and resolves query technologies, dropping duplicates of the same technology.
func (e *Engine) resolveRequirements(terms []string) []requirement {
	seen := make(map[string]bool, len(terms))
	reqs := make([]requirement, 0, len(terms))

	for _, term := range terms {
		parsed := taxonomy.ParseRequirement(term)
		if parsed.Term == "" {
			continue
		}

		req := requirement{parsed: parsed, name: parsed.Term}

		if res, ok := e.taxonomy.Resolve(parsed.Term); ok {
			req.resolved = true
			req.technologyID = res.Technology.ID
			req.name = res.Technology.Name
		} else {
			e.logger.Debug("rank: unresolved technology requirement", "term", parsed.Term)
		}

		key := taxonomy.NormalizeTerm(parsed.Term)
		if req.resolved {
			key = req.technologyID.String()
		}

		if seen[key] {
			continue
		}

		seen[key] = true
		reqs = append(reqs, req)
	}

	return reqs
}

func (e *Engine) result(s *Scored, tier models.MatchTier) models.SearchResult {
	return models.SearchResult{
		RecordID:        s.Entry.Record.ID,
		Name:            s.Entry.Record.Name,
		RelevanceScore:  roundScore(s.Score),
		MatchTier:       tier,
		Explanation:     explain(s),
		KeyCapabilities: e.keyCapabilities(s),
		Summary:         s.Entry.Summary,
	}
}

// keyCapabilities lists approved technologies of the record: required ones first, then by confidence.
func (e *Engine) keyCapabilities(s *Scored) []string {
	type capability struct {
		name       string
		required   int
		confidence float64
	}

	requiredAt := make(map[uuid.UUID]int, len(s.requirements))
	for i, r := range s.requirements {
		if r.resolved {
			requiredAt[r.technologyID] = i
		}
	}

	caps := make([]capability, 0, len(s.Entry.Associations))

	for _, a := range s.Entry.Associations {
		tech, ok := e.taxonomy.Get(a.TechnologyID)
		if !ok || !tech.IsVisible() {
			continue
		}

		pos, ok := requiredAt[a.TechnologyID]
		if !ok {
			pos = len(s.requirements)
		}

		caps = append(caps, capability{name: tech.Name, required: pos, confidence: a.Confidence})
	}

	sort.Slice(caps, func(i, j int) bool {
		if caps[i].required != caps[j].required {
			return caps[i].required < caps[j].required
		}

		if caps[i].confidence != caps[j].confidence {
			return caps[i].confidence > caps[j].confidence
		}

		return caps[i].name < caps[j].name
	})

	out := make([]string, 0, min(len(caps), maxKeyCapabilities))
	for _, c := range caps[:min(len(caps), maxKeyCapabilities)] {
		out = append(out, c.name)
	}

	return out
}

// roundScore keeps four decimals so equal inputs always render identically.
func roundScore(v float64) float64 {
	const scale = 1e4

	return float64(int64(v*scale+0.5)) / scale
}

// periodYear returns the year the record's period ended, 0 when unknown.
func periodYear(t time.Time) int {
	if t.IsZero() {
		return 0
	}

	return t.Year()
}
