package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// DefaultProposalThreshold is the confidence an unknown term must exceed to become a pending technology.
const DefaultProposalThreshold = 0.6

// Confidence contributions for known terms.
const (
	canonicalBase     = 0.75
	aliasBase         = 0.70
	repeatBoost       = 0.05
	maxRepeatBoost    = 0.15
	versionBoost      = 0.10
	versionLookahead  = 2
	snippetRadiusWord = 6
)

// Confidence contributions for unknown candidate terms.
const (
	candidateBase        = 0.20
	capitalizedBoost     = 0.10
	technicalShapeBoost  = 0.20
	leadingCueBoost      = 0.20
	trailingCueBoost     = 0.25
	candidateVersion     = 0.20
	maxCandidateRepeat   = 0.10
	maxCandidateScore    = 0.95
	maxCandidatePhrase   = 3
	minCandidateTokenLen = 2
)

// leadingCues precede a technology ("built using Kafka").
var leadingCues = map[string]bool{
	"using": true, "leveraging": true, "leveraged": true, "via": true, "adopted": true,
	"implemented": true, "deployed": true, "utilizing": true, "utilized": true, "with": true,
	"migrated": true, "containerized": true, "automated": true,
}

// trailingCues follow a technology and hint at its category ("Kafka platform").
var trailingCues = map[string]models.TechnologyCategory{
	"framework": models.CategoryFramework, "library": models.CategoryFramework,
	"platform": models.CategoryPlatform, "engine": models.CategoryPlatform, "stack": models.CategoryPlatform,
	"database": models.CategoryDatabase, "db": models.CategoryDatabase, "datastore": models.CategoryDatabase,
	"language": models.CategoryLanguage,
	"tool": models.CategoryTool, "toolkit": models.CategoryTool, "sdk": models.CategoryTool, "api": models.CategoryTool,
	"cloud": models.CategoryCloud,
	"methodology": models.CategoryMethodology, "framework-agnostic": models.CategoryMethodology,
}

// stopTerms are capitalized words and acronyms common in contract text that are not technologies.
var stopTerms = map[string]bool{
	"the": true, "this": true, "that": true, "these": true, "our": true, "we": true, "they": true,
	"a": true, "an": true, "and": true, "or": true, "of": true, "for": true, "in": true, "on": true,
	"to": true, "by": true, "as": true, "at": true, "it": true, "its": true, "all": true, "each": true,
	"team": true, "program": true, "project": true, "contract": true, "government": true, "agency": true,
	"federal": true, "department": true, "office": true, "service": true, "services": true, "system": true,
	"systems": true, "data": true, "support": true, "management": true, "new": true, "phase": true,
	"usda": true, "dod": true, "dhs": true, "va": true, "gsa": true, "faa": true, "nasa": true, "cms": true,
	"cpars": true, "pws": true, "sow": true, "qasp": true, "cor": true, "co": true, "idiq": true, "bpa": true,
	"ffp": true, "sla": true, "slas": true, "kpi": true, "kpis": true, "fte": true, "ftes": true, "pmo": true,
	"us": true, "usa": true, "omb": true, "fy": true, "q1": true, "q2": true, "q3": true, "q4": true,
}

// Candidate is an unknown term that may be proposed as a new technology.
type Candidate struct {
	Name           string
	Category       models.TechnologyCategory
	Confidence     float64
	Version        string
	ContextSnippet string
}

// Extraction is the result of scanning one text.
type Extraction struct {
	Matches    []models.TechMatch
	Candidates []Candidate
}

// Extractor detects taxonomy terms in text.
type Extractor struct {
	taxonomy  *Taxonomy
	threshold float64
	logger    *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithProposalThreshold sets the confidence an unknown term must exceed to be proposed.
func WithProposalThreshold(threshold float64) ExtractorOption {
	return func(e *Extractor) {
		e.threshold = threshold
	}
}

// WithLogger sets the logger used for ambiguity reports.
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor creates an Extractor over tax.
func NewExtractor(tax *Taxonomy, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		taxonomy:  tax,
		threshold: DefaultProposalThreshold,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Threshold returns the proposal threshold.
func (e *Extractor) Threshold() float64 {
	return e.threshold
}

type matchAccumulator struct {
	tech      *models.Technology
	canonical bool
	ambiguous bool
	first     int
	mentions  int
	version   string
	snippet   string
}

type candidateAccumulator struct {
	name     string
	category models.TechnologyCategory
	first    int
	mentions int
	best     float64
	version  string
	snippet  string
}

// ExtractTechnologies scans text and returns known-term matches ordered by first mention.
func (e *Extractor) ExtractTechnologies(text string) []models.TechMatch {
	return e.Extract(text).Matches
}

// Extract scans text for known terms and unknown candidate terms. The result depends only on text and
// the current taxonomy snapshot.
func (e *Extractor) Extract(text string) Extraction {
	snap := e.taxonomy.current.Load()
	tokens := tokenize(text)

	matches := make(map[uuid.UUID]*matchAccumulator)
	candidates := make(map[string]*candidateAccumulator)

	for i := 0; i < len(tokens); {
		n, res, ok := longestMatch(snap, text, tokens, i)
		if ok {
			e.accumulateMatch(matches, res, text, tokens, i, n)
			i += n

			continue
		}

		if n = e.accumulateCandidate(snap, candidates, text, tokens, i); n > 0 {
			i += n

			continue
		}

		i++
	}

	return Extraction{
		Matches:    finalizeMatches(matches),
		Candidates: finalizeCandidates(candidates),
	}
}

// longestMatch finds the longest indexed term starting at token i. Multi-word terms never span punctuation.
func longestMatch(snap *snapshot, text string, tokens []token, i int) (int, Resolution, bool) {
	span := 1
	for span < snap.maxTokens && i+span < len(tokens) && adjacent(text, tokens, i+span) {
		span++
	}

	for n := span; n >= 1; n-- {
		parts := make([]string, n)
		for k := 0; k < n; k++ {
			parts[k] = tokens[i+k].norm
		}

		if res, ok := snap.resolve(strings.Join(parts, " ")); ok {
			return n, res, true
		}
	}

	return 0, Resolution{}, false
}

func (e *Extractor) accumulateMatch(
	acc map[uuid.UUID]*matchAccumulator, res Resolution, text string, tokens []token, i, n int,
) {
	id := res.Technology.ID
	m, ok := acc[id]

	if !ok {
		m = &matchAccumulator{
			tech:    res.Technology,
			first:   i,
			snippet: snippet(text, tokens, i, i+n),
		}
		acc[id] = m
	}

	m.mentions++
	m.canonical = m.canonical || res.Canonical

	if res.Ambiguous && !m.ambiguous {
		m.ambiguous = true
		e.logger.Warn("taxonomy: ambiguous alias",
			"term", tokens[i].raw, "chosen_technology_id", id, "candidate_technology_ids", res.Candidates)
	}

	if v := versionAfter(tokens, i+n); v != "" && compareVersions(v, m.version) > 0 {
		m.version = v
	}
}

// accumulateCandidate records an unknown term phrase starting at i and returns its token length (0 if none).
func (e *Extractor) accumulateCandidate(
	snap *snapshot, acc map[string]*candidateAccumulator, text string, tokens []token, i int,
) int {
	n := 0
	for n < maxCandidatePhrase && i+n < len(tokens) && isCandidateToken(snap, tokens[i+n]) {
		if n > 0 && !adjacent(text, tokens, i+n) {
			break
		}

		n++
	}

	if n == 0 {
		return 0
	}

	parts := make([]string, n)
	shapeBoost := capitalizedBoost

	for k := 0; k < n; k++ {
		parts[k] = tokens[i+k].raw
		if hasTechnicalShape(tokens[i+k].raw) {
			shapeBoost = technicalShapeBoost
		}
	}

	score := candidateBase + shapeBoost
	category := models.CategoryTool

	if i > 0 && leadingCues[tokens[i-1].norm] {
		score += leadingCueBoost
	}

	if i+n < len(tokens) {
		if c, ok := trailingCues[tokens[i+n].norm]; ok {
			score += trailingCueBoost
			category = c
		}
	}

	version := versionAfter(tokens, i+n)
	if version != "" {
		score += candidateVersion
	}

	name := strings.Join(parts, " ")
	norm := NormalizeTerm(name)

	c, ok := acc[norm]
	if !ok {
		c = &candidateAccumulator{name: name, category: category, first: i, snippet: snippet(text, tokens, i, i+n)}
		acc[norm] = c
	}

	c.mentions++
	if score > c.best {
		c.best = score
		c.category = category
	}

	if compareVersions(version, c.version) > 0 {
		c.version = version
	}

	return n
}

// adjacent reports whether token k follows token k-1 with only whitespace or "/" between them.
func adjacent(text string, tokens []token, k int) bool {
	gap := text[tokens[k-1].end:tokens[k].start]

	return strings.Trim(gap, " \t\r\n/") == ""
}

func isCandidateToken(snap *snapshot, t token) bool {
	if len(t.norm) < minCandidateTokenLen || stopTerms[t.norm] || isVersionToken(t.raw) {
		return false
	}

	if _, known := snap.known[t.norm]; known {
		return false
	}

	first := []rune(t.raw)[0]
	if unicode.IsDigit(first) {
		return false
	}

	return unicode.IsUpper(first) || hasTechnicalShape(t.raw)
}

// hasTechnicalShape reports CamelCase, acronyms, and tokens mixing letters with digits or symbols.
func hasTechnicalShape(raw string) bool {
	var upper, lower, digit, symbol int

	for i, r := range raw {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				upper++
			}
		case unicode.IsLower(r):
			lower++
		case unicode.IsDigit(r):
			digit++
		case r == '+' || r == '#' || r == '.':
			symbol++
		}
	}

	letters := upper + lower
	isAcronym := lower == 0 && upper >= 1 && len(raw) <= 6

	return isAcronym || (upper > 0 && lower > 0) || (letters > 0 && (digit > 0 || symbol > 0))
}

// versionAfter returns a version token within versionLookahead tokens after index from.
func versionAfter(tokens []token, from int) string {
	for k := from; k < len(tokens) && k < from+versionLookahead; k++ {
		if isVersionToken(tokens[k].raw) {
			return strings.TrimSuffix(strings.TrimPrefix(strings.ToLower(tokens[k].raw), "v"), "+")
		}
	}

	return ""
}

// snippet returns the words around tokens [from,to) from the original text.
func snippet(text string, tokens []token, from, to int) string {
	lo := max(0, from-snippetRadiusWord)
	hi := min(len(tokens), to+snippetRadiusWord) - 1

	return strings.Join(strings.Fields(text[tokens[lo].start:tokens[hi].end]), " ")
}

func finalizeMatches(acc map[uuid.UUID]*matchAccumulator) []models.TechMatch {
	list := make([]*matchAccumulator, 0, len(acc))
	for _, m := range acc {
		list = append(list, m)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].first != list[j].first {
			return list[i].first < list[j].first
		}

		return list[i].tech.Key < list[j].tech.Key
	})

	out := make([]models.TechMatch, 0, len(list))
	for _, m := range list {
		conf := aliasBase
		if m.canonical {
			conf = canonicalBase
		}

		conf += min(maxRepeatBoost, float64(m.mentions-1)*repeatBoost)
		if m.version != "" {
			conf += versionBoost
		}

		out = append(out, models.TechMatch{
			TechnologyID:   m.tech.ID,
			TechnologyKey:  m.tech.Key,
			Confidence:     roundConfidence(min(1, conf)),
			Version:        m.version,
			ContextSnippet: m.snippet,
			Ambiguous:      m.ambiguous,
		})
	}

	return out
}

func finalizeCandidates(acc map[string]*candidateAccumulator) []Candidate {
	list := make([]*candidateAccumulator, 0, len(acc))
	for _, c := range acc {
		list = append(list, c)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].first != list[j].first {
			return list[i].first < list[j].first
		}

		return list[i].name < list[j].name
	})

	out := make([]Candidate, 0, len(list))
	for _, c := range list {
		score := c.best + min(maxCandidateRepeat, float64(c.mentions-1)*repeatBoost)
		out = append(out, Candidate{
			Name:           c.name,
			Category:       c.category,
			Confidence:     roundConfidence(min(maxCandidateScore, score)),
			Version:        c.version,
			ContextSnippet: c.snippet,
		})
	}

	return out
}

// roundConfidence trims float noise so equal evidence yields equal confidences.
func roundConfidence(v float64) float64 {
	const scale = 1e6

	return float64(int64(v*scale+0.5)) / scale
}

// ShouldPropose reports whether an unknown term's confidence exceeds the proposal threshold.
func (e *Extractor) ShouldPropose(confidence float64) bool {
	return confidence > e.threshold
}

// ProposeCandidates creates pending technologies for candidates above the threshold.
func (e *Extractor) ProposeCandidates(ctx context.Context, candidates []Candidate) ([]*models.Technology, error) {
	var created []*models.Technology

	for _, c := range candidates {
		if !e.ShouldPropose(c.Confidence) {
			continue
		}

		tech, isNew, err := e.taxonomy.Propose(ctx, c.Name, c.Category)
		if err != nil {
			return created, fmt.Errorf("propose %q: %w", c.Name, err)
		}

		if isNew {
			created = append(created, tech)
		}
	}

	return created, nil
}

// ExtractAndPropose runs extraction, proposes qualifying unknown terms, and re-extracts when the
// vocabulary grew so the returned matches include the new pending technologies. Re-running it on the
// same text afterwards yields the same matches.
func (e *Extractor) ExtractAndPropose(ctx context.Context, text string) ([]models.TechMatch, []*models.Technology, error) {
	result := e.Extract(text)

	created, err := e.ProposeCandidates(ctx, result.Candidates)
	if err != nil {
		return nil, created, err
	}

	if len(created) == 0 {
		return result.Matches, nil, nil
	}

	return e.Extract(text).Matches, created, nil
}

// ContainsTerm reports whether text mentions any non-rejected technology.
func (e *Extractor) ContainsTerm(text string) bool {
	snap := e.taxonomy.current.Load()
	tokens := tokenize(text)

	for i := range tokens {
		if _, _, ok := longestMatch(snap, text, tokens, i); ok {
			return true
		}
	}

	return false
}
