// Package chunking splits a record's unified text into project-level and capability-level chunks.
package chunking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// Defaults for capability windows and project truncation.
const (
	DefaultMaxWords      = 500
	DefaultMinWords      = 50
	DefaultOverlapWords  = 25
	DefaultMaxInputWords = 6000
)

// chunkNamespace scopes deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c2e0a-9a57-4d0e-8a43-3f4f2b6f7d11")

// outcomeKeywords mark sentences that describe results rather than background.
var outcomeKeywords = []string{
	"reduced", "reducing", "improved", "improving", "increased", "decreased", "saved", "savings",
	"delivered", "achieved", "accelerated", "modernized", "migrated", "automated", "streamlined",
	"exceeded", "uptime", "availability", "percent", "%", "on time", "under budget", "ahead of schedule",
	"zero defects", "exceptional", "very good", "award", "cost avoidance", "roi",
}

// TermMatcher reports whether a sentence mentions a taxonomy term.
type TermMatcher interface {
	ContainsTerm(text string) bool
}

// Config sets window sizes. Zero fields take the defaults.
type Config struct {
	MaxWords      int
	MinWords      int
	OverlapWords  int
	MaxInputWords int
}

func (c Config) withDefaults() Config {
	if c.MaxWords <= 0 {
		c.MaxWords = DefaultMaxWords
	}

	if c.MinWords <= 0 {
		c.MinWords = DefaultMinWords
	}

	if c.OverlapWords <= 0 {
		c.OverlapWords = DefaultOverlapWords
	}

	if c.OverlapWords >= c.MaxWords {
		c.OverlapWords = c.MaxWords / 2
	}

	if c.MaxInputWords <= 0 {
		c.MaxInputWords = DefaultMaxInputWords
	}

	return c
}

// Chunker turns a UnifiedContentProfile into chunks. It holds no mutable state.
type Chunker struct {
	cfg   Config
	terms TermMatcher
}

// NewChunker creates a Chunker. terms may be nil, in which case only outcome keywords select sentences.
func NewChunker(cfg Config, terms TermMatcher) *Chunker {
	return &Chunker{cfg: cfg.withDefaults(), terms: terms}
}

// word is one whitespace-delimited word and its index in the unified text.
type word struct {
	text  string
	index int
}

// Rechunk returns one project-level chunk followed by the capability-level chunks for profile.
// The output is a pure function of the profile and the term vocabulary. Chunks come back pending;
// the embedding step fills in vectors.
func (c *Chunker) Rechunk(profile *models.UnifiedContentProfile) []models.EmbeddingChunk {
	if strings.TrimSpace(profile.UnifiedText) == "" {
		return nil
	}

	chunks := []models.EmbeddingChunk{c.projectChunk(profile)}

	for i, w := range c.capabilityWindows(profile.UnifiedText) {
		text := joinWords(w)
		chunks = append(chunks, models.EmbeddingChunk{
			ID:       chunkID(profile, models.ChunkTypeCapability, i),
			RecordID: profile.RecordID,
			Type:     models.ChunkTypeCapability,
			Text:     text,
			Status:   models.ChunkStatusEmbeddingPending,
			Metadata: models.ChunkMetadata{
				Ordinal:   i,
				WordStart: w[0].index,
				WordEnd:   w[len(w)-1].index + 1,
			},
			CreatedAt: profile.CreatedAt,
		})
	}

	return chunks
}

func chunkID(profile *models.UnifiedContentProfile, chunkType models.ChunkType, ordinal int) uuid.UUID {
	name := fmt.Sprintf("%s/%d/%s/%d", profile.RecordID, profile.Version, chunkType, ordinal)

	return uuid.NewSHA1(chunkNamespace, []byte(name))
}

// projectChunk holds the whole unified text, truncated to MaxInputWords. When truncation is needed
// and documents are known, higher-weighted documents (narrative first) fill the budget first.
func (c *Chunker) projectChunk(profile *models.UnifiedContentProfile) models.EmbeddingChunk {
	words := strings.Fields(profile.UnifiedText)
	text := strings.Join(words, " ")
	truncated := false

	if len(words) > c.cfg.MaxInputWords {
		truncated = true
		text = c.truncateByWeight(profile, words)
	}

	return models.EmbeddingChunk{
		ID:       chunkID(profile, models.ChunkTypeProject, 0),
		RecordID: profile.RecordID,
		Type:     models.ChunkTypeProject,
		Text:     text,
		Status:   models.ChunkStatusEmbeddingPending,
		Metadata: models.ChunkMetadata{
			WordStart: 0,
			WordEnd:   min(len(words), c.cfg.MaxInputWords),
			Truncated: truncated,
		},
		CreatedAt: profile.CreatedAt,
	}
}

func (c *Chunker) truncateByWeight(profile *models.UnifiedContentProfile, words []string) string {
	if len(profile.Documents) == 0 {
		return strings.Join(words[:c.cfg.MaxInputWords], " ")
	}

	docs := make([]models.PPDocument, len(profile.Documents))
	copy(docs, profile.Documents)

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].EffectiveWeight() > docs[j].EffectiveWeight()
	})

	budget := c.cfg.MaxInputWords
	parts := make([]string, 0, len(docs))

	for _, doc := range docs {
		if budget == 0 {
			break
		}

		dw := strings.Fields(doc.Text)
		if len(dw) == 0 {
			continue
		}

		if len(dw) > budget {
			dw = dw[:budget]
		}

		parts = append(parts, strings.Join(dw, " "))
		budget -= len(dw)
	}

	if len(parts) == 0 {
		return strings.Join(words[:c.cfg.MaxInputWords], " ")
	}

	return strings.Join(parts, " ")
}

// capabilityWindows slides a MaxWords window with OverlapWords overlap over the words of the
// relevant sentences. A tail shorter than MinWords joins the preceding window.
func (c *Chunker) capabilityWindows(text string) [][]word {
	stream := c.relevantWords(text)
	if len(stream) < c.cfg.MinWords {
		return nil
	}

	step := c.cfg.MaxWords - c.cfg.OverlapWords

	var windows [][]word

	for start := 0; start < len(stream); start += step {
		end := min(start+c.cfg.MaxWords, len(stream))
		if len(stream)-end < c.cfg.MinWords {
			end = len(stream)
		}

		windows = append(windows, stream[start:end])

		if end == len(stream) {
			break
		}
	}

	return windows
}

// relevantWords returns the words of sentences that mention a taxonomy term or an outcome keyword,
// each tagged with its position in the full text.
func (c *Chunker) relevantWords(text string) []word {
	var (
		out    []word
		offset int
	)

	for _, sentence := range splitSentences(text) {
		fields := strings.Fields(sentence)
		if c.isRelevant(sentence) {
			for i, f := range fields {
				out = append(out, word{text: f, index: offset + i})
			}
		}

		offset += len(fields)
	}

	return out
}

func (c *Chunker) isRelevant(sentence string) bool {
	if c.terms != nil && c.terms.ContainsTerm(sentence) {
		return true
	}

	lower := strings.ToLower(sentence)
	for _, kw := range outcomeKeywords {
		if containsKeyword(lower, kw) {
			return true
		}
	}

	return false
}

// containsKeyword matches kw on word boundaries; "%" matches anywhere.
func containsKeyword(lower, kw string) bool {
	if kw == "%" {
		return strings.Contains(lower, kw)
	}

	for from := 0; ; {
		i := strings.Index(lower[from:], kw)
		if i < 0 {
			return false
		}

		i += from
		end := i + len(kw)

		if (i == 0 || !isWordByte(lower[i-1])) && (end == len(lower) || !isWordByte(lower[end])) {
			return true
		}

		from = i + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

func joinWords(ws []word) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.text
	}

	return strings.Join(parts, " ")
}
