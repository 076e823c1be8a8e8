package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

type javaMatcher struct{}

func (javaMatcher) ContainsTerm(text string) bool {
	return strings.Contains(text, "Java")
}

// relevantText returns n ten-word sentences that each mention Java.
func relevantText(n int) string {
	sentences := make([]string, n)
	for i := range sentences {
		sentences[i] = fmt.Sprintf("Java work item number %d was handled on schedule today.", i)
	}

	return strings.Join(sentences, " ")
}

func profile(text string) *models.UnifiedContentProfile {
	return &models.UnifiedContentProfile{
		RecordID:    uuid.MustParse("018f0000-0000-7000-8000-000000000001"),
		Version:     3,
		UnifiedText: text,
	}
}

func capabilityChunks(chunks []models.EmbeddingChunk) []models.EmbeddingChunk {
	var out []models.EmbeddingChunk
	for _, c := range chunks {
		if c.Type == models.ChunkTypeCapability {
			out = append(out, c)
		}
	}

	return out
}

func TestRechunk(t *testing.T) {
	chunker := NewChunker(Config{}, javaMatcher{})

	t.Run("empty text yields no chunks", func(t *testing.T) {
		assert.Empty(t, chunker.Rechunk(profile("   ")))
	})

	t.Run("exactly one project chunk first", func(t *testing.T) {
		chunks := chunker.Rechunk(profile(relevantText(12)))
		require.NotEmpty(t, chunks)

		assert.Equal(t, models.ChunkTypeProject, chunks[0].Type)
		for _, c := range chunks[1:] {
			assert.Equal(t, models.ChunkTypeCapability, c.Type)
		}

		for _, c := range chunks {
			assert.Equal(t, models.ChunkStatusEmbeddingPending, c.Status)
			assert.Nil(t, c.Vector)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		p := profile(relevantText(130))
		assert.Equal(t, chunker.Rechunk(p), chunker.Rechunk(p))
	})

	t.Run("sliding window with overlap", func(t *testing.T) {
		chunks := capabilityChunks(chunker.Rechunk(profile(relevantText(120))))
		require.Len(t, chunks, 3)

		assert.Equal(t, 500, len(strings.Fields(chunks[0].Text)))
		assert.Equal(t, 500, len(strings.Fields(chunks[1].Text)))
		assert.Equal(t, 250, len(strings.Fields(chunks[2].Text)))

		first := strings.Fields(chunks[0].Text)
		second := strings.Fields(chunks[1].Text)
		assert.Equal(t, first[len(first)-DefaultOverlapWords:], second[:DefaultOverlapWords])

		assert.Equal(t, 0, chunks[0].Metadata.WordStart)
		assert.Equal(t, 475, chunks[1].Metadata.WordStart)
		assert.Equal(t, 2, chunks[2].Metadata.Ordinal)
	})

	t.Run("short tail merges into previous chunk", func(t *testing.T) {
		chunks := capabilityChunks(chunker.Rechunk(profile(relevantText(52))))
		require.Len(t, chunks, 1)
		assert.Equal(t, 520, len(strings.Fields(chunks[0].Text)))
	})

	t.Run("fewer than minimum relevant words yields no capability chunks", func(t *testing.T) {
		text := relevantText(4) + " The weather was mild. Lunch was served at noon."
		chunks := chunker.Rechunk(profile(text))
		require.Len(t, chunks, 1)
		assert.Equal(t, models.ChunkTypeProject, chunks[0].Type)
	})

	t.Run("only relevant sentences are windowed", func(t *testing.T) {
		text := relevantText(3) + " The weather was mild. " + relevantText(3) +
			" Cycle time reduced by 40 percent across the program."
		chunks := capabilityChunks(chunker.Rechunk(profile(text)))
		require.Len(t, chunks, 1)

		assert.NotContains(t, chunks[0].Text, "weather")
		assert.Contains(t, chunks[0].Text, "reduced by 40 percent")
	})

	t.Run("ids are deterministic and distinct", func(t *testing.T) {
		p := profile(relevantText(120))
		a := chunker.Rechunk(p)
		b := chunker.Rechunk(p)

		seen := map[uuid.UUID]bool{}
		for i := range a {
			assert.Equal(t, a[i].ID, b[i].ID)
			assert.False(t, seen[a[i].ID])
			seen[a[i].ID] = true
		}

		p2 := *p
		p2.Version++
		assert.NotEqual(t, a[0].ID, chunker.Rechunk(&p2)[0].ID)
	})
}

func TestProjectChunkTruncation(t *testing.T) {
	chunker := NewChunker(Config{MaxInputWords: 20}, javaMatcher{})

	narrative := strings.TrimSpace(strings.Repeat("narrative ", 15))
	cpars := strings.TrimSpace(strings.Repeat("cpars ", 15))

	p := profile(cpars + " " + narrative)
	p.Documents = []models.PPDocument{
		{Class: models.DocumentClassCPARS, Text: cpars},
		{Class: models.DocumentClassNarrative, Text: narrative},
	}

	project := chunker.Rechunk(p)[0]
	require.Equal(t, models.ChunkTypeProject, project.Type)

	words := strings.Fields(project.Text)
	assert.Len(t, words, 20)
	assert.True(t, project.Metadata.Truncated)
	assert.Equal(t, "narrative", words[0])
	assert.Equal(t, "narrative", words[14])
	assert.Equal(t, "cpars", words[15])

	t.Run("without documents keeps the leading words", func(t *testing.T) {
		p.Documents = nil
		project := chunker.Rechunk(p)[0]
		assert.Equal(t, "cpars", strings.Fields(project.Text)[0])
		assert.Len(t, strings.Fields(project.Text), 20)
	})
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "One two. Three four! Five?", []string{"One two.", "Three four!", "Five?"}},
		{"abbreviation", "We used e.g. Java. Then Go.", []string{"We used e.g. Java.", "Then Go."}},
		{"decimal", "Version 3.11 shipped. Done.", []string{"Version 3.11 shipped.", "Done."}},
		{"bullets", "Intro line\n- first item\n- second", []string{"Intro line", "- first item", "- second"}},
		{"bullets after a blank line", "Intro.\n\n* one\n  • two", []string{"Intro.", "* one", "• two"}},
		{"paragraphs", "Para one\n\nPara two", []string{"Para one", "Para two"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSentences(tt.in))
		})
	}
}

func TestRelevantWords_IndexesMatchText(t *testing.T) {
	chunker := NewChunker(Config{}, javaMatcher{})
	text := "Highlights:\n- Built Java services for claims.\n- Ran the help desk.\n\n* Java upgrade finished early.\n  • Java audits passed"

	fields := strings.Fields(text)
	words := chunker.relevantWords(text)
	require.NotEmpty(t, words)

	for _, w := range words {
		require.Less(t, w.index, len(fields))
		assert.Equal(t, fields[w.index], w.text, "word %d", w.index)
	}

	assert.Equal(t, "Built", words[1].text)
	assert.Equal(t, 2, words[1].index)
}

func TestContainsKeyword(t *testing.T) {
	assert.True(t, containsKeyword("costs reduced sharply", "reduced"))
	assert.False(t, containsKeyword("unreduced costs", "reduced"))
	assert.True(t, containsKeyword("delivered on time.", "on time"))
	assert.True(t, containsKeyword("up 40% overall", "%"))
}
