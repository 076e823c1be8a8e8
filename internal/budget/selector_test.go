package budget

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEstimator charges one token per word so tests can reason about costs exactly.
type wordEstimator struct{}

func (wordEstimator) Estimate(text string) int {
	return len(strings.Fields(text))
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("w ", n))
}

func candidate(i int, score float64, cost int) Candidate {
	return Candidate{
		RecordID: uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", i)),
		Score:    score,
		Text:     words(cost),
	}
}

func TestSelectWithinBudgetReturnsPrefix(t *testing.T) {
	sel := NewSelector(wordEstimator{})
	candidates := []Candidate{
		candidate(3, 0.70, 100),
		candidate(1, 0.90, 100),
		candidate(5, 0.50, 100),
		candidate(2, 0.80, 100),
		candidate(4, 0.60, 100),
	}

	res := sel.SelectWithinBudget(candidates, 250)

	require.Len(t, res.Selected, 2)
	assert.Equal(t, candidates[1].RecordID, res.Selected[0].RecordID)
	assert.Equal(t, candidates[3].RecordID, res.Selected[1].RecordID)
	assert.Equal(t, 200, res.UsedTokens)
	assert.LessOrEqual(t, res.UsedTokens, res.Budget)
	assert.Len(t, res.Skipped, 3)
}

func TestSelectWithinBudgetTruncatedInclusion(t *testing.T) {
	sel := NewSelector(wordEstimator{})

	big := candidate(1, 0.9, 400)
	big.FallbackText = words(80)
	big.FallbackChunkID = uuid.New()

	small := candidate(2, 0.8, 50)
	huge := candidate(3, 0.7, 1000)
	huge.FallbackText = words(900)

	res := sel.SelectWithinBudget([]Candidate{huge, small, big}, 150)

	require.Len(t, res.Selected, 2)
	assert.True(t, res.Selected[0].Truncated)
	assert.Equal(t, big.FallbackChunkID, res.Selected[0].ChunkID)
	assert.Equal(t, 80, res.Selected[0].Tokens)
	assert.False(t, res.Selected[1].Truncated)
	assert.Equal(t, 130, res.UsedTokens)
	assert.Equal(t, []uuid.UUID{huge.RecordID}, res.Skipped)
}

func TestSelectWithinBudgetNeverExceeds(t *testing.T) {
	sel := NewSelector(nil)

	var candidates []Candidate
	for i := 0; i < 40; i++ {
		c := candidate(i, float64(i%7)/7, 10+i*13)
		c.FallbackText = words(5 + i)
		candidates = append(candidates, c)
	}

	for _, budget := range []int{0, 1, 17, 100, 333, 1000, 5000} {
		res := sel.SelectWithinBudget(candidates, budget)

		total := 0
		for _, s := range res.Selected {
			total += s.Tokens
		}

		assert.Equal(t, total, res.UsedTokens)
		assert.LessOrEqual(t, total, budget, "budget %d", budget)
		assert.Equal(t, len(candidates), len(res.Selected)+len(res.Skipped))
	}
}

func TestSelectWithinBudgetTiesByRecordID(t *testing.T) {
	sel := NewSelector(wordEstimator{})
	res := sel.SelectWithinBudget([]Candidate{candidate(9, 0.5, 10), candidate(2, 0.5, 10)}, 10)

	require.Len(t, res.Selected, 1)
	assert.Equal(t, candidate(2, 0, 0).RecordID, res.Selected[0].RecordID)
}

func TestHeuristicEstimator(t *testing.T) {
	var e HeuristicEstimator
	assert.Equal(t, 0, e.Estimate(""))
	assert.Equal(t, 1, e.Estimate("abc"))
	assert.Equal(t, 1, e.Estimate("abcd"))
	assert.Equal(t, 2, e.Estimate("abcde"))
	assert.Equal(t, 1, e.Estimate("éé"))
}
