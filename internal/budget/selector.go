// Package budget selects ranked records to hand to a completion service within a token budget.
//
// Selection is greedy by score. Token costs are estimates, so this approximates the underlying
// knapsack problem rather than solving it exactly.
package budget

import (
	"sort"

	"github.com/google/uuid"
)

// Candidate is one ranked record offered for inclusion.
type Candidate struct {
	RecordID uuid.UUID
	Score    float64
	// Text is the record's preferred full text (narrative, else unified text).
	Text string
	// FallbackChunkID and FallbackText identify the record's best capability chunk, used for a
	// truncated inclusion when Text does not fit.
	FallbackChunkID uuid.UUID
	FallbackText    string
}

// Selection is one included candidate.
type Selection struct {
	RecordID  uuid.UUID `json:"recordID"`
	Score     float64   `json:"score"`
	Text      string    `json:"text"`
	Tokens    int       `json:"tokens"`
	Truncated bool      `json:"truncated"`
	ChunkID   uuid.UUID `json:"chunkID,omitzero"`
}

// Result is the outcome of a selection.
type Result struct {
	Selected   []Selection
	Skipped    []uuid.UUID
	UsedTokens int
	Budget     int
}

// Selector picks candidates within a budget.
type Selector struct {
	estimator Estimator
}

// NewSelector creates a Selector. A nil estimator uses HeuristicEstimator.
func NewSelector(estimator Estimator) *Selector {
	if estimator == nil {
		estimator = HeuristicEstimator{}
	}

	return &Selector{estimator: estimator}
}

// SelectWithinBudget walks candidates by descending score (ties by record id) and includes each one
// whose full text fits the remaining budget. A candidate that does not fit gets one truncated
// inclusion of its fallback chunk if that fits, and is skipped otherwise. The total never exceeds budget.
func (s *Selector) SelectWithinBudget(candidates []Candidate, budgetTokens int) Result {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}

		return ordered[i].RecordID.String() < ordered[j].RecordID.String()
	})

	res := Result{Budget: max(0, budgetTokens), Selected: []Selection{}}
	remaining := res.Budget

	for _, c := range ordered {
		if cost := s.estimator.Estimate(c.Text); c.Text != "" && cost <= remaining {
			res.Selected = append(res.Selected, Selection{RecordID: c.RecordID, Score: c.Score, Text: c.Text, Tokens: cost})
			remaining -= cost

			continue
		}

		if c.FallbackText != "" {
			if cost := s.estimator.Estimate(c.FallbackText); cost <= remaining {
				res.Selected = append(res.Selected, Selection{
					RecordID: c.RecordID, Score: c.Score, Text: c.FallbackText, Tokens: cost,
					Truncated: true, ChunkID: c.FallbackChunkID,
				})
				remaining -= cost

				continue
			}
		}

		res.Skipped = append(res.Skipped, c.RecordID)
	}

	res.UsedTokens = res.Budget - remaining

	return res
}
