package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
)

// WeightSumTolerance is how far the weight sum may drift from 1.0.
const WeightSumTolerance = 1e-6

// Weights are the facet weights of the ranking function.
type Weights struct {
	Technology   float64 `json:"technology"`
	Domain       float64 `json:"domain"`
	ContractSize float64 `json:"contract_size"`
	CustomerType float64 `json:"customer_type"`
}

// DefaultWeights returns technology=0.40, domain=0.30, contract_size=0.20, customer_type=0.10.
func DefaultWeights() Weights {
	return Weights{Technology: 0.40, Domain: 0.30, ContractSize: 0.20, CustomerType: 0.10}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Technology + w.Domain + w.ContractSize + w.CustomerType
}

// Validate rejects negative weights and sums outside 1.0 +/- WeightSumTolerance. It never renormalizes.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"technology": w.Technology, "domain": w.Domain,
		"contract_size": w.ContractSize, "customer_type": w.CustomerType,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return apperrors.NewConfigurationError(fmt.Sprintf("weight %s must be within [0,1], got %v", name, v))
		}
	}

	if sum := w.Sum(); math.Abs(sum-1) > WeightSumTolerance {
		return apperrors.NewConfigurationError(fmt.Sprintf("weights must sum to 1.0, got %.6f", sum))
	}

	return nil
}

// SearchConfiguration is a named weight set. At most one is the default.
type SearchConfiguration struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Weights   Weights   `json:"weights"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContractRange is a solicitation's expected contract value range. Either bound may be zero.
type ContractRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Mid returns the midpoint, or the single non-zero bound.
func (r ContractRange) Mid() float64 {
	switch {
	case r.Min > 0 && r.Max > 0:
		return (r.Min + r.Max) / 2
	case r.Max > 0:
		return r.Max
	default:
		return r.Min
	}
}

// IsZero reports whether neither bound is set.
func (r ContractRange) IsZero() bool {
	return r.Min <= 0 && r.Max <= 0
}

// SolicitationRequirements is the structured requirement set of a proposal project.
type SolicitationRequirements struct {
	ProjectID     uuid.UUID      `json:"project_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Domain        string         `json:"domain"`
	Technologies  []string       `json:"technologies"`
	ContractRange *ContractRange `json:"contract_range,omitempty"`
	CustomerType  string         `json:"customer_type,omitempty"`
}

// DomainText returns the text embedded for the domain facet.
func (s *SolicitationRequirements) DomainText() string {
	text := s.Title
	for _, part := range []string{s.Domain, s.Description} {
		if part == "" {
			continue
		}

		if text != "" {
			text += "\n"
		}

		text += part
	}

	return text
}

// MatchTier labels a result's position within the fixed result window.
type MatchTier string

// Match tiers.
const (
	MatchTierPrimary MatchTier = "primary"
	MatchTierRelated MatchTier = "related"
)

// SearchResult is one ranked record. Computed per query, never persisted.
type SearchResult struct {
	RecordID        uuid.UUID `json:"record_id"`
	Name            string    `json:"name"`
	RelevanceScore  float64   `json:"relevance_score"`
	MatchTier       MatchTier `json:"match_tier"`
	Explanation     []string  `json:"explanation"`
	KeyCapabilities []string  `json:"key_capabilities"`
	Summary         string    `json:"summary"`
}
