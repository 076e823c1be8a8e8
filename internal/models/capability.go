package models

import (
	"time"

	"github.com/google/uuid"
)

// UnifiedCapability is the portfolio-wide rollup for one technology. Instances are immutable snapshots.
type UnifiedCapability struct {
	TechnologyID         uuid.UUID  `json:"technology_id"`
	TechnologyKey        string     `json:"technology_key"`
	TechnologyName       string     `json:"technology_name"`
	ProjectCount         int        `json:"project_count"`
	TotalExperienceYears float64    `json:"total_experience_years"`
	MostRecentUsage      *time.Time `json:"most_recent_usage,omitempty"`
	Narrative            string     `json:"narrative"`
	NarrativeFactsHash   uint64     `json:"narrative_facts_hash"`
	FactsHash            uint64     `json:"facts_hash"`
	Version              int64      `json:"version"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NarrativeStale reports whether the narrative was generated from different facts than the current ones.
func (c *UnifiedCapability) NarrativeStale() bool {
	return c.NarrativeFactsHash != c.FactsHash
}
