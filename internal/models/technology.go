package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCategory is returned by ParseTechnologyCategory for unknown categories.
var ErrInvalidCategory = errors.New("invalid technology category")

// TechnologyCategory groups technologies for the admin UI.
type TechnologyCategory string

// Technology categories.
const (
	CategoryPlatform    TechnologyCategory = "platform"
	CategoryLanguage    TechnologyCategory = "language"
	CategoryFramework   TechnologyCategory = "framework"
	CategoryTool        TechnologyCategory = "tool"
	CategoryDatabase    TechnologyCategory = "database"
	CategoryCloud       TechnologyCategory = "cloud"
	CategoryMethodology TechnologyCategory = "methodology"
)

// AllCategories lists categories in display order.
func AllCategories() []TechnologyCategory {
	return []TechnologyCategory{
		CategoryPlatform, CategoryLanguage, CategoryFramework, CategoryTool,
		CategoryDatabase, CategoryCloud, CategoryMethodology,
	}
}

// ParseTechnologyCategory converts s to a TechnologyCategory.
func ParseTechnologyCategory(s string) (TechnologyCategory, error) {
	c := TechnologyCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCategories() {
		if c == known {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// ApprovalState is the taxonomy workflow state: pending -> approved | rejected.
type ApprovalState string

// Approval states.
const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// CanTransitionTo reports whether the state machine allows s -> next. Re-applying the current state is allowed.
func (s ApprovalState) CanTransitionTo(next ApprovalState) bool {
	if s == next {
		return true
	}

	return s == ApprovalPending && (next == ApprovalApproved || next == ApprovalRejected)
}

// Technology is one entry of the controlled vocabulary.
type Technology struct {
	ID         uuid.UUID          `json:"id"`
	Key        string             `json:"key"`
	Name       string             `json:"name"`
	Category   TechnologyCategory `json:"category"`
	Aliases    []string           `json:"aliases"`
	State      ApprovalState      `json:"state"`
	UsageCount int64              `json:"usage_count"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// IsVisible reports whether the technology may appear in user-facing output.
func (t *Technology) IsVisible() bool {
	return t.State == ApprovalApproved
}

// TechMatch is one technology detected in a text.
type TechMatch struct {
	TechnologyID   uuid.UUID `json:"technology_id"`
	TechnologyKey  string    `json:"technology_key"`
	Confidence     float64   `json:"confidence"`
	Version        string    `json:"version,omitempty"`
	ContextSnippet string    `json:"context_snippet"`
	Ambiguous      bool      `json:"ambiguous,omitempty"`
}

// PPTechnologyAssociation links a record to a technology it demonstrates.
type PPTechnologyAssociation struct {
	RecordID       uuid.UUID `json:"record_id"`
	TechnologyID   uuid.UUID `json:"technology_id"`
	Confidence     float64   `json:"confidence"`
	Version        string    `json:"version,omitempty"`
	ContextSnippet string    `json:"context_snippet"`
}
