package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the lifecycle state of a past-performance record. Records are never hard-deleted.
type RecordStatus string

// Record statuses.
const (
	RecordStatusActive   RecordStatus = "active"
	RecordStatusArchived RecordStatus = "archived"
)

// ContractRole is the company's role on the contract.
type ContractRole string

// Contract roles.
const (
	RolePrime         ContractRole = "prime"
	RoleSubcontractor ContractRole = "sub"
)

// PastPerformanceRecord is a historical contract owned by the system of record.
type PastPerformanceRecord struct {
	ID             uuid.UUID    `json:"id"`
	Name           string       `json:"name"`
	ContractNumber string       `json:"contract_number,omitempty"`
	Customer       string       `json:"customer"`
	CustomerType   string       `json:"customer_type"`
	ContractValue  float64      `json:"contract_value"`
	Role           ContractRole `json:"role"`
	WorkPercentage *float64     `json:"work_percentage,omitempty"`
	PeriodStart    *time.Time   `json:"period_start,omitempty"`
	PeriodEnd      *time.Time   `json:"period_end,omitempty"`
	ResourceCount  int          `json:"resource_count"`
	Status         RecordStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// IsActive reports whether the record participates in ranking and aggregation.
func (r *PastPerformanceRecord) IsActive() bool {
	return r.Status != RecordStatusArchived
}

// PeriodYears returns the length of the performance period in years, or 0 when either bound is missing.
func (r *PastPerformanceRecord) PeriodYears() float64 {
	if r.PeriodStart == nil || r.PeriodEnd == nil || r.PeriodEnd.Before(*r.PeriodStart) {
		return 0
	}

	const hoursPerYear = 24 * 365.25

	return r.PeriodEnd.Sub(*r.PeriodStart).Hours() / hoursPerYear
}

// PeriodEndOrZero returns the period end, or the zero time when unknown.
func (r *PastPerformanceRecord) PeriodEndOrZero() time.Time {
	if r.PeriodEnd == nil {
		return time.Time{}
	}

	return *r.PeriodEnd
}

// UnifiedContentProfile is the versioned merge of a record's document text. Always replaced, never edited.
type UnifiedContentProfile struct {
	RecordID    uuid.UUID    `json:"record_id"`
	Version     int64        `json:"version"`
	UnifiedText string       `json:"unified_text"`
	Summary     string       `json:"summary"`
	Documents   []PPDocument `json:"documents"`
	CreatedAt   time.Time    `json:"created_at"`
}
