package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// SolicitationsRepository reads solicitation requirements owned by the project-management service.
type SolicitationsRepository struct {
	db *pgxpool.Pool
}

// NewSolicitationsRepository creates a new solicitations repository.
func NewSolicitationsRepository(db *pgxpool.Pool) *SolicitationsRepository {
	return &SolicitationsRepository{db: db}
}

// Get returns the requirements of a proposal project.
func (r *SolicitationsRepository) Get(ctx context.Context, projectID uuid.UUID) (*models.SolicitationRequirements, error) {
	var (
		s      models.SolicitationRequirements
		lo, hi *float64
	)

	err := r.db.QueryRow(ctx, `
		SELECT project_id, title, description, domain, technologies, contract_min, contract_max, customer_type
		FROM solicitation_requirements
		WHERE project_id = $1`, projectID,
	).Scan(&s.ProjectID, &s.Title, &s.Description, &s.Domain, &s.Technologies, &lo, &hi, &s.CustomerType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("project", "project not found")
		}

		return nil, fmt.Errorf("get solicitation requirements: %w", err)
	}

	s.ContractRange = contractRange(lo, hi)

	return &s, nil
}

// contractRange returns nil when neither bound is set.
func contractRange(lo, hi *float64) *models.ContractRange {
	var r models.ContractRange

	if lo != nil {
		r.Min = *lo
	}

	if hi != nil {
		r.Max = *hi
	}

	if r.IsZero() {
		return nil
	}

	return &r
}
