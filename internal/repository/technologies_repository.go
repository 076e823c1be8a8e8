package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// TechnologiesRepository persists the technology vocabulary. It implements taxonomy.Store.
type TechnologiesRepository struct {
	db *pgxpool.Pool
}

// NewTechnologiesRepository creates a new technologies repository.
func NewTechnologiesRepository(db *pgxpool.Pool) *TechnologiesRepository {
	return &TechnologiesRepository{db: db}
}

// CreateTechnology inserts tech. A duplicate key is a ConflictError.
func (r *TechnologiesRepository) CreateTechnology(ctx context.Context, tech *models.Technology) error {
	aliases := tech.Aliases
	if aliases == nil {
		aliases = []string{}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO technologies (id, key, name, category, aliases, state, usage_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tech.ID, tech.Key, tech.Name, string(tech.Category), aliases, string(tech.State), tech.UsageCount,
		tech.CreatedAt, tech.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError(fmt.Sprintf("technology %q already exists", tech.Key))
		}

		return fmt.Errorf("create technology: %w", err)
	}

	return nil
}

// UpdateTechnologyState sets the approval state of one technology.
func (r *TechnologiesRepository) UpdateTechnologyState(ctx context.Context, id uuid.UUID, state models.ApprovalState) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE technologies SET state = $2, updated_at = NOW() WHERE id = $1`, id, string(state))
	if err != nil {
		return fmt.Errorf("update technology state: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("technology", "technology not found")
	}

	return nil
}

// IncrementTechnologyUsage adds counts to usage_count in one batch, in id order.
func (r *TechnologiesRepository) IncrementTechnologyUsage(ctx context.Context, counts map[uuid.UUID]int64) error {
	if len(counts) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}

	// Stable lock order across concurrent ingestions.
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`UPDATE technologies SET usage_count = usage_count + $2 WHERE id = $1`, id, counts[id])
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("increment technology usage: %w", err)
	}

	return nil
}

// List returns every technology, rejected ones included, ordered by key.
func (r *TechnologiesRepository) List(ctx context.Context) ([]models.Technology, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, key, name, category, aliases, state, usage_count, created_at, updated_at
		FROM technologies
		ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list technologies: %w", err)
	}
	defer rows.Close()

	techs := []models.Technology{}

	for rows.Next() {
		var t models.Technology

		err := rows.Scan(&t.ID, &t.Key, &t.Name, &t.Category, &t.Aliases, &t.State, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan technology: %w", err)
		}

		techs = append(techs, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating technologies: %w", err)
	}

	return techs, nil
}
