package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

const searchConfigurationColumns = `id, name, weight_technology, weight_domain, weight_contract_size,
	weight_customer_type, is_default, created_at, updated_at`

// SearchConfigurationsRepository handles named weight sets.
type SearchConfigurationsRepository struct {
	db *pgxpool.Pool
}

// NewSearchConfigurationsRepository creates a new search configurations repository.
func NewSearchConfigurationsRepository(db *pgxpool.Pool) *SearchConfigurationsRepository {
	return &SearchConfigurationsRepository{db: db}
}

func scanSearchConfiguration(row pgx.Row) (*models.SearchConfiguration, error) {
	var c models.SearchConfiguration

	err := row.Scan(&c.ID, &c.Name, &c.Weights.Technology, &c.Weights.Domain, &c.Weights.ContractSize,
		&c.Weights.CustomerType, &c.IsDefault, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}

	return &c, nil
}

// Create inserts a configuration. When it is the default, the previous default is cleared in the
// same transaction. A duplicate name is a ConflictError.
func (r *SearchConfigurationsRepository) Create(ctx context.Context, cfg *models.SearchConfiguration) (*models.SearchConfiguration, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create search configuration: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if cfg.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE search_configurations SET is_default = FALSE, updated_at = NOW() WHERE is_default`); err != nil {
			return nil, fmt.Errorf("clear default search configuration: %w", err)
		}
	}

	id := cfg.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	now := time.Now()

	created, err := scanSearchConfiguration(tx.QueryRow(ctx, `
		INSERT INTO search_configurations (
			id, name, weight_technology, weight_domain, weight_contract_size, weight_customer_type,
			is_default, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+searchConfigurationColumns,
		id, cfg.Name, cfg.Weights.Technology, cfg.Weights.Domain, cfg.Weights.ContractSize, cfg.Weights.CustomerType,
		cfg.IsDefault, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewConflictError(fmt.Sprintf("search configuration %q already exists", cfg.Name))
		}

		return nil, fmt.Errorf("create search configuration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit search configuration: %w", err)
	}

	return created, nil
}

// List returns every configuration, default first, then by name.
func (r *SearchConfigurationsRepository) List(ctx context.Context) ([]models.SearchConfiguration, error) {
	rows, err := r.db.Query(ctx, `SELECT `+searchConfigurationColumns+` FROM search_configurations ORDER BY is_default DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list search configurations: %w", err)
	}
	defer rows.Close()

	out := []models.SearchConfiguration{}

	for rows.Next() {
		c, err := scanSearchConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search configuration: %w", err)
		}

		out = append(out, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search configurations: %w", err)
	}

	return out, nil
}

// GetByName returns the configuration called name.
func (r *SearchConfigurationsRepository) GetByName(ctx context.Context, name string) (*models.SearchConfiguration, error) {
	c, err := scanSearchConfiguration(r.db.QueryRow(ctx,
		`SELECT `+searchConfigurationColumns+` FROM search_configurations WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("search configuration", fmt.Sprintf("search configuration %q not found", name))
		}

		return nil, fmt.Errorf("get search configuration: %w", err)
	}

	return c, nil
}

// GetDefault returns the default configuration, or NotFound when none is marked.
func (r *SearchConfigurationsRepository) GetDefault(ctx context.Context) (*models.SearchConfiguration, error) {
	c, err := scanSearchConfiguration(r.db.QueryRow(ctx,
		`SELECT `+searchConfigurationColumns+` FROM search_configurations WHERE is_default`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("search configuration", "no default search configuration")
		}

		return nil, fmt.Errorf("get default search configuration: %w", err)
	}

	return c, nil
}
