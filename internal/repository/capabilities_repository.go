package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// CapabilitiesRepository persists unified capability rollups.
type CapabilitiesRepository struct {
	db *pgxpool.Pool
}

// NewCapabilitiesRepository creates a new capabilities repository.
func NewCapabilitiesRepository(db *pgxpool.Pool) *CapabilitiesRepository {
	return &CapabilitiesRepository{db: db}
}

// Save upserts updated rollups and deletes removed ones in one batch. Publishers save outside the
// aggregator lock, so batches can land out of order: a row is only overwritten by a rollup with a
// higher version, and an older or replayed rollup is a no-op.
func (r *CapabilitiesRepository) Save(ctx context.Context, updated []models.UnifiedCapability, removed []uuid.UUID) error {
	if len(updated) == 0 && len(removed) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	for i := range updated {
		batch.Queue(`
			INSERT INTO unified_capabilities (
				technology_id, project_count, total_experience_years, most_recent_usage,
				narrative, narrative_facts_hash, facts_hash, version, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (technology_id) DO UPDATE SET
				project_count = EXCLUDED.project_count,
				total_experience_years = EXCLUDED.total_experience_years,
				most_recent_usage = EXCLUDED.most_recent_usage,
				narrative = EXCLUDED.narrative,
				narrative_facts_hash = EXCLUDED.narrative_facts_hash,
				facts_hash = EXCLUDED.facts_hash,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at
			WHERE unified_capabilities.version < EXCLUDED.version`,
			capabilityArgs(&updated[i])...)
	}

	for _, id := range removed {
		batch.Queue(`DELETE FROM unified_capabilities WHERE technology_id = $1`, id)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save capabilities: %w", err)
	}

	return nil
}

func capabilityArgs(c *models.UnifiedCapability) []any {
	return []any{
		c.TechnologyID, c.ProjectCount, c.TotalExperienceYears, c.MostRecentUsage,
		c.Narrative, hashToInt64(c.NarrativeFactsHash), hashToInt64(c.FactsHash), c.Version, c.UpdatedAt,
	}
}

// List returns every stored rollup with its technology key and name.
func (r *CapabilitiesRepository) List(ctx context.Context) ([]models.UnifiedCapability, error) {
	rows, err := r.db.Query(ctx, `
		SELECT uc.technology_id, t.key, t.name, uc.project_count, uc.total_experience_years,
			uc.most_recent_usage, uc.narrative, uc.narrative_facts_hash, uc.facts_hash, uc.version, uc.updated_at
		FROM unified_capabilities uc
		JOIN technologies t ON t.id = uc.technology_id
		ORDER BY t.key`)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	defer rows.Close()

	caps := []models.UnifiedCapability{}

	for rows.Next() {
		var (
			c                     models.UnifiedCapability
			narrativeHash, factsH int64
		)

		err := rows.Scan(&c.TechnologyID, &c.TechnologyKey, &c.TechnologyName, &c.ProjectCount, &c.TotalExperienceYears,
			&c.MostRecentUsage, &c.Narrative, &narrativeHash, &factsH, &c.Version, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan capability: %w", err)
		}

		c.NarrativeFactsHash = int64ToHash(narrativeHash)
		c.FactsHash = int64ToHash(factsH)
		caps = append(caps, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating capabilities: %w", err)
	}

	return caps, nil
}
