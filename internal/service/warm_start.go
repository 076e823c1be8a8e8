package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/catalog"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/taxonomy"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/vectorindex"
)

// TechnologyLister lists the persisted vocabulary.
type TechnologyLister interface {
	List(ctx context.Context) ([]models.Technology, error)
}

// CatalogLister lists committed records with their associations.
type CatalogLister interface {
	ListCatalogEntries(ctx context.Context) ([]catalog.RecordEntry, error)
}

// ChunkLister lists every stored chunk.
type ChunkLister interface {
	ListCurrent(ctx context.Context) ([]models.EmbeddingChunk, error)
}

// WarmStartParams holds the stores to load from and the in-memory structures to fill.
// SeedVocabulary is installed when the stored vocabulary is empty; nil skips seeding.
type WarmStartParams struct {
	Technologies   TechnologyLister
	Records        CatalogLister
	Chunks         ChunkLister
	Taxonomy       *taxonomy.Taxonomy
	SeedVocabulary []models.Technology
	Catalog        *catalog.Catalog
	Index          *vectorindex.Index
	Capabilities   *CapabilitiesService
	Logger         *slog.Logger
}

// WarmStartStats reports what was loaded.
type WarmStartStats struct {
	Technologies   int
	Seeded         int
	Records        int
	Chunks         int
	PendingChunks  int
	SkippedRecords int
	Rollups        int
}

// WarmStart loads the taxonomy, catalog, vector index and rollups from storage. A record whose chunks
// cannot be indexed is left out of the index and logged; it does not stop the others.
func WarmStart(ctx context.Context, p WarmStartParams) (*WarmStartStats, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stats := &WarmStartStats{}

	techs, err := p.Technologies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("warm start: list technologies: %w", err)
	}

	p.Taxonomy.Load(techs)

	if len(techs) == 0 && len(p.SeedVocabulary) > 0 {
		stats.Seeded, err = taxonomy.Seed(ctx, p.Taxonomy, p.SeedVocabulary)
		if err != nil {
			return nil, fmt.Errorf("warm start: seed taxonomy: %w", err)
		}
	}

	stats.Technologies = p.Taxonomy.Len()

	entries, err := p.Records.ListCatalogEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("warm start: list records: %w", err)
	}

	p.Catalog.Load(entries)
	stats.Records = p.Catalog.Len()

	chunks, err := p.Chunks.ListCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("warm start: list chunks: %w", err)
	}

	byRecord := make(map[uuid.UUID][]models.EmbeddingChunk)
	for _, c := range chunks {
		byRecord[c.RecordID] = append(byRecord[c.RecordID], c)
	}

	for recordID, list := range byRecord {
		entry, ok := p.Catalog.Get(recordID)
		if !ok {
			continue
		}

		if _, err := p.Index.ReplaceRecord(recordID, entry.Record.PeriodEndOrZero(), list[0].Generation, list); err != nil {
			stats.SkippedRecords++

			logger.ErrorContext(ctx, "warm start: index record failed",
				"record_id", recordID,
				"error", err,
			)
		}
	}

	indexStats := p.Index.Stats()
	stats.Chunks = indexStats.Chunks
	stats.PendingChunks = indexStats.Pending

	if p.Capabilities != nil {
		if _, err := p.Capabilities.Recompute(ctx); err != nil {
			return nil, fmt.Errorf("warm start: %w", err)
		}

		stats.Rollups = len(p.Capabilities.aggregator.All())
	}

	logger.InfoContext(ctx, "warm start: loaded",
		"technologies", stats.Technologies,
		"seeded", stats.Seeded,
		"records", stats.Records,
		"chunks", stats.Chunks,
		"pending_chunks", stats.PendingChunks,
		"skipped_records", stats.SkippedRecords,
		"rollups", stats.Rollups,
	)

	return stats, nil
}
