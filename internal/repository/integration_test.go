//go:build integration

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/pkg/database"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("pp"),
		postgres.WithUsername("pp"),
		postgres.WithPassword("pp"),
		postgres.WithInitScripts(filepath.Join("..", "..", "migrations", "001_initial_schema.sql")),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.NewPostgresPool(ctx, url, database.WithVectorTypes())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db
}

func TestIngestionRoundTrip(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	records := NewRecordsRepository(db)
	chunks := NewChunksRepository(db)
	techs := NewTechnologiesRepository(db)

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	recordID := uuid.New()

	var enqueued int64

	version, err := records.SaveProfile(ctx, SaveProfileParams{
		RecordID: recordID,
		Record: &models.PastPerformanceRecord{
			ID: recordID, Name: "Cloud Migration", CustomerType: "federal", ContractValue: 4e6,
			Role: models.RolePrime, PeriodStart: &start, PeriodEnd: &end, ResourceCount: 12,
		},
		UnifiedText: "We migrated workloads to Kubernetes.",
		Documents: []models.PPDocument{
			{Class: models.DocumentClassNarrative, Title: "Narrative", Text: "We migrated workloads to Kubernetes."},
		},
	}, func(_ context.Context, _ pgx.Tx, v int64) error {
		enqueued = v

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, version, enqueued)

	profile, err := records.LatestProfile(ctx, recordID)
	require.NoError(t, err)
	require.Len(t, profile.Documents, 1)
	assert.Equal(t, models.DocumentClassNarrative, profile.Documents[0].Class)

	k8s := &models.Technology{
		ID: uuid.New(), Key: "kubernetes", Name: "Kubernetes", Category: models.CategoryPlatform,
		State: models.ApprovalApproved, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, techs.CreateTechnology(ctx, k8s))
	require.ErrorIs(t, techs.CreateTechnology(ctx, k8s), apperrors.ErrConflict)
	require.NoError(t, techs.IncrementTechnologyUsage(ctx, map[uuid.UUID]int64{k8s.ID: 2}))

	gen, err := chunks.NextGeneration(ctx)
	require.NoError(t, err)

	vec := make([]float32, 1536)
	vec[0] = 1

	err = chunks.Commit(ctx, CommitParams{
		RecordID:       recordID,
		Generation:     gen + 1,
		ProfileVersion: version,
		Summary:        "Kubernetes migration.",
		Chunks: []models.EmbeddingChunk{
			{ID: uuid.New(), RecordID: recordID, Type: models.ChunkTypeProject, Text: "project", Vector: vec},
			{ID: uuid.New(), RecordID: recordID, Type: models.ChunkTypeCapability, Text: "pending",
				Metadata: models.ChunkMetadata{Ordinal: 1}},
		},
		Associations: []models.PPTechnologyAssociation{
			{RecordID: recordID, TechnologyID: k8s.ID, Confidence: 0.9, ContextSnippet: "to Kubernetes"},
		},
	})
	require.NoError(t, err)

	// An older generation can no longer commit.
	err = chunks.Commit(ctx, CommitParams{RecordID: recordID, Generation: gen, ProfileVersion: version})
	require.ErrorIs(t, err, apperrors.ErrConsistency)

	stored, err := chunks.ListCurrent(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	pending, err := chunks.ListPendingRecordIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{recordID}, pending)

	entries, err := records.ListCatalogEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Kubernetes migration.", entries[0].Summary)
	assert.Equal(t, "We migrated workloads to Kubernetes.", entries[0].NarrativeText)
	require.Len(t, entries[0].Associations, 1)

	list, err := techs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].UsageCount)

	archived, err := records.Archive(ctx, recordID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusArchived, archived.Status)

	entries, err = records.ListCatalogEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = records.SaveProfile(ctx, SaveProfileParams{RecordID: recordID, UnifiedText: "again"}, nil)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCapabilitiesSaveOutOfOrder(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	techs := NewTechnologiesRepository(db)
	caps := NewCapabilitiesRepository(db)

	java := &models.Technology{
		ID: uuid.New(), Key: "java", Name: "Java", Category: models.CategoryLanguage,
		State: models.ApprovalApproved, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, techs.CreateTechnology(ctx, java))

	rollup := func(version int64, projects int) models.UnifiedCapability {
		return models.UnifiedCapability{
			TechnologyID: java.ID, ProjectCount: projects, TotalExperienceYears: float64(projects),
			FactsHash: uint64(version), Version: version, UpdatedAt: time.Now(),
		}
	}

	// The newer rollup lands first; the late, older one must not overwrite it.
	require.NoError(t, caps.Save(ctx, []models.UnifiedCapability{rollup(4, 2)}, nil))
	require.NoError(t, caps.Save(ctx, []models.UnifiedCapability{rollup(3, 1)}, nil))

	stored, err := caps.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(4), stored[0].Version)
	assert.Equal(t, 2, stored[0].ProjectCount)

	require.NoError(t, caps.Save(ctx, []models.UnifiedCapability{rollup(5, 3)}, nil))

	stored, err = caps.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(5), stored[0].Version)
	assert.Equal(t, 3, stored[0].ProjectCount)
	assert.Equal(t, "java", stored[0].TechnologyKey)
}

func TestEmbeddingChunkIndexes(t *testing.T) {
	db := setupPostgres(t)

	rows, err := db.Query(context.Background(),
		`SELECT indexname FROM pg_indexes WHERE tablename = 'embedding_chunks' ORDER BY indexname`)
	require.NoError(t, err)

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	require.NoError(t, err)

	assert.Equal(t, []string{
		"embedding_chunks_pkey",
		"idx_embedding_chunks_pending",
		"idx_embedding_chunks_record",
	}, names)
}

func TestSearchConfigurationsDefaultMoves(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	repo := NewSearchConfigurationsRepository(db)

	_, err := repo.Create(ctx, &models.SearchConfiguration{Name: "balanced", Weights: models.DefaultWeights(), IsDefault: true})
	require.NoError(t, err)

	techHeavy := models.Weights{Technology: 0.7, Domain: 0.1, ContractSize: 0.1, CustomerType: 0.1}
	_, err = repo.Create(ctx, &models.SearchConfiguration{Name: "tech-heavy", Weights: techHeavy, IsDefault: true})
	require.NoError(t, err)

	def, err := repo.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tech-heavy", def.Name)
	assert.InDelta(t, 0.7, def.Weights.Technology, 1e-9)

	_, err = repo.Create(ctx, &models.SearchConfiguration{Name: "balanced", Weights: models.DefaultWeights()})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = repo.GetByName(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
