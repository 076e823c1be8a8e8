package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// ChunksRepository handles embedding_chunks and the per-record generation pointer.
// Vectors use halfvec storage (2 bytes per dimension); pgvector-go converts float32 to float16 when encoding.
type ChunksRepository struct {
	db *pgxpool.Pool
}

// NewChunksRepository creates a new chunks repository.
func NewChunksRepository(db *pgxpool.Pool) *ChunksRepository {
	return &ChunksRepository{db: db}
}

// NextGeneration reserves a generation id, unique across processes.
func (r *ChunksRepository) NextGeneration(ctx context.Context) (uint64, error) {
	var gen int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('chunk_generation_seq')`).Scan(&gen); err != nil {
		return 0, fmt.Errorf("next generation: %w", err)
	}

	return uint64(gen), nil //nolint:gosec // G115: sequence values are positive
}

// CommitParams is one generation swap for a record.
type CommitParams struct {
	RecordID       uuid.UUID
	Generation     uint64
	ProfileVersion int64
	Chunks         []models.EmbeddingChunk
	// Associations replaces the record's associations when non-nil. Nil keeps them (re-embedding).
	Associations []models.PPTechnologyAssociation
	// Summary is written to the profile row when non-empty.
	Summary string
}

// Commit replaces the record's chunks with the given generation in one transaction. It returns a
// ConsistencyError when a newer generation was already committed or the record is no longer active.
func (r *ChunksRepository) Commit(ctx context.Context, params CommitParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	gen := int64(params.Generation) //nolint:gosec // G115: generations come from a bigint sequence

	tag, err := tx.Exec(ctx, `
		INSERT INTO record_generations (record_id, generation, profile_version, committed_at)
		SELECT $1, $2, $3, NOW()
		WHERE EXISTS (SELECT 1 FROM past_performances WHERE id = $1 AND status = 'active')
		ON CONFLICT (record_id) DO UPDATE SET
			generation = EXCLUDED.generation, profile_version = EXCLUDED.profile_version, committed_at = NOW()
		WHERE record_generations.generation < EXCLUDED.generation`,
		params.RecordID, gen, params.ProfileVersion,
	)
	if err != nil {
		return fmt.Errorf("advance generation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.NewConsistencyError(
			fmt.Sprintf("generation %d for record %s was superseded", params.Generation, params.RecordID))
	}

	if _, err := tx.Exec(ctx, `DELETE FROM embedding_chunks WHERE record_id = $1`, params.RecordID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	batch := &pgx.Batch{}

	for i := range params.Chunks {
		args, err := chunkArgs(&params.Chunks[i], params.Generation)
		if err != nil {
			return err
		}

		batch.Queue(`
			INSERT INTO embedding_chunks (id, record_id, generation, chunk_type, text, embedding, status, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, args...)
	}

	if params.Associations != nil {
		batch.Queue(`DELETE FROM pp_technology_associations WHERE record_id = $1`, params.RecordID)

		for _, a := range params.Associations {
			batch.Queue(`
				INSERT INTO pp_technology_associations (record_id, technology_id, confidence, version, context_snippet)
				VALUES ($1, $2, $3, $4, $5)`,
				params.RecordID, a.TechnologyID, a.Confidence, a.Version, a.ContextSnippet)
		}
	}

	if params.Summary != "" {
		batch.Queue(`UPDATE unified_profiles SET summary = $3 WHERE record_id = $1 AND version = $2`,
			params.RecordID, params.ProfileVersion, params.Summary)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write generation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit generation: %w", err)
	}

	return nil
}

// chunkArgs returns the insert arguments for one chunk. Pending chunks store a NULL vector.
func chunkArgs(c *models.EmbeddingChunk, generation uint64) ([]any, error) {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode chunk metadata: %w", err)
	}

	var (
		vec    *pgvector.HalfVector
		status = models.ChunkStatusEmbeddingPending
	)

	if len(c.Vector) > 0 {
		v := pgvector.NewHalfVector(c.Vector)
		vec = &v
		status = models.ChunkStatusEmbedded
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	gen := int64(generation) //nolint:gosec // G115: generations come from a bigint sequence

	return []any{c.ID, c.RecordID, gen, string(c.Type), c.Text, vec, string(status), meta, createdAt}, nil
}

// ListCurrent returns every stored chunk ordered by record and ordinal. Stored chunks always belong to
// the record's committed generation.
func (r *ChunksRepository) ListCurrent(ctx context.Context) ([]models.EmbeddingChunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, record_id, generation, chunk_type, text, embedding, status, metadata, created_at
		FROM embedding_chunks
		ORDER BY record_id, chunk_type, (metadata->>'ordinal')::int`)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	chunks := []models.EmbeddingChunk{}

	for rows.Next() {
		var (
			c    models.EmbeddingChunk
			gen  int64
			vec  *pgvector.HalfVector
			meta []byte
		)

		if err := rows.Scan(&c.ID, &c.RecordID, &gen, &c.Type, &c.Text, &vec, &c.Status, &meta, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}

		c.Generation = uint64(gen) //nolint:gosec // G115: sequence values are positive

		if vec != nil {
			c.Vector = vec.Slice()
		}

		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode chunk %s metadata: %w", c.ID, err)
		}

		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// ListPendingRecordIDs returns records that have at least one chunk without a vector.
func (r *ChunksRepository) ListPendingRecordIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT record_id FROM embedding_chunks
		WHERE status = 'embedding_pending'
		ORDER BY record_id`)
	if err != nil {
		return nil, fmt.Errorf("list pending record ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending record ids: %w", err)
	}

	return ids, nil
}

// CountPending returns the number of chunks waiting for a vector.
func (r *ChunksRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM embedding_chunks WHERE status = 'embedding_pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending chunks: %w", err)
	}

	return n, nil
}
