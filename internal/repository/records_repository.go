// Package repository provides Postgres data access for past-performance records, their profiles,
// chunks, technologies, and capability rollups.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/catalog"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

const recordColumns = `id, name, contract_number, customer, customer_type, contract_value, role,
	work_percentage, period_start, period_end, resource_count, status, created_at, updated_at`

// RecordsRepository handles past_performances, unified_profiles, and pp_documents.
type RecordsRepository struct {
	db *pgxpool.Pool
}

// NewRecordsRepository creates a new records repository.
func NewRecordsRepository(db *pgxpool.Pool) *RecordsRepository {
	return &RecordsRepository{db: db}
}

// SaveProfileParams is one ingestion write: an optional record upsert plus a new profile version.
type SaveProfileParams struct {
	RecordID uuid.UUID
	// Record, when set, creates or updates the record row. Status is never changed here.
	Record      *models.PastPerformanceRecord
	UnifiedText string
	Documents   []models.PPDocument
}

// SaveProfile stores a new profile version and its documents in one transaction. afterWrite runs
// inside the same transaction (job enqueue) and its error rolls everything back.
func (r *RecordsRepository) SaveProfile(
	ctx context.Context, params SaveProfileParams, afterWrite func(ctx context.Context, tx pgx.Tx, version int64) error,
) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin save profile: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if params.Record != nil {
		if err := upsertRecord(ctx, tx, params.Record); err != nil {
			return 0, err
		}
	}

	var status models.RecordStatus

	err = tx.QueryRow(ctx, `SELECT status FROM past_performances WHERE id = $1 FOR UPDATE`, params.RecordID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NewNotFoundError("past performance", "past performance record not found")
		}

		return 0, fmt.Errorf("lock record: %w", err)
	}

	if status == models.RecordStatusArchived {
		return 0, apperrors.NewConflictError("past performance record is archived")
	}

	var version int64

	err = tx.QueryRow(ctx, `
		INSERT INTO unified_profiles (record_id, version, unified_text)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2 FROM unified_profiles WHERE record_id = $1
		RETURNING version`,
		params.RecordID, params.UnifiedText,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("insert unified profile: %w", err)
	}

	if len(params.Documents) > 0 {
		batch := &pgx.Batch{}

		for i := range params.Documents {
			args, err := documentArgs(params.RecordID, version, &params.Documents[i])
			if err != nil {
				return 0, err
			}

			batch.Queue(`
				INSERT INTO pp_documents (id, record_id, profile_version, class, title, text, weight_factor, metadata)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, args...)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("insert documents: %w", err)
		}
	}

	if afterWrite != nil {
		if err := afterWrite(ctx, tx, version); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit save profile: %w", err)
	}

	return version, nil
}

func upsertRecord(ctx context.Context, tx pgx.Tx, rec *models.PastPerformanceRecord) error {
	role := rec.Role
	if role == "" {
		role = models.RolePrime
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO past_performances (
			id, name, contract_number, customer, customer_type, contract_value, role,
			work_percentage, period_start, period_end, resource_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, contract_number = EXCLUDED.contract_number,
			customer = EXCLUDED.customer, customer_type = EXCLUDED.customer_type,
			contract_value = EXCLUDED.contract_value, role = EXCLUDED.role,
			work_percentage = EXCLUDED.work_percentage, period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end, resource_count = EXCLUDED.resource_count,
			updated_at = NOW()`,
		rec.ID, rec.Name, rec.ContractNumber, rec.Customer, rec.CustomerType, rec.ContractValue, role,
		rec.WorkPercentage, rec.PeriodStart, rec.PeriodEnd, rec.ResourceCount,
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}

	return nil
}

// documentArgs returns the insert arguments for one document. A nil id gets a fresh v7 id.
func documentArgs(recordID uuid.UUID, version int64, doc *models.PPDocument) ([]any, error) {
	id := doc.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	class := doc.Class
	if class == "" {
		class = models.DocumentClassOther
	}

	meta, err := models.EncodeDocumentMetadata(doc.Metadata)
	if err != nil {
		return nil, err
	}

	return []any{id, recordID, version, string(class), doc.Title, doc.Text, doc.EffectiveWeight(), []byte(meta)}, nil
}

func scanRecord(row pgx.Row, rec *models.PastPerformanceRecord) error {
	return row.Scan(
		&rec.ID, &rec.Name, &rec.ContractNumber, &rec.Customer, &rec.CustomerType, &rec.ContractValue, &rec.Role,
		&rec.WorkPercentage, &rec.PeriodStart, &rec.PeriodEnd, &rec.ResourceCount, &rec.Status,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
}

// GetRecord retrieves a single record by ID.
func (r *RecordsRepository) GetRecord(ctx context.Context, id uuid.UUID) (*models.PastPerformanceRecord, error) {
	var rec models.PastPerformanceRecord

	err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM past_performances WHERE id = $1`, id), &rec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("past performance", "past performance record not found")
		}

		return nil, fmt.Errorf("get record: %w", err)
	}

	return &rec, nil
}

// LatestProfile returns the newest profile version of a record with its documents.
func (r *RecordsRepository) LatestProfile(ctx context.Context, recordID uuid.UUID) (*models.UnifiedContentProfile, error) {
	var p models.UnifiedContentProfile

	err := r.db.QueryRow(ctx, `
		SELECT record_id, version, unified_text, summary, created_at
		FROM unified_profiles
		WHERE record_id = $1
		ORDER BY version DESC
		LIMIT 1`, recordID,
	).Scan(&p.RecordID, &p.Version, &p.UnifiedText, &p.Summary, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("unified profile", "no profile for record")
		}

		return nil, fmt.Errorf("get latest profile: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, record_id, class, title, text, weight_factor, metadata, created_at
		FROM pp_documents
		WHERE record_id = $1 AND profile_version = $2
		ORDER BY created_at, id`, recordID, p.Version)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	p.Documents = []models.PPDocument{}

	for rows.Next() {
		var (
			doc   models.PPDocument
			class string
			meta  []byte
		)

		if err := rows.Scan(&doc.ID, &doc.RecordID, &class, &doc.Title, &doc.Text, &doc.WeightFactor, &meta, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}

		doc.Class, err = models.ParseDocumentClass(class)
		if err != nil {
			doc.Class = models.DocumentClassOther
		}

		doc.Metadata, err = models.DecodeDocumentMetadata(doc.Class, json.RawMessage(meta))
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}

		p.Documents = append(p.Documents, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return &p, nil
}

// Archive flips the record to archived and drops its chunks, associations, and generation row.
// Archiving an archived record is a no-op that returns the record.
func (r *RecordsRepository) Archive(ctx context.Context, id uuid.UUID) (*models.PastPerformanceRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin archive: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	var rec models.PastPerformanceRecord

	err = scanRecord(tx.QueryRow(ctx, `
		UPDATE past_performances SET status = 'archived', updated_at = $2
		WHERE id = $1
		RETURNING `+recordColumns, id, time.Now()), &rec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("past performance", "past performance record not found")
		}

		return nil, fmt.Errorf("archive record: %w", err)
	}

	for _, stmt := range []string{
		`DELETE FROM embedding_chunks WHERE record_id = $1`,
		`DELETE FROM pp_technology_associations WHERE record_id = $1`,
		`DELETE FROM record_generations WHERE record_id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return nil, fmt.Errorf("archive record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit archive: %w", err)
	}

	return &rec, nil
}

// ListCatalogEntries loads every active record that has a committed generation, with the profile
// version that generation was built from and its technology associations.
func (r *RecordsRepository) ListCatalogEntries(ctx context.Context) ([]catalog.RecordEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+prefixColumns("pp.", recordColumns)+`,
			up.version, up.summary, up.unified_text,
			COALESCE((
				SELECT string_agg(d.text, E'\n\n' ORDER BY d.created_at, d.id)
				FROM pp_documents d
				WHERE d.record_id = pp.id AND d.profile_version = up.version AND d.class = 'narrative'
			), '')
		FROM past_performances pp
		JOIN record_generations rg ON rg.record_id = pp.id
		JOIN unified_profiles up ON up.record_id = pp.id AND up.version = rg.profile_version
		WHERE pp.status = 'active'
		ORDER BY pp.id`)
	if err != nil {
		return nil, fmt.Errorf("list catalog entries: %w", err)
	}
	defer rows.Close()

	entries := []catalog.RecordEntry{}
	index := map[uuid.UUID]int{}

	for rows.Next() {
		var e catalog.RecordEntry

		rec := &e.Record

		err := rows.Scan(
			&rec.ID, &rec.Name, &rec.ContractNumber, &rec.Customer, &rec.CustomerType, &rec.ContractValue, &rec.Role,
			&rec.WorkPercentage, &rec.PeriodStart, &rec.PeriodEnd, &rec.ResourceCount, &rec.Status,
			&rec.CreatedAt, &rec.UpdatedAt,
			&e.ProfileVersion, &e.Summary, &e.UnifiedText, &e.NarrativeText,
		)
		if err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}

		index[rec.ID] = len(entries)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating catalog entries: %w", err)
	}

	assocs, err := r.listAssociations(ctx)
	if err != nil {
		return nil, err
	}

	for _, a := range assocs {
		if i, ok := index[a.RecordID]; ok {
			entries[i].Associations = append(entries[i].Associations, a)
		}
	}

	return entries, nil
}

func (r *RecordsRepository) listAssociations(ctx context.Context) ([]models.PPTechnologyAssociation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT record_id, technology_id, confidence, version, context_snippet
		FROM pp_technology_associations
		ORDER BY record_id, technology_id`)
	if err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}
	defer rows.Close()

	var out []models.PPTechnologyAssociation

	for rows.Next() {
		var a models.PPTechnologyAssociation
		if err := rows.Scan(&a.RecordID, &a.TechnologyID, &a.Confidence, &a.Version, &a.ContextSnippet); err != nil {
			return nil, fmt.Errorf("scan association: %w", err)
		}

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating associations: %w", err)
	}

	return out, nil
}
