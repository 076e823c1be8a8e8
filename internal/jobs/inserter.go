package jobs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// JobInserter enqueues pipeline jobs. This allows services to enqueue jobs without knowing about River directly.
type JobInserter interface {
	// InsertIngestTx enqueues an ingest job inside tx, so the job exists only if the profile was stored.
	InsertIngestTx(ctx context.Context, tx pgx.Tx, args IngestArgs) error
	// InsertReembed enqueues one re-embed job per record and returns how many were new.
	InsertReembed(ctx context.Context, recordIDs []uuid.UUID) (int, error)
	// InsertNarratives enqueues one narrative job per rollup and returns how many were new.
	InsertNarratives(ctx context.Context, args []NarrativeArgs) (int, error)
}
