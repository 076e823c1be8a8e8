package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
)

// RiverJobInserter implements JobInserter using the River client.
type RiverJobInserter struct {
	client  *river.Client[pgx.Tx]
	metrics observability.IngestionMetrics
}

// NewRiverJobInserter creates a new River-based job inserter. metrics may be nil. client may be nil
// when the workers that own the services are built before the River client; call SetClient before
// the first insert.
func NewRiverJobInserter(client *river.Client[pgx.Tx], metrics observability.IngestionMetrics) *RiverJobInserter {
	return &RiverJobInserter{client: client, metrics: metrics}
}

// SetClient binds the River client. Not safe to call concurrently with inserts.
func (r *RiverJobInserter) SetClient(client *river.Client[pgx.Tx]) {
	r.client = client
}

// uniqueOpts deduplicates by args against every job that has not finished.
// Note: JobStatePending is required by River when using ByState.
func uniqueOpts() *river.InsertOpts {
	return &river.InsertOpts{
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStatePending,
				rivertype.JobStateAvailable,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	}
}

// InsertIngestTx enqueues an ingest job in tx.
func (r *RiverJobInserter) InsertIngestTx(ctx context.Context, tx pgx.Tx, args IngestArgs) error {
	res, err := r.client.InsertTx(ctx, tx, args, uniqueOpts())
	if err != nil {
		return fmt.Errorf("insert ingest job: %w", err)
	}

	if r.metrics != nil && !res.UniqueSkippedAsDuplicate {
		r.metrics.RecordIngestJobsEnqueued(ctx, 1)
	}

	return nil
}

// InsertReembed enqueues re-embed jobs for recordIDs.
func (r *RiverJobInserter) InsertReembed(ctx context.Context, recordIDs []uuid.UUID) (int, error) {
	params := make([]river.InsertManyParams, len(recordIDs))
	for i, id := range recordIDs {
		params[i] = river.InsertManyParams{Args: ReembedArgs{RecordID: id}, InsertOpts: uniqueOpts()}
	}

	n, err := r.insertMany(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("insert re-embed jobs: %w", err)
	}

	if r.metrics != nil && n > 0 {
		r.metrics.RecordReembedJobsEnqueued(ctx, n)
	}

	return n, nil
}

// InsertNarratives enqueues narrative jobs.
func (r *RiverJobInserter) InsertNarratives(ctx context.Context, args []NarrativeArgs) (int, error) {
	params := make([]river.InsertManyParams, len(args))
	for i, a := range args {
		params[i] = river.InsertManyParams{Args: a, InsertOpts: uniqueOpts()}
	}

	n, err := r.insertMany(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("insert narrative jobs: %w", err)
	}

	if r.metrics != nil && n > 0 {
		r.metrics.RecordNarrativeJobsEnqueued(ctx, n)
	}

	return n, nil
}

// insertMany inserts params and counts the jobs that were not duplicates.
func (r *RiverJobInserter) insertMany(ctx context.Context, params []river.InsertManyParams) (int, error) {
	if len(params) == 0 {
		return 0, nil
	}

	results, err := r.client.InsertMany(ctx, params)
	if err != nil {
		return 0, err
	}

	n := 0

	for _, res := range results {
		if !res.UniqueSkippedAsDuplicate {
			n++
		}
	}

	return n, nil
}

var _ JobInserter = (*RiverJobInserter)(nil)
