package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// backfillBatchSize bounds how many re-embed jobs go into one InsertMany call.
const backfillBatchSize = 500

// PendingLister lists records that still have chunks without a vector.
type PendingLister interface {
	ListPendingRecordIDs(ctx context.Context) ([]uuid.UUID, error)
}

// BackfillStats holds statistics from a backfill operation.
type BackfillStats struct {
	PendingRecords int
	JobsEnqueued   int
}

// Backfill enqueues a re-embed job for every record with pending chunks. Records that already have an
// unfinished re-embed job are skipped by uniqueness, so running it repeatedly is safe.
func Backfill(ctx context.Context, lister PendingLister, inserter JobInserter, logger *slog.Logger) (*BackfillStats, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ids, err := lister.ListPendingRecordIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending records: %w", err)
	}

	stats := &BackfillStats{PendingRecords: len(ids)}

	for start := 0; start < len(ids); start += backfillBatchSize {
		batch := ids[start:min(len(ids), start+backfillBatchSize)]

		n, err := inserter.InsertReembed(ctx, batch)
		if err != nil {
			return stats, fmt.Errorf("enqueue re-embed batch at %d: %w", start, err)
		}

		stats.JobsEnqueued += n
	}

	logger.InfoContext(ctx, "backfill: re-embed jobs enqueued",
		"pending_records", stats.PendingRecords,
		"jobs_enqueued", stats.JobsEnqueued,
	)

	return stats, nil
}
