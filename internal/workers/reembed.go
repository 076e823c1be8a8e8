package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/jobs"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/service"
)

const reembedTimeout = 2 * time.Minute

// reembedder is the minimal interface needed by ReembedWorker.
type reembedder interface {
	Reembed(ctx context.Context, recordID uuid.UUID) (*service.IngestResult, error)
}

// ReembedWorker fills in missing vectors for one record.
type ReembedWorker struct {
	river.WorkerDefaults[jobs.ReembedArgs]

	reembedder reembedder
}

// NewReembedWorker creates a ReembedWorker.
func NewReembedWorker(r reembedder) *ReembedWorker {
	return &ReembedWorker{reembedder: r}
}

// Timeout limits how long a single re-embed can run.
func (w *ReembedWorker) Timeout(*river.Job[jobs.ReembedArgs]) time.Duration {
	return reembedTimeout
}

// Work re-embeds the record's pending chunks. Chunks that are still pending afterwards make the job
// retry until its attempts run out; the periodic sweep enqueues a fresh job later.
func (w *ReembedWorker) Work(ctx context.Context, job *river.Job[jobs.ReembedArgs]) error {
	ctx, span := observability.StartJobSpan(observability.WithRecordID(ctx, job.Args.RecordID),
		jobs.KindReembed, job.ID, observability.RecordIDAttr(job.Args.RecordID))

	res, err := w.reembedder.Reembed(ctx, job.Args.RecordID)
	observability.EndJobSpan(span, err)

	if err != nil {
		return jobResult(ctx, jobs.KindReembed, err, "record_id", job.Args.RecordID, "attempt", job.Attempt)
	}

	if res.PendingChunks == 0 {
		return nil
	}

	if job.Attempt >= job.MaxAttempts {
		slog.WarnContext(ctx, "reembed: chunks still pending after final attempt",
			"record_id", job.Args.RecordID,
			"pending_chunks", res.PendingChunks,
		)

		return nil
	}

	return fmt.Errorf("%s: %d chunks still pending for record %s", jobs.KindReembed, res.PendingChunks, job.Args.RecordID)
}
