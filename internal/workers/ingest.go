package workers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/jobs"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/service"
)

// IngestTimeout bounds one pipeline run. Embedding and summary calls dominate.
const IngestTimeout = 5 * time.Minute

// recordProcessor is the minimal interface needed by IngestWorker.
type recordProcessor interface {
	Process(ctx context.Context, recordID uuid.UUID) (*service.IngestResult, error)
}

// IngestWorker runs the ingestion pipeline for one stored profile version.
type IngestWorker struct {
	river.WorkerDefaults[jobs.IngestArgs]

	processor recordProcessor
}

// NewIngestWorker creates an IngestWorker.
func NewIngestWorker(processor recordProcessor) *IngestWorker {
	return &IngestWorker{processor: processor}
}

// Timeout limits how long a single run can take.
func (w *IngestWorker) Timeout(*river.Job[jobs.IngestArgs]) time.Duration {
	return IngestTimeout
}

// Work processes the record's latest profile. A job for an older version still runs; the claim
// ordering inside the pipeline makes the newest run win.
func (w *IngestWorker) Work(ctx context.Context, job *river.Job[jobs.IngestArgs]) error {
	ctx, span := observability.StartJobSpan(observability.WithRecordID(ctx, job.Args.RecordID),
		jobs.KindIngest, job.ID, observability.RecordIDAttr(job.Args.RecordID))

	_, err := w.processor.Process(ctx, job.Args.RecordID)
	observability.EndJobSpan(span, err)

	return jobResult(ctx, jobs.KindIngest, err,
		"record_id", job.Args.RecordID,
		"profile_version", job.Args.ProfileVersion,
		"attempt", job.Attempt,
	)
}
