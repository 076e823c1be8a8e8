package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/jobs"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
)

// pendingSweeper is the minimal interface needed by PendingSweepWorker.
type pendingSweeper interface {
	SweepPending(ctx context.Context) (*jobs.BackfillStats, error)
}

// PendingSweepWorker enqueues re-embed jobs for records with pending chunks. Scheduled as a
// periodic job.
type PendingSweepWorker struct {
	river.WorkerDefaults[jobs.PendingSweepArgs]

	sweeper pendingSweeper
}

// NewPendingSweepWorker creates a PendingSweepWorker.
func NewPendingSweepWorker(s pendingSweeper) *PendingSweepWorker {
	return &PendingSweepWorker{sweeper: s}
}

// Work runs one sweep.
func (w *PendingSweepWorker) Work(ctx context.Context, job *river.Job[jobs.PendingSweepArgs]) error {
	ctx, span := observability.StartJobSpan(ctx, jobs.KindPendingSweep, job.ID)

	stats, err := w.sweeper.SweepPending(ctx)
	observability.EndJobSpan(span, err)

	if err != nil {
		return jobResult(ctx, jobs.KindPendingSweep, err)
	}

	if stats.PendingRecords > 0 {
		slog.InfoContext(ctx, "pending sweep: re-embed jobs enqueued",
			"pending_records", stats.PendingRecords,
			"jobs_enqueued", stats.JobsEnqueued,
		)
	}

	return nil
}

// PeriodicSweep returns the periodic job that runs the sweep every interval.
func PeriodicSweep(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return jobs.PendingSweepArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: false},
	)
}
