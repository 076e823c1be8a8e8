package workers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/jobs"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
)

const narrativeTimeout = time.Minute

// narrativeGenerator is the minimal interface needed by NarrativeWorker.
type narrativeGenerator interface {
	GenerateNarrative(ctx context.Context, technologyID uuid.UUID, factsHash uint64) (string, error)
}

// NarrativeWorker writes the capability narrative for one rollup.
type NarrativeWorker struct {
	river.WorkerDefaults[jobs.NarrativeArgs]

	generator narrativeGenerator
}

// NewNarrativeWorker creates a NarrativeWorker.
func NewNarrativeWorker(g narrativeGenerator) *NarrativeWorker {
	return &NarrativeWorker{generator: g}
}

// Timeout limits how long a single completion can run.
func (w *NarrativeWorker) Timeout(*river.Job[jobs.NarrativeArgs]) time.Duration {
	return narrativeTimeout
}

// Work generates the narrative. A job whose facts moved on finishes without a backend call.
func (w *NarrativeWorker) Work(ctx context.Context, job *river.Job[jobs.NarrativeArgs]) error {
	ctx, span := observability.StartJobSpan(ctx, jobs.KindNarrative, job.ID, observability.TechnologyIDAttr(job.Args.TechnologyID))

	_, err := w.generator.GenerateNarrative(ctx, job.Args.TechnologyID, job.Args.FactsHash)
	observability.EndJobSpan(span, err)

	return jobResult(ctx, jobs.KindNarrative, err,
		"technology_id", job.Args.TechnologyID,
		"attempt", job.Attempt,
	)
}
