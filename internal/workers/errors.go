// Package workers provides River job workers for ingestion, re-embedding, narratives and maintenance.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
)

type outcome int

const (
	outcomeDone outcome = iota
	outcomeCancel
	outcomeSnooze
	outcomeRetry
)

// classify decides what River should do with a job that returned err:
//   - superseded runs finish quietly, a newer run owns the record
//   - bad data, archived or missing records are cancelled, retrying cannot help
//   - transient failures with a retry hint are snoozed, anything else is retried with backoff
func classify(err error) (outcome, time.Duration) {
	var transient *apperrors.TransientError

	switch {
	case err == nil, errors.Is(err, apperrors.ErrConsistency):
		return outcomeDone, 0
	case errors.Is(err, apperrors.ErrData),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrValidation):
		return outcomeCancel, 0
	case errors.As(err, &transient) && transient.RetryAfter > 0:
		return outcomeSnooze, transient.RetryAfter
	default:
		return outcomeRetry, 0
	}
}

func jobResult(ctx context.Context, kind string, err error, attrs ...any) error {
	if err == nil {
		return nil
	}

	attrs = append(attrs, "job_kind", kind, "error", err)

	switch o, retryAfter := classify(err); o {
	case outcomeDone:
		slog.DebugContext(ctx, "job superseded", attrs...)

		return nil
	case outcomeCancel:
		slog.WarnContext(ctx, "job cancelled", attrs...)

		return river.JobCancel(err)
	case outcomeSnooze:
		slog.WarnContext(ctx, "job snoozed", append(attrs, "retry_after", retryAfter)...)

		return river.JobSnooze(retryAfter)
	default:
		slog.WarnContext(ctx, "job failed, will retry", attrs...)

		return fmt.Errorf("%s: %w", kind, err)
	}
}
