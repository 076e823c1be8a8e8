package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// maxStateChangeBatch bounds one approve or reject call.
const maxStateChangeBatch = 500

// Vocabulary is the taxonomy surface the technologies service needs.
type Vocabulary interface {
	List() []models.Technology
	SetState(ctx context.Context, ids []uuid.UUID, state models.ApprovalState) ([]models.Technology, error)
}

// NarrativeEnqueuer enqueues narratives for rollups.
type NarrativeEnqueuer interface {
	EnqueueNarratives(ctx context.Context, technologyIDs []uuid.UUID) (int, error)
}

// TechnologyListing groups the vocabulary for review.
type TechnologyListing struct {
	Approved        []models.Technology         `json:"approved"`
	PendingApproval []models.Technology         `json:"pendingApproval"`
	Categories      []models.TechnologyCategory `json:"categories"`
}

// TechnologiesService lists the vocabulary and moves terms through approval.
type TechnologiesService struct {
	vocabulary Vocabulary
	narratives NarrativeEnqueuer
	logger     *slog.Logger
}

// NewTechnologiesService creates a TechnologiesService. narratives may be nil.
func NewTechnologiesService(vocabulary Vocabulary, narratives NarrativeEnqueuer, logger *slog.Logger) *TechnologiesService {
	if logger == nil {
		logger = slog.Default()
	}

	return &TechnologiesService{vocabulary: vocabulary, narratives: narratives, logger: logger}
}

// List returns approved and pending technologies ordered by name. Rejected terms are not listed.
func (s *TechnologiesService) List() *TechnologyListing {
	out := &TechnologyListing{
		Approved:        []models.Technology{},
		PendingApproval: []models.Technology{},
		Categories:      models.AllCategories(),
	}

	for _, t := range s.vocabulary.List() {
		switch t.State {
		case models.ApprovalApproved:
			out.Approved = append(out.Approved, t)
		case models.ApprovalPending:
			out.PendingApproval = append(out.PendingApproval, t)
		case models.ApprovalRejected:
		}
	}

	byName := func(list []models.Technology) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}

	byName(out.Approved)
	byName(out.PendingApproval)

	return out
}

// Approve makes pending technologies visible and enqueues narratives for their rollups.
func (s *TechnologiesService) Approve(ctx context.Context, ids []uuid.UUID) ([]models.Technology, error) {
	updated, err := s.setState(ctx, ids, models.ApprovalApproved)
	if err != nil {
		return nil, err
	}

	if s.narratives != nil {
		n, err := s.narratives.EnqueueNarratives(ctx, ids)
		if err != nil {
			// Approval is already persisted; a recompute picks the narratives up later.
			s.logger.ErrorContext(ctx, "technologies: enqueue narratives failed", "error", err)
		} else if n > 0 {
			s.logger.InfoContext(ctx, "technologies: narratives enqueued", "count", n)
		}
	}

	return updated, nil
}

// Reject retires pending technologies. Rejected terms are never matched or proposed again.
func (s *TechnologiesService) Reject(ctx context.Context, ids []uuid.UUID) ([]models.Technology, error) {
	return s.setState(ctx, ids, models.ApprovalRejected)
}

func (s *TechnologiesService) setState(ctx context.Context, ids []uuid.UUID, state models.ApprovalState) ([]models.Technology, error) {
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("technologyIDs", "must not be empty")
	}

	if len(ids) > maxStateChangeBatch {
		return nil, apperrors.NewValidationError("technologyIDs", fmt.Sprintf("at most %d per request", maxStateChangeBatch))
	}

	updated, err := s.vocabulary.SetState(ctx, dedupeIDs(ids), state)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "technologies: state changed",
		"state", state,
		"count", len(updated),
	)

	return updated, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
