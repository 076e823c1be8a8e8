package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/aggregator"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/backend"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/catalog"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/jobs"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
)

// Narrative outcomes.
const (
	NarrativeInstalled = "installed"
	NarrativeStale     = "stale"
	NarrativeFailed    = "failed"
)

// maxNarrativeProjects caps how many record names go into a narrative prompt.
const maxNarrativeProjects = 8

const narrativeSystemPrompt = "You write capability statements for government proposals. " +
	"Write one paragraph of at most 120 words describing the company's experience with the named technology. " +
	"Use only the facts given. Do not invent customers, numbers, or dates."

// CapabilityStore persists capability rollups.
type CapabilityStore interface {
	Save(ctx context.Context, updated []models.UnifiedCapability, removed []uuid.UUID) error
	List(ctx context.Context) ([]models.UnifiedCapability, error)
}

// ActiveRecords lists the records that contribute to rollups.
type ActiveRecords interface {
	Active() []*catalog.RecordEntry
}

// CapabilitiesServiceParams configures CapabilitiesService. Jobs, Backend and Metrics may be nil.
type CapabilitiesServiceParams struct {
	Aggregator   *aggregator.Aggregator
	Records      ActiveRecords
	Technologies aggregator.TechnologyLookup
	Store        CapabilityStore
	Backend      Backend
	Jobs         jobs.JobInserter
	Metrics      observability.IngestionMetrics
	Logger       *slog.Logger
}

// CapabilitiesService publishes rollup changes and generates their narratives.
type CapabilitiesService struct {
	aggregator   *aggregator.Aggregator
	records      ActiveRecords
	technologies aggregator.TechnologyLookup
	store        CapabilityStore
	backend      Backend
	jobs         jobs.JobInserter
	metrics      observability.IngestionMetrics
	logger       *slog.Logger
}

// NewCapabilitiesService creates a CapabilitiesService.
func NewCapabilitiesService(p CapabilitiesServiceParams) *CapabilitiesService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CapabilitiesService{
		aggregator:   p.Aggregator,
		records:      p.Records,
		technologies: p.Technologies,
		store:        p.Store,
		backend:      p.Backend,
		jobs:         p.Jobs,
		metrics:      p.Metrics,
		logger:       logger,
	}
}

// Unified returns the rollups of approved technologies ordered by technology key.
func (s *CapabilitiesService) Unified() []models.UnifiedCapability {
	return s.aggregator.Visible()
}

// Publish persists change and enqueues narratives for the rollups whose facts moved.
func (s *CapabilitiesService) Publish(ctx context.Context, change aggregator.Change) error {
	if !change.Empty() && s.store != nil {
		if err := s.store.Save(ctx, change.Updated, change.Removed); err != nil {
			return fmt.Errorf("save capabilities: %w", err)
		}
	}

	if _, err := s.EnqueueNarratives(ctx, change.NarrativeNeeded); err != nil {
		return err
	}

	return nil
}

// EnqueueNarratives enqueues a narrative job for every listed rollup whose narrative is stale and
// whose technology is approved. It returns how many jobs were new.
func (s *CapabilitiesService) EnqueueNarratives(ctx context.Context, technologyIDs []uuid.UUID) (int, error) {
	if s.jobs == nil || len(technologyIDs) == 0 {
		return 0, nil
	}

	args := make([]jobs.NarrativeArgs, 0, len(technologyIDs))

	for _, id := range technologyIDs {
		rollup, ok := s.aggregator.Get(id)
		if !ok || !rollup.NarrativeStale() || !s.approved(id) {
			continue
		}

		args = append(args, jobs.NarrativeArgs{TechnologyID: id, FactsHash: rollup.FactsHash})
	}

	n, err := s.jobs.InsertNarratives(ctx, args)
	if err != nil {
		return 0, fmt.Errorf("enqueue narratives: %w", err)
	}

	return n, nil
}

func (s *CapabilitiesService) approved(id uuid.UUID) bool {
	if s.technologies == nil {
		return true
	}

	tech, ok := s.technologies.Get(id)

	return ok && tech.IsVisible()
}

// GenerateNarrative writes the narrative for one rollup. It returns NarrativeStale without calling the
// backend when the facts moved on since the job was enqueued, and also when they move while the
// completion is in flight. Backend errors are returned so the job can retry.
func (s *CapabilitiesService) GenerateNarrative(ctx context.Context, technologyID uuid.UUID, factsHash uint64) (string, error) {
	rollup, ok := s.aggregator.Get(technologyID)
	if !ok || rollup.FactsHash != factsHash || !s.approved(technologyID) {
		s.recordNarrative(ctx, NarrativeStale)

		return NarrativeStale, nil
	}

	if s.backend == nil {
		return "", fmt.Errorf("generate narrative: %w", backend.ErrUnavailable)
	}

	text, err := s.backend.Complete(ctx, narrativeSystemPrompt, s.narrativePrompt(&rollup))
	if err != nil {
		s.recordNarrative(ctx, NarrativeFailed)

		return "", fmt.Errorf("generate narrative: %w", err)
	}

	updated, ok := s.aggregator.SetNarrative(technologyID, strings.TrimSpace(text), factsHash)
	if !ok {
		s.recordNarrative(ctx, NarrativeStale)

		return NarrativeStale, nil
	}

	if s.store != nil {
		if err := s.store.Save(ctx, []models.UnifiedCapability{updated}, nil); err != nil {
			s.recordNarrative(ctx, NarrativeFailed)

			return "", fmt.Errorf("save narrative: %w", err)
		}
	}

	s.recordNarrative(ctx, NarrativeInstalled)
	s.logger.InfoContext(ctx, "narrative: installed",
		"technology_id", technologyID,
		"version", updated.Version,
	)

	return NarrativeInstalled, nil
}

func (s *CapabilitiesService) recordNarrative(ctx context.Context, status string) {
	if s.metrics != nil {
		s.metrics.RecordNarrative(ctx, status)
	}
}

// narrativePrompt lists the rollup's facts and the names of the records behind it.
func (s *CapabilitiesService) narrativePrompt(rollup *models.UnifiedCapability) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Technology: %s\n", rollup.TechnologyName)
	fmt.Fprintf(&b, "Projects: %d\n", rollup.ProjectCount)
	fmt.Fprintf(&b, "Total years of experience: %.1f\n", rollup.TotalExperienceYears)

	if rollup.MostRecentUsage != nil {
		fmt.Fprintf(&b, "Most recent use: %s\n", rollup.MostRecentUsage.Format("January 2006"))
	}

	var names []string

	if s.records != nil {
		for _, e := range s.records.Active() {
			if _, ok := e.Association(rollup.TechnologyID); ok {
				names = append(names, e.Record.Name)
			}
		}
	}

	sort.Strings(names)

	if len(names) > 0 {
		b.WriteString("Contracts:\n")

		for _, name := range names[:min(len(names), maxNarrativeProjects)] {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}

	return b.String()
}

// Recompute rebuilds every rollup from the catalog, keeping narratives whose facts did not change,
// and publishes the result.
func (s *CapabilitiesService) Recompute(ctx context.Context) (aggregator.Change, error) {
	var previous []models.UnifiedCapability

	if s.store != nil {
		var err error

		previous, err = s.store.List(ctx)
		if err != nil {
			return aggregator.Change{}, fmt.Errorf("list capabilities: %w", err)
		}
	}

	change := s.aggregator.Rebuild(s.records.Active(), previous)

	if err := s.Publish(ctx, change); err != nil {
		return change, err
	}

	s.logger.InfoContext(ctx, "capabilities: recomputed",
		"updated", len(change.Updated),
		"removed", len(change.Removed),
		"narratives_needed", len(change.NarrativeNeeded),
	)

	return change, nil
}
