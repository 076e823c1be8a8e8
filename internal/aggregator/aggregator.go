// Package aggregator maintains portfolio-wide capability rollups, one per technology.
//
// Rollups are immutable. Each update rebuilds the affected technologies' rollups from their
// contributions and publishes a new snapshot through an atomic pointer, so readers never observe a
// half-updated rollup.
package aggregator

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/catalog"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// TechnologyLookup resolves technology ids.
type TechnologyLookup interface {
	Get(id uuid.UUID) (*models.Technology, bool)
}

// contribution is one record's share of a technology's experience. A record contributes its
// period once per technology however often the technology is mentioned.
type contribution struct {
	years     float64
	periodEnd *time.Time
}

type state struct {
	rollups map[uuid.UUID]*models.UnifiedCapability
	// contributions maps technology -> record -> contribution.
	contributions map[uuid.UUID]map[uuid.UUID]contribution
	// recordTechs maps record -> technologies it contributes to.
	recordTechs map[uuid.UUID][]uuid.UUID
}

// Change reports the effect of one update.
type Change struct {
	Updated []models.UnifiedCapability
	Removed []uuid.UUID
	// NarrativeNeeded lists approved technologies whose facts changed and whose narrative is stale.
	NarrativeNeeded []uuid.UUID
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool {
	return len(c.Updated) == 0 && len(c.Removed) == 0
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	techs  TechnologyLookup
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current atomic.Pointer[state]
}

// New creates an empty Aggregator.
func New(techs TechnologyLookup, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}

	a := &Aggregator{techs: techs, logger: logger, now: time.Now}
	a.current.Store(&state{
		rollups:       map[uuid.UUID]*models.UnifiedCapability{},
		contributions: map[uuid.UUID]map[uuid.UUID]contribution{},
		recordTechs:   map[uuid.UUID][]uuid.UUID{},
	})

	return a
}

// Apply folds a record's current associations into the rollups. Archived records are removed.
func (a *Aggregator) Apply(entry *catalog.RecordEntry) Change {
	if !entry.Record.IsActive() {
		return a.Remove(entry.Record.ID)
	}

	techIDs := make([]uuid.UUID, 0, len(entry.Associations))
	seen := make(map[uuid.UUID]bool, len(entry.Associations))

	for _, assoc := range entry.Associations {
		if !seen[assoc.TechnologyID] {
			seen[assoc.TechnologyID] = true
			techIDs = append(techIDs, assoc.TechnologyID)
		}
	}

	c := contribution{years: entry.Record.PeriodYears(), periodEnd: entry.Record.PeriodEnd}

	return a.update(entry.Record.ID, techIDs, c)
}

// Remove drops a record's contributions.
func (a *Aggregator) Remove(recordID uuid.UUID) Change {
	return a.update(recordID, nil, contribution{})
}

func (a *Aggregator) update(recordID uuid.UUID, techIDs []uuid.UUID, c contribution) Change {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.current.Load()
	next := cur.shallowCopy()

	affected := make(map[uuid.UUID]bool)

	for _, id := range cur.recordTechs[recordID] {
		affected[id] = true
		next.contributions[id] = withoutRecord(next.contributions[id], recordID)
	}

	for _, id := range techIDs {
		affected[id] = true
		next.contributions[id] = withRecord(next.contributions[id], recordID, c)
	}

	if len(techIDs) == 0 {
		delete(next.recordTechs, recordID)
	} else {
		next.recordTechs[recordID] = techIDs
	}

	change := a.recompute(cur, next, sortedIDs(affected))
	a.current.Store(next)

	return change
}

func (s *state) shallowCopy() *state {
	next := &state{
		rollups:       make(map[uuid.UUID]*models.UnifiedCapability, len(s.rollups)),
		contributions: make(map[uuid.UUID]map[uuid.UUID]contribution, len(s.contributions)),
		recordTechs:   make(map[uuid.UUID][]uuid.UUID, len(s.recordTechs)),
	}

	for k, v := range s.rollups {
		next.rollups[k] = v
	}

	for k, v := range s.contributions {
		next.contributions[k] = v
	}

	for k, v := range s.recordTechs {
		next.recordTechs[k] = v
	}

	return next
}

// withRecord and withoutRecord return new inner maps; published maps are never written.
func withRecord(m map[uuid.UUID]contribution, recordID uuid.UUID, c contribution) map[uuid.UUID]contribution {
	out := make(map[uuid.UUID]contribution, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	out[recordID] = c

	return out
}

func withoutRecord(m map[uuid.UUID]contribution, recordID uuid.UUID) map[uuid.UUID]contribution {
	out := make(map[uuid.UUID]contribution, len(m))
	for k, v := range m {
		if k != recordID {
			out[k] = v
		}
	}

	return out
}

// recompute rebuilds the rollups of techIDs from next's contributions.
func (a *Aggregator) recompute(prev, next *state, techIDs []uuid.UUID) Change {
	var change Change

	now := a.now().UTC()

	for _, id := range techIDs {
		contribs := next.contributions[id]
		if len(contribs) == 0 {
			delete(next.contributions, id)

			if _, ok := prev.rollups[id]; ok {
				delete(next.rollups, id)
				change.Removed = append(change.Removed, id)
			}

			continue
		}

		rollup := a.build(id, contribs)
		old := prev.rollups[id]

		if old != nil {
			rollup.Version = old.Version + 1
			rollup.Narrative = old.Narrative
			rollup.NarrativeFactsHash = old.NarrativeFactsHash
		} else {
			rollup.Version = 1
		}

		rollup.UpdatedAt = now
		next.rollups[id] = rollup
		change.Updated = append(change.Updated, *rollup)

		factsChanged := old == nil || old.FactsHash != rollup.FactsHash
		if factsChanged && rollup.NarrativeStale() && a.visible(id) {
			change.NarrativeNeeded = append(change.NarrativeNeeded, id)
		}
	}

	return change
}

func (a *Aggregator) build(techID uuid.UUID, contribs map[uuid.UUID]contribution) *models.UnifiedCapability {
	rollup := &models.UnifiedCapability{TechnologyID: techID, ProjectCount: len(contribs)}

	if tech, ok := a.techs.Get(techID); ok {
		rollup.TechnologyKey = tech.Key
		rollup.TechnologyName = tech.Name
	}

	for _, c := range contribs {
		rollup.TotalExperienceYears += c.years

		if c.periodEnd != nil && (rollup.MostRecentUsage == nil || c.periodEnd.After(*rollup.MostRecentUsage)) {
			end := *c.periodEnd
			rollup.MostRecentUsage = &end
		}
	}

	rollup.TotalExperienceYears = math.Round(rollup.TotalExperienceYears*100) / 100
	rollup.FactsHash = factsHash(rollup)

	return rollup
}

// factsHash digests the facts a narrative is generated from.
func factsHash(c *models.UnifiedCapability) uint64 {
	recent := ""
	if c.MostRecentUsage != nil {
		recent = c.MostRecentUsage.UTC().Format(time.DateOnly)
	}

	return xxhash.Sum64String(fmt.Sprintf("%s|%s|%d|%.2f|%s",
		c.TechnologyKey, c.TechnologyName, c.ProjectCount, c.TotalExperienceYears, recent))
}

func (a *Aggregator) visible(techID uuid.UUID) bool {
	tech, ok := a.techs.Get(techID)

	return ok && tech.IsVisible()
}

func sortedIDs(set map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })

	return out
}

// Rebuild recomputes every rollup from entries. Narratives and versions in previous survive for
// technologies whose facts are unchanged.
func (a *Aggregator) Rebuild(entries []*catalog.RecordEntry, previous []models.UnifiedCapability) Change {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := &state{rollups: make(map[uuid.UUID]*models.UnifiedCapability, len(previous))}
	for i := range previous {
		p := previous[i]
		prev.rollups[p.TechnologyID] = &p
	}

	for id, r := range a.current.Load().rollups {
		if _, ok := prev.rollups[id]; !ok {
			prev.rollups[id] = r
		}
	}

	next := &state{
		rollups:       map[uuid.UUID]*models.UnifiedCapability{},
		contributions: map[uuid.UUID]map[uuid.UUID]contribution{},
		recordTechs:   map[uuid.UUID][]uuid.UUID{},
	}

	affected := make(map[uuid.UUID]bool)

	for _, e := range entries {
		if !e.Record.IsActive() {
			continue
		}

		c := contribution{years: e.Record.PeriodYears(), periodEnd: e.Record.PeriodEnd}

		for _, assoc := range e.Associations {
			inner := next.contributions[assoc.TechnologyID]
			if inner == nil {
				inner = map[uuid.UUID]contribution{}
				next.contributions[assoc.TechnologyID] = inner
			}

			if _, dup := inner[e.Record.ID]; dup {
				continue
			}

			inner[e.Record.ID] = c
			next.recordTechs[e.Record.ID] = append(next.recordTechs[e.Record.ID], assoc.TechnologyID)
			affected[assoc.TechnologyID] = true
		}
	}

	for id := range prev.rollups {
		affected[id] = true
	}

	change := a.recomputeRebuild(prev, next, sortedIDs(affected))
	a.current.Store(next)

	a.logger.Info("aggregator: rebuilt capability rollups",
		"technologies", len(next.rollups), "narratives_needed", len(change.NarrativeNeeded))

	return change
}

// recomputeRebuild is recompute for a full rebuild: unchanged facts keep their version.
func (a *Aggregator) recomputeRebuild(prev, next *state, techIDs []uuid.UUID) Change {
	var change Change

	now := a.now().UTC()

	for _, id := range techIDs {
		contribs := next.contributions[id]
		if len(contribs) == 0 {
			if _, ok := prev.rollups[id]; ok {
				change.Removed = append(change.Removed, id)
			}

			continue
		}

		rollup := a.build(id, contribs)
		old := prev.rollups[id]

		switch {
		case old != nil && old.FactsHash == rollup.FactsHash:
			kept := *old
			next.rollups[id] = &kept

			if kept.NarrativeStale() && a.visible(id) {
				change.NarrativeNeeded = append(change.NarrativeNeeded, id)
			}

			continue
		case old != nil:
			rollup.Version = old.Version + 1
			rollup.Narrative = old.Narrative
			rollup.NarrativeFactsHash = old.NarrativeFactsHash
		default:
			rollup.Version = 1
		}

		rollup.UpdatedAt = now
		next.rollups[id] = rollup
		change.Updated = append(change.Updated, *rollup)

		if a.visible(id) {
			change.NarrativeNeeded = append(change.NarrativeNeeded, id)
		}
	}

	return change
}

// SetNarrative installs narrative for techID if factsHash still matches the rollup's current facts.
// It returns the new rollup and whether it was installed.
func (a *Aggregator) SetNarrative(techID uuid.UUID, narrative string, factsHash uint64) (models.UnifiedCapability, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.current.Load()

	old, ok := cur.rollups[techID]
	if !ok || old.FactsHash != factsHash {
		return models.UnifiedCapability{}, false
	}

	next := cur.shallowCopy()
	rollup := *old
	rollup.Narrative = narrative
	rollup.NarrativeFactsHash = factsHash
	rollup.Version++
	rollup.UpdatedAt = a.now().UTC()
	next.rollups[techID] = &rollup

	a.current.Store(next)

	return rollup, true
}

// Get returns the rollup for techID regardless of approval state.
func (a *Aggregator) Get(techID uuid.UUID) (models.UnifiedCapability, bool) {
	r, ok := a.current.Load().rollups[techID]
	if !ok {
		return models.UnifiedCapability{}, false
	}

	return *r, true
}

// Visible returns rollups of approved technologies ordered by technology key.
func (a *Aggregator) Visible() []models.UnifiedCapability {
	rollups := a.current.Load().rollups

	out := make([]models.UnifiedCapability, 0, len(rollups))
	for id, r := range rollups {
		if a.visible(id) {
			out = append(out, *r)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TechnologyKey < out[j].TechnologyKey })

	return out
}

// All returns every rollup ordered by technology key.
func (a *Aggregator) All() []models.UnifiedCapability {
	rollups := a.current.Load().rollups

	out := make([]models.UnifiedCapability, 0, len(rollups))
	for _, r := range rollups {
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TechnologyKey < out[j].TechnologyKey })

	return out
}
