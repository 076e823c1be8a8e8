// Package taxonomy maintains the controlled technology vocabulary and extracts technology mentions from text.
//
// The vocabulary is held as an immutable snapshot behind an atomic pointer. Readers never lock;
// writers serialize on a mutex, persist through Store, and swap in a rebuilt snapshot.
package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// Store persists taxonomy mutations. A nil Store keeps the taxonomy in memory only.
type Store interface {
	CreateTechnology(ctx context.Context, tech *models.Technology) error
	UpdateTechnologyState(ctx context.Context, id uuid.UUID, state models.ApprovalState) error
	IncrementTechnologyUsage(ctx context.Context, counts map[uuid.UUID]int64) error
}

type indexEntry struct {
	id        uuid.UUID
	canonical bool
}

// snapshot is never mutated after publication.
type snapshot struct {
	byID map[uuid.UUID]*models.Technology
	// index maps normalized names and aliases of non-rejected technologies.
	index map[string][]indexEntry
	// known maps every normalized name and alias, rejected included, so rejected terms are not re-proposed.
	known     map[string]uuid.UUID
	maxTokens int
}

// Resolution is the outcome of looking up one term.
type Resolution struct {
	Technology *models.Technology
	Canonical  bool
	Ambiguous  bool
	Candidates []uuid.UUID
}

// Taxonomy is the technology vocabulary.
type Taxonomy struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

// New creates an empty taxonomy. store may be nil.
func New(store Store, logger *slog.Logger) *Taxonomy {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Taxonomy{store: store, logger: logger}
	t.current.Store(buildSnapshot(map[uuid.UUID]*models.Technology{}))

	return t
}

// Load replaces the vocabulary with techs (used at startup). It does not persist.
func (t *Taxonomy) Load(techs []models.Technology) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byID := make(map[uuid.UUID]*models.Technology, len(techs))
	for i := range techs {
		tech := techs[i]
		byID[tech.ID] = &tech
	}

	t.current.Store(buildSnapshot(byID))
}

func buildSnapshot(byID map[uuid.UUID]*models.Technology) *snapshot {
	s := &snapshot{
		byID:  byID,
		index: make(map[string][]indexEntry),
		known: make(map[string]uuid.UUID),
	}

	// Deterministic build order keeps collision lists stable.
	ids := make([]uuid.UUID, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return byID[ids[i]].Key < byID[ids[j]].Key })

	for _, id := range ids {
		tech := byID[id]
		terms := append([]string{tech.Name, tech.Key}, tech.Aliases...)

		for i, term := range terms {
			norm := NormalizeTerm(term)
			if norm == "" {
				continue
			}

			if _, ok := s.known[norm]; !ok {
				s.known[norm] = id
			}

			if tech.State == models.ApprovalRejected {
				continue
			}

			if containsEntry(s.index[norm], id) {
				continue
			}

			s.index[norm] = append(s.index[norm], indexEntry{id: id, canonical: i < 2})
			if n := len(strings.Fields(norm)); n > s.maxTokens {
				s.maxTokens = n
			}
		}
	}

	return s
}

func containsEntry(entries []indexEntry, id uuid.UUID) bool {
	for _, e := range entries {
		if e.id == id {
			return true
		}
	}

	return false
}

func (s *snapshot) clone() map[uuid.UUID]*models.Technology {
	out := make(map[uuid.UUID]*models.Technology, len(s.byID))
	for id, tech := range s.byID {
		out[id] = tech
	}

	return out
}

// resolve looks up a normalized term. Collisions pick the higher usage count, then the lower key.
func (s *snapshot) resolve(norm string) (Resolution, bool) {
	entries := s.index[norm]
	if len(entries) == 0 {
		return Resolution{}, false
	}

	best := entries[0]
	for _, e := range entries[1:] {
		cur, cand := s.byID[best.id], s.byID[e.id]
		if cand.UsageCount > cur.UsageCount || (cand.UsageCount == cur.UsageCount && cand.Key < cur.Key) {
			best = e
		}
	}

	res := Resolution{Technology: s.byID[best.id], Canonical: best.canonical}
	if len(entries) > 1 {
		res.Ambiguous = true
		for _, e := range entries {
			res.Candidates = append(res.Candidates, e.id)
		}
	}

	return res, true
}

// Resolve looks up a technology by name or alias.
func (t *Taxonomy) Resolve(term string) (Resolution, bool) {
	return t.current.Load().resolve(NormalizeTerm(term))
}

// Get returns the technology with id.
func (t *Taxonomy) Get(id uuid.UUID) (*models.Technology, bool) {
	tech, ok := t.current.Load().byID[id]

	return tech, ok
}

// IsKnown reports whether term names any technology, rejected ones included.
func (t *Taxonomy) IsKnown(term string) bool {
	_, ok := t.current.Load().known[NormalizeTerm(term)]

	return ok
}

// List returns all technologies ordered by key.
func (t *Taxonomy) List() []models.Technology {
	s := t.current.Load()

	out := make([]models.Technology, 0, len(s.byID))
	for _, tech := range s.byID {
		out = append(out, *tech)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out
}

// Len returns the number of technologies.
func (t *Taxonomy) Len() int {
	return len(t.current.Load().byID)
}

// Propose creates a pending technology for name unless the term is already known.
// It returns the existing or created technology and whether it was created.
func (t *Taxonomy) Propose(ctx context.Context, name string, category models.TechnologyCategory) (*models.Technology, bool, error) {
	norm := NormalizeTerm(name)
	if norm == "" {
		return nil, false, apperrors.NewValidationError("name", "technology name is empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.current.Load()
	if id, ok := s.known[norm]; ok {
		return s.byID[id], false, nil
	}

	now := time.Now().UTC()
	tech := &models.Technology{
		ID:        uuid.Must(uuid.NewV7()),
		Key:       Slug(name),
		Name:      strings.TrimSpace(name),
		Category:  category,
		Aliases:   []string{},
		State:     models.ApprovalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if t.store != nil {
		if err := t.store.CreateTechnology(ctx, tech); err != nil {
			return nil, false, fmt.Errorf("create technology: %w", err)
		}
	}

	byID := s.clone()
	byID[tech.ID] = tech
	t.current.Store(buildSnapshot(byID))

	t.logger.InfoContext(ctx, "taxonomy: proposed technology",
		"technology_id", tech.ID, "technology_key", tech.Key, "category", category)

	return tech, true, nil
}

// Add inserts an approved technology (seeding). Existing keys are left unchanged.
func (t *Taxonomy) Add(ctx context.Context, tech models.Technology) (*models.Technology, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.current.Load()
	if id, ok := s.known[NormalizeTerm(tech.Name)]; ok {
		return s.byID[id], false, nil
	}

	if tech.ID == uuid.Nil {
		tech.ID = uuid.Must(uuid.NewV7())
	}

	if tech.Key == "" {
		tech.Key = Slug(tech.Name)
	}

	if tech.State == "" {
		tech.State = models.ApprovalApproved
	}

	now := time.Now().UTC()
	tech.CreatedAt, tech.UpdatedAt = now, now

	if t.store != nil {
		if err := t.store.CreateTechnology(ctx, &tech); err != nil {
			return nil, false, fmt.Errorf("create technology: %w", err)
		}
	}

	byID := s.clone()
	byID[tech.ID] = &tech
	t.current.Store(buildSnapshot(byID))

	return &tech, true, nil
}

// SetState moves technologies through the approval state machine. All transitions are validated
// before any is applied. Re-applying the current state is a no-op.
func (t *Taxonomy) SetState(ctx context.Context, ids []uuid.UUID, state models.ApprovalState) ([]models.Technology, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.current.Load()

	for _, id := range ids {
		tech, ok := s.byID[id]
		if !ok {
			return nil, apperrors.NewNotFoundError("technology", "technology not found: "+id.String())
		}

		if !tech.State.CanTransitionTo(state) {
			return nil, apperrors.NewConflictError(
				fmt.Sprintf("technology %s cannot move from %s to %s", tech.Key, tech.State, state))
		}
	}

	byID := s.clone()
	updated := make([]models.Technology, 0, len(ids))
	now := time.Now().UTC()

	for _, id := range ids {
		cur := byID[id]
		if cur.State == state {
			updated = append(updated, *cur)

			continue
		}

		if t.store != nil {
			if err := t.store.UpdateTechnologyState(ctx, id, state); err != nil {
				// Publish what was already persisted so memory matches the store.
				t.current.Store(buildSnapshot(byID))

				return nil, fmt.Errorf("update technology state: %w", err)
			}
		}

		next := *cur
		next.State = state
		next.UpdatedAt = now
		byID[id] = &next
		updated = append(updated, next)
	}

	t.current.Store(buildSnapshot(byID))

	return updated, nil
}

// RecordUsage adds counts to the historical usage of technologies. Unknown IDs are ignored.
func (t *Taxonomy) RecordUsage(ctx context.Context, counts map[uuid.UUID]int64) error {
	if len(counts) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.store != nil {
		if err := t.store.IncrementTechnologyUsage(ctx, counts); err != nil {
			return fmt.Errorf("increment technology usage: %w", err)
		}
	}

	s := t.current.Load()
	byID := s.clone()

	for id, n := range counts {
		cur, ok := byID[id]
		if !ok {
			continue
		}

		next := *cur
		next.UsageCount += n
		byID[id] = &next
	}

	t.current.Store(buildSnapshot(byID))

	return nil
}
