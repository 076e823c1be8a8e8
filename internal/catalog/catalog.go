// Package catalog keeps the structured per-record facts that ranking and aggregation read:
// the record itself, its technology associations, and its profile text.
package catalog

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// RecordEntry is an immutable view of one record. Replace it, never modify it.
type RecordEntry struct {
	Record         models.PastPerformanceRecord
	Associations   []models.PPTechnologyAssociation
	ProfileVersion int64
	Summary        string
	UnifiedText    string
	// NarrativeText is the text of the record's narrative documents, empty when it has none.
	NarrativeText string
}

// Association returns the record's association with technologyID.
func (e *RecordEntry) Association(technologyID uuid.UUID) (models.PPTechnologyAssociation, bool) {
	for _, a := range e.Associations {
		if a.TechnologyID == technologyID {
			return a, true
		}
	}

	return models.PPTechnologyAssociation{}, false
}

type state struct {
	entries map[uuid.UUID]*RecordEntry
	// active holds non-archived entries sorted by record id.
	active []*RecordEntry
}

// Catalog is safe for concurrent use. Reads never block.
type Catalog struct {
	mu      sync.Mutex
	current atomic.Pointer[state]
}

// New creates an empty catalog.
func New() *Catalog {
	c := &Catalog{}
	c.current.Store(newState(map[uuid.UUID]*RecordEntry{}))

	return c
}

func newState(entries map[uuid.UUID]*RecordEntry) *state {
	s := &state{entries: entries}

	for _, e := range entries {
		if e.Record.IsActive() {
			s.active = append(s.active, e)
		}
	}

	sort.Slice(s.active, func(i, j int) bool {
		return s.active[i].Record.ID.String() < s.active[j].Record.ID.String()
	})

	return s
}

// Load replaces the catalog contents.
func (c *Catalog) Load(entries []RecordEntry) {
	m := make(map[uuid.UUID]*RecordEntry, len(entries))
	for i := range entries {
		e := entries[i]
		m[e.Record.ID] = &e
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current.Store(newState(m))
}

// Put installs entry, replacing any previous entry for the same record.
func (c *Catalog) Put(entry RecordEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current.Load().entries
	next := make(map[uuid.UUID]*RecordEntry, len(cur)+1)

	for id, e := range cur {
		next[id] = e
	}

	next[entry.Record.ID] = &entry
	c.current.Store(newState(next))
}

// Remove drops the record. It reports whether it was present.
func (c *Catalog) Remove(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current.Load().entries
	if _, ok := cur[id]; !ok {
		return false
	}

	next := make(map[uuid.UUID]*RecordEntry, len(cur))
	for k, e := range cur {
		if k != id {
			next[k] = e
		}
	}

	c.current.Store(newState(next))

	return true
}

// Get returns the entry for id.
func (c *Catalog) Get(id uuid.UUID) (*RecordEntry, bool) {
	e, ok := c.current.Load().entries[id]

	return e, ok
}

// Active returns the non-archived entries ordered by record id. The slice must not be modified.
func (c *Catalog) Active() []*RecordEntry {
	return c.current.Load().active
}

// Len returns the number of entries, archived ones included.
func (c *Catalog) Len() int {
	return len(c.current.Load().entries)
}
