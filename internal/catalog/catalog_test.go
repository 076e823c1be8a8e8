package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

func entry(id uuid.UUID, status models.RecordStatus) RecordEntry {
	return RecordEntry{Record: models.PastPerformanceRecord{ID: id, Name: id.String(), Status: status}}
}

func TestCatalog(t *testing.T) {
	c := New()

	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	z := uuid.MustParse("00000000-0000-0000-0000-0000000000ff")

	c.Load([]RecordEntry{entry(z, models.RecordStatusActive), entry(a, models.RecordStatusActive)})
	require.Len(t, c.Active(), 2)
	assert.Equal(t, a, c.Active()[0].Record.ID)

	before := c.Active()

	c.Put(entry(b, models.RecordStatusActive))
	assert.Len(t, c.Active(), 3)
	assert.Len(t, before, 2, "published snapshots are never modified")

	c.Put(entry(b, models.RecordStatusArchived))
	assert.Len(t, c.Active(), 2)
	assert.Equal(t, 3, c.Len())

	got, ok := c.Get(b)
	require.True(t, ok)
	assert.False(t, got.Record.IsActive())

	assert.True(t, c.Remove(b))
	assert.False(t, c.Remove(b))
	assert.Equal(t, 2, c.Len())
}

func TestAssociation(t *testing.T) {
	tech := uuid.New()
	e := RecordEntry{Associations: []models.PPTechnologyAssociation{{TechnologyID: tech, Version: "17"}}}

	a, ok := e.Association(tech)
	require.True(t, ok)
	assert.Equal(t, "17", a.Version)

	_, ok = e.Association(uuid.New())
	assert.False(t, ok)
}
