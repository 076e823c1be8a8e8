package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/aggregator"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/backend"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/catalog"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

type capabilitiesFixture struct {
	svc     *CapabilitiesService
	agg     *aggregator.Aggregator
	catalog *catalog.Catalog
	store   *mockCapabilityStore
	jobs    *mockJobInserter
	backend *mockBackend
	techs   techLookup
}

func newCapabilitiesFixture() *capabilitiesFixture {
	f := &capabilitiesFixture{
		catalog: catalog.New(),
		store:   &mockCapabilityStore{},
		jobs:    &mockJobInserter{},
		backend: &mockBackend{},
		techs: techLookup{
			javaID: {ID: javaID, Key: "java", Name: "Java", State: models.ApprovalApproved},
		},
	}
	f.agg = aggregator.New(f.techs, nil)
	f.svc = NewCapabilitiesService(CapabilitiesServiceParams{
		Aggregator:   f.agg,
		Records:      f.catalog,
		Technologies: f.techs,
		Store:        f.store,
		Backend:      f.backend,
		Jobs:         f.jobs,
	})

	return f
}

func (f *capabilitiesFixture) addRecord(name string, techIDs ...uuid.UUID) *catalog.RecordEntry {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(2, 0, 0)

	entry := catalog.RecordEntry{
		Record: models.PastPerformanceRecord{
			ID: uuid.New(), Name: name, Status: models.RecordStatusActive, PeriodStart: &start, PeriodEnd: &end,
		},
	}

	for _, id := range techIDs {
		entry.Associations = append(entry.Associations, models.PPTechnologyAssociation{RecordID: entry.Record.ID, TechnologyID: id})
	}

	f.catalog.Put(entry)
	f.agg.Apply(&entry)

	return &entry
}

func TestCapabilitiesService_GenerateNarrative(t *testing.T) {
	t.Run("installs the narrative for current facts", func(t *testing.T) {
		f := newCapabilitiesFixture()
		f.addRecord("Benefits Portal", javaID)

		var prompt string

		f.backend.completeFunc = func(_ context.Context, _, p string) (string, error) {
			prompt = p

			return "  Java across two years.  ", nil
		}

		rollup, ok := f.agg.Get(javaID)
		require.True(t, ok)

		status, err := f.svc.GenerateNarrative(context.Background(), javaID, rollup.FactsHash)
		require.NoError(t, err)
		assert.Equal(t, NarrativeInstalled, status)
		assert.Contains(t, prompt, "Technology: Java")
		assert.Contains(t, prompt, "- Benefits Portal")

		got, _ := f.agg.Get(javaID)
		assert.Equal(t, "Java across two years.", got.Narrative)
		assert.False(t, got.NarrativeStale())
		require.NotEmpty(t, f.store.saved)
		assert.Equal(t, "Java across two years.", f.store.saved[len(f.store.saved)-1].Narrative)
	})

	t.Run("stale facts skip the backend", func(t *testing.T) {
		f := newCapabilitiesFixture()
		f.addRecord("Benefits Portal", javaID)

		status, err := f.svc.GenerateNarrative(context.Background(), javaID, 12345)
		require.NoError(t, err)
		assert.Equal(t, NarrativeStale, status)
		assert.Zero(t, f.backend.completeCalls.Load())
	})

	t.Run("facts moving during completion discard the text", func(t *testing.T) {
		f := newCapabilitiesFixture()
		f.addRecord("Benefits Portal", javaID)

		rollup, _ := f.agg.Get(javaID)

		f.backend.completeFunc = func(context.Context, string, string) (string, error) {
			f.addRecord("Grants System", javaID)

			return "outdated", nil
		}

		status, err := f.svc.GenerateNarrative(context.Background(), javaID, rollup.FactsHash)
		require.NoError(t, err)
		assert.Equal(t, NarrativeStale, status)

		got, _ := f.agg.Get(javaID)
		assert.Empty(t, got.Narrative)
	})

	t.Run("backend errors are returned for retry", func(t *testing.T) {
		f := newCapabilitiesFixture()
		f.addRecord("Benefits Portal", javaID)
		f.backend.completeFunc = func(context.Context, string, string) (string, error) {
			return "", errors.New("rate limited")
		}

		rollup, _ := f.agg.Get(javaID)

		_, err := f.svc.GenerateNarrative(context.Background(), javaID, rollup.FactsHash)
		assert.Error(t, err)
	})

	t.Run("no backend is unavailable", func(t *testing.T) {
		f := newCapabilitiesFixture()
		f.addRecord("Benefits Portal", javaID)
		f.svc.backend = nil

		rollup, _ := f.agg.Get(javaID)

		_, err := f.svc.GenerateNarrative(context.Background(), javaID, rollup.FactsHash)
		assert.ErrorIs(t, err, backend.ErrUnavailable)
	})
}

func TestCapabilitiesService_EnqueueNarratives(t *testing.T) {
	f := newCapabilitiesFixture()

	pendingID := uuid.New()
	f.techs[pendingID] = &models.Technology{ID: pendingID, Key: "tool-x", Name: "Tool X", State: models.ApprovalPending}

	f.addRecord("Benefits Portal", javaID, pendingID)

	n, err := f.svc.EnqueueNarratives(context.Background(), []uuid.UUID{javaID, pendingID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.jobs.narratives, 1)
	assert.Equal(t, javaID, f.jobs.narratives[0].TechnologyID)
}

func TestCapabilitiesService_Recompute(t *testing.T) {
	f := newCapabilitiesFixture()

	f.addRecord("Benefits Portal", javaID)
	rollup, _ := f.agg.Get(javaID)

	// Previously stored narrative for the same facts survives a rebuild.
	stored := rollup
	stored.Narrative = "Kept narrative."
	stored.NarrativeFactsHash = rollup.FactsHash
	f.store.stored = []models.UnifiedCapability{stored}

	fresh := aggregator.New(f.techs, nil)
	f.svc.aggregator = fresh

	change, err := f.svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, change.Updated, "unchanged facts keep the stored rollup")
	assert.Empty(t, change.NarrativeNeeded)

	got, ok := fresh.Get(javaID)
	require.True(t, ok)
	assert.Equal(t, "Kept narrative.", got.Narrative)
	assert.Equal(t, 1, got.ProjectCount)
	assert.Equal(t, rollup.Version, got.Version)
}

func TestCapabilitiesService_Unified(t *testing.T) {
	f := newCapabilitiesFixture()

	pendingID := uuid.New()
	f.techs[pendingID] = &models.Technology{ID: pendingID, Key: "tool-x", Name: "Tool X", State: models.ApprovalPending}
	f.addRecord("Benefits Portal", javaID, pendingID)

	unified := f.svc.Unified()
	require.Len(t, unified, 1)
	assert.Equal(t, "java", unified[0].TechnologyKey)
}
