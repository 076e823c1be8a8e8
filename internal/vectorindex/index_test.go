package vectorindex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

func chunk(recordID uuid.UUID, t models.ChunkType, ordinal int, vec ...float32) models.EmbeddingChunk {
	return models.EmbeddingChunk{
		ID:       uuid.NewSHA1(recordID, []byte(fmt.Sprintf("%s/%d", t, ordinal))),
		RecordID: recordID,
		Type:     t,
		Text:     fmt.Sprintf("%s chunk %d", t, ordinal),
		Vector:   vec,
		Metadata: models.ChunkMetadata{Ordinal: ordinal},
	}
}

func date(year int) time.Time {
	return time.Date(year, 6, 30, 0, 0, 0, 0, time.UTC)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	ix := New(2)

	a, b, c := uuid.New(), uuid.New(), uuid.New()

	_, err := ix.ReplaceRecord(a, date(2020), 0, []models.EmbeddingChunk{
		chunk(a, models.ChunkTypeProject, 0, 1, 0),
		chunk(a, models.ChunkTypeCapability, 0, 0, 1),
	})
	require.NoError(t, err)

	_, err = ix.ReplaceRecord(b, date(2023), 0, []models.EmbeddingChunk{
		chunk(b, models.ChunkTypeProject, 0, 2, 0), // same direction as a, newer
		chunk(b, models.ChunkTypeCapability, 0),    // pending
	})
	require.NoError(t, err)

	_, err = ix.ReplaceRecord(c, date(2021), 0, []models.EmbeddingChunk{
		chunk(c, models.ChunkTypeProject, 0, 1, 1),
	})
	require.NoError(t, err)

	t.Run("orders by similarity then newer period end", func(t *testing.T) {
		matches, err := ix.Query(ctx, []float32{1, 0}, models.ChunkTypeProject, 10)
		require.NoError(t, err)
		require.Len(t, matches, 3)

		assert.Equal(t, b, matches[0].RecordID)
		assert.Equal(t, a, matches[1].RecordID)
		assert.InDelta(t, 1.0, matches[1].Similarity, 1e-6)
		assert.Equal(t, c, matches[2].RecordID)
		assert.InDelta(t, 0.7071, matches[2].Similarity, 1e-3)
	})

	t.Run("k limits results", func(t *testing.T) {
		matches, err := ix.Query(ctx, []float32{1, 0}, models.ChunkTypeProject, 1)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("partitions never mix and pending chunks are skipped", func(t *testing.T) {
		matches, err := ix.Query(ctx, []float32{0, 1}, models.ChunkTypeCapability, 0)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, a, matches[0].RecordID)
	})

	t.Run("best by record", func(t *testing.T) {
		best, err := ix.BestByRecord(ctx, []float32{0, 1}, models.ChunkTypeProject)
		require.NoError(t, err)
		assert.Len(t, best, 3)
		assert.InDelta(t, 0.0, best[a].Similarity, 1e-6)
		assert.InDelta(t, 0.7071, best[c].Similarity, 1e-3)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := ix.Query(ctx, []float32{1, 0, 0}, models.ChunkTypeProject, 1)
		assert.ErrorIs(t, err, ErrDimensionMismatch)

		_, err = ix.ReplaceRecord(a, date(2020), 0, []models.EmbeddingChunk{chunk(a, models.ChunkTypeProject, 0, 1)})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := ix.Query(cancelled, []float32{1, 0}, models.ChunkTypeProject, 1)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("stats and pending records", func(t *testing.T) {
		stats := ix.Stats()
		assert.Equal(t, Stats{Records: 3, Chunks: 5, Pending: 1}, stats)
		assert.Equal(t, []uuid.UUID{b}, ix.PendingRecords())
	})
}

func TestReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	ix := New(2)
	id := uuid.New()

	gen1, err := ix.ReplaceRecord(id, date(2022), 0, []models.EmbeddingChunk{
		chunk(id, models.ChunkTypeProject, 0, 1, 0),
		chunk(id, models.ChunkTypeCapability, 0, 1, 0),
		chunk(id, models.ChunkTypeCapability, 1, 1, 0),
	})
	require.NoError(t, err)

	gen2, err := ix.ReplaceRecord(id, date(2022), 0, []models.EmbeddingChunk{
		chunk(id, models.ChunkTypeProject, 0, 0, 1),
	})
	require.NoError(t, err)
	assert.Greater(t, gen2, gen1)

	assert.Empty(t, ix.Chunks(id, models.ChunkTypeCapability))
	current, ok := ix.Generation(id)
	require.True(t, ok)
	assert.Equal(t, gen2, current)

	assert.True(t, ix.DeleteByRecord(id))
	assert.False(t, ix.DeleteByRecord(id))

	matches, err := ix.Query(ctx, []float32{0, 1}, models.ChunkTypeProject, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = ix.ReplaceRecord(id, date(2022), 0, []models.EmbeddingChunk{chunk(uuid.New(), models.ChunkTypeProject, 0, 1, 0)})
	assert.Error(t, err)
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	ix := New(2)
	id := uuid.New()

	pending := chunk(id, models.ChunkTypeCapability, 0)
	_, err := ix.ReplaceRecord(id, date(2021), 0, []models.EmbeddingChunk{chunk(id, models.ChunkTypeProject, 0, 1, 0), pending})
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Stats().Pending)

	pending.Vector = []float32{0, 3}
	gen, err := ix.Upsert(pending)
	require.NoError(t, err)

	assert.Zero(t, ix.Stats().Pending)
	chunks := ix.Chunks(id, models.ChunkTypeCapability)
	require.Len(t, chunks, 1)
	assert.Equal(t, models.ChunkStatusEmbedded, chunks[0].Status)
	assert.Equal(t, gen, chunks[0].Generation)
	assert.InDelta(t, 1.0, chunks[0].Vector[1], 1e-6)

	matches, err := ix.Query(ctx, []float32{0, 1}, models.ChunkTypeCapability, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, date(2021), matches[0].PeriodEnd)
}

func TestGenerationSwapIsAtomic(t *testing.T) {
	ix := New(2)
	id := uuid.New()

	build := func(tag int) []models.EmbeddingChunk {
		chunks := []models.EmbeddingChunk{chunk(id, models.ChunkTypeProject, 0, 1, 0)}
		for i := 0; i < 5+tag%3; i++ {
			c := chunk(id, models.ChunkTypeCapability, i, 1, float32(i))
			c.Text = fmt.Sprintf("v%d", tag)
			chunks = append(chunks, c)
		}

		return chunks
	}

	_, err := ix.ReplaceRecord(id, date(2020), 0, build(0))
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		stop  atomic.Bool
		mixed atomic.Int64
	)

	for r := 0; r < 4; r++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for !stop.Load() {
				chunks := ix.Chunks(id, models.ChunkTypeCapability)
				for _, c := range chunks[1:] {
					if c.Text != chunks[0].Text || c.Generation != chunks[0].Generation {
						mixed.Add(1)
					}
				}

				best, err := ix.Query(context.Background(), []float32{1, 1}, models.ChunkTypeCapability, 0)
				if err != nil {
					mixed.Add(1)

					continue
				}

				for _, m := range best[1:] {
					if m.Generation != best[0].Generation {
						mixed.Add(1)
					}
				}
			}
		}()
	}

	for tag := 1; tag <= 300; tag++ {
		_, err := ix.ReplaceRecord(id, date(2020), 0, build(tag))
		require.NoError(t, err)
	}

	stop.Store(true)
	wg.Wait()

	assert.Zero(t, mixed.Load())
}
