// Package vectorindex is an in-memory cosine similarity index over chunk embeddings, partitioned by
// chunk type.
//
// Each record's chunks form one immutable generation. The full record map is itself immutable and
// published through an atomic pointer, so a reader resolves every record against exactly one
// generation and never blocks. Writers serialize on a mutex and swap in a copy of the map.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/pkg/embeddings"
)

// ErrDimensionMismatch is returned for vectors whose length differs from the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// scanCheckInterval is how many records a query scans between context checks.
const scanCheckInterval = 128

// Match is one chunk returned by a query.
type Match struct {
	ChunkID    uuid.UUID
	RecordID   uuid.UUID
	Generation uint64
	Similarity float64
	PeriodEnd  time.Time
}

type generation struct {
	id        uint64
	periodEnd time.Time
	// chunks holds every chunk of the generation, pending ones included, in ordinal order per type.
	chunks map[models.ChunkType][]models.EmbeddingChunk
}

type indexState struct {
	records map[uuid.UUID]*generation
}

// Index is safe for concurrent use.
type Index struct {
	dims int

	mu      sync.Mutex
	state   atomic.Pointer[indexState]
	nextGen atomic.Uint64
}

// New creates an empty index for vectors of length dims. dims <= 0 accepts any length.
func New(dims int) *Index {
	ix := &Index{dims: dims}
	ix.state.Store(&indexState{records: map[uuid.UUID]*generation{}})

	return ix
}

// Dimensions returns the configured vector length.
func (ix *Index) Dimensions() int {
	return ix.dims
}

// NextGeneration reserves a generation id. Ids increase monotonically across all records.
func (ix *Index) NextGeneration() uint64 {
	return ix.nextGen.Add(1)
}

// observeGeneration keeps nextGen ahead of ids loaded from storage.
func (ix *Index) observeGeneration(id uint64) {
	for {
		cur := ix.nextGen.Load()
		if id <= cur || ix.nextGen.CompareAndSwap(cur, id) {
			return
		}
	}
}

// ReplaceRecord atomically installs chunks as the record's current generation. Readers see either
// the previous set or this one. Vectors are copied and normalized; chunks without a vector are kept
// for inspection but never returned by queries. A gen of 0 reserves a fresh generation id.
func (ix *Index) ReplaceRecord(recordID uuid.UUID, periodEnd time.Time, gen uint64, chunks []models.EmbeddingChunk) (uint64, error) {
	if gen == 0 {
		gen = ix.NextGeneration()
	} else {
		ix.observeGeneration(gen)
	}

	g, err := ix.buildGeneration(recordID, periodEnd, gen, chunks)
	if err != nil {
		return 0, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	next := ix.copyRecords()
	next[recordID] = g
	ix.state.Store(&indexState{records: next})

	return gen, nil
}

func (ix *Index) buildGeneration(recordID uuid.UUID, periodEnd time.Time, gen uint64, chunks []models.EmbeddingChunk) (*generation, error) {
	g := &generation{id: gen, periodEnd: periodEnd, chunks: map[models.ChunkType][]models.EmbeddingChunk{}}

	for _, c := range chunks {
		if c.RecordID != recordID {
			return nil, fmt.Errorf("chunk %s belongs to record %s, not %s", c.ID, c.RecordID, recordID)
		}

		stored, err := ix.prepare(c, gen)
		if err != nil {
			return nil, err
		}

		g.chunks[c.Type] = append(g.chunks[c.Type], stored)
	}

	for _, list := range g.chunks {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Metadata.Ordinal < list[j].Metadata.Ordinal })
	}

	return g, nil
}

func (ix *Index) prepare(c models.EmbeddingChunk, gen uint64) (models.EmbeddingChunk, error) {
	c.Generation = gen

	if len(c.Vector) == 0 {
		c.Vector = nil
		c.Status = models.ChunkStatusEmbeddingPending

		return c, nil
	}

	if ix.dims > 0 && len(c.Vector) != ix.dims {
		return c, fmt.Errorf("%w: chunk %s has %d, want %d", ErrDimensionMismatch, c.ID, len(c.Vector), ix.dims)
	}

	c.Vector = embeddings.Normalized(c.Vector)
	c.Status = models.ChunkStatusEmbedded

	return c, nil
}

func (ix *Index) copyRecords() map[uuid.UUID]*generation {
	cur := ix.state.Load().records

	next := make(map[uuid.UUID]*generation, len(cur)+1)
	for id, g := range cur {
		next[id] = g
	}

	return next
}

// Upsert inserts or replaces one chunk in its record's current generation, producing a new generation.
// A chunk for a record not yet indexed starts a generation with an unknown period end.
func (ix *Index) Upsert(chunk models.EmbeddingChunk) (uint64, error) {
	gen := ix.NextGeneration()

	stored, err := ix.prepare(chunk, gen)
	if err != nil {
		return 0, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	next := ix.copyRecords()
	g := &generation{id: gen, chunks: map[models.ChunkType][]models.EmbeddingChunk{}}

	if cur, ok := next[chunk.RecordID]; ok {
		g.periodEnd = cur.periodEnd
		for t, list := range cur.chunks {
			cp := make([]models.EmbeddingChunk, len(list))
			for i, c := range list {
				c.Generation = gen
				cp[i] = c
			}

			g.chunks[t] = cp
		}
	}

	list := g.chunks[chunk.Type]
	replaced := false

	for i := range list {
		if list[i].ID == chunk.ID {
			list[i] = stored
			replaced = true

			break
		}
	}

	if !replaced {
		list = append(list, stored)
		sort.SliceStable(list, func(i, j int) bool { return list[i].Metadata.Ordinal < list[j].Metadata.Ordinal })
	}

	g.chunks[chunk.Type] = list
	next[chunk.RecordID] = g
	ix.state.Store(&indexState{records: next})

	return gen, nil
}

// DeleteByRecord removes every chunk of the record. It reports whether the record was indexed.
func (ix *Index) DeleteByRecord(recordID uuid.UUID) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.state.Load().records[recordID]; !ok {
		return false
	}

	next := ix.copyRecords()
	delete(next, recordID)
	ix.state.Store(&indexState{records: next})

	return true
}

// Query returns the k chunks of chunkType most similar to vector, ordered by similarity and then by
// newer period end. k <= 0 returns every embedded chunk. Cancelling ctx aborts the scan.
func (ix *Index) Query(ctx context.Context, vector []float32, chunkType models.ChunkType, k int) ([]Match, error) {
	var matches []Match

	err := ix.scan(ctx, vector, chunkType, func(m Match) {
		matches = append(matches, m)
	})
	if err != nil {
		return nil, err
	}

	sortMatches(matches)

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}

	return matches, nil
}

// BestByRecord returns, per record, the most similar embedded chunk of chunkType.
func (ix *Index) BestByRecord(ctx context.Context, vector []float32, chunkType models.ChunkType) (map[uuid.UUID]Match, error) {
	best := make(map[uuid.UUID]Match)

	err := ix.scan(ctx, vector, chunkType, func(m Match) {
		cur, ok := best[m.RecordID]
		if !ok || m.Similarity > cur.Similarity || (m.Similarity == cur.Similarity && lessUUID(m.ChunkID, cur.ChunkID)) {
			best[m.RecordID] = m
		}
	})
	if err != nil {
		return nil, err
	}

	return best, nil
}

func (ix *Index) scan(ctx context.Context, vector []float32, chunkType models.ChunkType, visit func(Match)) error {
	if ix.dims > 0 && len(vector) != ix.dims {
		return fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), ix.dims)
	}

	query := embeddings.Normalized(vector)
	records := ix.state.Load().records
	scanned := 0

	for recordID, g := range records {
		if scanned%scanCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("vector query: %w", err)
			}
		}

		scanned++

		for i := range g.chunks[chunkType] {
			c := &g.chunks[chunkType][i]
			if c.Vector == nil {
				continue
			}

			sim, err := embeddings.Dot(query, c.Vector)
			if err != nil {
				return fmt.Errorf("%w: chunk %s", ErrDimensionMismatch, c.ID)
			}

			visit(Match{ChunkID: c.ID, RecordID: recordID, Generation: g.id, Similarity: sim, PeriodEnd: g.periodEnd})
		}
	}

	return nil
}

func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}

		if !a.PeriodEnd.Equal(b.PeriodEnd) {
			return a.PeriodEnd.After(b.PeriodEnd)
		}

		if a.RecordID != b.RecordID {
			return lessUUID(a.RecordID, b.RecordID)
		}

		return lessUUID(a.ChunkID, b.ChunkID)
	})
}

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}

	return false
}

// Chunks returns the current generation's chunks of chunkType for a record, pending ones included.
// The returned slice must not be modified.
func (ix *Index) Chunks(recordID uuid.UUID, chunkType models.ChunkType) []models.EmbeddingChunk {
	g, ok := ix.state.Load().records[recordID]
	if !ok {
		return nil
	}

	return g.chunks[chunkType]
}

// Generation returns the record's current generation id.
func (ix *Index) Generation(recordID uuid.UUID) (uint64, bool) {
	g, ok := ix.state.Load().records[recordID]
	if !ok {
		return 0, false
	}

	return g.id, true
}

// Stats summarizes the index contents.
type Stats struct {
	Records int
	Chunks  int
	Pending int
}

// Stats counts records and chunks in the current snapshot.
func (ix *Index) Stats() Stats {
	var s Stats

	records := ix.state.Load().records
	s.Records = len(records)

	for _, g := range records {
		for _, list := range g.chunks {
			for i := range list {
				s.Chunks++
				if list[i].Vector == nil {
					s.Pending++
				}
			}
		}
	}

	return s
}

// PendingRecords lists records that have at least one chunk without a vector, in id order.
func (ix *Index) PendingRecords() []uuid.UUID {
	var out []uuid.UUID

	for id, g := range ix.state.Load().records {
	scan:
		for _, list := range g.chunks {
			for i := range list {
				if list[i].Vector == nil {
					out = append(out, id)

					break scan
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return lessUUID(out[i], out[j]) })

	return out
}
