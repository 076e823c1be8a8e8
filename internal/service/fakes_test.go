package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/jobs"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/repository"
)

type mockBackend struct {
	embedFunc    func(ctx context.Context, text string) ([]float32, error)
	completeFunc func(ctx context.Context, system, prompt string) (string, error)

	embedCalls    atomic.Int64
	completeCalls atomic.Int64
}

func (m *mockBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)

	if m.embedFunc != nil {
		return m.embedFunc(ctx, text)
	}

	return []float32{1, 0}, nil
}

func (m *mockBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error) {
	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	for i, text := range texts {
		vectors[i], errs[i] = m.Embed(ctx, text)
	}

	return vectors, errs
}

func (m *mockBackend) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.completeCalls.Add(1)

	if m.completeFunc != nil {
		return m.completeFunc(ctx, system, prompt)
	}

	return "generated text", nil
}

type mockRecordsStore struct {
	mu       sync.Mutex
	records  map[uuid.UUID]*models.PastPerformanceRecord
	profiles map[uuid.UUID]*models.UnifiedContentProfile
}

func newMockRecordsStore() *mockRecordsStore {
	return &mockRecordsStore{
		records:  map[uuid.UUID]*models.PastPerformanceRecord{},
		profiles: map[uuid.UUID]*models.UnifiedContentProfile{},
	}
}

func (m *mockRecordsStore) SaveProfile(
	ctx context.Context, params repository.SaveProfileParams, afterWrite func(ctx context.Context, tx pgx.Tx, version int64) error,
) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[params.RecordID]
	if !ok {
		rec = &models.PastPerformanceRecord{ID: params.RecordID, Name: "Record", Status: models.RecordStatusActive}
		m.records[params.RecordID] = rec
	}

	if params.Record != nil {
		next := *params.Record
		next.Status = rec.Status
		m.records[params.RecordID] = &next
	}

	version := int64(1)
	if prev, ok := m.profiles[params.RecordID]; ok {
		version = prev.Version + 1
	}

	if afterWrite != nil {
		if err := afterWrite(ctx, nil, version); err != nil {
			return 0, err
		}
	}

	m.profiles[params.RecordID] = &models.UnifiedContentProfile{
		RecordID:    params.RecordID,
		Version:     version,
		UnifiedText: params.UnifiedText,
		Documents:   params.Documents,
	}

	return version, nil
}

func (m *mockRecordsStore) GetRecord(_ context.Context, id uuid.UUID) (*models.PastPerformanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("past performance", "record not found")
	}

	out := *rec

	return &out, nil
}

func (m *mockRecordsStore) LatestProfile(_ context.Context, recordID uuid.UUID) (*models.UnifiedContentProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[recordID]
	if !ok {
		return nil, apperrors.NewNotFoundError("profile", "no profile")
	}

	out := *p

	return &out, nil
}

func (m *mockRecordsStore) Archive(_ context.Context, id uuid.UUID) (*models.PastPerformanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("past performance", "record not found")
	}

	rec.Status = models.RecordStatusArchived
	out := *rec

	return &out, nil
}

type mockChunkStore struct {
	mu      sync.Mutex
	gen     atomic.Uint64
	commits []repository.CommitParams
	pending []uuid.UUID
}

func (m *mockChunkStore) NextGeneration(context.Context) (uint64, error) {
	return m.gen.Add(1), nil
}

func (m *mockChunkStore) Commit(_ context.Context, params repository.CommitParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commits = append(m.commits, params)

	return nil
}

func (m *mockChunkStore) ListPendingRecordIDs(context.Context) ([]uuid.UUID, error) {
	return m.pending, nil
}

func (m *mockChunkStore) CountPending(context.Context) (int64, error) {
	return int64(len(m.pending)), nil
}

func (m *mockChunkStore) lastCommit() repository.CommitParams {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.commits[len(m.commits)-1]
}

type mockExtractor struct {
	extractFunc func(ctx context.Context, text string) ([]models.TechMatch, []*models.Technology, error)
}

func (m *mockExtractor) ExtractAndPropose(ctx context.Context, text string) ([]models.TechMatch, []*models.Technology, error) {
	if m.extractFunc != nil {
		return m.extractFunc(ctx, text)
	}

	return nil, nil, nil
}

// splitChunker produces one project chunk and one capability chunk per profile.
type splitChunker struct{}

func (splitChunker) Rechunk(p *models.UnifiedContentProfile) []models.EmbeddingChunk {
	id := func(kind string) uuid.UUID {
		return uuid.NewSHA1(p.RecordID, []byte(kind))
	}

	return []models.EmbeddingChunk{
		{ID: id("project"), RecordID: p.RecordID, Type: models.ChunkTypeProject, Text: p.UnifiedText, Status: models.ChunkStatusEmbeddingPending},
		{ID: id("capability"), RecordID: p.RecordID, Type: models.ChunkTypeCapability, Text: p.UnifiedText, Status: models.ChunkStatusEmbeddingPending},
	}
}

type techLookup map[uuid.UUID]*models.Technology

func (l techLookup) Get(id uuid.UUID) (*models.Technology, bool) {
	t, ok := l[id]

	return t, ok
}

type mockCapabilityStore struct {
	mu      sync.Mutex
	saved   []models.UnifiedCapability
	removed []uuid.UUID
	stored  []models.UnifiedCapability
}

func (m *mockCapabilityStore) Save(_ context.Context, updated []models.UnifiedCapability, removed []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saved = append(m.saved, updated...)
	m.removed = append(m.removed, removed...)

	return nil
}

func (m *mockCapabilityStore) List(context.Context) ([]models.UnifiedCapability, error) {
	return m.stored, nil
}

type mockJobInserter struct {
	mu         sync.Mutex
	ingest     []jobs.IngestArgs
	reembed    []uuid.UUID
	narratives []jobs.NarrativeArgs
}

func (m *mockJobInserter) InsertIngestTx(_ context.Context, _ pgx.Tx, args jobs.IngestArgs) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ingest = append(m.ingest, args)

	return nil
}

func (m *mockJobInserter) InsertReembed(_ context.Context, ids []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reembed = append(m.reembed, ids...)

	return len(ids), nil
}

func (m *mockJobInserter) InsertNarratives(_ context.Context, args []jobs.NarrativeArgs) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.narratives = append(m.narratives, args...)

	return len(args), nil
}

func saveParams(id uuid.UUID, text string) repository.SaveProfileParams {
	return repository.SaveProfileParams{RecordID: id, UnifiedText: text}
}
