package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/aggregator"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/backend"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/catalog"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/jobs"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/repository"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/vectorindex"
)

// Ingest outcomes.
const (
	IngestSuccess    = "success"
	IngestPartial    = "partial"
	IngestSuperseded = "superseded"
	IngestDataError  = "data_error"
	IngestFailed     = "failed"
)

const (
	recordStripes = 64

	summaryMaxWords       = 60
	summaryPromptMaxWords = 1500
)

const summarySystemPrompt = "Summarize the past-performance record below in two or three sentences for a proposal writer. " +
	"Mention the customer and the outcome when the text states them. Use only facts from the text."

// RecordsStore persists records, their documents and profile versions.
type RecordsStore interface {
	SaveProfile(
		ctx context.Context, params repository.SaveProfileParams, afterWrite func(ctx context.Context, tx pgx.Tx, version int64) error,
	) (int64, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*models.PastPerformanceRecord, error)
	LatestProfile(ctx context.Context, recordID uuid.UUID) (*models.UnifiedContentProfile, error)
	Archive(ctx context.Context, id uuid.UUID) (*models.PastPerformanceRecord, error)
}

// ChunkStore persists chunk generations.
type ChunkStore interface {
	NextGeneration(ctx context.Context) (uint64, error)
	Commit(ctx context.Context, params repository.CommitParams) error
	ListPendingRecordIDs(ctx context.Context) ([]uuid.UUID, error)
	CountPending(ctx context.Context) (int64, error)
}

// TechnologyExtractor detects technologies in text and proposes unknown ones.
type TechnologyExtractor interface {
	ExtractAndPropose(ctx context.Context, text string) ([]models.TechMatch, []*models.Technology, error)
}

// UsageRecorder counts how often technologies are associated with records.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, counts map[uuid.UUID]int64) error
}

// Rechunker splits a profile into chunks.
type Rechunker interface {
	Rechunk(profile *models.UnifiedContentProfile) []models.EmbeddingChunk
}

// IngestRequest is one document-set upload for a record. Record, when set, creates or updates the
// record's structured fields in the same transaction.
type IngestRequest struct {
	RecordID    uuid.UUID
	Record      *models.PastPerformanceRecord
	UnifiedText string
	Documents   []models.PPDocument
}

// IngestAck acknowledges a stored profile version.
type IngestAck struct {
	RecordID       uuid.UUID `json:"recordID"`
	ProfileVersion int64     `json:"profileVersion"`
}

// IngestResult reports one pipeline run.
type IngestResult struct {
	RecordID       uuid.UUID
	ProfileVersion int64
	Generation     uint64
	Chunks         int
	PendingChunks  int
	Associations   int
	Proposed       int
}

// stripe serializes the generation bookkeeping of the records hashed to it.
type stripe struct {
	mu sync.Mutex
	// claims holds the newest generation claimed per record and not yet finished.
	claims map[uuid.UUID]uint64
}

// IngestionServiceParams configures IngestionService. Jobs, Backend, Usage and Metrics may be nil.
type IngestionServiceParams struct {
	Records      RecordsStore
	Chunks       ChunkStore
	Extractor    TechnologyExtractor
	Usage        UsageRecorder
	Chunker      Rechunker
	Backend      Backend
	Index        *vectorindex.Index
	Catalog      *catalog.Catalog
	Aggregator   *aggregator.Aggregator
	Capabilities *CapabilitiesService
	Jobs         jobs.JobInserter
	Metrics      observability.IngestionMetrics
	Logger       *slog.Logger
}

// IngestionService is the single write path into chunking, embedding, extraction and aggregation.
//
// A run claims a generation under the record's stripe lock, releases it, does the slow work, and
// takes the lock again only to commit. The commit goes through only if no newer claim exists, so the
// last claimant wins and an older run ends with a ConsistencyError. A re-embed never claims over a
// running ingest: it would commit chunks of an older profile. Records on different stripes never
// wait on each other.
type IngestionService struct {
	records      RecordsStore
	chunks       ChunkStore
	extractor    TechnologyExtractor
	usage        UsageRecorder
	chunker      Rechunker
	backend      Backend
	index        *vectorindex.Index
	catalog      *catalog.Catalog
	aggregator   *aggregator.Aggregator
	capabilities *CapabilitiesService
	jobs         jobs.JobInserter
	metrics      observability.IngestionMetrics
	logger       *slog.Logger

	stripes [recordStripes]stripe
}

// NewIngestionService creates an IngestionService.
func NewIngestionService(p IngestionServiceParams) *IngestionService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &IngestionService{
		records:      p.Records,
		chunks:       p.Chunks,
		extractor:    p.Extractor,
		usage:        p.Usage,
		chunker:      p.Chunker,
		backend:      p.Backend,
		index:        p.Index,
		catalog:      p.Catalog,
		aggregator:   p.Aggregator,
		capabilities: p.Capabilities,
		jobs:         p.Jobs,
		metrics:      p.Metrics,
		logger:       logger,
	}

	for i := range s.stripes {
		s.stripes[i].claims = make(map[uuid.UUID]uint64)
	}

	return s
}

func (s *IngestionService) stripe(recordID uuid.UUID) *stripe {
	return &s.stripes[xxhash.Sum64(recordID[:])%recordStripes]
}

// Submit validates req and stores the new profile version. With a job inserter the pipeline runs as a
// pp_ingest job enqueued in the same transaction; without one it runs before Submit returns.
func (s *IngestionService) Submit(ctx context.Context, req *IngestRequest) (*IngestAck, error) {
	if err := validateIngest(req); err != nil {
		return nil, err
	}

	var afterWrite func(ctx context.Context, tx pgx.Tx, version int64) error
	if s.jobs != nil {
		afterWrite = func(ctx context.Context, tx pgx.Tx, version int64) error {
			return s.jobs.InsertIngestTx(ctx, tx, jobs.IngestArgs{RecordID: req.RecordID, ProfileVersion: version})
		}
	}

	version, err := s.records.SaveProfile(ctx, repository.SaveProfileParams{
		RecordID:    req.RecordID,
		Record:      req.Record,
		UnifiedText: req.UnifiedText,
		Documents:   req.Documents,
	}, afterWrite)
	if err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	s.logger.InfoContext(ctx, "ingest: profile stored",
		"record_id", req.RecordID,
		"profile_version", version,
		"documents", len(req.Documents),
	)

	if s.jobs == nil {
		if _, err := s.Process(ctx, req.RecordID); err != nil {
			return nil, err
		}
	}

	return &IngestAck{RecordID: req.RecordID, ProfileVersion: version}, nil
}

func validateIngest(req *IngestRequest) error {
	if req.RecordID == uuid.Nil {
		return apperrors.NewValidationError("recordID", "is required")
	}

	if strings.TrimSpace(req.UnifiedText) == "" {
		return apperrors.NewValidationError("unifiedText", "must not be empty")
	}

	if req.Record != nil {
		if req.Record.ID == uuid.Nil {
			req.Record.ID = req.RecordID
		}

		if req.Record.ID != req.RecordID {
			return apperrors.NewValidationError("record.id", "must match recordID")
		}

		if req.Record.ContractValue < 0 {
			return apperrors.NewValidationError("record.contractValue", "must not be negative")
		}

		if s, e := req.Record.PeriodStart, req.Record.PeriodEnd; s != nil && e != nil && e.Before(*s) {
			return apperrors.NewValidationError("record.periodEnd", "must not be before periodStart")
		}
	}

	for i := range req.Documents {
		if strings.TrimSpace(req.Documents[i].Text) == "" {
			return apperrors.NewValidationError(fmt.Sprintf("documents[%d].text", i), "must not be empty")
		}
	}

	return nil
}

// claim reserves a generation for recordID. The generation is drawn under the stripe lock, so a later
// claim always outranks an earlier one. A claim older than one already held is superseded at once.
func (s *IngestionService) claim(ctx context.Context, recordID uuid.UUID) (uint64, error) {
	return s.claimGeneration(ctx, recordID, false)
}

// claimIdle is claim for runs that must not displace another: it is refused while any run holds the
// record, since that run commits a profile at least as new.
func (s *IngestionService) claimIdle(ctx context.Context, recordID uuid.UUID) (uint64, error) {
	return s.claimGeneration(ctx, recordID, true)
}

func (s *IngestionService) claimGeneration(ctx context.Context, recordID uuid.UUID, idleOnly bool) (uint64, error) {
	st := s.stripe(recordID)
	st.mu.Lock()
	defer st.mu.Unlock()

	cur, held := st.claims[recordID]
	if held && idleOnly {
		return 0, apperrors.NewConsistencyError(
			fmt.Sprintf("record %s is held by generation %d", recordID, cur))
	}

	gen, err := s.chunks.NextGeneration(ctx)
	if err != nil {
		return 0, err
	}

	if held && cur > gen {
		return 0, superseded(recordID, gen)
	}

	st.claims[recordID] = gen

	return gen, nil
}

// release drops the claim if it is still gen. The caller holds the stripe lock.
func (st *stripe) release(recordID uuid.UUID, gen uint64) {
	if st.claims[recordID] == gen {
		delete(st.claims, recordID)
	}
}

func (s *IngestionService) abandon(recordID uuid.UUID, gen uint64) {
	st := s.stripe(recordID)
	st.mu.Lock()
	st.release(recordID, gen)
	st.mu.Unlock()
}

func superseded(recordID uuid.UUID, gen uint64) error {
	return apperrors.NewConsistencyError(fmt.Sprintf("generation %d for record %s was superseded", gen, recordID))
}

// Process runs extraction, chunking, embedding and aggregation for the record's latest profile and
// commits the result as a new generation. It is not aborted by ctx cancellation: a started run
// always finishes or rolls back.
func (s *IngestionService) Process(ctx context.Context, recordID uuid.UUID) (*IngestResult, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	res, err := s.process(ctx, recordID)

	status := IngestSuccess

	switch {
	case errors.Is(err, apperrors.ErrConsistency):
		status = IngestSuperseded
	case errors.Is(err, apperrors.ErrData), errors.Is(err, apperrors.ErrConflict):
		status = IngestDataError
	case err != nil:
		status = IngestFailed
	case res.PendingChunks > 0:
		status = IngestPartial
	}

	if s.metrics != nil {
		s.metrics.RecordIngest(ctx, status, time.Since(start))
	}

	if err != nil {
		s.logger.WarnContext(ctx, "ingest: run ended without commit",
			"record_id", recordID,
			"status", status,
			"error", err,
		)

		return nil, err
	}

	s.logger.InfoContext(ctx, "ingest: committed",
		"record_id", recordID,
		"profile_version", res.ProfileVersion,
		"generation", res.Generation,
		"chunks", res.Chunks,
		"pending_chunks", res.PendingChunks,
		"associations", res.Associations,
		"proposed", res.Proposed,
	)

	return res, nil
}

func (s *IngestionService) process(ctx context.Context, recordID uuid.UUID) (*IngestResult, error) {
	// Claim before loading so a later claimant never works from an older profile.
	gen, err := s.claim(ctx, recordID)
	if err != nil {
		return nil, err
	}

	committed := false

	defer func() {
		if !committed {
			s.abandon(recordID, gen)
		}
	}()

	record, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("ingest: get record: %w", err)
	}

	if !record.IsActive() {
		return nil, apperrors.NewConflictError("past performance record is archived")
	}

	profile, err := s.records.LatestProfile(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("ingest: latest profile: %w", err)
	}

	if strings.TrimSpace(profile.UnifiedText) == "" {
		return nil, apperrors.NewDataError("unified_text", "unified text is empty")
	}

	matches, proposed, err := s.extractor.ExtractAndPropose(ctx, profile.UnifiedText)
	if err != nil {
		return nil, fmt.Errorf("ingest: extract technologies: %w", err)
	}

	if s.metrics != nil && len(proposed) > 0 {
		s.metrics.RecordTechnologiesProposed(ctx, len(proposed))
	}

	associations := make([]models.PPTechnologyAssociation, 0, len(matches))
	for _, m := range matches {
		associations = append(associations, models.PPTechnologyAssociation{
			RecordID:       recordID,
			TechnologyID:   m.TechnologyID,
			Confidence:     m.Confidence,
			Version:        m.Version,
			ContextSnippet: m.ContextSnippet,
		})
	}

	chunks := s.chunker.Rechunk(profile)
	pending := s.embed(ctx, chunks, nil)
	summary := s.summarize(ctx, profile)
	profile.Summary = summary

	entry := catalog.RecordEntry{
		Record:         *record,
		Associations:   associations,
		ProfileVersion: profile.Version,
		Summary:        summary,
		UnifiedText:    profile.UnifiedText,
		NarrativeText:  narrativeText(profile.Documents),
	}

	change, previous, err := s.commit(ctx, gen, &entry, chunks, associations)
	if err != nil {
		return nil, err
	}

	committed = true

	s.recordChunks(ctx, chunks)
	s.recordUsage(ctx, previous, associations)

	if s.capabilities != nil {
		if err := s.capabilities.Publish(ctx, change); err != nil {
			// The generation is committed; rollups are recomputed on the next warm start.
			s.logger.ErrorContext(ctx, "ingest: publish capabilities failed", "record_id", recordID, "error", err)
		}
	}

	return &IngestResult{
		RecordID:       recordID,
		ProfileVersion: profile.Version,
		Generation:     gen,
		Chunks:         len(chunks),
		PendingChunks:  pending,
		Associations:   len(associations),
		Proposed:       len(proposed),
	}, nil
}

// commit persists the generation and installs it in memory under the stripe lock. It returns the
// aggregator change and the record's previous catalog entry, nil when it had none.
func (s *IngestionService) commit(
	ctx context.Context,
	gen uint64,
	entry *catalog.RecordEntry,
	chunks []models.EmbeddingChunk,
	associations []models.PPTechnologyAssociation,
) (aggregator.Change, *catalog.RecordEntry, error) {
	recordID := entry.Record.ID

	st := s.stripe(recordID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.claims[recordID] != gen {
		return aggregator.Change{}, nil, superseded(recordID, gen)
	}

	err := s.chunks.Commit(ctx, repository.CommitParams{
		RecordID:       recordID,
		Generation:     gen,
		ProfileVersion: entry.ProfileVersion,
		Chunks:         chunks,
		Associations:   associations,
		Summary:        entry.Summary,
	})
	if err != nil {
		return aggregator.Change{}, nil, fmt.Errorf("ingest: commit generation: %w", err)
	}

	st.release(recordID, gen)

	previous, _ := s.catalog.Get(recordID)

	if _, err := s.index.ReplaceRecord(recordID, entry.Record.PeriodEndOrZero(), gen, chunks); err != nil {
		// Vectors were checked against the index dimension before commit, so this is a programming error.
		return aggregator.Change{}, nil, fmt.Errorf("ingest: install generation: %w", err)
	}

	s.catalog.Put(*entry)
	change := s.aggregator.Apply(entry)

	return change, previous, nil
}

// embed fills in vectors for the chunks at indexes (all chunks when nil) and returns how many chunks
// stay pending. A failed or malformed embedding leaves its chunk pending; it never fails the run.
func (s *IngestionService) embed(ctx context.Context, chunks []models.EmbeddingChunk, indexes []int) int {
	if indexes == nil {
		indexes = make([]int, len(chunks))
		for i := range chunks {
			indexes[i] = i
		}
	}

	if len(indexes) > 0 && s.backend != nil {
		texts := make([]string, len(indexes))
		for i, idx := range indexes {
			texts[i] = chunks[idx].Text
		}

		vectors, errs := s.backend.EmbedBatch(ctx, texts)

		for i, idx := range indexes {
			c := &chunks[idx]

			switch {
			case errs[i] != nil:
				s.logger.WarnContext(ctx, "ingest: embed failed, chunk left pending",
					"record_id", c.RecordID,
					"chunk_id", c.ID,
					"error", errs[i],
				)
			case len(vectors[i]) == 0 || (s.index.Dimensions() > 0 && len(vectors[i]) != s.index.Dimensions()):
				s.logger.WarnContext(ctx, "ingest: embedding has wrong dimension, chunk left pending",
					"record_id", c.RecordID,
					"chunk_id", c.ID,
					"got", len(vectors[i]),
					"want", s.index.Dimensions(),
				)
			default:
				c.Vector = vectors[i]
				c.Status = models.ChunkStatusEmbedded

				continue
			}

			c.Vector = nil
			c.Status = models.ChunkStatusEmbeddingPending
		}
	}

	pending := 0

	for i := range chunks {
		if chunks[i].IsPending() {
			chunks[i].Status = models.ChunkStatusEmbeddingPending
			pending++
		}
	}

	return pending
}

// summarize asks the completion backend for a summary and falls back to the leading sentences.
func (s *IngestionService) summarize(ctx context.Context, profile *models.UnifiedContentProfile) string {
	fallback := extractiveSummary(profile.UnifiedText, summaryMaxWords)

	if s.backend == nil {
		return fallback
	}

	words := strings.Fields(profile.UnifiedText)
	prompt := strings.Join(words[:min(len(words), summaryPromptMaxWords)], " ")

	summary, err := s.backend.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		if !errors.Is(err, backend.ErrUnavailable) {
			s.logger.WarnContext(ctx, "ingest: summary generation failed, using extractive summary",
				"record_id", profile.RecordID,
				"error", err,
			)
		}

		return fallback
	}

	if summary = strings.TrimSpace(summary); summary == "" {
		return fallback
	}

	return summary
}

// extractiveSummary returns the leading whole sentences of text within maxWords, or the first
// maxWords words when the first sentence is longer.
func extractiveSummary(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}

	end := 0

	for i, w := range words[:maxWords] {
		if strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?") {
			end = i + 1
		}
	}

	if end == 0 {
		end = maxWords
	}

	return strings.Join(words[:end], " ")
}

func narrativeText(docs []models.PPDocument) string {
	var parts []string

	for i := range docs {
		if docs[i].Class == models.DocumentClassNarrative {
			parts = append(parts, docs[i].Text)
		}
	}

	return strings.Join(parts, "\n\n")
}

func (s *IngestionService) recordChunks(ctx context.Context, chunks []models.EmbeddingChunk) {
	if s.metrics == nil {
		return
	}

	counts := map[models.ChunkType]int{}
	for i := range chunks {
		counts[chunks[i].Type]++
	}

	for t, n := range counts {
		s.metrics.RecordChunksProduced(ctx, string(t), n)
	}
}

// recordUsage counts one use for every technology the record did not have before.
func (s *IngestionService) recordUsage(ctx context.Context, previous *catalog.RecordEntry, associations []models.PPTechnologyAssociation) {
	if s.usage == nil {
		return
	}

	counts := map[uuid.UUID]int64{}

	for _, a := range associations {
		if previous != nil {
			if _, ok := previous.Association(a.TechnologyID); ok {
				continue
			}
		}

		counts[a.TechnologyID]++
	}

	if err := s.usage.RecordUsage(ctx, counts); err != nil {
		s.logger.WarnContext(ctx, "ingest: record technology usage failed", "error", err)
	}
}

// Reembed retries the embedding of the record's pending chunks and commits them as a new generation.
// Associations, summary and rollups are unchanged.
func (s *IngestionService) Reembed(ctx context.Context, recordID uuid.UUID) (*IngestResult, error) {
	ctx = context.WithoutCancel(ctx)

	entry, ok := s.catalog.Get(recordID)
	if !ok {
		return nil, apperrors.NewNotFoundError("past performance", "record has no committed generation")
	}

	readGen, _ := s.index.Generation(recordID)
	current := s.index.Chunks(recordID, models.ChunkTypeProject)
	current = append(append([]models.EmbeddingChunk(nil), current...), s.index.Chunks(recordID, models.ChunkTypeCapability)...)

	var indexes []int

	for i := range current {
		if current[i].IsPending() {
			indexes = append(indexes, i)
		}
	}

	result := &IngestResult{RecordID: recordID, ProfileVersion: entry.ProfileVersion, Chunks: len(current)}

	if len(indexes) == 0 {
		return result, nil
	}

	gen, err := s.claimIdle(ctx, recordID)
	if err != nil {
		return nil, err
	}

	result.Generation = gen
	result.PendingChunks = s.embed(ctx, current, indexes)

	if result.PendingChunks == len(indexes) {
		s.abandon(recordID, gen)

		return result, nil
	}

	if err := s.commitReembed(ctx, gen, readGen, entry, current); err != nil {
		s.abandon(recordID, gen)

		return nil, err
	}

	s.logger.InfoContext(ctx, "reembed: committed",
		"record_id", recordID,
		"generation", gen,
		"embedded", len(indexes)-result.PendingChunks,
		"pending_chunks", result.PendingChunks,
	)

	return result, nil
}

// commitReembed commits only if the index still holds the generation the chunks were read from.
func (s *IngestionService) commitReembed(
	ctx context.Context, gen, readGen uint64, entry *catalog.RecordEntry, chunks []models.EmbeddingChunk,
) error {
	recordID := entry.Record.ID

	st := s.stripe(recordID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.claims[recordID] != gen {
		return superseded(recordID, gen)
	}

	if cur, ok := s.index.Generation(recordID); !ok || cur != readGen {
		return superseded(recordID, gen)
	}

	err := s.chunks.Commit(ctx, repository.CommitParams{
		RecordID:       recordID,
		Generation:     gen,
		ProfileVersion: entry.ProfileVersion,
		Chunks:         chunks,
	})
	if err != nil {
		return fmt.Errorf("reembed: commit generation: %w", err)
	}

	st.release(recordID, gen)

	if _, err := s.index.ReplaceRecord(recordID, entry.Record.PeriodEndOrZero(), gen, chunks); err != nil {
		return fmt.Errorf("reembed: install generation: %w", err)
	}

	return nil
}

// Archive flips the record to archived and removes it from the index, the catalog and the rollups.
// Runs already in flight for the record end superseded.
func (s *IngestionService) Archive(ctx context.Context, recordID uuid.UUID) (*models.PastPerformanceRecord, error) {
	ctx = context.WithoutCancel(ctx)

	st := s.stripe(recordID)
	st.mu.Lock()

	record, err := s.records.Archive(ctx, recordID)
	if err != nil {
		st.mu.Unlock()

		return nil, fmt.Errorf("archive: %w", err)
	}

	delete(st.claims, recordID)
	s.index.DeleteByRecord(recordID)
	s.catalog.Remove(recordID)
	change := s.aggregator.Remove(recordID)

	st.mu.Unlock()

	if s.capabilities != nil {
		if err := s.capabilities.Publish(ctx, change); err != nil {
			s.logger.ErrorContext(ctx, "archive: publish capabilities failed", "record_id", recordID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "archive: record archived",
		"record_id", recordID,
		"rollups_updated", len(change.Updated),
		"rollups_removed", len(change.Removed),
	)

	return record, nil
}

// SweepPending enqueues a re-embed job for every record with pending chunks and refreshes the
// pending-chunk gauge.
func (s *IngestionService) SweepPending(ctx context.Context) (*jobs.BackfillStats, error) {
	if s.metrics != nil {
		if n, err := s.chunks.CountPending(ctx); err == nil {
			s.metrics.SetPendingChunks(int(n))
		} else {
			s.logger.WarnContext(ctx, "sweep: count pending chunks failed", "error", err)
		}
	}

	if s.jobs == nil {
		return &jobs.BackfillStats{}, nil
	}

	return jobs.Backfill(ctx, s.chunks, s.jobs, s.logger)
}
