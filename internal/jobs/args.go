// Package jobs defines the River job payloads of the ingestion pipeline and the inserter that enqueues them.
package jobs

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// Queue names.
const (
	QueueIngest      = "ingest"
	QueueNarratives  = "narratives"
	QueueMaintenance = "maintenance"
)

// Job kinds.
const (
	KindIngest       = "pp_ingest"
	KindReembed      = "chunk_reembed"
	KindNarrative    = "capability_narrative"
	KindPendingSweep = "pending_embedding_sweep"
)

// IngestArgs runs the ingestion pipeline for one record. Jobs are unique per profile version, so a
// new upload while an older job is running still gets its own job.
type IngestArgs struct {
	RecordID       uuid.UUID `json:"record_id"       river:"unique"`
	ProfileVersion int64     `json:"profile_version" river:"unique"`
}

// Kind returns the River job kind.
func (IngestArgs) Kind() string { return KindIngest }

// InsertOpts routes ingest jobs to the ingest queue.
func (IngestArgs) InsertOpts() river.InsertOpts { return river.InsertOpts{Queue: QueueIngest} }

// ReembedArgs fills in the missing vectors of one record's current chunks.
type ReembedArgs struct {
	RecordID uuid.UUID `json:"record_id" river:"unique"`
}

// Kind returns the River job kind.
func (ReembedArgs) Kind() string { return KindReembed }

// InsertOpts routes re-embed jobs to the ingest queue.
func (ReembedArgs) InsertOpts() river.InsertOpts { return river.InsertOpts{Queue: QueueIngest} }

// NarrativeArgs regenerates the narrative of one capability rollup for the given facts.
type NarrativeArgs struct {
	TechnologyID uuid.UUID `json:"technology_id" river:"unique"`
	FactsHash    uint64    `json:"facts_hash"    river:"unique"`
}

// Kind returns the River job kind.
func (NarrativeArgs) Kind() string { return KindNarrative }

// InsertOpts routes narrative jobs to their own queue.
func (NarrativeArgs) InsertOpts() river.InsertOpts { return river.InsertOpts{Queue: QueueNarratives} }

// PendingSweepArgs is the periodic job that enqueues re-embedding for records with pending chunks.
type PendingSweepArgs struct{}

// Kind returns the River job kind.
func (PendingSweepArgs) Kind() string { return KindPendingSweep }

// InsertOpts routes the sweep to the maintenance queue.
func (PendingSweepArgs) InsertOpts() river.InsertOpts { return river.InsertOpts{Queue: QueueMaintenance} }

var (
	_ river.JobArgsWithInsertOpts = IngestArgs{}
	_ river.JobArgsWithInsertOpts = ReembedArgs{}
	_ river.JobArgsWithInsertOpts = NarrativeArgs{}
	_ river.JobArgsWithInsertOpts = PendingSweepArgs{}
)
