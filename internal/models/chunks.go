package models

import (
	"time"

	"github.com/google/uuid"
)

// ChunkType partitions chunks for vector search.
type ChunkType string

// Chunk types.
const (
	ChunkTypeProject    ChunkType = "project_level"
	ChunkTypeCapability ChunkType = "capability_level"
)

// ChunkStatus tracks whether a chunk has a vector.
type ChunkStatus string

// Chunk statuses.
const (
	ChunkStatusEmbedded         ChunkStatus = "embedded"
	ChunkStatusEmbeddingPending ChunkStatus = "embedding_pending"
)

// ChunkMetadata locates a chunk inside the unified text.
type ChunkMetadata struct {
	Ordinal      int      `json:"ordinal"`
	WordStart    int      `json:"word_start"`
	WordEnd      int      `json:"word_end"`
	Truncated    bool     `json:"truncated,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// EmbeddingChunk is an immutable span of a record's text and its vector. Vector is nil while pending.
type EmbeddingChunk struct {
	ID         uuid.UUID     `json:"id"`
	RecordID   uuid.UUID     `json:"record_id"`
	Generation uint64        `json:"generation"`
	Type       ChunkType     `json:"chunk_type"`
	Text       string        `json:"text"`
	Vector     []float32     `json:"-"`
	Status     ChunkStatus   `json:"status"`
	Metadata   ChunkMetadata `json:"metadata"`
	CreatedAt  time.Time     `json:"created_at"`
}

// IsPending reports whether the chunk still needs a vector.
func (c *EmbeddingChunk) IsPending() bool {
	return c.Status == ChunkStatusEmbeddingPending || len(c.Vector) == 0
}

// WordCount returns the number of words covered by the chunk.
func (c *EmbeddingChunk) WordCount() int {
	return c.Metadata.WordEnd - c.Metadata.WordStart
}
