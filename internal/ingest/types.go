package ingest

import (
	"context"

	"corpora/internal/text"
)

// Task is the payload published to the ingest.task topic. One task is one
// attempt at the full extract -> chunk -> embed -> index pipeline for a
// single document.
type Task struct {
	DocumentID    string `json:"document_id"`
	CollectionID  string `json:"collection_id"`
	ObjectKey     string `json:"object_key"`
	Filename      string `json:"filename"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type ObjectStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

type Extractor interface {
	Extract(filename string, data []byte) (string, error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the per-collection nearest-neighbor store. Upsert overwrites
// by chunk id, so re-running a pipeline attempt converges instead of
// duplicating entries.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, collectionID string) error
	Upsert(ctx context.Context, collectionID string, entries []IndexEntry) error
}

type IndexEntry struct {
	ChunkID      string
	DocumentID   string
	CollectionID string
	Text         string
	Tokens       int
	Offset       int
	Vector       []float32
}

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id, status string) error
}

type ChunkWriter interface {
	UpsertChunks(ctx context.Context, documentID string, chunks []ChunkRecord) error
}

type ChunkRecord struct {
	ID     string
	Text   string
	Tokens int
	Offset int
}

// Chunker matches text.Split.
type Chunker func(input string, maxTokens, overlap int) ([]text.Chunk, error)
