package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusFailed     = "failed"
)

// chunkNamespace seeds deterministic chunk UUIDs. Chunk identity is derived
// from (document id, offset) so a retried pipeline run writes the same ids
// and the index upsert overwrites instead of duplicating.
var chunkNamespace = uuid.MustParse("8c9d3b52-61f4-4a1d-9e0a-2f6f3d1c7b42")

func ChunkID(documentID string, offset int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:%d", documentID, offset))).String()
}

type Orchestrator struct {
	store     ObjectStore
	extractor Extractor
	chunker   Chunker
	chunks    ChunkWriter
	embedder  Embedder
	index     VectorIndex
	status    StatusUpdater

	maxTokens int
	overlap   int
}

func NewOrchestrator(
	store ObjectStore,
	extractor Extractor,
	chunker Chunker,
	chunks ChunkWriter,
	embedder Embedder,
	index VectorIndex,
	status StatusUpdater,
	maxTokens, overlap int,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		chunker:   chunker,
		chunks:    chunks,
		embedder:  embedder,
		index:     index,
		status:    status,
		maxTokens: maxTokens,
		overlap:   overlap,
	}
}

// Run executes one full pipeline attempt for a document. Steps are strictly
// sequential; the first error aborts the attempt and the caller decides
// whether to retry. Every step is idempotent, so a retry re-runs from scratch
// and converges to the same indexed state.
func (o *Orchestrator) Run(ctx context.Context, task Task) error {
	slog.InfoContext(ctx, "ingestion started", "document_id", task.DocumentID, "collection_id", task.CollectionID, "object_key", task.ObjectKey)

	data, err := o.store.Fetch(ctx, task.ObjectKey)
	if err != nil {
		return fmt.Errorf("fetch object %q: %w", task.ObjectKey, err)
	}

	extracted, err := o.extractor.Extract(task.Filename, data)
	if err != nil {
		return fmt.Errorf("extract %q: %w", task.DocumentID, err)
	}

	chunks, err := o.chunker(extracted, o.maxTokens, o.overlap)
	if err != nil {
		return fmt.Errorf("chunk %q: %w", task.DocumentID, err)
	}
	slog.InfoContext(ctx, "document chunked", "document_id", task.DocumentID, "chunks", len(chunks))

	records := make([]ChunkRecord, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		records[i] = ChunkRecord{
			ID:     ChunkID(task.DocumentID, c.Offset),
			Text:   c.Text,
			Tokens: c.Tokens,
			Offset: c.Offset,
		}
		texts[i] = c.Text
	}

	if err := o.chunks.UpsertChunks(ctx, task.DocumentID, records); err != nil {
		return fmt.Errorf("persist chunks for %q: %w", task.DocumentID, err)
	}

	// One batch call per document keeps the pipeline inside the embedding
	// provider's rate limits.
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks for %q: %w", len(texts), task.DocumentID, err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("embedding count mismatch for %q: got %d vectors for %d chunks", task.DocumentID, len(vectors), len(records))
	}

	if err := o.index.EnsureCollection(ctx, task.CollectionID); err != nil {
		return fmt.Errorf("ensure collection %q: %w", task.CollectionID, err)
	}

	entries := make([]IndexEntry, len(records))
	for i, r := range records {
		entries[i] = IndexEntry{
			ChunkID:      r.ID,
			DocumentID:   task.DocumentID,
			CollectionID: task.CollectionID,
			Text:         r.Text,
			Tokens:       r.Tokens,
			Offset:       r.Offset,
			Vector:       vectors[i],
		}
	}
	if err := o.index.Upsert(ctx, task.CollectionID, entries); err != nil {
		return fmt.Errorf("index upsert for %q: %w", task.DocumentID, err)
	}

	if err := o.status.UpdateStatus(ctx, task.DocumentID, StatusIndexed); err != nil {
		return fmt.Errorf("mark indexed %q: %w", task.DocumentID, err)
	}

	slog.InfoContext(ctx, "ingestion completed", "document_id", task.DocumentID, "chunks", len(records))
	return nil
}
