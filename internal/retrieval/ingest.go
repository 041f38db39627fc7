package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bankops/mfkb/internal/chunk"
	"github.com/bankops/mfkb/internal/vectorstore"
)

// Document is one ingestable knowledge-base entry.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// IngestResult reports the outcome for one document.
type IngestResult struct {
	DocumentID string
	Chunks     int
	Tags       []string
	Err        error
}

// ErrAllDocumentsFailed is returned when no document of a batch could be
// ingested; per-document causes are in the results.
var ErrAllDocumentsFailed = errors.New("retrieval: all documents failed to ingest")

// AddDocuments chunks, embeds and stores docs. Failures are per-document;
// the call errors only when the context dies or every document fails.
func (e *Engine) AddDocuments(ctx context.Context, docs []Document) ([]IngestResult, error) {
	if len(docs) == 0 {
		return nil, &ValidationError{Field: "documents", Reason: "must not be empty"}
	}

	results := make([]IngestResult, 0, len(docs))
	failed := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("ingest: %w", err)
		}
		res := e.ingestOne(ctx, doc)
		if res.Err != nil {
			failed++
			e.logger.Warn("document ingest failed",
				"document_id", res.DocumentID,
				"error", res.Err,
			)
		}
		results = append(results, res)
	}
	if failed == len(docs) {
		return results, ErrAllDocumentsFailed
	}
	return results, nil
}

// UpdateDocument replaces a document's chunks with a fresh chunking and
// embedding of its content. The new chunks are embedded before anything is
// deleted, so a failed embedding leaves the stored document untouched.
func (e *Engine) UpdateDocument(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return &ValidationError{Field: "document.id", Reason: "must not be empty"}
	}
	chunks, vectors, _, err := e.prepareChunks(ctx, doc)
	if err != nil {
		return fmt.Errorf("reembed document %s: %w", doc.ID, err)
	}
	// Old chunks with indices past the new count would otherwise survive
	// the upsert.
	if err := e.store.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	if err := e.store.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("store chunks for document %s: %w", doc.ID, err)
	}
	return nil
}

// DeleteDocument removes every chunk of the document.
func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (e *Engine) ingestOne(ctx context.Context, doc Document) IngestResult {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	res := IngestResult{DocumentID: doc.ID}

	chunks, vectors, tags, err := e.prepareChunks(ctx, doc)
	if err != nil {
		res.Err = err
		return res
	}
	res.Tags = tags

	if err := e.store.Upsert(ctx, chunks, vectors); err != nil {
		res.Err = fmt.Errorf("store chunks: %w", err)
		return res
	}
	res.Chunks = len(chunks)
	return res
}

// prepareChunks splits and embeds a document without touching the store.
func (e *Engine) prepareChunks(ctx context.Context, doc Document) ([]vectorstore.Chunk, [][]float32, []string, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil, nil, &ValidationError{Field: "document.content", Reason: "must not be empty"}
	}

	pieces := e.splitter.Split(doc.Content)
	if len(pieces) == 0 {
		return nil, nil, nil, &ValidationError{Field: "document.content", Reason: "no chunkable text"}
	}
	tags := chunk.Tags(doc.Content)

	vectors, stats, err := e.embedder.GenerateWithStats(ctx, pieces)
	e.cacheHits.Add(int64(stats.Hits))
	e.cacheMisses.Add(int64(stats.Misses))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("embed chunks: %w", err)
	}

	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, text := range pieces {
		if vectors[i] == nil {
			return nil, nil, nil, fmt.Errorf("chunk %d of document %s has no vector", i, doc.ID)
		}
		chunks[i] = vectorstore.Chunk{
			ID:          fmt.Sprintf("%s-chunk-%d", doc.ID, i),
			ParentID:    doc.ID,
			Index:       i,
			TotalChunks: len(pieces),
			Text:        text,
			Metadata:    e.chunkMetadata(doc, tags),
		}
	}
	return chunks, vectors, tags, nil
}

// chunkMetadata copies the document metadata and fills in timestamp and
// tags. Caller-owned maps are never shared between chunks.
func (e *Engine) chunkMetadata(doc Document, tags []string) map[string]string {
	meta := make(map[string]string, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	if _, ok := meta[vectorstore.MetaTimestamp]; !ok && !doc.CreatedAt.IsZero() {
		meta[vectorstore.MetaTimestamp] = doc.CreatedAt.UTC().Format(time.RFC3339)
	}
	if len(tags) > 0 {
		meta[vectorstore.MetaTags] = strings.Join(tags, ",")
	}
	return meta
}
