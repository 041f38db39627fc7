// Package vectorstore defines the similarity-index contract the retrieval
// engine depends on, plus an in-memory implementation for tests and small
// installs and a PostgreSQL/pgvector implementation for production.
package vectorstore

import "context"

// Metadata keys with meaning to the retrieval pipeline.
const (
	MetaSourceType     = "source_type"
	MetaClassification = "classification"
	MetaTimestamp      = "timestamp"
	MetaTitle          = "title"
	MetaTags           = "tags"
)

// Chunk is the stored and embedded unit: a bounded slice of a source
// document carrying its parent's metadata.
type Chunk struct {
	ID          string
	ParentID    string
	Index       int
	TotalChunks int
	Text        string
	Metadata    map[string]string
}

// Candidate is a chunk returned by a similarity query. Score is a 0-1
// similarity (higher is closer); Vector is the stored embedding, returned
// so callers can re-score under additional metrics.
type Candidate struct {
	Chunk  Chunk
	Score  float64
	Vector []float32
}

// clampScore forces a raw similarity into [0,1]. Cosine similarity runs to
// -1 for opposed vectors (pgvector's `1 - distance` to -1 as well); the
// Candidate contract floors those at 0.
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Store is the similarity index the engine queries. Implementations must be
// safe for concurrent use. The engine never assumes a particular backing
// index structure.
type Store interface {
	// Upsert inserts or replaces chunks with their embeddings.
	// len(chunks) must equal len(vectors).
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error

	// Query returns up to k candidates most similar to vector, restricted
	// to chunks whose metadata contains every key/value pair in filter.
	Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Candidate, error)

	// Delete removes all chunks belonging to the given parent document.
	Delete(ctx context.Context, parentID string) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)
}

// matchesFilter reports whether metadata satisfies every filter pair.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
