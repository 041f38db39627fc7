package vectorstore

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sync"
)

// MemoryStore is an exact nearest-neighbor store using linear scan with a
// min-heap for top-k selection. Intended for tests, local runs, and small
// knowledge bases; production installs use PostgresStore.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]memoryEntry // keyed by chunk ID
}

type memoryEntry struct {
	chunk  Chunk
	vector []float32
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chunks: make(map[string]memoryEntry),
	}
}

// Upsert inserts or replaces chunks by ID.
func (s *MemoryStore) Upsert(_ context.Context, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("upsert: chunk %d has empty ID", i)
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		s.chunks[c.ID] = memoryEntry{chunk: c, vector: vec}
	}
	return nil
}

// Query scans all stored chunks and returns the k most cosine-similar
// candidates passing the metadata filter, best first.
func (s *MemoryStore) Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Candidate, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	h := &candidateHeap{}
	heap.Init(h)

	for _, entry := range s.chunks {
		if !matchesFilter(entry.chunk.Metadata, filter) {
			continue
		}

		score := clampScore(cosine(vector, entry.vector))
		cand := Candidate{Chunk: entry.chunk, Score: score, Vector: entry.vector}
		if h.Len() < k {
			heap.Push(h, cand)
		} else if root := (*h)[0]; score > root.Score ||
			(score == root.Score && cand.Chunk.ID < root.Chunk.ID) {
			// Tie-break on chunk ID so repeated queries are deterministic
			// despite map iteration order.
			(*h)[0] = cand
			heap.Fix(h, 0)
		}
	}

	// Drain the min-heap into descending order.
	out := make([]Candidate, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Candidate)
	}
	return out, nil
}

// Delete removes all chunks with the given parent ID.
func (s *MemoryStore) Delete(_ context.Context, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.chunks {
		if entry.chunk.ParentID == parentID {
			delete(s.chunks, id)
		}
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// cosine computes cosine similarity in a single pass, 0 when either norm
// is zero or the dimensions disagree.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidateHeap is a min-heap by score so the weakest of the current top-k
// sits at the root.
type candidateHeap []Candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Chunk.ID > h[j].Chunk.ID
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) { *h = append(*h, x.(Candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
