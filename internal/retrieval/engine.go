package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/bankops/mfkb/internal/chunk"
	"github.com/bankops/mfkb/internal/embedding"
	"github.com/bankops/mfkb/internal/log"
	"github.com/bankops/mfkb/internal/policy"
	"github.com/bankops/mfkb/internal/rank"
	"github.com/bankops/mfkb/internal/vectorstore"
)

// overfetchFactor widens the store query so the refinement stages have
// candidates left to drop.
const overfetchFactor = 3

// Embedder is the slice of the embedding generator the engine needs.
type Embedder interface {
	GenerateWithStats(ctx context.Context, texts []string) ([][]float32, embedding.CacheStats, error)
}

// Engine runs the retrieval pipeline against one store and one embedder.
type Engine struct {
	store    vectorstore.Store
	embedder Embedder
	reranker *rank.Reranker
	splitter *chunk.Splitter
	logger   log.Logger
	defaults Options

	queries         atomic.Int64
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	degradedStages  atomic.Int64
	packedChunks    atomic.Int64
	truncatedChunks atomic.Int64
}

// EngineOption configures an Engine at construction.
type EngineOption func(*Engine)

// WithDefaults replaces the baseline per-call options.
func WithDefaults(o Options) EngineOption { return func(e *Engine) { e.defaults = o } }

// WithSplitter replaces the ingestion chunker.
func WithSplitter(s *chunk.Splitter) EngineOption { return func(e *Engine) { e.splitter = s } }

// WithReranker replaces the reranker.
func WithReranker(r *rank.Reranker) EngineOption { return func(e *Engine) { e.reranker = r } }

// New creates an Engine.
func New(store vectorstore.Store, embedder Embedder, logger log.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	e := &Engine{
		store:    store,
		embedder: embedder,
		reranker: rank.NewReranker(logger),
		splitter: chunk.New(),
		logger:   logger,
		defaults: DefaultOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve embeds the query, searches the store, refines the candidates
// and packs them into the context budget. Embedding and search failures
// abort; refinement failures skip their stage unless strict mode is on.
func (e *Engine) Retrieve(ctx context.Context, query string, opts ...Option) ([]ContextChunk, error) {
	e.queries.Add(1)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	o := e.defaults
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	vectors, stats, err := e.embedder.GenerateWithStats(ctx, []string{query})
	e.cacheHits.Add(int64(stats.Hits))
	e.cacheMisses.Add(int64(stats.Misses))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec := vectors[0]
	if queryVec == nil {
		return nil, fmt.Errorf("embed query: no vector returned")
	}

	found, err := e.store.Query(ctx, queryVec, o.TopK*overfetchFactor, o.Filters)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates, err := e.score(queryVec, found, o)
	if err != nil {
		return nil, err
	}

	if o.Rerank && e.reranker != nil {
		candidates, err = e.refine("rerank", o.Strict, candidates,
			func(in []rank.Candidate) []rank.Candidate {
				return e.reranker.Rerank(query, in)
			})
		if err != nil {
			return nil, err
		}
	}
	if o.DiversityFactor > 0 {
		candidates, err = e.refine("diversity", o.Strict, candidates,
			func(in []rank.Candidate) []rank.Candidate {
				return rank.FilterDiverse(in, o.DiversityFactor, o.TopK)
			})
		if err != nil {
			return nil, err
		}
	}
	candidates, err = e.refine("domain", o.Strict, candidates,
		func(in []rank.Candidate) []rank.Candidate {
			return policy.Apply(in, o.Policy)
		})
	if err != nil {
		return nil, err
	}

	if len(candidates) > o.TopK {
		candidates = candidates[:o.TopK]
	}

	packed := pack(candidates, o.MaxContextLength)
	e.packedChunks.Add(int64(len(packed)))
	for _, c := range packed {
		if c.Truncated {
			e.truncatedChunks.Add(1)
		}
	}

	e.logger.Debug("retrieval complete",
		"query_len", len(query),
		"found", len(found),
		"packed", len(packed),
	)
	return packed, nil
}

// score converts store results into ranked candidates. With stored vectors
// available it recomputes similarity under the requested metrics and
// strategy; otherwise the store's cosine score stands. Threshold filtering
// happens here, before any refinement.
func (e *Engine) score(queryVec []float32, found []vectorstore.Candidate, o Options) ([]rank.Candidate, error) {
	out := make([]rank.Candidate, 0, len(found))
	for _, f := range found {
		c := rank.Candidate{
			Chunk:         f.Chunk,
			Vector:        f.Vector,
			VectorScore:   f.Score,
			CombinedScore: f.Score,
		}
		if f.Vector != nil && len(o.Metrics) > 0 {
			combined, err := rank.Composite(queryVec, f.Vector, o.Metrics, o.Strategy)
			if err != nil {
				return nil, fmt.Errorf("composite score for chunk %s: %w", f.Chunk.ID, err)
			}
			c.VectorScore = combined
			c.CombinedScore = combined
		}
		if c.CombinedScore < o.SimilarityThreshold {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// refine runs one refinement stage, converting a panic into either a
// skipped stage or, in strict mode, a DegradedError.
func (e *Engine) refine(stage string, strict bool, in []rank.Candidate, fn func([]rank.Candidate) []rank.Candidate) (out []rank.Candidate, err error) {
	defer func() {
		if r := recover(); r == nil {
			return
		} else if strict {
			out, err = nil, &DegradedError{Stage: stage, Err: fmt.Errorf("%v", r)}
			e.degradedStages.Add(1)
		} else {
			e.degradedStages.Add(1)
			e.logger.Warn("refinement stage failed, skipping", "stage", stage, "panic", r)
			out, err = in, nil
		}
	}()
	return fn(in), nil
}

// EngineStats is a point-in-time snapshot of the engine counters plus the
// store document count.
type EngineStats struct {
	Chunks          int
	Queries         int64
	CacheHits       int64
	CacheMisses     int64
	DegradedStages  int64
	PackedChunks    int64
	TruncatedChunks int64
}

// Stats reports the counter snapshot. The chunk count comes from the
// store and can fail.
func (e *Engine) Stats(ctx context.Context) (EngineStats, error) {
	count, err := e.store.Count(ctx)
	if err != nil {
		return EngineStats{}, fmt.Errorf("store count: %w", err)
	}
	return EngineStats{
		Chunks:          count,
		Queries:         e.queries.Load(),
		CacheHits:       e.cacheHits.Load(),
		CacheMisses:     e.cacheMisses.Load(),
		DegradedStages:  e.degradedStages.Load(),
		PackedChunks:    e.packedChunks.Load(),
		TruncatedChunks: e.truncatedChunks.Load(),
	}, nil
}
