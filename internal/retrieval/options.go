package retrieval

import (
	"github.com/bankops/mfkb/internal/policy"
	"github.com/bankops/mfkb/internal/rank"
)

// Options control one Retrieve call.
type Options struct {
	// TopK is the maximum number of context chunks returned.
	TopK int

	// SimilarityThreshold drops candidates scoring below it.
	SimilarityThreshold float64

	// MaxContextLength is the packing budget in characters.
	MaxContextLength int

	// DiversityFactor enables near-duplicate filtering when > 0.
	DiversityFactor float64

	// Rerank enables the multi-signal reranking stage.
	Rerank bool

	// Filters restricts candidates to chunks whose metadata matches
	// every key exactly.
	Filters map[string]string

	// Metrics is the ordered list of similarity metrics for composite
	// scoring. Empty means cosine only.
	Metrics []rank.Metric

	// Strategy combines the per-metric scores.
	Strategy rank.Strategy

	// Strict turns refinement-stage failures into errors instead of
	// skipped stages.
	Strict bool

	// Policy drives the compliance gate, redaction, and regulatory
	// boost.
	Policy policy.Policy
}

// DefaultOptions returns the baseline used when a call passes nothing.
func DefaultOptions() Options {
	return Options{
		TopK:             5,
		MaxContextLength: 4000,
		Rerank:           true,
		Metrics:          []rank.Metric{rank.MetricCosine},
		Strategy:         rank.StrategyUniform,
	}
}

// validate rejects option combinations that cannot produce a meaningful
// result.
func (o Options) validate() error {
	if o.TopK <= 0 {
		return &ValidationError{Field: "topK", Reason: "must be positive"}
	}
	if o.SimilarityThreshold < 0 || o.SimilarityThreshold > 1 {
		return &ValidationError{Field: "similarityThreshold", Reason: "must be in [0,1]"}
	}
	if o.MaxContextLength <= 0 {
		return &ValidationError{Field: "maxContextLength", Reason: "must be positive"}
	}
	if o.DiversityFactor < 0 || o.DiversityFactor > 1 {
		return &ValidationError{Field: "diversityFactor", Reason: "must be in [0,1]"}
	}
	return nil
}

// Option adjusts Options for one call.
type Option func(*Options)

// WithTopK sets the result count cap.
func WithTopK(k int) Option { return func(o *Options) { o.TopK = k } }

// WithSimilarityThreshold sets the minimum candidate score.
func WithSimilarityThreshold(t float64) Option {
	return func(o *Options) { o.SimilarityThreshold = t }
}

// WithMaxContextLength sets the packing budget.
func WithMaxContextLength(n int) Option {
	return func(o *Options) { o.MaxContextLength = n }
}

// WithDiversityFactor enables near-duplicate filtering.
func WithDiversityFactor(f float64) Option {
	return func(o *Options) { o.DiversityFactor = f }
}

// WithRerank toggles the reranking stage.
func WithRerank(enabled bool) Option { return func(o *Options) { o.Rerank = enabled } }

// WithFilters sets metadata equality filters.
func WithFilters(filters map[string]string) Option {
	return func(o *Options) { o.Filters = filters }
}

// WithMetrics sets the similarity metrics for composite scoring.
func WithMetrics(metrics ...rank.Metric) Option {
	return func(o *Options) { o.Metrics = metrics }
}

// WithStrategy sets the metric weighting strategy.
func WithStrategy(s rank.Strategy) Option { return func(o *Options) { o.Strategy = s } }

// WithStrict makes refinement failures fatal.
func WithStrict() Option { return func(o *Options) { o.Strict = true } }

// WithPolicy sets the compliance policy for this call.
func WithPolicy(p policy.Policy) Option { return func(o *Options) { o.Policy = p } }
