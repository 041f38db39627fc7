// Package rank scores, re-orders, and de-duplicates retrieval candidates.
//
// It provides the similarity kernels and composite weighting strategies used
// to turn raw vector distances into a single relevance number, the
// multi-signal reranker, and the lexical diversity filter.
package rank

import (
	"errors"
	"fmt"
	"math"

	"github.com/bankops/mfkb/internal/vectorstore"
)

// ErrDimensionMismatch indicates model/version drift between stored and
// query vectors. Surfaced loudly, never silently coerced.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Metric identifies a similarity metric.
type Metric string

// Supported similarity metrics.
const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricManhattan  Metric = "manhattan"
	MetricDotProduct Metric = "dot_product"
)

// Strategy selects how multiple metric scores combine into one.
type Strategy string

// Supported weighting strategies.
const (
	// StrategyUniform takes the arithmetic mean across metrics.
	StrategyUniform Strategy = "uniform"

	// StrategyCosineHeavy uses fixed weights favoring cosine similarity.
	StrategyCosineHeavy Strategy = "cosine_heavy"

	// StrategyAdaptive uses the mean when metrics agree (low variance)
	// and the max when they diverge.
	StrategyAdaptive Strategy = "adaptive"

	// StrategyBest takes the max across metrics.
	StrategyBest Strategy = "best"
)

// Candidate is the per-query pipeline representation of a retrievable
// chunk. Never persisted; it exists only for the duration of one call.
type Candidate struct {
	Chunk         vectorstore.Chunk
	Vector        []float32
	VectorScore   float64
	RerankScores  map[string]float64
	CombinedScore float64
	Truncated     bool
}

// cosineHeavyWeights are the fixed weights for StrategyCosineHeavy.
var cosineHeavyWeights = map[Metric]float64{
	MetricCosine:     0.60,
	MetricEuclidean:  0.25,
	MetricManhattan:  0.10,
	MetricDotProduct: 0.05,
}

// adaptiveVarianceThreshold separates "metrics agree" from "metrics
// diverge" in StrategyAdaptive.
const adaptiveVarianceThreshold = 0.05

// Score computes the similarity of a and b under the given metric. All
// metrics map to [0,1] except cosine, which can go negative for opposed
// vectors.
func Score(a, b []float32, metric Metric) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	switch metric {
	case MetricCosine:
		return cosineSimilarity(a, b), nil
	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum)), nil
	case MetricManhattan:
		var sum float64
		for i := range a {
			sum += math.Abs(float64(a[i]) - float64(b[i]))
		}
		return 1 / (1 + sum), nil
	case MetricDotProduct:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return clamp((dot+1)/2, 0, 1), nil
	default:
		return 0, fmt.Errorf("unknown similarity metric: %q", metric)
	}
}

// Composite scores a against b under every requested metric and combines
// the results per the strategy. An empty metric list defaults to cosine.
func Composite(a, b []float32, metrics []Metric, strategy Strategy) (float64, error) {
	if len(metrics) == 0 {
		metrics = []Metric{MetricCosine}
	}

	scores := make([]float64, len(metrics))
	for i, m := range metrics {
		s, err := Score(a, b, m)
		if err != nil {
			return 0, err
		}
		scores[i] = s
	}

	if len(scores) == 1 {
		return scores[0], nil
	}

	switch strategy {
	case StrategyCosineHeavy:
		return weighted(metrics, scores), nil
	case StrategyAdaptive:
		if populationVariance(scores) < adaptiveVarianceThreshold {
			return mean(scores), nil
		}
		return maxScore(scores), nil
	case StrategyBest:
		return maxScore(scores), nil
	case StrategyUniform:
		return mean(scores), nil
	default:
		return mean(scores), nil
	}
}

// weighted applies the cosine-heavy weight table to the requested metrics.
// Metrics without a fixed weight share the leftover equally; the result is
// renormalized over the requested subset so weights always sum to 1.
func weighted(metrics []Metric, scores []float64) float64 {
	var fixedTotal float64
	var unlisted int
	for _, m := range metrics {
		if w, ok := cosineHeavyWeights[m]; ok {
			fixedTotal += w
		} else {
			unlisted++
		}
	}

	remainder := 1 - fixedTotal
	if remainder < 0 {
		remainder = 0
	}

	var sum, total float64
	for i, m := range metrics {
		w, ok := cosineHeavyWeights[m]
		if !ok {
			w = remainder / float64(unlisted)
		}
		sum += w * scores[i]
		total += w
	}
	if total == 0 {
		return mean(scores)
	}
	return sum / total
}

func cosineSimilarity(a, b []float32) float64 {
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

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxScore(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func populationVariance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mu := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return sum / float64(len(xs))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
