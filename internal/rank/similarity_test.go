package rank

import (
	"errors"
	"math"
	"testing"
)

var allMetrics = []Metric{MetricCosine, MetricEuclidean, MetricManhattan, MetricDotProduct}

func TestScoreSelfSimilarity(t *testing.T) {
	a := []float32{0.3, -0.5, 0.8, 0.1}

	got, err := Score(a, a, MetricCosine)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("cosine self-similarity = %v, want 1.0", got)
	}
}

func TestScoreSymmetry(t *testing.T) {
	a := []float32{0.2, 0.7, -0.1}
	b := []float32{-0.4, 0.5, 0.9}

	for _, m := range allMetrics {
		ab, err := Score(a, b, m)
		if err != nil {
			t.Fatalf("Score(a,b,%s) error: %v", m, err)
		}
		ba, err := Score(b, a, m)
		if err != nil {
			t.Fatalf("Score(b,a,%s) error: %v", m, err)
		}
		if math.Abs(ab-ba) > 1e-12 {
			t.Errorf("metric %s not symmetric: %v vs %v", m, ab, ba)
		}
	}
}

func TestScoreFormulas(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	tests := []struct {
		metric Metric
		want   float64
	}{
		{MetricCosine, 0},
		{MetricEuclidean, 1 / (1 + math.Sqrt2)},
		{MetricManhattan, 1.0 / 3},
		{MetricDotProduct, 0.5},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			got, err := Score(a, b, tt.metric)
			if err != nil {
				t.Fatalf("Score() error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreZeroNormCosine(t *testing.T) {
	got, err := Score([]float32{0, 0}, []float32{1, 1}, MetricCosine)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if got != 0 {
		t.Errorf("cosine with zero norm = %v, want 0", got)
	}
}

func TestScoreDimensionMismatch(t *testing.T) {
	_, err := Score([]float32{1}, []float32{1, 2}, MetricCosine)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Score() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestScoreUnknownMetric(t *testing.T) {
	if _, err := Score([]float32{1}, []float32{1}, Metric("chebyshev")); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestScoreDotProductClamped(t *testing.T) {
	got, err := Score([]float32{2, 0}, []float32{2, 0}, MetricDotProduct)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if got != 1.0 {
		t.Errorf("dot product should clamp to 1.0, got %v", got)
	}
}

func TestCompositeUniform(t *testing.T) {
	a := []float32{1, 0}

	got, err := Composite(a, a, []Metric{MetricCosine, MetricDotProduct}, StrategyUniform)
	if err != nil {
		t.Fatalf("Composite() error: %v", err)
	}
	// cosine 1.0, dot clamp((1+1)/2)=1.0 -> mean 1.0
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Composite(uniform) = %v, want 1.0", got)
	}
}

func TestCompositeBest(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	got, err := Composite(a, b, []Metric{MetricCosine, MetricDotProduct}, StrategyBest)
	if err != nil {
		t.Fatalf("Composite() error: %v", err)
	}
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Composite(best) = %v, want 0.5 (dot product)", got)
	}
}

func TestCompositeAdaptive(t *testing.T) {
	a := []float32{1, 0}

	// Identical vectors: all metrics agree near 1.0, variance low -> mean.
	agree, err := Composite(a, a, allMetrics, StrategyAdaptive)
	if err != nil {
		t.Fatalf("Composite() error: %v", err)
	}
	if agree < 0.9 {
		t.Errorf("Composite(adaptive, agreeing) = %v, want near 1.0", agree)
	}

	// Orthogonal vectors: cosine 0 vs dot 0.5 etc, variance check decides.
	b := []float32{0, 1}
	scores := make([]float64, len(allMetrics))
	for i, m := range allMetrics {
		scores[i], _ = Score(a, b, m)
	}
	want := mean(scores)
	if populationVariance(scores) >= adaptiveVarianceThreshold {
		want = maxScore(scores)
	}

	diverge, err := Composite(a, b, allMetrics, StrategyAdaptive)
	if err != nil {
		t.Fatalf("Composite() error: %v", err)
	}
	if math.Abs(diverge-want) > 1e-9 {
		t.Errorf("Composite(adaptive, diverging) = %v, want %v", diverge, want)
	}
}

func TestCompositeCosineHeavy(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	got, err := Composite(a, b, []Metric{MetricCosine, MetricDotProduct}, StrategyCosineHeavy)
	if err != nil {
		t.Fatalf("Composite() error: %v", err)
	}
	// cosine 0 (weight .6), dot 0.5 (weight .05), renormalized over .65.
	want := (0.6*0 + 0.05*0.5) / 0.65
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Composite(cosine_heavy) = %v, want %v", got, want)
	}
}

func TestCompositeDefaultsToCosine(t *testing.T) {
	a := []float32{1, 0}
	got, err := Composite(a, a, nil, StrategyUniform)
	if err != nil {
		t.Fatalf("Composite() error: %v", err)
	}
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Composite(no metrics) = %v, want cosine 1.0", got)
	}
}

func TestCompositeDimensionMismatch(t *testing.T) {
	_, err := Composite([]float32{1}, []float32{1, 2}, allMetrics, StrategyUniform)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Composite() error = %v, want ErrDimensionMismatch", err)
	}
}
