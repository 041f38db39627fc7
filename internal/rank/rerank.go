package rank

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bankops/mfkb/internal/vectorstore"
)

// Signal names recorded in Candidate.RerankScores.
const (
	SignalVectorSimilarity = "vector_similarity"
	SignalContentRelevance = "content_relevance"
	SignalRecency          = "recency"
	SignalAuthority        = "authority"
	SignalLength           = "length"
)

// signalWeights are the fixed combination weights. They sum to 1.
var signalWeights = map[string]float64{
	SignalVectorSimilarity: 0.40,
	SignalContentRelevance: 0.30,
	SignalRecency:          0.15,
	SignalAuthority:        0.10,
	SignalLength:           0.05,
}

// authorityBySourceType maps metadata source_type to a trust score.
var authorityBySourceType = map[string]float64{
	"official_documentation": 1.0,
	"incident_report":        0.9,
	"technical_spec":         0.9,
	"kb_article":             0.8,
	"user_guide":             0.7,
	"forum_post":             0.6,
}

const defaultAuthority = 0.5

// recencyHalfLifeDays controls the exponential recency decay.
const recencyHalfLifeDays = 365.0

// Reranker recomputes a composite relevance score per candidate from
// multiple signals and re-sorts. It is a quality refinement: any internal
// failure falls back to the pre-rerank ordering instead of failing the
// retrieval.
type Reranker struct {
	logger *slog.Logger
	now    func() time.Time // injectable for tests
}

// NewReranker creates a Reranker.
func NewReranker(logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{logger: logger, now: time.Now}
}

// Rerank scores each candidate on five normalized signals and stable-sorts
// by the weighted combination, descending. No-op for one or zero
// candidates. Failures are the caller's to contain; the retrieval engine
// degrades or surfaces them per its strict mode.
func (r *Reranker) Rerank(query string, candidates []Candidate) []Candidate {
	if len(candidates) <= 1 {
		return candidates
	}

	queryTerms := significantTerms(query)

	reranked := make([]Candidate, len(candidates))
	copy(reranked, candidates)

	for i := range reranked {
		c := &reranked[i]
		signals := map[string]float64{
			SignalVectorSimilarity: clamp(c.VectorScore, 0, 1),
			SignalContentRelevance: contentRelevance(queryTerms, c.Chunk.Text),
			SignalRecency:          r.recencyScore(c.Chunk.Metadata[vectorstore.MetaTimestamp]),
			SignalAuthority:        authorityScore(c.Chunk.Metadata[vectorstore.MetaSourceType]),
			SignalLength:           lengthScore(len(c.Chunk.Text)),
		}

		var combined float64
		for name, value := range signals {
			combined += signalWeights[name] * value
		}
		c.RerankScores = signals
		c.CombinedScore = combined
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].CombinedScore > reranked[j].CombinedScore
	})
	return reranked
}

// significantTerms lowercases and keeps terms longer than two characters.
func significantTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if len(t) > 2 {
			terms = append(terms, t)
		}
	}
	return terms
}

// contentRelevance is the fraction of query terms appearing as substrings
// of any content term.
func contentRelevance(queryTerms []string, content string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	contentTerms := strings.Fields(strings.ToLower(content))
	matched := 0
	for _, qt := range queryTerms {
		for _, ct := range contentTerms {
			if strings.Contains(ct, qt) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// recencyScore decays exponentially with document age; 0.5 when the
// timestamp is absent or unparseable.
func (r *Reranker) recencyScore(timestamp string) float64 {
	if timestamp == "" {
		return 0.5
	}
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		r.logger.Debug("unparseable chunk timestamp", "timestamp", timestamp)
		return 0.5
	}

	days := r.now().Sub(ts).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / recencyHalfLifeDays)
}

func authorityScore(sourceType string) float64 {
	if score, ok := authorityBySourceType[sourceType]; ok {
		return score
	}
	return defaultAuthority
}

// lengthScore penalizes fragments (<100 chars) most and very long passages
// mildly.
func lengthScore(n int) float64 {
	switch {
	case n < 100:
		return 0.3
	case n > 2000:
		return 0.7
	default:
		return 1.0
	}
}
