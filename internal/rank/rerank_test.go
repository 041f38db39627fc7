package rank

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/bankops/mfkb/internal/log"
	"github.com/bankops/mfkb/internal/vectorstore"
)

func fixedNow() time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
}

func newTestReranker() *Reranker {
	r := NewReranker(log.NewNop())
	r.now = fixedNow
	return r
}

func makeCandidate(id, text string, vectorScore float64, metadata map[string]string) Candidate {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return Candidate{
		Chunk: vectorstore.Chunk{ID: id, Text: text, Metadata: metadata},
		VectorScore: vectorScore,
	}
}

func TestRerankNoOpForSingleCandidate(t *testing.T) {
	r := newTestReranker()

	single := []Candidate{makeCandidate("a", "text", 0.9, nil)}
	got := r.Rerank("query", single)
	if len(got) != 1 || got[0].Chunk.ID != "a" {
		t.Errorf("Rerank() on single candidate should be a no-op")
	}
	if got := r.Rerank("query", nil); got != nil {
		t.Errorf("Rerank() on nil should return nil")
	}
}

func TestRerankPrefersRelevantAuthoritativeContent(t *testing.T) {
	r := newTestReranker()
	longEnough := strings.Repeat("troubleshooting detail ", 10)

	candidates := []Candidate{
		makeCandidate("stale", "unrelated cafeteria announcement "+longEnough, 0.80,
			map[string]string{vectorstore.MetaSourceType: "forum_post"}),
		makeCandidate("good", "VSAM status 35 file not found resolution "+longEnough, 0.80,
			map[string]string{
				vectorstore.MetaSourceType: "official_documentation",
				vectorstore.MetaTimestamp:  fixedNow().AddDate(0, -1, 0).Format(time.RFC3339),
			}),
	}

	got := r.Rerank("VSAM status 35 file not found", candidates)
	if got[0].Chunk.ID != "good" {
		t.Errorf("expected relevant authoritative candidate first, got %q", got[0].Chunk.ID)
	}
	if got[0].CombinedScore <= got[1].CombinedScore {
		t.Errorf("combined scores not descending: %v <= %v",
			got[0].CombinedScore, got[1].CombinedScore)
	}
	for _, name := range []string{SignalVectorSimilarity, SignalContentRelevance,
		SignalRecency, SignalAuthority, SignalLength} {
		if _, ok := got[0].RerankScores[name]; !ok {
			t.Errorf("missing rerank signal %q", name)
		}
	}
}

func TestRerankStableOnTies(t *testing.T) {
	r := newTestReranker()
	text := strings.Repeat("identical content for both candidates ", 5)

	candidates := []Candidate{
		makeCandidate("first", text, 0.7, nil),
		makeCandidate("second", text, 0.7, nil),
	}

	got := r.Rerank("content", candidates)
	if got[0].Chunk.ID != "first" || got[1].Chunk.ID != "second" {
		t.Errorf("tie should preserve input order, got %q, %q",
			got[0].Chunk.ID, got[1].Chunk.ID)
	}
}

func TestRerankDoesNotMutateInput(t *testing.T) {
	r := newTestReranker()

	candidates := []Candidate{
		makeCandidate("low", "nothing relevant here", 0.1, nil),
		makeCandidate("high", "query terms present", 0.99, nil),
	}
	got := r.Rerank("query terms", candidates)

	if candidates[0].Chunk.ID != "low" {
		t.Error("input slice was reordered")
	}
	if got[0].Chunk.ID != "high" {
		t.Errorf("expected high-signal candidate first, got %q", got[0].Chunk.ID)
	}
}

func TestContentRelevance(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		content string
		want    float64
	}{
		{"full match", "vsam status", "VSAM status 35 file not found", 1.0},
		{"half match", "vsam missing", "VSAM status 35", 0.5},
		{"no match", "cics abend", "database connection pool", 0.0},
		{"short terms ignored", "a an of", "anything", 0.0},
		{"substring of term", "stat", "status code returned", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contentRelevance(significantTerms(tt.query), tt.content)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("contentRelevance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecencyScore(t *testing.T) {
	r := newTestReranker()

	if got := r.recencyScore(""); got != 0.5 {
		t.Errorf("missing timestamp = %v, want 0.5", got)
	}
	if got := r.recencyScore("last tuesday"); got != 0.5 {
		t.Errorf("unparseable timestamp = %v, want 0.5", got)
	}

	today := r.recencyScore(fixedNow().Format(time.RFC3339))
	if math.Abs(today-1.0) > 1e-6 {
		t.Errorf("same-day recency = %v, want 1.0", today)
	}

	yearOld := r.recencyScore(fixedNow().AddDate(-1, 0, 0).Format(time.RFC3339))
	if math.Abs(yearOld-math.Exp(-1)) > 0.01 {
		t.Errorf("one-year recency = %v, want ~%v", yearOld, math.Exp(-1))
	}
}

func TestAuthorityScore(t *testing.T) {
	if got := authorityScore("official_documentation"); got != 1.0 {
		t.Errorf("official_documentation = %v, want 1.0", got)
	}
	if got := authorityScore("blog_comment"); got != defaultAuthority {
		t.Errorf("unknown source = %v, want %v", got, defaultAuthority)
	}
}

func TestLengthScore(t *testing.T) {
	if got := lengthScore(50); got != 0.3 {
		t.Errorf("short = %v, want 0.3", got)
	}
	if got := lengthScore(500); got != 1.0 {
		t.Errorf("medium = %v, want 1.0", got)
	}
	if got := lengthScore(3000); got != 0.7 {
		t.Errorf("long = %v, want 0.7", got)
	}
}

func TestRerankDoesNotSwallowFailures(t *testing.T) {
	// Containment belongs to the retrieval pipeline, which decides
	// between degrading and strict-mode failure.
	r := newTestReranker()
	r.now = func() time.Time { panic("clock unavailable") }

	defer func() {
		if recover() == nil {
			t.Fatal("expected the failure to reach the caller")
		}
	}()

	ts := fixedNow().Format(time.RFC3339)
	r.Rerank("query", []Candidate{
		makeCandidate("a", "first entry", 0.9, map[string]string{vectorstore.MetaTimestamp: ts}),
		makeCandidate("b", "second entry", 0.8, map[string]string{vectorstore.MetaTimestamp: ts}),
	})
}
