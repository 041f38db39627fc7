package rank

import "testing"

func TestFilterDiverseDropsNearDuplicates(t *testing.T) {
	// ~0.95 Jaccard: twenty shared words, one substitution.
	base := "vsam status 35 open failed dataset not found check dd statement catalog entry and verify the name spelling in jcl member"
	nearDup := "vsam status 35 open failed dataset not found check dd statement catalog entry and verify the name spelling in jcl step"

	candidates := []Candidate{
		makeCandidate("a", base, 0.9, nil),
		makeCandidate("b", nearDup, 0.85, nil),
	}

	got := FilterDiverse(candidates, 0.3, 10)
	if len(got) != 1 || got[0].Chunk.ID != "a" {
		t.Errorf("near-duplicate should be dropped, got %d candidates", len(got))
	}
}

func TestFilterDiverseFactorZeroKeepsAll(t *testing.T) {
	candidates := []Candidate{
		makeCandidate("a", "identical text", 0.9, nil),
		makeCandidate("b", "identical text", 0.8, nil),
	}

	got := FilterDiverse(candidates, 0, 10)
	if len(got) != 2 {
		t.Errorf("factor 0 should keep everything, got %d", len(got))
	}
}

func TestFilterDiverseKeepsDistinctContent(t *testing.T) {
	candidates := []Candidate{
		makeCandidate("a", "vsam status 35 file not found", 0.9, nil),
		makeCandidate("b", "cics transaction abend asra storage violation", 0.8, nil),
		makeCandidate("c", "db2 sqlcode -904 resource unavailable", 0.7, nil),
	}

	got := FilterDiverse(candidates, 0.5, 10)
	if len(got) != 3 {
		t.Errorf("distinct candidates should all survive, got %d", len(got))
	}
	// Rank order preserved.
	for i, id := range []string{"a", "b", "c"} {
		if got[i].Chunk.ID != id {
			t.Errorf("position %d = %q, want %q", i, got[i].Chunk.ID, id)
		}
	}
}

func TestFilterDiverseRespectsLimit(t *testing.T) {
	candidates := []Candidate{
		makeCandidate("a", "alpha bravo charlie", 0.9, nil),
		makeCandidate("b", "delta echo foxtrot", 0.8, nil),
		makeCandidate("c", "golf hotel india", 0.7, nil),
	}

	got := FilterDiverse(candidates, 0.3, 2)
	if len(got) != 2 {
		t.Errorf("limit 2 should cap output, got %d", len(got))
	}
}

func TestFilterDiverseSingleCandidate(t *testing.T) {
	candidates := []Candidate{makeCandidate("a", "only one", 0.9, nil)}
	got := FilterDiverse(candidates, 0.9, 10)
	if len(got) != 1 {
		t.Errorf("single candidate should pass through, got %d", len(got))
	}
}

func TestJaccard(t *testing.T) {
	a := wordSet("one two three four")
	b := wordSet("one two three five")

	got := jaccard(a, b)
	if got != 0.6 {
		t.Errorf("jaccard = %v, want 0.6", got)
	}

	if jaccard(wordSet(""), wordSet("")) != 1 {
		t.Error("two empty sets should be identical")
	}
	if jaccard(a, a) != 1 {
		t.Error("self jaccard should be 1")
	}
}
