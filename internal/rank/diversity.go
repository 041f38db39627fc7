package rank

import "strings"

// FilterDiverse greedily removes near-duplicate candidates. The top-ranked
// candidate is always kept; each subsequent candidate survives only if its
// Jaccard word-set similarity to every kept candidate is at most 1-factor.
// Selection stops once limit candidates are kept (limit <= 0 means no
// limit). Rank-first and order-dependent rather than globally optimal,
// keeping the cost at O(n*k).
func FilterDiverse(candidates []Candidate, factor float64, limit int) []Candidate {
	if factor <= 0 || len(candidates) <= 1 {
		if limit > 0 && len(candidates) > limit {
			return candidates[:limit]
		}
		return candidates
	}

	threshold := 1 - factor

	kept := []Candidate{candidates[0]}
	keptSets := []map[string]struct{}{wordSet(candidates[0].Chunk.Text)}

	for _, c := range candidates[1:] {
		if limit > 0 && len(kept) >= limit {
			break
		}

		set := wordSet(c.Chunk.Text)
		diverse := true
		for _, ks := range keptSets {
			if jaccard(set, ks) > threshold {
				diverse = false
				break
			}
		}
		if diverse {
			kept = append(kept, c)
			keptSets = append(keptSets, set)
		}
	}
	return kept
}

// wordSet tokenizes text into a lowercased whitespace-delimited word set.
func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard computes intersection-over-union; two empty sets count as
// identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}

	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
