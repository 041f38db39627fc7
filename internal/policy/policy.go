// Package policy applies compliance gating and redaction to retrieval
// candidates before they reach a prompt: classification-based filtering,
// sensitive-pattern redaction, and optional boosting of regulatory content.
package policy

import (
	"sort"
	"strings"

	"github.com/bankops/mfkb/internal/rank"
	"github.com/bankops/mfkb/internal/vectorstore"
)

// Classification values recognized by the gate.
const (
	ClassificationPublic       = "public"
	ClassificationInternal     = "internal"
	ClassificationConfidential = "confidential"
	ClassificationRestricted   = "restricted"
)

// Policy holds the compliance flags for one retrieval call.
type Policy struct {
	// AllowRestricted permits chunks classified "restricted".
	AllowRestricted bool

	// AllowConfidential permits chunks classified "confidential".
	AllowConfidential bool

	// Anonymize rewrites surviving text with the redaction rules.
	Anonymize bool

	// PrioritizeRegulatory boosts candidates mentioning regulatory
	// keywords and re-sorts.
	PrioritizeRegulatory bool
}

// regulatoryKeywords earn a score boost under PrioritizeRegulatory.
var regulatoryKeywords = []string{
	"regulation", "compliance", "kyc", "aml", "gdpr", "pci", "sox", "basel",
}

// regulatoryBoost is the increment per matched keyword.
const regulatoryBoost = 0.1

// Apply runs the classification gate, then redaction, then the optional
// regulatory boost. Both gate and redaction are pure functions of the
// policy flags; Apply never errors, it only removes or rewrites.
func Apply(candidates []rank.Candidate, p Policy) []rank.Candidate {
	out := make([]rank.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !p.allows(c.Chunk.Metadata[vectorstore.MetaClassification]) {
			continue
		}
		if p.Anonymize {
			c.Chunk.Text = Redact(c.Chunk.Text)
		}
		out = append(out, c)
	}

	if p.PrioritizeRegulatory {
		out = boostRegulatory(out)
	}
	return out
}

// allows reports whether the classification passes the gate. Unknown
// classifications pass; only the two sensitive tiers are gated.
func (p Policy) allows(classification string) bool {
	switch classification {
	case ClassificationRestricted:
		return p.AllowRestricted
	case ClassificationConfidential:
		return p.AllowConfidential
	default:
		return true
	}
}

// boostRegulatory adds a fixed increment per matched keyword and re-sorts
// by the adjusted score.
func boostRegulatory(candidates []rank.Candidate) []rank.Candidate {
	for i := range candidates {
		lower := strings.ToLower(candidates[i].Chunk.Text)
		for _, kw := range regulatoryKeywords {
			if strings.Contains(lower, kw) {
				candidates[i].CombinedScore += regulatoryBoost
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CombinedScore > candidates[j].CombinedScore
	})
	return candidates
}
