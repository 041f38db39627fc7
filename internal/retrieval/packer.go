package retrieval

import (
	"unicode/utf8"

	"github.com/bankops/mfkb/internal/rank"
)

// minUsefulBudget is the smallest remaining budget worth a truncated
// chunk. Below it the packer stops instead of emitting a fragment.
const minUsefulBudget = 100

// ContextChunk is one packed entry of the final context.
type ContextChunk struct {
	ID        string
	ParentID  string
	Content   string
	Score     float64
	Metadata  map[string]string
	Truncated bool
}

// pack fills the character budget greedily in rank order. A candidate that
// does not fit whole is truncated with an ellipsis when the remaining
// budget exceeds minUsefulBudget; either way packing stops at the first
// candidate that does not fit. Order is never changed and the budget never
// exceeded.
func pack(candidates []rank.Candidate, maxLength int) []ContextChunk {
	out := make([]ContextChunk, 0, len(candidates))
	remaining := maxLength

	for _, c := range candidates {
		text := c.Chunk.Text
		if len(text) <= remaining {
			out = append(out, contextChunk(c, text, false))
			remaining -= len(text)
			continue
		}
		if remaining > minUsefulBudget {
			cut := remaining - 3
			// Never split a multi-byte rune.
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			out = append(out, contextChunk(c, text[:cut]+"...", true))
		}
		break
	}
	return out
}

func contextChunk(c rank.Candidate, content string, truncated bool) ContextChunk {
	return ContextChunk{
		ID:        c.Chunk.ID,
		ParentID:  c.Chunk.ParentID,
		Content:   content,
		Score:     c.CombinedScore,
		Metadata:  c.Chunk.Metadata,
		Truncated: truncated,
	}
}
