// Package chunk splits source documents into overlapping windows for
// embedding, preferring sentence and line boundaries over hard cuts.
package chunk

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultSize is the default number of characters per chunk.
const DefaultSize = 1000

// DefaultOverlap is the default number of overlapping characters.
const DefaultOverlap = 200

// boundaryFraction is the trailing portion of a window searched for a
// sentence terminator or newline before falling back to a hard cut.
const boundaryFraction = 0.3

// Splitter splits text into overlapping chunks.
type Splitter struct {
	size    int
	overlap int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSize sets the chunk size in characters.
func WithSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.size = size
		}
	}
}

// WithOverlap sets the overlap between adjacent chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// New creates a Splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		size:    DefaultSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Overlap must leave forward progress on every window.
	if s.overlap >= s.size {
		s.overlap = s.size / 4
	}
	return s
}

// Split divides text into chunks of at most the configured size. When a
// window does not end at the text's end, the last 30% of the window is
// scanned backward for a sentence terminator or newline; the chunk breaks
// there if one is found, otherwise at the window boundary. Adjacent chunks
// share the configured overlap. Chunks that are empty after trimming are
// dropped.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= s.size {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{text}
		}
		return nil
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + s.size
		if end >= len(text) {
			end = len(text)
		} else {
			if bp := lastBoundary(text[start:end]); bp >= 0 {
				end = start + bp + 1
			}
			end = runeStart(text, end)
			if end <= start {
				_, w := utf8.DecodeRuneInString(text[start:])
				end = start + w
			}
		}

		piece := text[start:end]
		if strings.TrimSpace(piece) != "" {
			chunks = append(chunks, piece)
		}

		if end == len(text) {
			break
		}

		next := runeStart(text, end-s.overlap)
		if next <= start {
			// Guard against stalls when a boundary lands inside the overlap.
			_, w := utf8.DecodeRuneInString(text[start:])
			next = start + w
		}
		start = next
	}

	return chunks
}

// lastBoundary returns the index of the last sentence terminator or newline
// within the trailing boundaryFraction of window, or -1 if none is found.
func lastBoundary(window string) int {
	floor := int(float64(len(window)) * (1 - boundaryFraction))
	for i := len(window) - 1; i >= floor; i-- {
		switch window[i] {
		case '.', '!', '?', '\n':
			return i
		}
	}
	return -1
}

// runeStart moves i back to the nearest rune start so slicing never splits
// a multi-byte sequence.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// mainframeKeywords are domain terms promoted to tags when present in
// chunk content, mirroring how the knowledge-base classifies entries.
var mainframeKeywords = []string{
	"mainframe", "cobol", "jcl", "cics", "db2", "ims", "vsam",
	"rexx", "racf", "tso", "ispf", "sdsf", "idcams",
	"abend", "s0c4", "s0c7", "sqlcode", "batch",
}

// Tags extracts domain keyword tags from content. The result is sorted and
// free of duplicates.
func Tags(content string) []string {
	lower := strings.ToLower(content)

	seen := make(map[string]struct{})
	for _, kw := range mainframeKeywords {
		if strings.Contains(lower, kw) {
			seen[kw] = struct{}{}
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
