// Package chunker splits extracted paper text into overlapping, size bounded chunks.
package chunker

import "strings"

const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// DefaultSeparators are tried in order when looking for a chunk boundary.
// A hard cut at the size limit is the final fallback.
var DefaultSeparators = []string{"\n\n", "\n", " "}

// Chunk is a span of the source text. Start and End are rune offsets.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

type Splitter struct {
	size       int
	overlap    int
	separators [][]rune
}

func New(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	seps := make([][]rune, 0, len(DefaultSeparators))
	for _, s := range DefaultSeparators {
		seps = append(seps, []rune(s))
	}
	return &Splitter{size: size, overlap: overlap, separators: seps}
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Split cuts text into chunks of at most Size runes. Every chunk after the first
// starts with the last Overlap runes of its predecessor. The same input always
// yields the same chunks.
func (s *Splitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)

	var chunks []Chunk
	start := 0
	for {
		end := n
		if start+s.size < n {
			end = s.boundary(runes, start)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == n {
			return chunks
		}
		start = end - s.overlap
	}
}

// boundary picks the end of the chunk starting at start. The break must leave
// the next chunk starting after start, so separators are only searched past
// start+overlap.
func (s *Splitter) boundary(runes []rune, start int) int {
	limit := start + s.size
	floor := start + s.overlap
	for _, sep := range s.separators {
		for i := limit - len(sep); i > floor-len(sep) && i >= start; i-- {
			if hasRunes(runes[i:], sep) && i+len(sep) > floor {
				return i + len(sep)
			}
		}
	}
	return limit
}

func hasRunes(runes, prefix []rune) bool {
	if len(runes) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if runes[i] != r {
			return false
		}
	}
	return true
}
