// Package extract derives document metadata from parsed paper text.
package extract

import (
	"context"
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/bananya-ml/arxiv-feed/internal/llm"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
)

type Metadata struct {
	Conclusion string
	RefCount   int
}

const conclusionSystem = "You extract the conclusions of research papers in astronomy and astrophysics."

const conclusionPrompt = `Extract the main conclusions or results of the research paper below.

Return one or more clear paragraphs that state the findings and their implications as the paper presents them.
Do not add a heading such as "Conclusion" or "Results". Condense long findings without changing their
scientific meaning. Leave out acknowledgments, funding statements and unrelated discussion.

Research paper:
`

type Extractor struct {
	gen llm.Generator
	log *logging.Logger
}

func New(gen llm.Generator, log *logging.Logger) *Extractor {
	if log == nil {
		log = logging.Nop()
	}
	return &Extractor{gen: gen, log: log}
}

// Extract never fails: a generation error leaves Conclusion empty and the
// reference count is computed locally regardless.
func (e *Extractor) Extract(ctx context.Context, text string) Metadata {
	md := Metadata{RefCount: CountReferences(text)}
	conclusion, err := e.gen.Generate(ctx, conclusionSystem, conclusionPrompt+text)
	if err != nil {
		e.log.Warn("conclusion extraction failed", "error", err)
		return md
	}
	md.Conclusion = conclusion
	return md
}

var (
	numericCitation = regexp.MustCompile(`\[\d+\]`)
	authorCitation  = regexp.MustCompile(`\([\p{L}\p{N}_]+\s*(?:et\s+al\.?)?\s*,\s*\d{4}[\p{L}\p{N}_]?\)`)
	yearCandidate   = regexp.MustCompile(`20\d{2}`)
)

// CountReferences estimates how many works a paper cites: the largest number of
// distinct matches among numeric markers like "[12]", author-year markers like
// "(Smith et al., 2020)" and standalone 20xx years.
func CountReferences(text string) int {
	best := 0
	for _, set := range []map[string]struct{}{
		distinct(numericCitation.FindAllString(text, -1)),
		distinct(authorCitation.FindAllString(text, -1)),
		distinct(standaloneYears(text)),
	} {
		best = max(best, len(set))
	}
	return best
}

// standaloneYears finds 20xx tokens, optionally followed by one lowercase letter,
// that are not preceded by a word character and not followed by a digit.
func standaloneYears(text string) []string {
	var out []string
	for _, loc := range yearCandidate.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:start])
			if isWordRune(prev) {
				continue
			}
		}
		next, size := utf8.DecodeRuneInString(text[end:])
		switch {
		case size == 0:
		case unicode.IsDigit(next):
			continue
		case next >= 'a' && next <= 'z':
			after, asize := utf8.DecodeRuneInString(text[end+size:])
			if asize == 0 || !unicode.IsDigit(after) {
				end += size
			}
		}
		out = append(out, text[start:end])
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func distinct(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
