// Package summarize generates the summary and insights stored for each paper.
package summarize

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/bananya-ml/arxiv-feed/internal/chunker"
	"github.com/bananya-ml/arxiv-feed/internal/llm"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
)

const (
	SummaryFailed  = "Error generating summary"
	InsightsFailed = "Error generating insights"
)

const system = "You are a research assistant who reads scientific papers and writes for researchers in related fields."

const summaryPrompt = `Write a comprehensive summary of the scientific paper below, structured as:
1. Main objective and motivation
2. Key methods and approaches
3. Principal findings and results
4. Significance and implications

Keep it technical but accessible to researchers in related fields.

Paper:
`

const insightsPrompt = `For the scientific paper below:
- Summarize the work of the author(s) in one concise sentence.
- List the key insights and lessons learned.
- Ask 3-5 questions you would put to the authors about their work.
- Suggest 3-5 related topics or future research directions.
- If applicable, list at least 5 relevant references from the field.
If the last sentence of the paper is cut off, ignore it.

Paper:
`

const chunkPrompt = `Summarize this part of a longer document in 2-4 sentences. Keep the core themes and the
context later parts may depend on, drop minor details and avoid repetition.

Document part:
`

// Result holds generated text; failed generations carry the placeholder text.
type Result struct {
	Summary  string
	Insights string
}

type Config struct {
	// Recursive condenses long papers chunk by chunk before the final summary.
	Recursive bool
	// ChunkSize and ChunkOverlap (runes) apply to recursive condensing.
	ChunkSize    int
	ChunkOverlap int
	MaxRounds    int
}

type Summarizer struct {
	gen      llm.Generator
	log      *logging.Logger
	cfg      Config
	splitter *chunker.Splitter
}

func New(gen llm.Generator, cfg Config, log *logging.Logger) *Summarizer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4000
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 4
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Summarizer{gen: gen, log: log, cfg: cfg, splitter: chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)}
}

// Summarize runs the summary and insights generations concurrently. It never
// fails; each failed generation is replaced by its placeholder.
func (s *Summarizer) Summarize(ctx context.Context, text string) Result {
	var res Result
	var g errgroup.Group
	g.Go(func() error {
		res.Summary = s.summary(ctx, text)
		return nil
	})
	g.Go(func() error {
		out, err := s.gen.Generate(ctx, system, insightsPrompt+text)
		if err != nil {
			s.log.Warn("insight generation failed", "error", err)
			out = InsightsFailed
		}
		res.Insights = out
		return nil
	})
	_ = g.Wait()
	return res
}

func (s *Summarizer) summary(ctx context.Context, text string) string {
	if s.cfg.Recursive {
		text = s.condense(ctx, text)
	}
	out, err := s.gen.Generate(ctx, system, summaryPrompt+text)
	if err != nil {
		s.log.Warn("summary generation failed", "error", err)
		return SummaryFailed
	}
	return out
}

// condense replaces text by the joined summaries of its chunks until it fits
// in one chunk, stops shrinking or MaxRounds is reached.
func (s *Summarizer) condense(ctx context.Context, text string) string {
	for round := 0; round < s.cfg.MaxRounds && utf8.RuneCountInString(text) > s.cfg.ChunkSize; round++ {
		chunks := s.splitter.Split(text)
		parts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			out, err := s.gen.Generate(ctx, system, chunkPrompt+c.Text)
			if err != nil {
				s.log.Warn("chunk summarization failed", "round", round, "chunk", c.Index, "error", err)
				continue
			}
			parts = append(parts, out)
		}
		next := strings.Join(parts, "\n\n")
		if next == "" || utf8.RuneCountInString(next) >= utf8.RuneCountInString(text) {
			break
		}
		text = next
	}
	return text
}
