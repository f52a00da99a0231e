// Package rag answers questions from indexed paper chunks.
package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bananya-ml/arxiv-feed/internal/apperr"
	"github.com/bananya-ml/arxiv-feed/internal/embedding"
	"github.com/bananya-ml/arxiv-feed/internal/index"
	"github.com/bananya-ml/arxiv-feed/internal/llm"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
)

const (
	MaxQueryLength = 500
	DefaultTopK    = 5
	MaxTopK        = 10
)

type Searcher interface {
	Query(ctx context.Context, embedding []float32, topK int, docID string) ([]index.Match, error)
}

type Request struct {
	Query    string `json:"query"`
	PaperURL string `json:"paper_url,omitempty"`
	// TopK of zero means DefaultTopK.
	TopK int `json:"top_k,omitempty"`
}

type Response struct {
	SimilarChunks []index.Match `json:"similar_chunks"`
	LLMResponse   string        `json:"llm_response"`
}

type Engine struct {
	embedder  embedding.Embedder
	searcher  Searcher
	generator llm.Generator
	log       *logging.Logger
}

func New(embedder embedding.Embedder, searcher Searcher, generator llm.Generator, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{embedder: embedder, searcher: searcher, generator: generator, log: log}
}

func (r *Request) validate() error {
	n := utf8.RuneCountInString(r.Query)
	if strings.TrimSpace(r.Query) == "" || n > MaxQueryLength {
		return apperr.BadRequest("query must be between 1 and %d characters", MaxQueryLength)
	}
	if r.TopK == 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK < 1 || r.TopK > MaxTopK {
		return apperr.BadRequest("top_k must be between 1 and %d", MaxTopK)
	}
	return nil
}

// Answer retrieves the TopK chunks closest to the query, optionally limited to
// one paper, and asks the generator for an answer grounded in them.
func (e *Engine) Answer(ctx context.Context, req Request) (Response, error) {
	if err := req.validate(); err != nil {
		return Response{}, err
	}
	log := e.log.With("paper_url", req.PaperURL, "top_k", req.TopK)

	vecs, err := e.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		log.Error("embedding query failed", "error", err)
		return Response{}, apperr.Internal(err, "Failed to embed query")
	}
	if len(vecs) != 1 {
		return Response{}, apperr.Internal(fmt.Errorf("embedder returned %d vectors", len(vecs)), "Failed to embed query")
	}

	docID := ""
	if req.PaperURL != "" {
		docID = index.DocID(req.PaperURL)
	}
	matches, err := e.searcher.Query(ctx, vecs[0], req.TopK, docID)
	if err != nil {
		log.Error("index query failed", "error", err)
		return Response{}, apperr.Internal(err, "Failed to search index")
	}
	if matches == nil {
		matches = []index.Match{}
	}

	answer, err := e.generator.Generate(ctx, answerSystem, answerPrompt(req.Query, BuildContext(matches)))
	if err != nil {
		log.Error("generating answer failed", "error", err, "chunks", len(matches))
		return Response{}, apperr.Internal(err, "Failed to generate response")
	}
	log.Info("answered query", "chunks", len(matches))
	return Response{SimilarChunks: matches, LLMResponse: answer}, nil
}

// BuildContext joins matches in rank order, each prefixed with its source link.
func BuildContext(matches []index.Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, "["+m.PaperURL+"] "+m.Text)
	}
	return strings.Join(parts, "\n\n")
}

const answerSystem = "You answer questions about research papers using only the excerpts you are given."

func answerPrompt(query, context string) string {
	if context == "" {
		context = "(no relevant excerpts were found)"
	}
	return fmt.Sprintf(`Provide a comprehensive and accurate response to the user's query based on the context from research papers below.

- Directly address the query.
- Use information only from the provided context. If the context does not answer the query, say so.
- Keep an academic tone.
- Cite the paper URL shown in brackets before each excerpt when you use it, e.g. "According to [URL], ...".

Query: %q

Context from relevant papers:
%s
`, query, context)
}
