package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananya-ml/arxiv-feed/internal/apperr"
	"github.com/bananya-ml/arxiv-feed/internal/embedding"
	"github.com/bananya-ml/arxiv-feed/internal/index"
)

type recordingGenerator struct {
	prompt string
	calls  int
	err    error
}

func (g *recordingGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	g.calls++
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return "answer", nil
}

const (
	paperA = "http://arxiv.org/abs/2405.00001v1"
	paperB = "http://arxiv.org/abs/2405.00002v1"
)

func newEngine(t *testing.T) (*Engine, *recordingGenerator) {
	t.Helper()
	ctx := context.Background()
	emb := embedding.NewHashing(128)
	texts := []struct{ url, text string }{
		{paperA, "thermal storage in phase change materials"},
		{paperA, "latent heat storage efficiency"},
		{paperA, "stellar rotation periods from light curves"},
		{paperB, "thermal storage for industrial applications"},
		{paperB, "magnetic activity cycles of cool stars"},
	}
	batch := make([]string, len(texts))
	for i, tx := range texts {
		batch[i] = tx.text
	}
	vecs, err := emb.Embed(ctx, batch)
	require.NoError(t, err)

	idx := index.NewMemory()
	entries := make([]index.Entry, len(texts))
	for i, tx := range texts {
		entries[i] = index.Entry{ID: tx.text, Embedding: vecs[i], Text: tx.text, DocID: index.DocID(tx.url), PaperURL: tx.url}
	}
	require.NoError(t, idx.Add(ctx, entries))

	gen := &recordingGenerator{}
	return New(emb, idx, gen, nil), gen
}

func TestAnswerRanksAcrossPapers(t *testing.T) {
	engine, gen := newEngine(t)

	resp, err := engine.Answer(context.Background(), Request{Query: "thermal storage", TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.LLMResponse)
	require.LessOrEqual(t, len(resp.SimilarChunks), 3)
	require.NotEmpty(t, resp.SimilarChunks)
	for i, m := range resp.SimilarChunks {
		assert.Contains(t, []string{paperA, paperB}, m.PaperURL)
		if i > 0 {
			assert.LessOrEqual(t, resp.SimilarChunks[i-1].Distance, m.Distance)
		}
	}
	assert.Contains(t, resp.SimilarChunks[0].Text, "thermal storage")
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.prompt, "["+resp.SimilarChunks[0].PaperURL+"] "+resp.SimilarChunks[0].Text)
	assert.Contains(t, gen.prompt, `"thermal storage"`)
}

func TestAnswerScopesToPaper(t *testing.T) {
	engine, _ := newEngine(t)

	resp, err := engine.Answer(context.Background(), Request{Query: "thermal storage", PaperURL: paperB, TopK: 10})
	require.NoError(t, err)
	require.Len(t, resp.SimilarChunks, 2)
	for _, m := range resp.SimilarChunks {
		assert.Equal(t, paperB, m.PaperURL)
		assert.Equal(t, index.DocID(paperB), m.DocID)
	}
}

func TestAnswerDefaultsTopK(t *testing.T) {
	engine, _ := newEngine(t)

	resp, err := engine.Answer(context.Background(), Request{Query: "stars"})
	require.NoError(t, err)
	assert.Len(t, resp.SimilarChunks, DefaultTopK)
}

func TestAnswerUnknownPaperStillAsksGenerator(t *testing.T) {
	engine, gen := newEngine(t)

	resp, err := engine.Answer(context.Background(), Request{Query: "stars", PaperURL: "http://arxiv.org/abs/missing"})
	require.NoError(t, err)
	assert.NotNil(t, resp.SimilarChunks)
	assert.Empty(t, resp.SimilarChunks)
	assert.Contains(t, gen.prompt, "no relevant excerpts")
}

func TestAnswerValidation(t *testing.T) {
	engine, gen := newEngine(t)
	cases := []Request{
		{Query: ""},
		{Query: "   "},
		{Query: strings.Repeat("a", MaxQueryLength+1)},
		{Query: "ok", TopK: 11},
		{Query: "ok", TopK: -1},
	}
	for _, req := range cases {
		_, err := engine.Answer(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	}
	assert.Zero(t, gen.calls)

	// length is measured in characters, not bytes
	_, err := engine.Answer(context.Background(), Request{Query: strings.Repeat("é", MaxQueryLength)})
	assert.NoError(t, err)
}

func TestAnswerGeneratorFailureFailsRequest(t *testing.T) {
	engine, gen := newEngine(t)
	gen.err = errors.New("model overloaded")

	_, err := engine.Answer(context.Background(), Request{Query: "thermal storage"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]index.Match{
		{Text: "first", PaperURL: "u1"},
		{Text: "second", PaperURL: "u2"},
	})
	assert.Equal(t, "[u1] first\n\n[u2] second", got)
	assert.Equal(t, "", BuildContext(nil))
}
