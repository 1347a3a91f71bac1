package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/vectorindex"
)

type fakeEmbedder struct {
	calls    int
	failures int
	err      error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }

type fakeIndex struct {
	vectorindex.Index

	calls     int
	failures  int
	err       error
	chunks    []vectorindex.ScoredChunk
	lastK     int
	lastSpace string
}

func (f *fakeIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]vectorindex.ScoredChunk, error) {
	f.calls++
	f.lastK = k
	f.lastSpace = namespace
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return f.chunks, nil
}

type fakeGenerator struct {
	lastPrompt string
	reply      string
	err        error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func scored(docID, text string) vectorindex.ScoredChunk {
	return vectorindex.ScoredChunk{
		Chunk: vectorindex.Chunk{
			Text:     text,
			Metadata: map[string]interface{}{vectorindex.MetaDocumentID: docID},
		},
		Score: 0.9,
	}
}

func newTestEngine(t *testing.T, embedder *fakeEmbedder, index *fakeIndex, gen *fakeGenerator) *Engine {
	t.Helper()
	e, err := NewEngine(embedder, index, gen, Config{
		TopK:          3,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return e
}

func TestEngine_Answer(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeIndex{chunks: []vectorindex.ScoredChunk{
		scored("doc_1", "chunk alpha"),
		scored("doc_2", "chunk beta"),
		scored("doc_1", "chunk gamma"),
	}}
	gen := &fakeGenerator{reply: "Grounded answer."}
	e := newTestEngine(t, embedder, index, gen)

	answer, err := e.Answer(context.Background(), "what is alpha?", "user_42", 0, true)
	require.NoError(t, err)
	assert.Equal(t, "Grounded answer.", answer.Text)

	// Sources keep retrieval order with duplicates.
	assert.Equal(t, []string{"doc_1", "doc_2", "doc_1"}, answer.Sources)

	// Default k and the caller's namespace reach the index.
	assert.Equal(t, 3, index.lastK)
	assert.Equal(t, "user_42", index.lastSpace)

	// Prompt carries every chunk and the question.
	assert.Contains(t, gen.lastPrompt, "chunk alpha")
	assert.Contains(t, gen.lastPrompt, "chunk beta")
	assert.Contains(t, gen.lastPrompt, "chunk gamma")
	assert.Contains(t, gen.lastPrompt, "what is alpha?")
	assert.Contains(t, gen.lastPrompt, "say that you don't know")
}

func TestEngine_Answer_NoSourcesUnlessRequested(t *testing.T) {
	index := &fakeIndex{chunks: []vectorindex.ScoredChunk{scored("doc_1", "x")}}
	e := newTestEngine(t, &fakeEmbedder{}, index, &fakeGenerator{reply: "ok"})

	answer, err := e.Answer(context.Background(), "q", "", 0, false)
	require.NoError(t, err)
	assert.Nil(t, answer.Sources)
}

func TestEngine_Answer_EmptyQuestion(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{}, &fakeIndex{}, &fakeGenerator{})
	_, err := e.Answer(context.Background(), "  \n ", "", 0, false)
	require.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestEngine_Answer_EmptyRetrievalStillGenerates(t *testing.T) {
	gen := &fakeGenerator{reply: "I don't know."}
	e := newTestEngine(t, &fakeEmbedder{}, &fakeIndex{}, gen)

	answer, err := e.Answer(context.Background(), "unknown topic?", "user_1", 0, true)
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Contains(t, gen.lastPrompt, "(no relevant context found)")
}

func TestEngine_Answer_ExplicitKOverridesDefault(t *testing.T) {
	index := &fakeIndex{}
	e := newTestEngine(t, &fakeEmbedder{}, index, &fakeGenerator{reply: "ok"})

	_, err := e.Answer(context.Background(), "q", "", 7, false)
	require.NoError(t, err)
	assert.Equal(t, 7, index.lastK)
}

func TestEngine_Answer_RetriesTransientEmbedFailures(t *testing.T) {
	embedder := &fakeEmbedder{
		failures: 2,
		err:      fmt.Errorf("%w: connection refused", embeddings.ErrUnavailable),
	}
	e := newTestEngine(t, embedder, &fakeIndex{}, &fakeGenerator{reply: "ok"})

	answer, err := e.Answer(context.Background(), "q", "", 0, false)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer.Text)
	assert.Equal(t, 3, embedder.calls)
}

func TestEngine_Answer_RetriesTransientSearchFailures(t *testing.T) {
	index := &fakeIndex{
		failures: 1,
		err:      fmt.Errorf("%w: backend restarting", vectorindex.ErrUnavailable),
		chunks:   []vectorindex.ScoredChunk{scored("doc_1", "x")},
	}
	e := newTestEngine(t, &fakeEmbedder{}, index, &fakeGenerator{reply: "ok"})

	_, err := e.Answer(context.Background(), "q", "", 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2, index.calls)
}

func TestEngine_Answer_ExhaustedRetriesSurface(t *testing.T) {
	embedder := &fakeEmbedder{
		failures: 10,
		err:      fmt.Errorf("%w: down", embeddings.ErrUnavailable),
	}
	e := newTestEngine(t, embedder, &fakeIndex{}, &fakeGenerator{})

	_, err := e.Answer(context.Background(), "q", "", 0, false)
	require.ErrorIs(t, err, embeddings.ErrUnavailable)
	assert.Equal(t, 3, embedder.calls)
}

func TestEngine_Answer_PermanentErrorNotRetried(t *testing.T) {
	embedder := &fakeEmbedder{
		failures: 10,
		err:      fmt.Errorf("%w: bad input", embeddings.ErrEmbeddingFailed),
	}
	e := newTestEngine(t, embedder, &fakeIndex{}, &fakeGenerator{})

	_, err := e.Answer(context.Background(), "q", "", 0, false)
	require.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)
	assert.Equal(t, 1, embedder.calls)
}

func TestEngine_Answer_GenerationErrorSurfaces(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	e := newTestEngine(t, &fakeEmbedder{}, &fakeIndex{}, gen)

	_, err := e.Answer(context.Background(), "q", "", 0, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generating answer")
}
