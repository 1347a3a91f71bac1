package ragsvc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/blobstore"
	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/docstore"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/query"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/fyrsmithlabs/ragd/internal/vectorindex"
)

// keywordEmbedder maps texts to axis-aligned vectors by keyword, so
// retrieval behaves like real similarity search without a model: texts
// sharing a keyword are near, others are orthogonal.
type keywordEmbedder struct {
	mu       sync.Mutex
	failures int
	err      error
}

var keywordAxes = map[string]int{
	"paris":    0,
	"tokyo":    1,
	"aspirin":  2,
	"insulin":  3,
	"glucagon": 4,
}

func (k *keywordEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, 8)
	lower := strings.ToLower(text)
	hit := false
	for word, axis := range keywordAxes {
		if strings.Contains(lower, word) {
			vec[axis] = 1
			hit = true
		}
	}
	if !hit {
		vec[7] = 1
	}
	return vec
}

func (k *keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.failures > 0 {
		k.failures--
		return nil, k.err
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = k.vectorFor(t)
	}
	return vectors, nil
}

func (k *keywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return k.vectorFor(text), nil
}

func (k *keywordEmbedder) Dimension() int { return 8 }

func (k *keywordEmbedder) failNext(n int, err error) {
	k.mu.Lock()
	k.failures = n
	k.err = err
	k.mu.Unlock()
}

// recordingGenerator captures the prompt and answers with canned text.
type recordingGenerator struct {
	mu         sync.Mutex
	lastPrompt string
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.lastPrompt = prompt
	g.mu.Unlock()
	if strings.Contains(prompt, "(no relevant context found)") {
		return "I don't know based on the available documents.", nil
	}
	return "Here is a grounded answer.", nil
}

func (g *recordingGenerator) prompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastPrompt
}

type svcRig struct {
	service   *Service
	embedder  *keywordEmbedder
	generator *recordingGenerator
	index     vectorindex.Index
	docs      *docstore.MemoryStore
}

func newService(t *testing.T) *svcRig {
	t.Helper()

	index, err := vectorindex.NewChromemIndex(vectorindex.ChromemConfig{IndexName: "ragd_documents"}, nil)
	require.NoError(t, err)

	docs := docstore.NewMemoryStore()
	blobs := blobstore.NewMemoryStore()
	registry := extraction.NewRegistry()
	embedder := &keywordEmbedder{}
	generator := &recordingGenerator{}
	router := tenant.NewRouter("shared_default")

	splitter, err := chunker.NewSplitter(200, 20)
	require.NoError(t, err)

	pipeline, err := ingest.NewPipeline(docs, blobs, registry, splitter, embedder, index, router,
		ingest.Config{RetryAttempts: 2, RetryBackoff: time.Millisecond}, nil)
	require.NoError(t, err)

	engine, err := query.NewEngine(embedder, index, generator, query.Config{
		TopK:          3,
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
	}, nil)
	require.NoError(t, err)

	svc, err := New(Deps{
		Docs:      docs,
		Blobs:     blobs,
		Extractor: registry,
		Embedder:  embedder,
		Index:     index,
		Router:    router,
		Pipeline:  pipeline,
		Query:     engine,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Init(context.Background()))

	return &svcRig{service: svc, embedder: embedder, generator: generator, index: index, docs: docs}
}

func TestService_UploadAndAsk(t *testing.T) {
	rig := newService(t)
	ctx := context.Background()

	doc, err := rig.service.Ingest(ctx, UploadRequest{
		TenantID: "alice",
		Filename: "travel.txt",
		Content:  []byte("Paris is the capital of France and hosts the Louvre."),
	})
	require.NoError(t, err)
	assert.Equal(t, docstore.StatusCompleted, doc.Status)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, "user_alice", doc.Namespace)
	assert.Equal(t, 1, doc.ChunkCount)

	answer, err := rig.service.AnswerQuestion(ctx, AskRequest{
		TenantID:    "alice",
		Question:    "Tell me about Paris",
		WantSources: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Here is a grounded answer.", answer.Text)
	assert.Equal(t, []string{doc.ID}, answer.Sources)
	assert.Contains(t, rig.generator.prompt(), "hosts the Louvre")
	assert.Contains(t, rig.generator.prompt(), "Tell me about Paris")
}

func TestService_TenantIsolation(t *testing.T) {
	rig := newService(t)
	ctx := context.Background()

	_, err := rig.service.Ingest(ctx, UploadRequest{
		TenantID: "alice",
		Filename: "private.txt",
		Content:  []byte("Paris trip notes: confidential itinerary."),
	})
	require.NoError(t, err)

	// Bob asks the same question and retrieves nothing of Alice's.
	answer, err := rig.service.AnswerQuestion(ctx, AskRequest{
		TenantID:    "bob",
		Question:    "What about Paris?",
		WantSources: true,
	})
	require.NoError(t, err)
	assert.Empty(t, answer.Sources)
	assert.NotContains(t, rig.generator.prompt(), "confidential")
	assert.Contains(t, rig.generator.prompt(), "(no relevant context found)")
	assert.Equal(t, "I don't know based on the available documents.", answer.Text)
}

func TestService_FailureAndRetry(t *testing.T) {
	rig := newService(t)
	ctx := context.Background()

	rig.embedder.failNext(10, fmt.Errorf("%w: embedding service down", embeddings.ErrUnavailable))

	doc, err := rig.service.Ingest(ctx, UploadRequest{
		TenantID: "alice",
		Filename: "meds.txt",
		Content:  []byte("Aspirin reduces fever and relieves mild pain."),
	})
	require.NoError(t, err)
	assert.Equal(t, docstore.StatusFailed, doc.Status)
	assert.NotEmpty(t, doc.Error)

	// The failed attempt left nothing queryable.
	stats, err := rig.index.Stats(ctx, "user_alice")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalVectors)

	// Service recovers; retry succeeds from the stored blob, no
	// re-upload needed.
	rig.embedder.failNext(0, nil)
	retried, err := rig.service.RetryIngest(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, docstore.StatusCompleted, retried.Status)
	assert.Equal(t, 1, retried.ChunkCount)
	assert.Empty(t, retried.Error)

	stats, err = rig.index.Stats(ctx, "user_alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalVectors)

	// Completed documents cannot be retried.
	_, err = rig.service.RetryIngest(ctx, doc.ID)
	require.ErrorIs(t, err, ErrNotRetryable)
}

func TestService_SharedCorpus(t *testing.T) {
	rig := newService(t)
	ctx := context.Background()

	err := rig.service.BootstrapCorpus(ctx, []BootstrapFile{
		{Filename: "insulin.md", Content: []byte("Insulin lowers blood glucose levels.")},
		{Filename: "glucagon.md", Content: []byte("Glucagon raises blood glucose levels.")},
	})
	require.NoError(t, err)

	// An anonymous question hits the shared default namespace.
	answer, err := rig.service.AnswerQuestion(ctx, AskRequest{
		Question:    "How does insulin work?",
		WantSources: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Sources)
	assert.Contains(t, rig.generator.prompt(), "Insulin lowers blood glucose")

	// A tenant's own namespace stays separate from the shared corpus.
	answer, err = rig.service.AnswerQuestion(ctx, AskRequest{
		TenantID:    "carol",
		Question:    "How does insulin work?",
		WantSources: true,
	})
	require.NoError(t, err)
	assert.Empty(t, answer.Sources)
}

func TestService_AnonymousUploadCannotReachSharedNamespace(t *testing.T) {
	rig := newService(t)
	ctx := context.Background()

	_, err := rig.service.Ingest(ctx, UploadRequest{
		Filename: "drive-by.txt", Content: []byte("Insulin misinformation"),
	})
	require.ErrorIs(t, err, ErrMissingTenant)

	// No record and no vectors came out of the rejected upload.
	docs, err := rig.service.ListDocuments(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, docs)

	stats, err := rig.index.Stats(ctx, "shared_default")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalVectors)
}

func TestService_BootstrapReportsFailures(t *testing.T) {
	rig := newService(t)
	ctx := context.Background()

	err := rig.service.BootstrapCorpus(ctx, []BootstrapFile{
		{Filename: "good.txt", Content: []byte("valid content")},
		{Filename: "bad.pdf", Content: []byte("not actually a pdf")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.pdf")
	assert.NotContains(t, err.Error(), "good.txt,")
}

func TestService_UploadValidation(t *testing.T) {
	rig := newService(t)
	ctx := context.Background()

	t.Run("empty content", func(t *testing.T) {
		_, err := rig.service.Ingest(ctx, UploadRequest{TenantID: "a", Filename: "x.txt"})
		require.ErrorIs(t, err, ErrEmptyUpload)
	})

	t.Run("missing tenant", func(t *testing.T) {
		_, err := rig.service.Ingest(ctx, UploadRequest{
			Filename: "x.txt", Content: []byte("bytes"),
		})
		require.ErrorIs(t, err, ErrMissingTenant)
	})

	t.Run("unsupported type recorded as failed", func(t *testing.T) {
		doc, err := rig.service.Ingest(ctx, UploadRequest{
			TenantID: "a", Filename: "blob.bin", FileType: "bin", Content: []byte{0x01, 0x02},
		})
		require.NoError(t, err)
		assert.Equal(t, docstore.StatusFailed, doc.Status)
		assert.NotEmpty(t, doc.Error)

		// The outcome is queryable afterwards like any other failure.
		got, err := rig.service.Status(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, docstore.StatusFailed, got.Status)
		assert.Contains(t, got.Error, "unsupported file type")
	})

	t.Run("type from extension", func(t *testing.T) {
		doc, err := rig.service.Ingest(ctx, UploadRequest{
			TenantID: "a", Filename: "README.MD", Content: []byte("markdown here"),
		})
		require.NoError(t, err)
		assert.Equal(t, "md", doc.FileType)
	})

	t.Run("no extension and no declared type", func(t *testing.T) {
		doc, err := rig.service.Ingest(ctx, UploadRequest{
			TenantID: "a", Filename: "Makefile", Content: []byte("all:"),
		})
		require.NoError(t, err)
		assert.Equal(t, docstore.StatusFailed, doc.Status)
		assert.Contains(t, doc.Error, "unsupported file type")
	})
}

func TestService_StatusAndList(t *testing.T) {
	rig := newService(t)
	ctx := context.Background()

	doc, err := rig.service.Ingest(ctx, UploadRequest{
		TenantID: "alice", Filename: "a.txt", Content: []byte("content one"),
	})
	require.NoError(t, err)

	got, err := rig.service.Status(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, docstore.StatusCompleted, got.Status)

	docs, err := rig.service.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)

	_, err = rig.service.Status(ctx, "missing")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestService_VectorCount(t *testing.T) {
	rig := newService(t)
	ctx := context.Background()

	_, err := rig.service.Ingest(ctx, UploadRequest{
		TenantID: "alice", Filename: "a.txt", Content: []byte("short text"),
	})
	require.NoError(t, err)
	_, err = rig.service.Ingest(ctx, UploadRequest{
		TenantID: "bob", Filename: "b.txt", Content: []byte("other text"),
	})
	require.NoError(t, err)

	stats, err := rig.service.VectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalVectors)
	assert.Equal(t, 1, stats.Namespaces["user_alice"])
	assert.Equal(t, 1, stats.Namespaces["user_bob"])
}
