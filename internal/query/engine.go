// Package query answers questions over indexed documents.
//
// One question costs one query embedding, one vector search and one
// generation call. The answer is grounded: the prompt carries the
// retrieved chunks and instructs the model to admit uncertainty rather
// than invent facts. An empty retrieval still proceeds to generation,
// which lets the model say it does not know.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorindex"
)

// ErrEmptyQuestion indicates a blank question.
var ErrEmptyQuestion = errors.New("empty question")

// promptTemplate grounds the generation in retrieved context. The
// instructions keep answers short and forbid fabrication when the
// context does not cover the question.
const promptTemplate = `You are an assistant for question-answering tasks.
Use the following pieces of retrieved context to answer the question.
If you don't know the answer based on the context, say that you don't know.
Use three sentences maximum and keep the answer concise.

Context:
%s

Question: %s

Answer:`

// Config holds query engine settings.
type Config struct {
	// TopK is the default number of chunks retrieved per question.
	TopK int

	// RetryAttempts bounds retries of transient embed and search
	// failures. Generation retries internally and is not re-run here.
	RetryAttempts int

	// RetryBackoff is the initial backoff between retries; it doubles
	// per attempt.
	RetryBackoff time.Duration
}

// Answer is the response to one question.
type Answer struct {
	// Text is the generated answer.
	Text string

	// Sources lists the document IDs of the retrieved chunks in
	// retrieval order, duplicates preserved. Empty unless requested.
	Sources []string
}

// Engine wires embedding, retrieval and generation.
type Engine struct {
	embedder  embeddings.Provider
	index     vectorindex.Index
	generator generation.Provider
	config    Config
	logger    *logging.Logger
}

// NewEngine creates a query engine.
func NewEngine(embedder embeddings.Provider, index vectorindex.Index, generator generation.Provider, config Config, logger *logging.Logger) (*Engine, error) {
	if embedder == nil || index == nil || generator == nil {
		return nil, fmt.Errorf("embedder, index and generator are required")
	}
	if config.TopK <= 0 {
		config.TopK = 3
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		embedder:  embedder,
		index:     index,
		generator: generator,
		config:    config,
		logger:    logger.Named("query"),
	}, nil
}

// Answer answers a question from the given namespace. A k of zero
// uses the configured default; wantSources controls whether source
// document IDs are collected.
func (e *Engine) Answer(ctx context.Context, question, namespace string, k int, wantSources bool) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if k <= 0 {
		k = e.config.TopK
	}

	var vector []float32
	err := e.withRetry(ctx, "embed query", func() error {
		var embedErr error
		vector, embedErr = e.embedder.EmbedQuery(ctx, question)
		return embedErr
	}, embeddings.IsRetryable)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	var chunks []vectorindex.ScoredChunk
	err = e.withRetry(ctx, "vector search", func() error {
		var queryErr error
		chunks, queryErr = e.index.Query(ctx, namespace, vector, k)
		return queryErr
	}, vectorindex.IsTransient)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	prompt := buildPrompt(question, chunks)
	text, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	answer := &Answer{Text: text}
	if wantSources {
		answer.Sources = collectSources(chunks)
	}

	e.logger.Debug(ctx, "answered question",
		zap.String("namespace", namespace),
		zap.Int("retrieved", len(chunks)),
		zap.Int("k", k),
	)
	return answer, nil
}

// withRetry runs op, retrying transient failures with doubling backoff.
func (e *Engine) withRetry(ctx context.Context, what string, op func() error, retryable func(error) bool) error {
	backoff := e.config.RetryBackoff
	var lastErr error
	for attempt := 0; attempt < e.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			e.logger.Warn(ctx, "retrying after transient failure",
				zap.String("operation", what),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// buildPrompt assembles the grounded prompt. Chunks are separated by
// blank lines in retrieval order; no chunks yields an explicit marker
// so the model knows the context is empty.
func buildPrompt(question string, chunks []vectorindex.ScoredChunk) string {
	var contextBlock string
	if len(chunks) == 0 {
		contextBlock = "(no relevant context found)"
	} else {
		parts := make([]string, len(chunks))
		for i, c := range chunks {
			parts[i] = c.Text
		}
		contextBlock = strings.Join(parts, "\n\n")
	}
	return fmt.Sprintf(promptTemplate, contextBlock, question)
}

// collectSources lists source document IDs in retrieval order.
func collectSources(chunks []vectorindex.ScoredChunk) []string {
	sources := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if id, ok := c.Metadata[vectorindex.MetaDocumentID].(string); ok && id != "" {
			sources = append(sources, id)
		}
	}
	return sources
}
