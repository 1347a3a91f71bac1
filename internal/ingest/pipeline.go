// Package ingest turns uploaded documents into indexed vectors.
//
// A run claims the document via a version CAS, so concurrent attempts
// on the same document resolve to one winner. After the claim, every
// failure is recorded on the document record instead of propagating:
// the caller learns the outcome from the document status, not from the
// return value.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/blobstore"
	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/docstore"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/fyrsmithlabs/ragd/internal/vectorindex"
)

// Config holds ingestion pipeline settings.
type Config struct {
	// RetryAttempts bounds retries of transient embedding and cleanup
	// failures within one run. Upserts are never retried within a run;
	// a partial upsert is cleared by the next run instead.
	RetryAttempts int

	// RetryBackoff is the initial backoff between retries; it doubles
	// per attempt.
	RetryBackoff time.Duration
}

// Pipeline runs document ingestion end to end: claim, extract, chunk,
// embed, index, record outcome.
type Pipeline struct {
	docs      docstore.Store
	blobs     blobstore.Store
	extractor *extraction.Registry
	splitter  *chunker.Splitter
	embedder  embeddings.Provider
	index     vectorindex.Index
	router    *tenant.Router
	config    Config
	metrics   *Metrics
	logger    *logging.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	docs docstore.Store,
	blobs blobstore.Store,
	extractor *extraction.Registry,
	splitter *chunker.Splitter,
	embedder embeddings.Provider,
	index vectorindex.Index,
	router *tenant.Router,
	config Config,
	logger *logging.Logger,
) (*Pipeline, error) {
	if docs == nil || blobs == nil || extractor == nil || splitter == nil ||
		embedder == nil || index == nil || router == nil {
		return nil, fmt.Errorf("all pipeline dependencies are required")
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
	return &Pipeline{
		docs:      docs,
		blobs:     blobs,
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		index:     index,
		router:    router,
		config:    config,
		metrics:   NewMetrics(logger.Underlying()),
		logger:    logger.Named("ingest"),
	}, nil
}

// Run ingests one document. The returned error covers only the claim
// phase (unknown document, wrong state, lost version race); once the
// document is claimed, failures are recorded on the record and Run
// returns nil.
func (p *Pipeline) Run(ctx context.Context, documentID string, version int64) error {
	ctx = logging.WithDocumentID(ctx, documentID)

	doc, err := p.docs.MarkProcessing(ctx, documentID, version)
	if err != nil {
		return fmt.Errorf("claiming document: %w", err)
	}
	ctx = logging.WithTenantID(ctx, doc.TenantID)

	start := time.Now()
	chunkCount, err := p.process(ctx, doc)
	if err != nil {
		p.metrics.RecordRun(ctx, doc.FileType, "failed", time.Since(start), 0)
		p.logger.Warn(ctx, "ingestion failed",
			zap.String("filename", doc.Filename),
			zap.Error(err),
		)
		if markErr := p.docs.MarkFailed(ctx, doc.ID, err.Error()); markErr != nil {
			p.logger.Error(ctx, "failed to record ingestion failure", zap.Error(markErr))
		}
		return nil
	}

	if err := p.docs.MarkCompleted(ctx, doc.ID, chunkCount); err != nil {
		p.logger.Error(ctx, "failed to record ingestion success", zap.Error(err))
		return nil
	}

	p.metrics.RecordRun(ctx, doc.FileType, "completed", time.Since(start), chunkCount)
	p.logger.Info(ctx, "document ingested",
		zap.String("filename", doc.Filename),
		zap.Int("chunks", chunkCount),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// process runs the post-claim pipeline and returns the chunk count.
func (p *Pipeline) process(ctx context.Context, doc *docstore.Document) (int, error) {
	data, err := p.blobs.Get(ctx, doc.ID)
	if err != nil {
		return 0, fmt.Errorf("reading stored content: %w", err)
	}

	text, err := p.extractor.Extract(ctx, doc.FileType, data)
	if err != nil {
		return 0, fmt.Errorf("extracting text: %w", err)
	}

	pieces := p.splitter.Split(text)
	if len(pieces) == 0 {
		return 0, fmt.Errorf("document produced no chunks")
	}

	// The record's namespace is fixed at upload time; resolve from the
	// tenant only for records that predate the field.
	namespace := doc.Namespace
	if namespace == "" {
		namespace = p.router.Resolve(doc.TenantID)
	}

	// Clear any vectors left behind by a previous failed attempt, so a
	// retry never duplicates chunks.
	err = p.withRetry(ctx, "clearing prior vectors", func() error {
		return p.index.DeleteByDocument(ctx, namespace, doc.ID)
	})
	if err != nil {
		return 0, fmt.Errorf("clearing prior vectors: %w", err)
	}

	var vectors [][]float32
	err = p.withRetry(ctx, "embedding chunks", func() error {
		var embedErr error
		vectors, embedErr = p.embedder.EmbedDocuments(ctx, pieces)
		return embedErr
	})
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}

	chunks := make([]vectorindex.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = vectorindex.Chunk{
			ID:     uuid.NewString(),
			Text:   piece,
			Vector: vectors[i],
			Metadata: map[string]interface{}{
				vectorindex.MetaDocumentID: doc.ID,
				vectorindex.MetaTenantID:   doc.TenantID,
				vectorindex.MetaFilename:   doc.Filename,
				vectorindex.MetaFileType:   doc.FileType,
			},
		}
	}

	// No retry here: a sub-batch may already be stored, and replaying
	// the whole upsert inside one run could mask a partial write. The
	// next run clears and redoes the document instead.
	if err := p.index.Upsert(ctx, namespace, chunks); err != nil {
		return 0, fmt.Errorf("indexing chunks: %w", err)
	}

	return len(chunks), nil
}

// withRetry runs op, retrying transient failures with doubling backoff.
func (p *Pipeline) withRetry(ctx context.Context, what string, op func() error) error {
	backoff := p.config.RetryBackoff
	var lastErr error
	for attempt := 0; attempt < p.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			p.logger.Warn(ctx, "retrying after transient failure",
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
		if !embeddings.IsRetryable(lastErr) && !vectorindex.IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
