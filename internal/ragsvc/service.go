// Package ragsvc is the service facade over the ingestion and query
// pipelines. It owns namespace routing, document bookkeeping and index
// initialization; transports stay thin.
package ragsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/blobstore"
	"github.com/fyrsmithlabs/ragd/internal/docstore"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/query"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/fyrsmithlabs/ragd/internal/vectorindex"
)

// Sentinel errors for service operations.
var (
	// ErrEmptyUpload indicates an upload with no content.
	ErrEmptyUpload = errors.New("empty upload")

	// ErrMissingTenant indicates an upload without a tenant. The shared
	// default namespace accepts writes from BootstrapCorpus only, so an
	// anonymous upload has nowhere to go.
	ErrMissingTenant = errors.New("tenant id required")

	// ErrNotRetryable indicates a retry on a document that has not
	// failed.
	ErrNotRetryable = errors.New("document is not in a failed state")
)

// Deps bundles the service dependencies.
type Deps struct {
	Docs      docstore.Store
	Blobs     blobstore.Store
	Extractor *extraction.Registry
	Embedder  embeddings.Provider
	Index     vectorindex.Index
	Router    *tenant.Router
	Pipeline  *ingest.Pipeline
	Query     *query.Engine
	Logger    *logging.Logger
}

// Service exposes the document and question-answering operations.
type Service struct {
	deps   Deps
	logger *logging.Logger

	initOnce sync.Once
	initErr  error
}

// New creates the service. Call Init before serving traffic.
func New(deps Deps) (*Service, error) {
	if deps.Docs == nil || deps.Blobs == nil || deps.Extractor == nil ||
		deps.Embedder == nil || deps.Index == nil || deps.Router == nil ||
		deps.Pipeline == nil || deps.Query == nil {
		return nil, fmt.Errorf("all service dependencies are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Service{
		deps:   deps,
		logger: deps.Logger.Named("ragsvc"),
	}, nil
}

// Init ensures the vector index exists at the embedding model's
// dimension. Safe to call from multiple goroutines; the work runs
// once and later calls return the first result.
func (s *Service) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		dim := s.deps.Embedder.Dimension()
		if err := s.deps.Index.EnsureIndex(ctx, dim); err != nil {
			s.initErr = fmt.Errorf("ensuring index: %w", err)
			return
		}
		s.logger.Info(ctx, "service initialized", zap.Int("dimension", dim))
	})
	return s.initErr
}

// UploadRequest is one document upload.
type UploadRequest struct {
	// TenantID is the owning tenant; empty routes to the shared
	// default namespace.
	TenantID string

	// Filename is the original upload filename.
	Filename string

	// FileType is the declared file type. Defaults to the filename
	// extension when empty.
	FileType string

	// Content is the raw file bytes.
	Content []byte
}

// Ingest stores and processes one document synchronously for a tenant.
// The returned record reflects the final state: completed or failed.
// Processing failures, an unsupported file type included, are recorded
// on the record rather than returned; an error means no record was
// created at all (missing tenant, empty upload, storage failure).
func (s *Service) Ingest(ctx context.Context, req UploadRequest) (*docstore.Document, error) {
	if req.TenantID == "" {
		return nil, ErrMissingTenant
	}
	return s.ingest(ctx, req, s.deps.Router.Resolve(req.TenantID))
}

// ingest is the shared upload path for tenant uploads and corpus
// bootstrap. The caller fixes the namespace.
func (s *Service) ingest(ctx context.Context, req UploadRequest, namespace string) (*docstore.Document, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	if len(req.Content) == 0 {
		return nil, ErrEmptyUpload
	}
	fileType := req.FileType
	if fileType == "" {
		fileType = extensionOf(req.Filename)
	}

	doc := &docstore.Document{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		Filename:  req.Filename,
		FileType:  fileType,
		SizeBytes: int64(len(req.Content)),
		Namespace: namespace,
	}
	if err := s.deps.Docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("creating document record: %w", err)
	}
	if err := s.deps.Blobs.Put(ctx, doc.ID, req.Content); err != nil {
		return nil, fmt.Errorf("storing content: %w", err)
	}

	if err := s.deps.Pipeline.Run(ctx, doc.ID, doc.Version); err != nil {
		return nil, err
	}
	return s.deps.Docs.Get(ctx, doc.ID)
}

// RetryIngest re-processes a failed document from its stored content.
// Documents in any other state are rejected with ErrNotRetryable.
func (s *Service) RetryIngest(ctx context.Context, documentID string) (*docstore.Document, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	doc, err := s.deps.Docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !docstore.CanRetry(doc) {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRetryable, doc.Status)
	}

	if err := s.deps.Pipeline.Run(ctx, doc.ID, doc.Version); err != nil {
		return nil, err
	}
	return s.deps.Docs.Get(ctx, documentID)
}

// Status returns the tracking record for a document.
func (s *Service) Status(ctx context.Context, documentID string) (*docstore.Document, error) {
	return s.deps.Docs.Get(ctx, documentID)
}

// ListDocuments returns a tenant's active documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, tenantID string) ([]*docstore.Document, error) {
	return s.deps.Docs.List(ctx, tenantID)
}

// AskRequest is one question.
type AskRequest struct {
	// TenantID selects the namespace searched; empty uses the shared
	// default namespace.
	TenantID string

	// Question is the user's question.
	Question string

	// TopK overrides the configured retrieval depth when positive.
	TopK int

	// WantSources requests source document IDs with the answer.
	WantSources bool
}

// AnswerQuestion answers a question from the asking tenant's namespace.
func (s *Service) AnswerQuestion(ctx context.Context, req AskRequest) (*query.Answer, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	namespace := s.deps.Router.Resolve(req.TenantID)
	ctx = logging.WithTenantID(ctx, req.TenantID)
	return s.deps.Query.Answer(ctx, req.Question, namespace, req.TopK, req.WantSources)
}

// VectorCount returns index-wide vector statistics.
func (s *Service) VectorCount(ctx context.Context) (*vectorindex.Stats, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s.deps.Index.Stats(ctx, "")
}

// BootstrapFile is one seed document for the shared corpus.
type BootstrapFile struct {
	Filename string
	FileType string
	Content  []byte
}

// BootstrapCorpus ingests operator-provided documents into the shared
// default namespace. It is the only write path into that namespace;
// tenant uploads never reach it. Individual failures are reported but
// do not stop the remaining files.
func (s *Service) BootstrapCorpus(ctx context.Context, files []BootstrapFile) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	var failed []string
	for _, f := range files {
		doc, err := s.ingest(ctx, UploadRequest{
			Filename: f.Filename,
			FileType: f.FileType,
			Content:  f.Content,
		}, s.deps.Router.Default())
		if err != nil {
			s.logger.Warn(ctx, "bootstrap file rejected",
				zap.String("filename", f.Filename), zap.Error(err))
			failed = append(failed, f.Filename)
			continue
		}
		if doc.Status != docstore.StatusCompleted {
			s.logger.Warn(ctx, "bootstrap file failed ingestion",
				zap.String("filename", f.Filename), zap.String("reason", doc.Error))
			failed = append(failed, f.Filename)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("bootstrap failed for %d of %d files: %s",
			len(failed), len(files), strings.Join(failed, ", "))
	}
	s.logger.Info(ctx, "corpus bootstrapped", zap.Int("files", len(files)))
	return nil
}

// Close releases backend resources.
func (s *Service) Close() error {
	return s.deps.Index.Close()
}

// extensionOf returns the lowercased filename extension without the
// dot, or empty.
func extensionOf(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}
