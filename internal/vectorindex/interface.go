// Package vectorindex provides namespace-partitioned vector storage.
//
// A namespace isolates one tenant's chunks from all others. All
// operations take an explicit namespace; the empty namespace is itself a
// valid, distinct partition. A namespace that does not exist yet behaves
// identically to an existing-but-empty one for Query and Stats.
//
// Implementations do not retry internally: transient failures surface
// wrapped in ErrUnavailable and are retried by callers with backoff
// where the operation is idempotent.
package vectorindex

import (
	"context"
	"errors"
	"regexp"
)

// Sentinel errors for vector index operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid index configuration")

	// ErrDimensionMismatch is returned when an existing index has a
	// different vector dimension than requested.
	ErrDimensionMismatch = errors.New("index dimension mismatch")

	// ErrInvalidNamespace indicates a namespace name validation failure.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrEmptyChunks indicates empty or nil chunks.
	ErrEmptyChunks = errors.New("empty or nil chunks")

	// ErrUnavailable indicates a transient backend failure worth retrying.
	ErrUnavailable = errors.New("vector index unavailable")

	// ErrNotReady indicates the index has not been ensured yet.
	ErrNotReady = errors.New("index not ready")
)

// UpsertBatchSize bounds vectors per upsert call to the backend.
// Large batches are split to respect provider limits; a sub-batch
// failure after partial success leaves the namespace partially updated,
// which the ingestion pipeline treats as a failure requiring
// re-ingestion.
const UpsertBatchSize = 100

// Metadata keys attached to every stored chunk.
const (
	MetaDocumentID = "document_id"
	MetaTenantID   = "tenant_id"
	MetaFilename   = "filename"
	MetaFileType   = "file_type"
)

// namespacePattern validates namespace names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var namespacePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateNamespace validates a namespace name. The empty namespace is
// allowed and denotes the index's default partition.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return nil
	}
	if !namespacePattern.MatchString(ns) {
		return ErrInvalidNamespace
	}
	return nil
}

// Chunk is one embedded text segment with its metadata, the unit stored
// as one vector.
type Chunk struct {
	// ID is the unique vector identifier (UUID).
	ID string

	// Text is the chunk's text content.
	Text string

	// Vector is the chunk's embedding.
	Vector []float32

	// Metadata carries the owning document id, tenant id, original
	// filename and file type (see Meta* keys).
	Metadata map[string]interface{}
}

// ScoredChunk is a query result with its relevance score.
type ScoredChunk struct {
	Chunk
	// Score is the similarity score (higher = more similar).
	Score float32
}

// Stats describes vector counts, optionally broken down per namespace.
type Stats struct {
	// TotalVectors is the vector count over the requested scope.
	TotalVectors int

	// Namespaces maps namespace name to vector count. Populated only
	// for index-wide stats.
	Namespaces map[string]int
}

// Index is the namespace-partitioned vector store contract.
type Index interface {
	// EnsureIndex creates the index if absent and no-ops if present
	// with a matching dimension. An existing index with a different
	// dimension fails with ErrDimensionMismatch.
	EnsureIndex(ctx context.Context, dimension int) error

	// Upsert inserts or overwrites chunk vectors in the namespace.
	// Batches larger than UpsertBatchSize are split; the operation is
	// not transactional.
	Upsert(ctx context.Context, namespace string, chunks []Chunk) error

	// Query returns up to k nearest neighbors with metadata and score.
	// Fewer than k results are returned if the namespace holds fewer
	// vectors; an empty or absent namespace yields an empty result.
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]ScoredChunk, error)

	// Stats returns vector counts. With an empty namespace it covers
	// the whole index with a per-namespace breakdown; otherwise just
	// the named namespace.
	Stats(ctx context.Context, namespace string) (*Stats, error)

	// DeleteByDocument removes all vectors in the namespace whose
	// metadata names the given document. Used to clear partial upserts
	// from a failed ingestion attempt before retrying.
	DeleteByDocument(ctx context.Context, namespace, documentID string) error

	// DeleteIndex removes the index and all namespaces. Idempotent.
	DeleteIndex(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// IsTransient reports whether an index error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
