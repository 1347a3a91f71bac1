// Package docstore tracks document records through the ingestion
// lifecycle.
//
// A record moves pending -> processing -> completed or failed; a failed
// record may re-enter processing on retry. MarkProcessing is a
// compare-and-swap on the record version, which serializes concurrent
// ingestion attempts for the same document: exactly one caller wins,
// the rest get ErrConflict.
package docstore

import (
	"context"
	"errors"
	"time"
)

// Status is the ingestion state of a document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Sentinel errors for document store operations.
var (
	// ErrNotFound indicates the document does not exist or is deleted.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists indicates a duplicate document ID.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrInvalidState indicates a transition the state machine forbids.
	ErrInvalidState = errors.New("invalid document state")

	// ErrConflict indicates a concurrent writer won the version race.
	ErrConflict = errors.New("document version conflict")
)

// maxErrorLength bounds the stored failure reason so one giant parser
// error cannot bloat the record.
const maxErrorLength = 1024

// Document is one uploaded file's tracking record. The raw content
// lives in the blob store; vectors live in the vector index.
type Document struct {
	// ID is the unique document identifier (UUID).
	ID string

	// TenantID is the owning tenant; empty for shared documents.
	TenantID string

	// Filename is the original upload filename.
	Filename string

	// FileType is the declared file type (txt, pdf, docx, ...).
	FileType string

	// SizeBytes is the raw content size.
	SizeBytes int64

	// Namespace is the vector index namespace the document's chunks
	// live in, fixed at upload time.
	Namespace string

	// Status is the current ingestion state.
	Status Status

	// Error holds the truncated failure reason for failed documents.
	Error string

	// ChunkCount is the number of vectors indexed for this document.
	// Valid only for completed documents.
	ChunkCount int

	// Version increments on every update; MarkProcessing CAS key.
	Version int64

	// Active is false once the document is soft-deleted.
	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists document records.
type Store interface {
	// Create inserts a new record in StatusPending.
	Create(ctx context.Context, doc *Document) error

	// Get returns an active document by ID.
	Get(ctx context.Context, id string) (*Document, error)

	// List returns all active documents for a tenant, newest first.
	List(ctx context.Context, tenantID string) ([]*Document, error)

	// MarkProcessing transitions the document to StatusProcessing if
	// its version still matches and its state allows it. Allowed from
	// pending and failed only; ErrInvalidState otherwise, ErrConflict
	// if the version moved.
	MarkProcessing(ctx context.Context, id string, version int64) (*Document, error)

	// MarkCompleted transitions processing -> completed and records
	// the chunk count.
	MarkCompleted(ctx context.Context, id string, chunkCount int) error

	// MarkFailed transitions processing -> failed with a truncated
	// failure reason.
	MarkFailed(ctx context.Context, id string, reason string) error

	// SoftDelete deactivates the record. Idempotent; deleting an
	// absent document returns ErrNotFound.
	SoftDelete(ctx context.Context, id string) error
}

// truncateError clips a failure reason to maxErrorLength runes.
func truncateError(reason string) string {
	runes := []rune(reason)
	if len(runes) <= maxErrorLength {
		return reason
	}
	return string(runes[:maxErrorLength])
}

// CanRetry reports whether a document may be re-ingested.
func CanRetry(doc *Document) bool {
	return doc.Status == StatusFailed
}
