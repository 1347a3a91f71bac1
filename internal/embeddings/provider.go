// Package embeddings provides embedding generation for chunks and queries.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid embedding configuration")

	// ErrUnknownModel indicates a model with no known embedding dimension.
	ErrUnknownModel = errors.New("unknown embedding model")

	// ErrEmbeddingFailed indicates a non-retryable embedding failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrUnavailable indicates a transient provider failure worth retrying.
	ErrUnavailable = errors.New("embedding provider unavailable")
)

// Provider generates fixed-dimension vector embeddings from text.
//
// Implementations may batch internally for throughput; callers only see
// ordered output vectors matching ordered input texts.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns one embedding per input text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int
}

// modelDimensions maps known embedding model identifiers to their vector
// dimension. The dimension must be known before the vector index is
// created, so unrecognized models fail configuration instead of
// defaulting silently.
var modelDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2":                      384,
	"sentence-transformers/all-mpnet-base-v2":                     768,
	"sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2": 384,
	"BAAI/bge-small-en-v1.5":                                      384,
	"BAAI/bge-base-en-v1.5":                                       768,
	"BAAI/bge-large-en-v1.5":                                      1024,
}

// Dimension returns the embedding dimension for a known model identifier.
func Dimension(model string) (int, error) {
	dim, ok := modelDimensions[model]
	if !ok {
		return 0, fmt.Errorf("%w: %q (known models: add an entry before use)", ErrUnknownModel, model)
	}
	return dim, nil
}

// IsRetryable reports whether an embedding error is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
