package vectorindex

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means
	// in-memory only, which is what tests use.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// IndexName is the logical index name; it prefixes every
	// namespace collection.
	IndexName string
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.IndexName == "" || !namespacePattern.MatchString(c.IndexName) {
		return fmt.Errorf("%w: invalid index name %q", ErrInvalidConfig, c.IndexName)
	}
	return nil
}

// ChromemIndex implements Index using chromem-go, an embeddable pure-Go
// vector database. It needs no external service, which makes it the
// backend for tests and single-node deployments.
//
// Vectors arrive pre-embedded, so the chromem embedding function is
// never invoked; a failing stub is installed to catch accidental use
// (passing nil would silently select chromem's OpenAI default).
type ChromemIndex struct {
	db     *chromem.DB
	config ChromemConfig
	logger *logging.Logger

	mu        sync.Mutex
	dimension int
}

// NewChromemIndex creates a chromem-backed vector index.
func NewChromemIndex(config ChromemConfig, logger *logging.Logger) (*ChromemIndex, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(config.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", config.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	return &ChromemIndex{
		db:     db,
		config: config,
		logger: logger.Named("chromem"),
	}, nil
}

// noEmbedding is installed on every collection. All vectors are
// supplied by the caller.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("collection holds pre-embedded vectors only")
}

func (c *ChromemIndex) collectionFor(namespace string) string {
	if namespace == "" {
		return c.config.IndexName
	}
	return c.config.IndexName + namespaceSeparator + namespace
}

func (c *ChromemIndex) namespaceFor(collection string) (string, bool) {
	if collection == c.config.IndexName {
		return "", true
	}
	prefix := c.config.IndexName + namespaceSeparator
	if strings.HasPrefix(collection, prefix) {
		return strings.TrimPrefix(collection, prefix), true
	}
	return "", false
}

// EnsureIndex fixes the vector dimension and creates the base
// collection. chromem collections carry no declared dimension, so an
// existing persisted index is verified against its stored vectors
// lazily on upsert instead.
func (c *ChromemIndex) EnsureIndex(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}

	if _, err := c.db.GetOrCreateCollection(c.config.IndexName, nil, noEmbedding); err != nil {
		return fmt.Errorf("creating collection %s: %w", c.config.IndexName, err)
	}

	c.mu.Lock()
	c.dimension = dimension
	c.mu.Unlock()

	c.logger.Info(ctx, "index ready",
		zap.String("index", c.config.IndexName),
		zap.Int("dimension", dimension),
	)
	return nil
}

// Upsert inserts or overwrites chunk vectors in the namespace.
func (c *ChromemIndex) Upsert(ctx context.Context, namespace string, chunks []Chunk) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	c.mu.Lock()
	dimension := c.dimension
	c.mu.Unlock()
	if dimension == 0 {
		return ErrNotReady
	}
	for i, chunk := range chunks {
		if len(chunk.Vector) != dimension {
			return fmt.Errorf("%w: chunk %d has dimension %d, want %d",
				ErrDimensionMismatch, i, len(chunk.Vector), dimension)
		}
	}

	collection, err := c.db.GetOrCreateCollection(c.collectionFor(namespace), nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Text,
			Metadata:  metadataToString(chunk.Metadata),
			Embedding: chunk.Vector,
		}
	}

	// Concurrency 1: embeddings are already present, nothing to parallelize.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	c.logger.Debug(ctx, "upserted chunks",
		zap.String("namespace", namespace),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// Query returns up to k nearest neighbors from the namespace.
func (c *ChromemIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]ScoredChunk, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, k)
	}

	collection := c.db.GetCollection(c.collectionFor(namespace), noEmbedding)
	if collection == nil {
		return []ScoredChunk{}, nil
	}

	// chromem requires k <= document count.
	count := collection.Count()
	if count == 0 {
		return []ScoredChunk{}, nil
	}
	if k > count {
		k = count
	}

	results, err := collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	chunks := make([]ScoredChunk, len(results))
	for i, r := range results {
		chunks[i] = ScoredChunk{
			Chunk: Chunk{
				ID:       r.ID,
				Text:     r.Content,
				Metadata: metadataFromString(r.Metadata),
			},
			Score: r.Similarity,
		}
	}
	return chunks, nil
}

// Stats returns vector counts for a namespace or the whole index.
func (c *ChromemIndex) Stats(ctx context.Context, namespace string) (*Stats, error) {
	if namespace != "" {
		if err := ValidateNamespace(namespace); err != nil {
			return nil, err
		}
		count := 0
		if collection := c.db.GetCollection(c.collectionFor(namespace), noEmbedding); collection != nil {
			count = collection.Count()
		}
		return &Stats{TotalVectors: count}, nil
	}

	stats := &Stats{Namespaces: make(map[string]int)}
	for name, collection := range c.db.ListCollections() {
		ns, ok := c.namespaceFor(name)
		if !ok {
			continue
		}
		count := collection.Count()
		stats.Namespaces[ns] = count
		stats.TotalVectors += count
	}
	return stats, nil
}

// DeleteByDocument removes all vectors tagged with the document ID.
func (c *ChromemIndex) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if documentID == "" {
		return fmt.Errorf("%w: document ID required", ErrInvalidConfig)
	}

	collection := c.db.GetCollection(c.collectionFor(namespace), noEmbedding)
	if collection == nil {
		return nil
	}
	if collection.Count() == 0 {
		return nil
	}

	where := map[string]string{MetaDocumentID: documentID}
	if err := collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("deleting document vectors: %w", err)
	}
	return nil
}

// DeleteIndex removes every collection belonging to this index.
func (c *ChromemIndex) DeleteIndex(ctx context.Context) error {
	for name := range c.db.ListCollections() {
		if _, ok := c.namespaceFor(name); !ok {
			continue
		}
		if err := c.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("deleting collection %s: %w", name, err)
		}
	}
	return nil
}

// Close is a no-op; chromem persists incrementally.
func (c *ChromemIndex) Close() error {
	return nil
}

func metadataToString(metadata map[string]interface{}) map[string]string {
	if metadata == nil {
		return nil
	}
	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

func metadataFromString(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// Ensure ChromemIndex implements Index.
var _ Index = (*ChromemIndex)(nil)
