// Package config provides configuration loading for ragd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// Config is the root configuration for ragd.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Index      IndexConfig      `koanf:"index"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Query      QueryConfig      `koanf:"query"`
	Generation GenerationConfig `koanf:"generation"`
	Logging    logging.Config   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// MaxUploadBytes caps the size of an uploaded document.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// BaseURL is the TEI-compatible embedding endpoint.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model identifier. The model fixes the
	// vector dimension for the whole index.
	Model string `koanf:"model"`

	// BatchSize caps texts per embedding request.
	BatchSize int `koanf:"batch_size"`

	// Timeout bounds each embedding request.
	Timeout Duration `koanf:"timeout"`
}

// ChunkingConfig holds text splitting settings.
type ChunkingConfig struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `koanf:"chunk_size"`

	// Overlap is the number of characters shared between adjacent
	// chunks. Must be smaller than ChunkSize.
	Overlap int `koanf:"overlap"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Backend selects the vector store: "chromem" (embedded) or
	// "qdrant" (external service).
	Backend string `koanf:"backend"`

	// Name is the logical index name.
	Name string `koanf:"name"`

	// Metric is the similarity metric for qdrant.
	Metric string `koanf:"metric"`

	// Chromem holds embedded backend settings.
	Chromem ChromemConfig `koanf:"chromem"`

	// Qdrant holds external backend settings.
	Qdrant QdrantConfig `koanf:"qdrant"`
}

// ChromemConfig holds chromem backend settings.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory.
	Path string `koanf:"path"`

	// Compress enables gzip compression of persisted data.
	Compress bool `koanf:"compress"`
}

// QdrantConfig holds qdrant backend settings.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	RequestTimeout Duration `koanf:"request_timeout"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	// RetryAttempts bounds retries of transient embedding and cleanup
	// failures per ingestion run.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryBackoff is the initial backoff between retries.
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// QueryConfig holds retrieval settings.
type QueryConfig struct {
	// TopK is the number of chunks retrieved per question.
	TopK int `koanf:"top_k"`

	// RetryAttempts bounds retries of transient embed and search
	// failures per question.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryBackoff is the initial backoff between retries.
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	// BaseURL is the generation API endpoint.
	BaseURL string `koanf:"base_url"`

	// Model is the generation model identifier.
	Model string `koanf:"model"`

	// APIKey authenticates generation requests.
	APIKey Secret `koanf:"api_key"`

	// MaxTokens caps the generated answer length.
	MaxTokens int `koanf:"max_tokens"`

	// Temperature controls sampling randomness.
	Temperature float64 `koanf:"temperature"`

	// Timeout bounds each generation request.
	Timeout Duration `koanf:"timeout"`

	// RequestsPerMinute rate-limits outbound generation calls.
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// ApplyDefaults sets default values for missing configuration fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 * 1024 * 1024
	}

	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:8081"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = Duration(30 * time.Second)
	}

	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 500
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 20
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "chromem"
	}
	if cfg.Index.Name == "" {
		cfg.Index.Name = "ragd_documents"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "cosine"
	}
	if cfg.Index.Qdrant.Host == "" {
		cfg.Index.Qdrant.Host = "localhost"
	}
	if cfg.Index.Qdrant.Port == 0 {
		cfg.Index.Qdrant.Port = 6334
	}
	if cfg.Index.Qdrant.RequestTimeout == 0 {
		cfg.Index.Qdrant.RequestTimeout = Duration(30 * time.Second)
	}

	if cfg.Ingest.RetryAttempts == 0 {
		cfg.Ingest.RetryAttempts = 3
	}
	if cfg.Ingest.RetryBackoff == 0 {
		cfg.Ingest.RetryBackoff = Duration(500 * time.Millisecond)
	}

	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 3
	}
	if cfg.Query.RetryAttempts == 0 {
		cfg.Query.RetryAttempts = 3
	}
	if cfg.Query.RetryBackoff == 0 {
		cfg.Query.RetryBackoff = Duration(500 * time.Millisecond)
	}

	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gemini-2.0-flash"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1024
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = Duration(60 * time.Second)
	}
	if cfg.Generation.RequestsPerMinute == 0 {
		cfg.Generation.RequestsPerMinute = 60
	}

	if cfg.Logging.Format == "" {
		cfg.Logging = *logging.NewDefaultConfig()
	}
}

// Validate checks the configuration, failing fast on the first error.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding: base_url required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding: model required")
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking: chunk_size must be positive")
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking: overlap cannot be negative")
	}
	if c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking: overlap %d must be smaller than chunk_size %d",
			c.Chunking.Overlap, c.Chunking.ChunkSize)
	}
	switch c.Index.Backend {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("index: unknown backend %q", c.Index.Backend)
	}
	if c.Index.Name == "" {
		return fmt.Errorf("index: name required")
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("query: top_k must be positive")
	}
	if c.Generation.BaseURL == "" {
		return fmt.Errorf("generation: base_url required")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation: model required")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
