package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// defaultBatchSize bounds the number of texts sent per TEI request.
// Batching is an internal optimization; callers see ordered output.
const defaultBatchSize = 32

// TEIConfig holds configuration for the TEI embedding service.
type TEIConfig struct {
	// BaseURL is the base URL for the embedding API.
	BaseURL string

	// Model is the embedding model identifier. Must have a known
	// dimension (see Dimension).
	Model string

	// BatchSize caps texts per request. Defaults to defaultBatchSize.
	BatchSize int

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if _, err := Dimension(c.Model); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// TEIProvider generates embeddings via a TEI-compatible HTTP endpoint.
type TEIProvider struct {
	config    TEIConfig
	dimension int
	client    *http.Client
	metrics   *Metrics
}

// NewTEIProvider creates a TEI embedding provider.
// Fails fast on unknown models so the index dimension is fixed before
// any request is served.
func NewTEIProvider(config TEIConfig, logger *zap.Logger) (*TEIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	dim, err := Dimension(config.Model)
	if err != nil {
		return nil, err
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TEIProvider{
		config:    config,
		dimension: dim,
		client:    &http.Client{Timeout: config.Timeout},
		metrics:   NewMetrics(logger),
	}, nil
}

// Dimension returns the embedding dimension for the configured model.
func (p *TEIProvider) Dimension() int {
	return p.dimension
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// EmbedDocuments generates embeddings for multiple texts, batching
// requests and preserving input order.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors := make([][]float32, 0, len(texts))
	for begin := 0; begin < len(texts); begin += p.config.BatchSize {
		end := begin + p.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embed(ctx, texts[begin:end])
		if err != nil {
			genErr = err
			return nil, genErr
		}
		vectors = append(vectors, batch...)
	}

	if len(vectors) != len(texts) {
		genErr = fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
		return nil, genErr
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		genErr = err
		return nil, genErr
	}
	if len(vectors) == 0 {
		genErr = fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
		return nil, genErr
	}
	return vectors[0], nil
}

// embed performs one embed request for the given texts.
func (p *TEIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		// Network failures are transient from the caller's perspective.
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	for i, v := range vectors {
		if len(v) != p.dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEmbeddingFailed, i, len(v), p.dimension)
		}
	}
	return vectors, nil
}
