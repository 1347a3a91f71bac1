// Ragd is a multi-tenant document question-answering daemon.
//
// It ingests uploaded documents (text, PDF, DOCX) into a per-tenant
// vector index and answers questions grounded in the retrieved chunks.
//
// Configuration is loaded from an optional YAML file plus RAGD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults (embedded vector store, in-memory records)
//	ragd
//
//	# Configure via file and environment
//	RAGD_SERVER_PORT=9000 ragd -config /etc/ragd/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/blobstore"
	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/docstore"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/query"
	"github.com/fyrsmithlabs/ragd/internal/ragsvc"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/fyrsmithlabs/ragd/internal/vectorindex"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	bootstrapDir := flag.String("bootstrap-dir", "", "directory of documents seeded into the shared namespace at startup")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *bootstrapDir); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

// run wires all dependencies, starts the HTTP server and blocks until
// the context is cancelled.
func run(ctx context.Context, configPath, bootstrapDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	embedder, err := embeddings.NewTEIProvider(embeddings.TEIConfig{
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		BatchSize: cfg.Embedding.BatchSize,
		Timeout:   cfg.Embedding.Timeout.Duration(),
	}, logger.Underlying())
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}

	index, err := buildIndex(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}

	generator, err := generation.NewGeminiProvider(generation.GeminiConfig{
		BaseURL:           cfg.Generation.BaseURL,
		Model:             cfg.Generation.Model,
		APIKey:            cfg.Generation.APIKey.Value(),
		MaxTokens:         cfg.Generation.MaxTokens,
		Temperature:       cfg.Generation.Temperature,
		Timeout:           cfg.Generation.Timeout.Duration(),
		RequestsPerMinute: cfg.Generation.RequestsPerMinute,
	})
	if err != nil {
		return fmt.Errorf("creating generation provider: %w", err)
	}

	splitter, err := chunker.NewSplitter(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)
	if err != nil {
		return fmt.Errorf("creating splitter: %w", err)
	}

	docs := docstore.NewMemoryStore()
	blobs := blobstore.NewMemoryStore()
	registry := extraction.NewRegistry()
	router := tenant.NewRouter("shared_default")

	pipeline, err := ingest.NewPipeline(docs, blobs, registry, splitter, embedder, index, router,
		ingest.Config{
			RetryAttempts: cfg.Ingest.RetryAttempts,
			RetryBackoff:  cfg.Ingest.RetryBackoff.Duration(),
		}, logger)
	if err != nil {
		return fmt.Errorf("creating ingestion pipeline: %w", err)
	}

	engine, err := query.NewEngine(embedder, index, generator, query.Config{
		TopK:          cfg.Query.TopK,
		RetryAttempts: cfg.Query.RetryAttempts,
		RetryBackoff:  cfg.Query.RetryBackoff.Duration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("creating query engine: %w", err)
	}

	svc, err := ragsvc.New(ragsvc.Deps{
		Docs:      docs,
		Blobs:     blobs,
		Extractor: registry,
		Embedder:  embedder,
		Index:     index,
		Router:    router,
		Pipeline:  pipeline,
		Query:     engine,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	if err := svc.Init(ctx); err != nil {
		return err
	}

	if bootstrapDir != "" {
		files, err := loadBootstrapDir(bootstrapDir)
		if err != nil {
			return fmt.Errorf("reading bootstrap directory: %w", err)
		}
		if err := svc.BootstrapCorpus(ctx, files); err != nil {
			return fmt.Errorf("bootstrapping corpus: %w", err)
		}
	}

	server, err := http.NewServer(svc, logger.Underlying(), &http.Config{
		Host:           "0.0.0.0",
		Port:           cfg.Server.Port,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "shutdown error", zap.Error(err))
		return err
	}
	return nil
}

// loadBootstrapDir reads the regular files of a directory as seed
// documents for the shared corpus. Subdirectories are skipped.
func loadBootstrapDir(dir string) ([]ragsvc.BootstrapFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []ragsvc.BootstrapFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, ragsvc.BootstrapFile{
			Filename: entry.Name(),
			Content:  content,
		})
	}
	return files, nil
}

// buildIndex selects the configured vector index backend.
func buildIndex(cfg *config.Config, logger *logging.Logger) (vectorindex.Index, error) {
	switch cfg.Index.Backend {
	case "qdrant":
		return vectorindex.NewQdrantIndex(vectorindex.QdrantConfig{
			Host:           cfg.Index.Qdrant.Host,
			Port:           cfg.Index.Qdrant.Port,
			UseTLS:         cfg.Index.Qdrant.UseTLS,
			APIKey:         cfg.Index.Qdrant.APIKey.Value(),
			IndexName:      cfg.Index.Name,
			Metric:         cfg.Index.Metric,
			RequestTimeout: cfg.Index.Qdrant.RequestTimeout.Duration(),
		}, logger)
	case "chromem":
		return vectorindex.NewChromemIndex(vectorindex.ChromemConfig{
			Path:      cfg.Index.Chromem.Path,
			Compress:  cfg.Index.Chromem.Compress,
			IndexName: cfg.Index.Name,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}
