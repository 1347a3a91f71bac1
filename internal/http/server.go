// Package http provides the HTTP API for ragd.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/docstore"
	"github.com/fyrsmithlabs/ragd/internal/query"
	"github.com/fyrsmithlabs/ragd/internal/ragsvc"
)

// Server provides HTTP endpoints for ragd.
type Server struct {
	echo    *echo.Echo
	service *ragsvc.Service
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64
}

// NewServer creates a new HTTP server.
func NewServer(service *ragsvc.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 * 1024 * 1024
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%d", cfg.MaxUploadBytes)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleUpload)
	v1.GET("/documents", s.handleList)
	v1.GET("/documents/:id", s.handleStatus)
	v1.POST("/documents/:id/retry", s.handleRetry)
	v1.POST("/chat", s.handleChat)
	v1.GET("/vectors/count", s.handleVectorCount)
}

// DocumentResponse is the JSON shape of a document record.
type DocumentResponse struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id,omitempty"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	SizeBytes  int64  `json:"size_bytes"`
	Namespace  string `json:"namespace"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toDocumentResponse(doc *docstore.Document) DocumentResponse {
	return DocumentResponse{
		ID:         doc.ID,
		TenantID:   doc.TenantID,
		Filename:   doc.Filename,
		FileType:   doc.FileType,
		SizeBytes:  doc.SizeBytes,
		Namespace:  doc.Namespace,
		Status:     string(doc.Status),
		Error:      doc.Error,
		ChunkCount: doc.ChunkCount,
		CreatedAt:  doc.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  doc.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ChatRequest is the request body for POST /api/v1/chat.
type ChatRequest struct {
	TenantID       string `json:"tenant_id"`
	Question       string `json:"question"`
	TopK           int    `json:"top_k"`
	IncludeSources bool   `json:"include_sources"`
}

// ChatResponse is the response body for POST /api/v1/chat.
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

// VectorCountResponse is the response body for GET /api/v1/vectors/count.
type VectorCountResponse struct {
	TotalVectors int            `json:"total_vectors"`
	Namespaces   map[string]int `json:"namespaces"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleUpload accepts a multipart document upload and processes it.
// The response carries the final ingestion state.
func (s *Server) handleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, s.config.MaxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	if int64(len(content)) > s.config.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload too large")
	}

	doc, err := s.service.Ingest(c.Request().Context(), ragsvc.UploadRequest{
		TenantID: c.FormValue("tenant_id"),
		Filename: fileHeader.Filename,
		FileType: c.FormValue("file_type"),
		Content:  content,
	})
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, toDocumentResponse(doc))
}

// handleList returns a tenant's documents.
func (s *Server) handleList(c echo.Context) error {
	docs, err := s.service.ListDocuments(c.Request().Context(), c.QueryParam("tenant_id"))
	if err != nil {
		return s.mapError(err)
	}
	out := make([]DocumentResponse, len(docs))
	for i, doc := range docs {
		out[i] = toDocumentResponse(doc)
	}
	return c.JSON(http.StatusOK, out)
}

// handleStatus returns one document's record.
func (s *Server) handleStatus(c echo.Context) error {
	doc, err := s.service.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, toDocumentResponse(doc))
}

// handleRetry re-processes a failed document.
func (s *Server) handleRetry(c echo.Context) error {
	doc, err := s.service.RetryIngest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, toDocumentResponse(doc))
}

// handleChat answers a question.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	answer, err := s.service.AnswerQuestion(c.Request().Context(), ragsvc.AskRequest{
		TenantID:    req.TenantID,
		Question:    req.Question,
		TopK:        req.TopK,
		WantSources: req.IncludeSources,
	})
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, ChatResponse{Answer: answer.Text, Sources: answer.Sources})
}

// handleVectorCount returns index-wide vector statistics.
func (s *Server) handleVectorCount(c echo.Context) error {
	stats, err := s.service.VectorCount(c.Request().Context())
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, VectorCountResponse{
		TotalVectors: stats.TotalVectors,
		Namespaces:   stats.Namespaces,
	})
}

// mapError converts service errors to HTTP status codes.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ragsvc.ErrNotRetryable),
		errors.Is(err, docstore.ErrInvalidState),
		errors.Is(err, docstore.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ragsvc.ErrEmptyUpload),
		errors.Is(err, ragsvc.ErrMissingTenant),
		errors.Is(err, query.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
