package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/ingest"

// Metrics holds all ingestion-related metrics.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	duration  metric.Float64Histogram
	chunks    metric.Int64Histogram
	documents metric.Int64Counter
}

// NewMetrics creates a new Metrics instance for ingestion.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"ragd.ingest.duration_seconds",
		metric.WithDescription("End-to-end ingestion duration per document, labeled by file type and outcome"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.chunks, err = m.meter.Int64Histogram(
		"ragd.ingest.chunks_per_document",
		metric.WithDescription("Number of chunks produced per document"),
		metric.WithUnit("{chunk}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		m.logger.Warn("failed to create chunks histogram", zap.Error(err))
	}

	m.documents, err = m.meter.Int64Counter(
		"ragd.ingest.documents_total",
		metric.WithDescription("Total documents processed by file type and outcome"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		m.logger.Warn("failed to create documents counter", zap.Error(err))
	}
}

// RecordRun records one ingestion attempt.
func (m *Metrics) RecordRun(ctx context.Context, fileType, outcome string, duration time.Duration, chunkCount int) {
	attrs := []attribute.KeyValue{
		attribute.String("file_type", fileType),
		attribute.String("outcome", outcome),
	}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if chunkCount > 0 && m.chunks != nil {
		m.chunks.Record(ctx, int64(chunkCount), metric.WithAttributes(attrs...))
	}
	if m.documents != nil {
		m.documents.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
