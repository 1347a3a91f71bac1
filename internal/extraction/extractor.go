// Package extraction converts uploaded files into plain text.
//
// Extractors are selected by the declared file type, never by sniffing
// content. A file claiming to be a PDF that is not one fails with
// ErrExtractionFailed rather than being reinterpreted.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for extraction.
var (
	// ErrUnsupportedFileType indicates no extractor handles the type.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrExtractionFailed indicates the content could not be parsed as
	// the declared type.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrEmptyContent indicates the file held no extractable text.
	ErrEmptyContent = errors.New("no extractable text")
)

// Extractor converts one file format into plain text.
type Extractor interface {
	// Extract returns the plain text content of data.
	Extract(ctx context.Context, data []byte) (string, error)

	// FileTypes lists the file type identifiers this extractor handles.
	FileTypes() []string
}

// Registry routes extraction by declared file type.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry creates a registry with the default extractors: plain
// text formats, PDF and DOCX.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register(NewTextExtractor())
	r.Register(NewPDFExtractor())
	r.Register(NewDocxExtractor())
	return r
}

// Register adds an extractor for each of its file types, replacing any
// previous registration.
func (r *Registry) Register(e Extractor) {
	for _, ft := range e.FileTypes() {
		r.extractors[normalizeFileType(ft)] = e
	}
}

// Supports reports whether the file type has a registered extractor.
func (r *Registry) Supports(fileType string) bool {
	_, ok := r.extractors[normalizeFileType(fileType)]
	return ok
}

// SupportedTypes lists all registered file types.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.extractors))
	for ft := range r.extractors {
		types = append(types, ft)
	}
	return types
}

// Extract converts data to plain text using the extractor registered
// for the declared file type.
func (r *Registry) Extract(ctx context.Context, fileType string, data []byte) (string, error) {
	e, ok := r.extractors[normalizeFileType(fileType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, fileType)
	}
	text, err := e.Extract(ctx, data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s file", ErrEmptyContent, fileType)
	}
	return text, nil
}

// normalizeFileType lowercases and strips a leading dot, so "PDF",
// "pdf" and ".pdf" all resolve to the same extractor.
func normalizeFileType(ft string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ft)), ".")
}
