package extraction

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"
)

// TextExtractor handles plain text formats. Content must be valid
// UTF-8; a stripped byte order mark is the only transformation.
type TextExtractor struct{}

// NewTextExtractor creates an extractor for plain text formats.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// FileTypes returns the plain text formats.
func (e *TextExtractor) FileTypes() []string {
	return []string{"txt", "md", "csv", "log"}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Extract validates and returns the text content.
func (e *TextExtractor) Extract(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: content is not valid UTF-8", ErrExtractionFailed)
	}
	return string(data), nil
}
