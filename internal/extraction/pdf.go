package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts text from PDF files.
type PDFExtractor struct{}

// NewPDFExtractor creates an extractor for PDF files.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// FileTypes returns the PDF format.
func (e *PDFExtractor) FileTypes() []string {
	return []string{"pdf"}
}

// Extract pulls the plain text of every page. Pages are joined with
// blank lines so chunk boundaries never glue two pages into one word.
//
// The parser panics on some malformed inputs, so extraction runs
// behind a recover that converts panics into ErrExtractionFailed.
func (e *PDFExtractor) Extract(_ context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: malformed PDF: %v", ErrExtractionFailed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrExtractionFailed, i, err)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		pages = append(pages, content)
	}
	return strings.Join(pages, "\n\n"), nil
}
