package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DocxExtractor extracts text from DOCX files. A DOCX is a zip archive
// whose word/document.xml holds the text runs; everything else
// (styles, media, headers) is ignored.
type DocxExtractor struct{}

// NewDocxExtractor creates an extractor for DOCX files.
func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{}
}

// FileTypes returns the DOCX format.
func (e *DocxExtractor) FileTypes() []string {
	return []string{"docx"}
}

// Extract walks the document XML collecting text runs. Paragraph and
// tab elements become newlines and tabs so the structure survives
// chunking.
func (e *DocxExtractor) Extract(_ context.Context, data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not a zip archive: %v", ErrExtractionFailed, err)
	}

	var document *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			document = f
			break
		}
	}
	if document == nil {
		return "", fmt.Errorf("%w: word/document.xml missing", ErrExtractionFailed)
	}

	rc, err := document.Open()
	if err != nil {
		return "", fmt.Errorf("%w: opening document.xml: %v", ErrExtractionFailed, err)
	}
	defer rc.Close()

	return parseDocumentXML(rc)
}

func parseDocumentXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: malformed document XML: %v", ErrExtractionFailed, err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
