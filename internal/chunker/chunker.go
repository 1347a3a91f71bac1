// Package chunker splits extracted document text into overlapping
// fixed-size segments for embedding.
package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates invalid chunking parameters.
var ErrInvalidConfig = errors.New("invalid chunking configuration")

// Splitter produces contiguous overlapping windows over a text.
//
// Sizes are rune counts. Splitting is deterministic and greedy: windows
// of ChunkSize start at positions spaced by ChunkSize-Overlap, and a
// trailing remainder shorter than the overlap is absorbed by the
// preceding chunk instead of being emitted on its own.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. Overlap must be smaller than the chunk
// size; violating that is a configuration error, rejected here rather
// than per call.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfig, overlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// ChunkSize returns the configured window size.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap between consecutive windows.
func (s *Splitter) Overlap() int { return s.overlap }

// Split walks the text producing ordered overlapping chunks.
// Empty input yields no chunks, not an error.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	step := s.chunkSize - s.overlap

	var chunks []string
	for start := 0; start < n; start += step {
		end := start + s.chunkSize
		if end > n {
			end = n
		}
		// A remainder shorter than the overlap is already fully
		// contained in the previous chunk.
		if end-start < s.overlap && len(chunks) > 0 {
			break
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return chunks
}
