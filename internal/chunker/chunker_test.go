package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
		wantErr   bool
	}{
		{name: "valid", chunkSize: 500, overlap: 20},
		{name: "zero overlap", chunkSize: 100, overlap: 0},
		{name: "zero chunk size", chunkSize: 0, overlap: 0, wantErr: true},
		{name: "negative overlap", chunkSize: 100, overlap: -1, wantErr: true},
		{name: "overlap equals chunk size", chunkSize: 100, overlap: 100, wantErr: true},
		{name: "overlap exceeds chunk size", chunkSize: 100, overlap: 150, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSplitter(tt.chunkSize, tt.overlap)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.chunkSize, s.ChunkSize())
			assert.Equal(t, tt.overlap, s.Overlap())
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	s, err := NewSplitter(500, 20)
	require.NoError(t, err)
	assert.Empty(t, s.Split(""))
}

func TestSplit_ShorterThanChunkSize(t *testing.T) {
	s, err := NewSplitter(500, 20)
	require.NoError(t, err)

	chunks := s.Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplit_1200CharsYieldsThreeChunks(t *testing.T) {
	s, err := NewSplitter(500, 20)
	require.NoError(t, err)

	text := strings.Repeat("a", 1200)
	chunks := s.Split(text)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[1], 500)
	assert.Len(t, chunks[2], 240) // 1200 - 2*480
}

// ceilDiv is integer ceiling division for positive operands.
func ceilDiv(a, b int) int { return (a + b - 1) / b }

func TestSplit_ChunkCountFormula(t *testing.T) {
	const chunkSize, overlap = 100, 30
	s, err := NewSplitter(chunkSize, overlap)
	require.NoError(t, err)

	for _, length := range []int{1, 29, 30, 31, 99, 100, 101, 170, 171, 500, 1234} {
		text := strings.Repeat("x", length)
		chunks := s.Split(text)

		want := 1
		if length > overlap {
			want = ceilDiv(length-overlap, chunkSize-overlap)
		}
		assert.Len(t, chunks, want, "length %d", length)
	}
}

func TestSplit_OverlapReconstruction(t *testing.T) {
	const chunkSize, overlap = 50, 10
	s, err := NewSplitter(chunkSize, overlap)
	require.NoError(t, err)

	// Distinct runes so reconstruction errors are visible.
	var sb strings.Builder
	for i := 0; i < 337; i++ {
		sb.WriteRune(rune('0' + i%75))
	}
	text := sb.String()

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)

	// Dropping the leading overlap from every chunk after the first
	// must reproduce the original text exactly.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		rebuilt.WriteString(string([]rune(c)[overlap:]))
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestSplit_ConsecutiveChunksShareOverlap(t *testing.T) {
	s, err := NewSplitter(40, 8)
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij", 20)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		curr := []rune(chunks[i])
		assert.Equal(t, string(prev[len(prev)-8:]), string(curr[:8]), "chunk %d", i)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s, err := NewSplitter(64, 16)
	require.NoError(t, err)

	text := strings.Repeat("the quick brown fox ", 50)
	assert.Equal(t, s.Split(text), s.Split(text))
}

func TestSplit_MultibyteRunes(t *testing.T) {
	s, err := NewSplitter(10, 2)
	require.NoError(t, err)

	text := strings.Repeat("日本語テキスト分割処理", 3) // 30 runes
	chunks := s.Split(text)
	require.Len(t, chunks, 4) // ceil((30-2)/8)

	for i, c := range chunks[:len(chunks)-1] {
		assert.Equal(t, 10, len([]rune(c)), "chunk %d", i)
	}
}
