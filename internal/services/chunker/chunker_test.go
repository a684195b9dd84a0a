package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitValidation(t *testing.T) {
	_, err := Split("some text", 50, 50)
	require.Error(t, err)

	_, err = Split("some text", 40, 50)
	require.Error(t, err)
}

func TestSplitEmptyText(t *testing.T) {
	chunks, err := Split("   \n\t  ", 100, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	chunks, err := Split("a short sentence", 100, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short sentence", chunks[0])
}

func TestSplitChunkSizeCeiling(t *testing.T) {
	text := strings.Repeat("word ", 200)
	chunks, err := Split(text, 80, 20)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 80, "chunk %d exceeds size", i)
	}
}

func TestSplitOverlapPrefix(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 30)
	overlap := 15
	chunks, err := Split(text, 60, overlap)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		curr := []rune(chunks[i])
		require.GreaterOrEqual(t, len(curr), overlap)
		assert.Equal(t, string(prev[len(prev)-overlap:]), string(curr[:overlap]),
			"chunk %d does not start with the previous chunk's tail", i)
	}
}

func TestMergeRoundTrip(t *testing.T) {
	cases := map[string]struct {
		text      string
		chunkSize int
		overlap   int
	}{
		"english prose":  {strings.Repeat("the quick brown fox jumps over the lazy dog ", 40), 120, 30},
		"single word":    {"supercalifragilisticexpialidocious", 10, 3},
		"messy space":    {"first\t\tsecond\n\n\nthird   fourth", 12, 4},
		"japanese":       {strings.Repeat("これは日本語の文書です。", 25), 50, 10},
		"tiny chunks":    {strings.Repeat("ab cd ef gh ", 50), 8, 2},
		"exact boundary": {strings.Repeat("x", 100), 25, 5},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			chunks, err := Split(tc.text, tc.chunkSize, tc.overlap)
			require.NoError(t, err)

			merged := Merge(chunks, tc.overlap)
			assert.Equal(t, NormalizeWhitespace(tc.text), merged)
		})
	}
}

func TestMergeEmpty(t *testing.T) {
	assert.Equal(t, "", Merge(nil, 10))
}
