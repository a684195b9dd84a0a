package chunker

import (
	"fmt"
	"strings"
)

// Defaults applied when a caller passes non-positive sizes
const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// Split cuts text into overlapping segments of at most chunkSize runes.
// Cuts land on word boundaries where possible, and every chunk after the
// first is prefixed with the trailing overlap runes of its predecessor, so
// Merge with the same overlap reconstructs the text up to whitespace
// normalization.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if chunkSize <= overlap {
		return nil, fmt.Errorf("chunk size (%d) must exceed overlap (%d)", chunkSize, overlap)
	}

	runes := []rune(NormalizeWhitespace(text))
	if len(runes) == 0 {
		return nil, nil
	}

	var chunks []string
	pos := 0
	for pos < len(runes) {
		// Later chunks reserve overlap runes of their budget for the prefix
		window := chunkSize
		if len(chunks) > 0 {
			window = chunkSize - overlap
		}

		end := pos + window
		if end >= len(runes) {
			end = len(runes)
		} else {
			// The first chunk must stay at least overlap runes long so its
			// trailing runes can seed the next chunk's prefix.
			minSegment := 1
			if len(chunks) == 0 {
				minSegment = overlap
			}
			if cut := lastSpaceBefore(runes, pos, end); cut > pos+minSegment {
				end = cut
			}
		}

		segment := string(runes[pos:end])
		if len(chunks) == 0 {
			chunks = append(chunks, segment)
		} else {
			prefix := lastRunes(chunks[len(chunks)-1], overlap)
			chunks = append(chunks, prefix+segment)
		}
		pos = end
	}
	return chunks, nil
}

// Merge reconstructs the split text by dropping each subsequent chunk's
// overlap prefix. The overlap must match the value passed to Split.
func Merge(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}

	var result strings.Builder
	result.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		runes := []rune(chunk)
		drop := overlap
		if drop > len(runes) {
			drop = len(runes)
		}
		result.WriteString(string(runes[drop:]))
	}
	return result.String()
}

// NormalizeWhitespace collapses all whitespace runs to single spaces, the
// equivalence under which Merge∘Split is an identity.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// lastSpaceBefore returns the index just past the last space in
// runes[pos:end], or -1 when the range contains none.
func lastSpaceBefore(runes []rune, pos, end int) int {
	for j := end; j > pos; j-- {
		if runes[j-1] == ' ' {
			return j
		}
	}
	return -1
}

func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
