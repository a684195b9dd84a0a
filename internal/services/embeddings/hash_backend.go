package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// hashBackend is a deterministic, dependency-free embedding backend built
// on token feature hashing. Vectors are stable across processes for the
// same model identifier and dimension, which makes it usable offline and
// in tests, at the cost of semantic quality.
type hashBackend struct {
	model string
	dim   int
}

func newHashBackend(model string, dim int) *hashBackend {
	return &hashBackend{model: model, dim: dim}
}

func (b *hashBackend) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = b.embedText(text)
	}
	return vectors, nil
}

// embedText hashes each token into a bucket with a hash-derived sign, then
// L2-normalizes the accumulated vector.
func (b *hashBackend) embedText(text string) []float32 {
	vector := make([]float32, b.dim)

	for _, token := range tokenize(text) {
		hasher := fnv.New64a()
		hasher.Write([]byte(token))
		h := hasher.Sum64()

		bucket := int(h % uint64(b.dim))
		sign := float32(1)
		if (h>>63)&1 == 1 {
			sign = -1
		}
		vector[bucket] += sign
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}
	return vector
}

func (b *hashBackend) modelIdentifier() string { return b.model }
func (b *hashBackend) dimension() int          { return b.dim }

// tokenize lowercases and splits on non-letter/digit boundaries. CJK runs
// are split into single-rune tokens so spaceless text still produces a
// spread of features.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case r > unicode.MaxASCII && unicode.IsLetter(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}
