package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

func newTestEmbeddings() *Service {
	cfg := &common.EmbeddingsConfig{
		Backends: map[string]common.EmbeddingBackendSpec{
			"local": {Kind: "hash", Model: "feature-hash-v1", Dimension: 64},
		},
		DefaultBackend: "local",
		BatchSize:      8,
	}
	return NewService(cfg, nil, arbor.NewLogger())
}

func TestUnknownBackendKey(t *testing.T) {
	service := newTestEmbeddings()

	_, err := service.Embed(context.Background(), []string{"text"}, "missing")
	require.ErrorIs(t, err, interfaces.ErrUnknownBackend)

	_, err = service.ModelIdentifier("missing")
	require.ErrorIs(t, err, interfaces.ErrUnknownBackend)

	_, err = service.Dimension("missing")
	require.ErrorIs(t, err, interfaces.ErrUnknownBackend)
}

func TestBackendMetadata(t *testing.T) {
	service := newTestEmbeddings()

	model, err := service.ModelIdentifier("local")
	require.NoError(t, err)
	assert.Equal(t, "feature-hash-v1", model)

	dim, err := service.Dimension("local")
	require.NoError(t, err)
	assert.Equal(t, 64, dim)
}

func TestHashBackendDeterministic(t *testing.T) {
	service := newTestEmbeddings()

	first, err := service.EmbedOne(context.Background(), "the quick brown fox", "local")
	require.NoError(t, err)
	second, err := service.EmbedOne(context.Background(), "the quick brown fox", "local")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestHashBackendDistinguishesTexts(t *testing.T) {
	service := newTestEmbeddings()

	a, err := service.EmbedOne(context.Background(), "invoices and receipts", "local")
	require.NoError(t, err)
	b, err := service.EmbedOne(context.Background(), "completely unrelated words here", "local")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashBackendNormalized(t *testing.T) {
	service := newTestEmbeddings()

	vec, err := service.EmbedOne(context.Background(), "some words to embed into a vector", "local")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestEmbedBatchesLargeInput(t *testing.T) {
	service := newTestEmbeddings()

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = "text number " + string(rune('a'+i))
	}

	vectors, err := service.Embed(context.Background(), texts, "local")
	require.NoError(t, err)
	assert.Len(t, vectors, 20)
}

func TestEmbedEmptyInput(t *testing.T) {
	service := newTestEmbeddings()

	vectors, err := service.Embed(context.Background(), nil, "local")
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestTokenizeCJK(t *testing.T) {
	tokens := tokenize("日本語text 123")
	assert.Equal(t, []string{"日", "本", "語", "text", "123"}, tokens)
}
