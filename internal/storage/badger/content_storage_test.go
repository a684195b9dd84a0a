package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
	"github.com/shibazach/rag-local-dev-sub000/internal/models"
)

func newTestStorage(t *testing.T) interfaces.ContentStore {
	t.Helper()

	tmpDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	db := &BadgerDB{store: store}
	return NewContentStorage(db, arbor.NewLogger())
}

func TestPutDeduplicatesByChecksum(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	data := []byte("the same bytes, uploaded twice")

	first, err := storage.Put(ctx, data, "a.pdf", "application/pdf")
	require.NoError(t, err)
	require.True(t, first.IsNew)
	require.NotEmpty(t, first.Checksum)

	second, err := storage.Put(ctx, data, "b.pdf", "application/pdf")
	require.NoError(t, err)
	require.False(t, second.IsNew)
	require.Equal(t, first.BlobID, second.BlobID)
	require.Equal(t, first.Checksum, second.Checksum)

	// The original meta is untouched by the duplicate upload
	meta, err := storage.GetMeta(ctx, first.BlobID)
	require.NoError(t, err)
	require.Equal(t, "a.pdf", meta.Filename)
}

func TestPutRejectsEmptyContent(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.Put(context.Background(), nil, "x.pdf", "application/pdf")
	require.Error(t, err)
}

func TestGetReturnsStoredBytes(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	data := []byte("document body")
	res, err := storage.Put(ctx, data, "doc.txt", "text/plain")
	require.NoError(t, err)

	got, err := storage.Get(ctx, res.BlobID)
	require.NoError(t, err)
	require.Equal(t, data, got)

	_, err = storage.Get(ctx, "blob_missing")
	require.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestUpsertTextGateScenarios(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, storage interfaces.ContentStore, priorScore float64) string {
		res, err := storage.Put(ctx, []byte("gate test"), "g.pdf", "application/pdf")
		require.NoError(t, err)
		stored, _, err := storage.UpsertText(ctx, res.BlobID, models.TextFields{
			RawText:      "raw",
			RefinedText:  "prior refined",
			QualityScore: priorScore,
		}, models.PersistGate{OverwriteExisting: true})
		require.NoError(t, err)
		require.True(t, stored)
		return res.BlobID
	}

	t.Run("no prior text is always stored", func(t *testing.T) {
		storage := newTestStorage(t)
		res, err := storage.Put(ctx, []byte("fresh"), "f.pdf", "application/pdf")
		require.NoError(t, err)

		stored, reason, err := storage.UpsertText(ctx, res.BlobID, models.TextFields{
			RawText:      "raw",
			RefinedText:  "refined",
			QualityScore: 0.4,
		}, models.PersistGate{QualityThreshold: 0.7, NewMinPageScore: 0.4})
		require.NoError(t, err)
		require.True(t, stored)
		require.Equal(t, "no prior refined text", reason)
	})

	t.Run("overwrite stores regardless of scores", func(t *testing.T) {
		storage := newTestStorage(t)
		blobID := seed(t, storage, 0.9)

		stored, _, err := storage.UpsertText(ctx, blobID, models.TextFields{
			RefinedText:  "new refined",
			QualityScore: 0.1,
		}, models.PersistGate{OverwriteExisting: true, QualityThreshold: 0.7, NewMinPageScore: 0.95})
		require.NoError(t, err)
		require.True(t, stored)
	})

	t.Run("prior below threshold is replaceable even without overwrite", func(t *testing.T) {
		storage := newTestStorage(t)
		blobID := seed(t, storage, 0.5)

		// The new score improves on the prior but still sits under the
		// threshold; the weak prior alone allows the write.
		stored, reason, err := storage.UpsertText(ctx, blobID, models.TextFields{
			RefinedText:  "improved refined",
			QualityScore: 0.65,
		}, models.PersistGate{QualityThreshold: 0.7, NewMinPageScore: 0.65})
		require.NoError(t, err)
		require.True(t, stored)
		require.Equal(t, "prior score below threshold", reason)

		rec, err := storage.GetText(ctx, blobID)
		require.NoError(t, err)
		require.Equal(t, "improved refined", rec.RefinedText)
		require.Equal(t, 0.65, rec.QualityScore)
	})

	t.Run("degradation below prior score is captured", func(t *testing.T) {
		storage := newTestStorage(t)
		blobID := seed(t, storage, 0.9)

		stored, reason, err := storage.UpsertText(ctx, blobID, models.TextFields{
			RefinedText:  "degraded refined",
			QualityScore: 0.5,
		}, models.PersistGate{QualityThreshold: 0.7, NewMinPageScore: 0.5})
		require.NoError(t, err)
		require.True(t, stored)
		require.Equal(t, "degradation captured", reason)

		rec, err := storage.GetText(ctx, blobID)
		require.NoError(t, err)
		require.Equal(t, 0.5, rec.QualityScore)
		require.Equal(t, "degraded refined", rec.RefinedText)
	})

	t.Run("healthy prior with no improvement is skipped", func(t *testing.T) {
		storage := newTestStorage(t)
		blobID := seed(t, storage, 0.9)

		stored, reason, err := storage.UpsertText(ctx, blobID, models.TextFields{
			RefinedText:  "should not be stored",
			QualityScore: 0.95,
		}, models.PersistGate{QualityThreshold: 0.7, NewMinPageScore: 0.95})
		require.NoError(t, err)
		require.False(t, stored)
		require.Equal(t, "skipped", reason)

		rec, err := storage.GetText(ctx, blobID)
		require.NoError(t, err)
		require.Equal(t, "prior refined", rec.RefinedText)
		require.Equal(t, 0.9, rec.QualityScore)
	})
}

func TestReplaceChunksAndCascadeDelete(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	res, err := storage.Put(ctx, []byte("chunked doc"), "c.pdf", "application/pdf")
	require.NoError(t, err)

	chunks := []models.Chunk{
		{Index: 0, Content: "first", Vector: []float32{0.1, 0.2}},
		{Index: 1, Content: "second", Vector: []float32{0.3, 0.4}},
	}
	require.NoError(t, storage.ReplaceChunks(ctx, res.BlobID, "feature-hash-v1", chunks))

	got, err := storage.GetChunks(ctx, res.BlobID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Reprocessing replaces, not appends
	require.NoError(t, storage.ReplaceChunks(ctx, res.BlobID, "feature-hash-v1", chunks[:1]))
	got, err = storage.GetChunks(ctx, res.BlobID)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Chunks for a different model are independent
	require.NoError(t, storage.ReplaceChunks(ctx, res.BlobID, "other-model", chunks))
	got, err = storage.GetChunks(ctx, res.BlobID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.NoError(t, storage.Delete(ctx, res.BlobID))

	_, err = storage.Get(ctx, res.BlobID)
	require.ErrorIs(t, err, interfaces.ErrNotFound)
	got, err = storage.GetChunks(ctx, res.BlobID)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPingReportsClosedStore(t *testing.T) {
	tmpDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)

	db := &BadgerDB{store: store}
	storage := NewContentStorage(db, arbor.NewLogger())

	require.NoError(t, storage.Ping(context.Background()))

	require.NoError(t, store.Close())
	require.ErrorIs(t, storage.Ping(context.Background()), interfaces.ErrStoreUnavailable)
}

func TestUpdateMetaProgress(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	res, err := storage.Put(ctx, []byte("meta test"), "m.pdf", "application/pdf")
	require.NoError(t, err)

	require.NoError(t, storage.UpdateMetaProgress(ctx, res.BlobID, models.MetaStatusProcessing, string(models.StageExtracting), 7))

	meta, err := storage.GetMeta(ctx, res.BlobID)
	require.NoError(t, err)
	require.Equal(t, models.MetaStatusProcessing, meta.Status)
	require.Equal(t, string(models.StageExtracting), meta.Stage)
	require.Equal(t, 7, meta.PageCount)
}
