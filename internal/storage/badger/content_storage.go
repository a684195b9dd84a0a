package badger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
	"github.com/shibazach/rag-local-dev-sub000/internal/models"
)

// ContentStorage implements the ContentStore interface for Badger.
// All multi-record writes run inside a single badger transaction so a
// storage error never leaves a partial record behind.
type ContentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewContentStorage creates a new ContentStorage instance
func NewContentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ContentStore {
	return &ContentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ContentStorage) Put(ctx context.Context, data []byte, filename, mimeType string) (*interfaces.PutResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty content")
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	var result *interfaces.PutResult
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var existing []models.Blob
		if err := s.db.Store().TxFind(txn, &existing,
			badgerhold.Where("Checksum").Eq(checksum).Index("Checksum")); err != nil {
			return fmt.Errorf("checksum lookup failed: %w", err)
		}
		if len(existing) > 0 {
			result = &interfaces.PutResult{
				BlobID:   existing[0].ID,
				Checksum: checksum,
				Size:     int64(len(existing[0].Data)),
				IsNew:    false,
			}
			return nil
		}

		now := time.Now()
		blob := models.Blob{
			ID:       common.NewBlobID(),
			Checksum: checksum,
			Data:     data,
			StoredAt: now,
		}
		meta := models.Meta{
			BlobID:    blob.ID,
			Filename:  filename,
			MimeType:  mimeType,
			Size:      int64(len(data)),
			Status:    models.MetaStatusUploaded,
			Stage:     string(models.StageQueued),
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := s.db.Store().TxInsert(txn, blob.ID, blob); err != nil {
			return fmt.Errorf("failed to insert blob: %w", err)
		}
		if err := s.db.Store().TxInsert(txn, meta.BlobID, meta); err != nil {
			return fmt.Errorf("failed to insert meta: %w", err)
		}

		result = &interfaces.PutResult{
			BlobID:   blob.ID,
			Checksum: checksum,
			Size:     int64(len(data)),
			IsNew:    true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("blob_id", result.BlobID).
		Str("checksum", checksum[:12]).
		Bool("is_new", result.IsNew).
		Int64("size", result.Size).
		Msg("Blob stored")

	return result, nil
}

func (s *ContentStorage) Get(ctx context.Context, blobID string) ([]byte, error) {
	var blob models.Blob
	if err := s.db.Store().Get(blobID, &blob); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("blob %s: %w", blobID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return blob.Data, nil
}

func (s *ContentStorage) GetMeta(ctx context.Context, blobID string) (*models.Meta, error) {
	var meta models.Meta
	if err := s.db.Store().Get(blobID, &meta); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("meta %s: %w", blobID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get meta: %w", err)
	}
	return &meta, nil
}

func (s *ContentStorage) ListMetas(ctx context.Context, limit, offset int) ([]*models.Meta, error) {
	query := badgerhold.Where("BlobID").Ne("")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}

	var metas []models.Meta
	if err := s.db.Store().Find(&metas, query); err != nil {
		return nil, fmt.Errorf("failed to list metas: %w", err)
	}

	result := make([]*models.Meta, len(metas))
	for i := range metas {
		result[i] = &metas[i]
	}
	return result, nil
}

func (s *ContentStorage) UpdateMetaProgress(ctx context.Context, blobID, status, stage string, pageCount int) error {
	var meta models.Meta
	if err := s.db.Store().Get(blobID, &meta); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("meta %s: %w", blobID, interfaces.ErrNotFound)
		}
		return fmt.Errorf("failed to get meta: %w", err)
	}

	meta.Status = status
	meta.Stage = stage
	if pageCount > 0 {
		meta.PageCount = pageCount
	}
	meta.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(blobID, meta); err != nil {
		return fmt.Errorf("failed to update meta: %w", err)
	}
	return nil
}

func (s *ContentStorage) GetText(ctx context.Context, blobID string) (*models.TextRecord, error) {
	var rec models.TextRecord
	if err := s.db.Store().Get(blobID, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get text record: %w", err)
	}
	return &rec, nil
}

func (s *ContentStorage) UpsertText(ctx context.Context, blobID string, fields models.TextFields, gate models.PersistGate) (bool, string, error) {
	stored := false
	reason := ""

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var prior *models.TextRecord
		var existing models.TextRecord
		err := s.db.Store().TxGet(txn, blobID, &existing)
		switch err {
		case nil:
			prior = &existing
		case badgerhold.ErrNotFound:
			prior = nil
		default:
			return fmt.Errorf("failed to read prior text: %w", err)
		}

		ok, why := gate.ShouldStore(prior)
		reason = why
		if !ok {
			return nil
		}

		rec := models.TextRecord{
			BlobID:       blobID,
			RawText:      fields.RawText,
			RefinedText:  fields.RefinedText,
			QualityScore: fields.QualityScore,
			Language:     fields.Language,
			Tags:         fields.Tags,
			UpdatedAt:    time.Now(),
		}
		// Raw text is set once per extraction; keep the prior raw text
		// when a reprocessing run didn't re-extract.
		if rec.RawText == "" && prior != nil {
			rec.RawText = prior.RawText
		}

		if err := s.db.Store().TxUpsert(txn, blobID, rec); err != nil {
			return fmt.Errorf("failed to upsert text record: %w", err)
		}
		stored = true
		return nil
	})
	if err != nil {
		return false, "", err
	}

	s.logger.Debug().
		Str("blob_id", blobID).
		Bool("stored", stored).
		Str("reason", reason).
		Float64("score", fields.QualityScore).
		Msg("Text persistence gate evaluated")

	return stored, reason, nil
}

func (s *ContentStorage) ReplaceChunks(ctx context.Context, blobID, model string, chunks []models.Chunk) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		if err := s.db.Store().TxDeleteMatching(txn, &models.Chunk{},
			badgerhold.Where("BlobID").Eq(blobID).Index("BlobID").And("Model").Eq(model)); err != nil {
			return fmt.Errorf("failed to delete prior chunks: %w", err)
		}
		for i := range chunks {
			chunks[i].ID = common.NewChunkID()
			chunks[i].BlobID = blobID
			chunks[i].Model = model
			if chunks[i].CreatedAt.IsZero() {
				chunks[i].CreatedAt = time.Now()
			}
			if err := s.db.Store().TxInsert(txn, chunks[i].ID, chunks[i]); err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("blob_id", blobID).
		Str("model", model).
		Int("chunks", len(chunks)).
		Msg("Chunks replaced")

	return nil
}

func (s *ContentStorage) GetChunks(ctx context.Context, blobID string) ([]models.Chunk, error) {
	var chunks []models.Chunk
	if err := s.db.Store().Find(&chunks,
		badgerhold.Where("BlobID").Eq(blobID).Index("BlobID").SortBy("Model", "Index")); err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	return chunks, nil
}

func (s *ContentStorage) Delete(ctx context.Context, blobID string) error {
	return s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		if err := s.db.Store().TxDelete(txn, blobID, &models.Blob{}); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("blob %s: %w", blobID, interfaces.ErrNotFound)
			}
			return fmt.Errorf("failed to delete blob: %w", err)
		}
		if err := s.db.Store().TxDelete(txn, blobID, &models.Meta{}); err != nil && err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to delete meta: %w", err)
		}
		if err := s.db.Store().TxDelete(txn, blobID, &models.TextRecord{}); err != nil && err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to delete text record: %w", err)
		}
		if err := s.db.Store().TxDeleteMatching(txn, &models.Chunk{},
			badgerhold.Where("BlobID").Eq(blobID).Index("BlobID")); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		return nil
	})
}

func (s *ContentStorage) Ping(ctx context.Context) error {
	if s.db == nil || s.db.Ping() != nil {
		return interfaces.ErrStoreUnavailable
	}
	return nil
}
