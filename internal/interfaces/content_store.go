package interfaces

import (
	"context"
	"errors"

	"github.com/shibazach/rag-local-dev-sub000/internal/models"
)

// ErrNotFound is returned when a blob, meta, or text record does not exist
var ErrNotFound = errors.New("record not found")

// ErrStoreUnavailable marks a system-level storage failure; the
// orchestrator aborts the whole job when it sees this, while ordinary
// write failures stay file-scoped.
var ErrStoreUnavailable = errors.New("content store unavailable")

// PutResult describes the outcome of a content-addressed write
type PutResult struct {
	BlobID   string `json:"blob_id"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
	IsNew    bool   `json:"is_new"`
}

// ContentStore is the content-addressed blob store with sibling metadata,
// extracted-text records, and chunk vectors. Multi-record writes are
// atomic: a failure leaves no partial record.
type ContentStore interface {
	// Put stores bytes under their checksum. A checksum hit returns the
	// existing blob id with IsNew=false without rewriting the bytes; a
	// miss inserts Blob+Meta in one transaction.
	Put(ctx context.Context, data []byte, filename, mimeType string) (*PutResult, error)

	Get(ctx context.Context, blobID string) ([]byte, error)
	GetMeta(ctx context.Context, blobID string) (*models.Meta, error)
	ListMetas(ctx context.Context, limit, offset int) ([]*models.Meta, error)

	// UpdateMetaProgress records the pipeline's status/stage/page count
	// for a blob. The orchestrator is the only caller.
	UpdateMetaProgress(ctx context.Context, blobID, status, stage string, pageCount int) error

	// GetText returns nil (not an error) when no text has been stored yet
	GetText(ctx context.Context, blobID string) (*models.TextRecord, error)

	// UpsertText applies the persistence gate and, when it allows,
	// replaces the stored text in one transaction. Returns whether the
	// write happened and the gate's reason either way.
	UpsertText(ctx context.Context, blobID string, fields models.TextFields, gate models.PersistGate) (bool, string, error)

	// ReplaceChunks deletes the blob's chunks for the given model and
	// writes the new set atomically.
	ReplaceChunks(ctx context.Context, blobID, model string, chunks []models.Chunk) error
	GetChunks(ctx context.Context, blobID string) ([]models.Chunk, error)

	// Delete removes the blob and cascades to Meta, TextRecord, and Chunks
	Delete(ctx context.Context, blobID string) error

	// Ping verifies the store is reachable before a batch starts
	Ping(ctx context.Context) error
}
