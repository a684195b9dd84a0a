package models

import (
	"time"
)

// Meta status values driven by the ingestion pipeline
const (
	MetaStatusUploaded   = "uploaded"
	MetaStatusProcessing = "processing"
	MetaStatusProcessed  = "processed"
	MetaStatusFailed     = "failed"
)

// Blob is an immutable, content-addressed binary record.
// Identical uploads resolve to the same Blob via the checksum.
type Blob struct {
	ID       string    `badgerhold:"key" json:"id"` // blob_<uuid>
	Checksum string    `badgerholdIndex:"Checksum" json:"checksum"`
	Data     []byte    `json:"-"`
	StoredAt time.Time `json:"stored_at"`
}

// Meta is the one-to-one descriptor of a Blob. The ingestion
// orchestrator is the only writer of Status and Stage.
type Meta struct {
	BlobID    string    `badgerhold:"key" json:"blob_id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TextRecord holds the extracted and refined content for a Blob.
// RefinedText is replaced only when the persistence gate allows it.
type TextRecord struct {
	BlobID       string    `badgerhold:"key" json:"blob_id"`
	RawText      string    `json:"raw_text"`
	RefinedText  string    `json:"refined_text"`
	QualityScore float64   `json:"quality_score"` // In [0,1]
	Language     string    `json:"language"`
	Tags         []string  `json:"tags,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Chunk is one text fragment plus its vector. Vector dimension is
// fixed per Model; a Blob owns many chunks per embedding model.
type Chunk struct {
	ID        string    `badgerhold:"key" json:"id"` // chunk_<uuid>
	BlobID    string    `badgerholdIndex:"BlobID" json:"blob_id"`
	Index     int       `json:"index"`
	Content   string    `json:"content"`
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"` // model_identifier of the embedding backend
	CreatedAt time.Time `json:"created_at"`
}

// TextFields carries the values a pipeline run wants to persist for a Blob
type TextFields struct {
	RawText      string
	RefinedText  string
	QualityScore float64
	Language     string
	Tags         []string
}

// PersistGate is the predicate deciding whether newly refined text
// replaces previously stored text. The four conditions are OR'd and
// evaluated in declaration order; any true condition stores.
type PersistGate struct {
	OverwriteExisting bool
	QualityThreshold  float64
	NewMinPageScore   float64 // Minimum per-page quality score of this session
}

// ShouldStore evaluates the gate against the prior stored record (nil when
// no text has been stored yet). The returned reason names the condition
// that allowed the write, or "skipped" when none did.
func (g PersistGate) ShouldStore(prior *TextRecord) (bool, string) {
	if g.OverwriteExisting {
		return true, "overwrite requested"
	}
	if prior == nil || prior.RefinedText == "" {
		return true, "no prior refined text"
	}
	if prior.QualityScore < g.QualityThreshold {
		return true, "prior score below threshold"
	}
	// A degraded session score is captured for visibility rather than hidden.
	if g.NewMinPageScore < prior.QualityScore {
		return true, "degradation captured"
	}
	return false, "skipped"
}
