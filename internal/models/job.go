package models

import (
	"time"
)

// Stage identifies one step of the per-file ingestion state machine
type Stage string

const (
	StageQueued      Stage = "queued"
	StageRegistering Stage = "registering"
	StageExtracting  Stage = "extracting"
	StageRefining    Stage = "refining"
	StageChunking    Stage = "chunking"
	StageEmbedding   Stage = "embedding"
	StagePersisting  Stage = "persisting"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
	StageCancelled   Stage = "cancelled"
)

// Terminal reports whether the stage has no outgoing transition
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed || s == StageCancelled
}

// JobStatus is the aggregate status of a batch job
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IngestOptions is the per-batch configuration submitted with a job.
// An empty OCREngine or EmbeddingKeys falls back to the configured
// defaults when the batch starts.
type IngestOptions struct {
	OCREngine         string            `json:"ocr_engine,omitempty"`
	OCRParams         map[string]string `json:"ocr_params,omitempty"`
	EmbeddingKeys     []string          `json:"embedding_keys,omitempty" validate:"omitempty,dive,required"`
	OverwriteExisting bool              `json:"overwrite_existing"`
	QualityThreshold  float64           `json:"quality_threshold" validate:"gte=0,lte=1"`
	LLMTimeoutSeconds int               `json:"llm_timeout_seconds" validate:"gte=0"`
	ForceLanguage     string            `json:"force_language,omitempty"`
}

// FileState tracks one file's progress through the pipeline.
// Files are processed strictly in submission order.
type FileState struct {
	BlobID     string    `json:"blob_id"`
	Filename   string    `json:"filename"`
	Stage      Stage     `json:"stage"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// JobSnapshot is the point-in-time view returned by the status endpoint
type JobSnapshot struct {
	JobID          string       `json:"job_id"`
	Status         JobStatus    `json:"status"`
	TotalFiles     int          `json:"total_files"`
	CompletedFiles int          `json:"completed_files"`
	SuccessCount   int          `json:"success_count"`
	ErrorCount     int          `json:"error_count"`
	CurrentFile    string       `json:"current_file,omitempty"`
	Error          string       `json:"error,omitempty"`
	Files          []FileState  `json:"files"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
}

// ProgressPhase distinguishes stage-entered from stage-completed events
type ProgressPhase string

const (
	PhaseEntered   ProgressPhase = "entered"
	PhaseCompleted ProgressPhase = "completed"
)

// TerminalKind is the job-level terminal record closing a progress stream
type TerminalKind string

const (
	TerminalComplete  TerminalKind = "complete"
	TerminalError     TerminalKind = "error"
	TerminalCancelled TerminalKind = "cancelled"
)

// ProgressEvent is an ordered, stage-scoped notification describing
// pipeline advancement for one file. Exactly one event per job carries
// a non-empty Terminal kind, and it is always the last event.
type ProgressEvent struct {
	JobID     string        `json:"job_id"`
	BlobID    string        `json:"blob_id,omitempty"`
	Filename  string        `json:"file,omitempty"`
	Stage     Stage         `json:"stage,omitempty"`
	Phase     ProgressPhase `json:"phase,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	ElapsedMs int64         `json:"elapsed_ms,omitempty"`
	Terminal  TerminalKind  `json:"terminal,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
