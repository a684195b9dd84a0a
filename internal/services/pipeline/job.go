package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shibazach/rag-local-dev-sub000/internal/models"
)

// Job tracks one batch ingestion run. Stage transitions and the progress
// stream are driven exclusively by the orchestrator goroutine; Snapshot and
// Cancel may be called concurrently from request handlers.
type Job struct {
	ID        string
	StartedAt time.Time

	mu             sync.RWMutex
	status         models.JobStatus
	files          []models.FileState
	currentFile    string
	errMsg         string
	successCount   int
	errorCount     int
	completedFiles int
	finishedAt     *time.Time

	cancelled atomic.Bool
	ctx       context.Context
	cancelFn  context.CancelFunc

	events       chan models.ProgressEvent
	eventsMu     sync.Mutex
	eventsClosed bool
}

// NewJob creates a job with every file in the Queued stage
func NewJob(id string, files []models.FileState, eventBufferSize int) *Job {
	if eventBufferSize <= 0 {
		eventBufferSize = 256
	}
	for i := range files {
		files[i].Stage = models.StageQueued
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		ID:        id,
		StartedAt: time.Now(),
		status:    models.JobStatusRunning,
		files:     files,
		ctx:       ctx,
		cancelFn:  cancel,
		events:    make(chan models.ProgressEvent, eventBufferSize),
	}
}

// Cancel flips the job's cancellation flag and cancels the job context so
// in-flight stage calls stop at their next context check. Idempotent.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
	j.cancelFn()
}

// Context is cancelled once Cancel has been called; stage calls derive
// their timeouts from it so cancellation propagates into blocking work.
func (j *Job) Context() context.Context {
	return j.ctx
}

// IsCancelled reports whether cancellation has been requested
func (j *Job) IsCancelled() bool {
	return j.cancelled.Load()
}

// Events returns the job's progress stream. The channel is closed after
// the terminal event is delivered.
func (j *Job) Events() <-chan models.ProgressEvent {
	return j.events
}

// Snapshot returns a point-in-time copy of the job's state
func (j *Job) Snapshot() models.JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	files := make([]models.FileState, len(j.files))
	copy(files, j.files)

	return models.JobSnapshot{
		JobID:          j.ID,
		Status:         j.status,
		TotalFiles:     len(j.files),
		CompletedFiles: j.completedFiles,
		SuccessCount:   j.successCount,
		ErrorCount:     j.errorCount,
		CurrentFile:    j.currentFile,
		Error:          j.errMsg,
		Files:          files,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.finishedAt,
	}
}

// Finished reports whether the job reached a terminal status
func (j *Job) Finished() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status != models.JobStatusRunning
}

// FinishedAt returns the terminal timestamp, nil while running
func (j *Job) FinishedAt() *time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.finishedAt
}

// setFileStage moves one file to a stage, maintaining the aggregate
// counters when the stage is terminal.
func (j *Job) setFileStage(index int, stage models.Stage, detail string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file := &j.files[index]
	file.Stage = stage
	file.Detail = detail

	switch stage {
	case models.StageRegistering:
		file.StartedAt = time.Now()
		j.currentFile = file.Filename
	case models.StageDone:
		file.FinishedAt = time.Now()
		j.completedFiles++
		j.successCount++
	case models.StageFailed:
		file.Error = detail
		file.FinishedAt = time.Now()
		j.completedFiles++
		j.errorCount++
	case models.StageCancelled:
		file.FinishedAt = time.Now()
	}
}

// finish records the job's terminal status and closes the bookkeeping
func (j *Job) finish(status models.JobStatus, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = status
	j.errMsg = errMsg
	j.currentFile = ""
	now := time.Now()
	j.finishedAt = &now
	j.cancelFn()
}

// publish pushes an event into the bounded stream. When the buffer is
// full the oldest event is dropped so the pipeline never blocks; a
// terminal event is always delivered and closes the channel.
func (j *Job) publish(event models.ProgressEvent) {
	event.JobID = j.ID
	event.Timestamp = time.Now()

	j.eventsMu.Lock()
	defer j.eventsMu.Unlock()
	if j.eventsClosed {
		return
	}

	if event.Terminal != "" {
		for {
			select {
			case j.events <- event:
				j.eventsClosed = true
				close(j.events)
				return
			default:
				select {
				case <-j.events:
				default:
				}
			}
		}
	}

	select {
	case j.events <- event:
	default:
		select {
		case <-j.events:
		default:
		}
		select {
		case j.events <- event:
		default:
		}
	}
}
