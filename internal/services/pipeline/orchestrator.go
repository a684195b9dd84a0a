package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
	"github.com/shibazach/rag-local-dev-sub000/internal/models"
	"github.com/shibazach/rag-local-dev-sub000/internal/services/chunker"
)

// errCancelled marks a file stopped by cooperative cancellation
var errCancelled = errors.New("job cancelled")

// Orchestrator drives documents through the ingestion state machine:
// Registering → Extracting → Refining → Chunking → Embedding → Persisting.
// Files are processed strictly in submission order, one at a time within a
// job; blocking stage work runs on a bounded worker pool so the progress
// stream stays responsive. File-level failures never abort sibling files.
type Orchestrator struct {
	store    interfaces.ContentStore
	engines  interfaces.OCRRegistry
	refiner  interfaces.TextRefiner
	embedder interfaces.EmbeddingService
	registry *Registry
	pool     *ants.Pool
	config   *common.Config
	logger   arbor.ILogger
}

// NewOrchestrator creates the ingestion orchestrator with its worker pool
func NewOrchestrator(
	store interfaces.ContentStore,
	engines interfaces.OCRRegistry,
	refiner interfaces.TextRefiner,
	embedder interfaces.EmbeddingService,
	registry *Registry,
	config *common.Config,
	logger arbor.ILogger,
) (*Orchestrator, error) {
	poolSize := config.Pipeline.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Orchestrator{
		store:    store,
		engines:  engines,
		refiner:  refiner,
		embedder: embedder,
		registry: registry,
		pool:     pool,
		config:   config,
		logger:   logger,
	}, nil
}

// Close releases the worker pool
func (o *Orchestrator) Close() {
	o.pool.Release()
}

// Start validates the batch, creates the job, and launches processing.
// Unknown engine or embedding backend ids and an unreachable store fail
// fast here, before any pipeline state exists.
func (o *Orchestrator) Start(ctx context.Context, fileIDs []string, opts models.IngestOptions) (string, error) {
	if len(fileIDs) == 0 {
		return "", fmt.Errorf("no files submitted")
	}

	// Batches that omit an engine or backends run with the configured defaults
	if opts.OCREngine == "" {
		opts.OCREngine = o.config.OCR.DefaultEngine
	}
	if len(opts.EmbeddingKeys) == 0 && o.config.Embeddings.DefaultBackend != "" {
		opts.EmbeddingKeys = []string{o.config.Embeddings.DefaultBackend}
	}
	if len(opts.EmbeddingKeys) == 0 {
		return "", fmt.Errorf("no embedding backends requested and no default configured")
	}

	if _, err := o.engines.Engine(opts.OCREngine); err != nil {
		return "", err
	}
	for _, key := range opts.EmbeddingKeys {
		if _, err := o.embedder.Dimension(key); err != nil {
			return "", err
		}
	}
	if err := o.store.Ping(ctx); err != nil {
		return "", fmt.Errorf("content store unreachable: %w", err)
	}

	files := make([]models.FileState, len(fileIDs))
	for i, blobID := range fileIDs {
		filename := blobID
		if meta, err := o.store.GetMeta(ctx, blobID); err == nil {
			filename = meta.Filename
		}
		files[i] = models.FileState{BlobID: blobID, Filename: filename}
	}

	job := NewJob(common.NewJobID(), files, o.config.Pipeline.EventBufferSize)
	o.registry.Add(job)

	o.logger.Info().
		Str("job_id", job.ID).
		Int("files", len(fileIDs)).
		Str("engine", opts.OCREngine).
		Msg("Ingestion job started")

	go o.run(job, fileIDs, opts)

	return job.ID, nil
}

// Status returns a snapshot of the job's aggregate and per-file state
func (o *Orchestrator) Status(jobID string) (models.JobSnapshot, error) {
	job, err := o.registry.Get(jobID)
	if err != nil {
		return models.JobSnapshot{}, err
	}
	return job.Snapshot(), nil
}

// Cancel flips the job's cancellation flag; idempotent
func (o *Orchestrator) Cancel(jobID string) error {
	job, err := o.registry.Get(jobID)
	if err != nil {
		return err
	}
	job.Cancel()
	o.logger.Info().Str("job_id", jobID).Msg("Job cancellation requested")
	return nil
}

// Events returns the job's live progress stream
func (o *Orchestrator) Events(jobID string) (<-chan models.ProgressEvent, error) {
	job, err := o.registry.Get(jobID)
	if err != nil {
		return nil, err
	}
	return job.Events(), nil
}

// run processes the job's files in submission order and always emits
// exactly one terminal event.
func (o *Orchestrator) run(job *Job, fileIDs []string, opts models.IngestOptions) {
	ctx := job.Context()

	for i, blobID := range fileIDs {
		// Checkpoint before each file starts: unstarted files stay Queued
		if job.IsCancelled() {
			break
		}

		err := o.processFile(ctx, job, i, blobID, opts)
		switch {
		case err == nil:
			job.setFileStage(i, models.StageDone, "")
			job.publish(models.ProgressEvent{
				BlobID:   blobID,
				Filename: job.files[i].Filename,
				Stage:    models.StageDone,
				Phase:    models.PhaseCompleted,
			})

		case isCancellation(err, job):
			job.setFileStage(i, models.StageCancelled, "")
			job.publish(models.ProgressEvent{
				BlobID:   blobID,
				Filename: job.files[i].Filename,
				Stage:    models.StageCancelled,
				Phase:    models.PhaseCompleted,
			})

		case errors.Is(err, interfaces.ErrStoreUnavailable):
			// System-level failure aborts the whole job
			job.setFileStage(i, models.StageFailed, err.Error())
			job.finish(models.JobStatusFailed, err.Error())
			job.publish(models.ProgressEvent{Terminal: models.TerminalError, Detail: err.Error()})
			o.logger.Error().Str("job_id", job.ID).Err(err).Msg("Job aborted: content store unavailable")
			return

		default:
			// File-level failure is isolated; siblings continue
			job.setFileStage(i, models.StageFailed, err.Error())
			job.publish(models.ProgressEvent{
				BlobID:   blobID,
				Filename: job.files[i].Filename,
				Stage:    models.StageFailed,
				Phase:    models.PhaseCompleted,
				Detail:   err.Error(),
			})
			o.updateMeta(blobID, models.MetaStatusFailed, models.StageFailed, 0)
			o.logger.Warn().
				Str("job_id", job.ID).
				Str("blob_id", blobID).
				Err(err).
				Msg("File failed, continuing with remaining files")
		}

		if job.IsCancelled() {
			break
		}
	}

	snapshot := job.Snapshot()
	if job.IsCancelled() {
		job.finish(models.JobStatusCancelled, "")
		job.publish(models.ProgressEvent{Terminal: models.TerminalCancelled})
	} else {
		job.finish(models.JobStatusCompleted, "")
		job.publish(models.ProgressEvent{Terminal: models.TerminalComplete})
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Int("success", snapshot.SuccessCount).
		Int("errors", snapshot.ErrorCount).
		Bool("cancelled", job.IsCancelled()).
		Msg("Ingestion job finished")
}

// processFile drives one file through every pipeline stage
func (o *Orchestrator) processFile(ctx context.Context, job *Job, index int, blobID string, opts models.IngestOptions) error {
	filename := job.files[index].Filename

	// Registering
	started := o.enterStage(job, index, blobID, filename, models.StageRegistering)
	data, err := o.store.Get(ctx, blobID)
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	if _, err := o.store.GetMeta(ctx, blobID); err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	o.updateMeta(blobID, models.MetaStatusProcessing, models.StageRegistering, 0)
	o.completeStage(job, blobID, filename, models.StageRegistering, started, "")

	// Extracting
	started = o.enterStage(job, index, blobID, filename, models.StageExtracting)
	engine, err := o.engines.Engine(opts.OCREngine)
	if err != nil {
		return fmt.Errorf("extracting: %w", err)
	}

	var pages []interfaces.PageResult
	o.runBlocking(func() {
		pages, err = engine.Extract(ctx, data, interfaces.PageRange{}, opts.OCRParams)
	})
	if err != nil {
		return fmt.Errorf("extracting: %w", err)
	}

	pageTexts := make([]string, len(pages))
	pageErrors := 0
	for i, page := range pages {
		pageTexts[i] = page.Text
		if page.Error != "" {
			pageErrors++
		}
	}
	o.updateMeta(blobID, models.MetaStatusProcessing, models.StageExtracting, len(pages))

	detail := fmt.Sprintf("%d pages", len(pages))
	if pageErrors > 0 {
		detail = fmt.Sprintf("%d pages, %d with errors", len(pages), pageErrors)
	}
	o.completeStage(job, blobID, filename, models.StageExtracting, started, detail)

	// Checkpoint before the refine call
	if job.IsCancelled() {
		return errCancelled
	}

	// Refining
	started = o.enterStage(job, index, blobID, filename, models.StageRefining)
	refineOpts := interfaces.RefineOptions{
		ForceLanguage: opts.ForceLanguage,
		Timeout:       time.Duration(opts.LLMTimeoutSeconds) * time.Second,
	}
	var refined *interfaces.RefineResult
	o.runBlocking(func() {
		refined, err = o.refiner.Refine(ctx, pageTexts, refineOpts)
	})
	if err != nil {
		return fmt.Errorf("refining: %w", err)
	}
	refineDetail := fmt.Sprintf("score %.2f", refined.QualityScore)
	if refined.Fallback {
		refineDetail += " (fallback)"
	}
	o.completeStage(job, blobID, filename, models.StageRefining, started, refineDetail)

	// Checkpoint after the refine call
	if job.IsCancelled() {
		return errCancelled
	}

	// Chunking
	started = o.enterStage(job, index, blobID, filename, models.StageChunking)
	segments, err := chunker.Split(refined.RefinedText, o.config.Pipeline.ChunkSize, o.config.Pipeline.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	o.completeStage(job, blobID, filename, models.StageChunking, started, fmt.Sprintf("%d chunks", len(segments)))

	// Embedding
	started = o.enterStage(job, index, blobID, filename, models.StageEmbedding)
	chunksByModel := make(map[string][]models.Chunk)
	for _, key := range opts.EmbeddingKeys {
		if job.IsCancelled() {
			return errCancelled
		}

		model, err := o.embedder.ModelIdentifier(key)
		if err != nil {
			return fmt.Errorf("embedding: %w", err)
		}

		var vectors [][]float32
		var embedErr error
		o.runBlocking(func() {
			vectors, embedErr = o.embedder.Embed(ctx, segments, key)
		})
		if embedErr != nil {
			return fmt.Errorf("embedding with %q: %w", key, embedErr)
		}

		chunks := make([]models.Chunk, len(segments))
		for i, content := range segments {
			chunks[i] = models.Chunk{
				Index:   i,
				Content: content,
				Vector:  vectors[i],
			}
		}
		chunksByModel[model] = chunks
	}
	o.completeStage(job, blobID, filename, models.StageEmbedding, started, fmt.Sprintf("%d backends", len(opts.EmbeddingKeys)))

	// Persisting
	started = o.enterStage(job, index, blobID, filename, models.StagePersisting)
	threshold := opts.QualityThreshold
	if threshold <= 0 {
		threshold = o.config.Pipeline.QualityThreshold
	}
	gate := models.PersistGate{
		OverwriteExisting: opts.OverwriteExisting,
		QualityThreshold:  threshold,
		NewMinPageScore:   refined.MinPageScore,
	}
	fields := models.TextFields{
		RawText:      strings.Join(pageTexts, "\n\n"),
		RefinedText:  refined.RefinedText,
		QualityScore: refined.QualityScore,
		Language:     refined.Language,
	}

	stored, reason, err := o.store.UpsertText(ctx, blobID, fields, gate)
	if err != nil {
		return fmt.Errorf("persisting: %w", err)
	}
	if stored {
		for model, chunks := range chunksByModel {
			if err := o.store.ReplaceChunks(ctx, blobID, model, chunks); err != nil {
				return fmt.Errorf("persisting chunks for %q: %w", model, err)
			}
		}
	}
	o.updateMeta(blobID, models.MetaStatusProcessed, models.StageDone, len(pages))
	o.completeStage(job, blobID, filename, models.StagePersisting, started, reason)

	return nil
}

// enterStage records the transition and emits the stage-entered event
func (o *Orchestrator) enterStage(job *Job, index int, blobID, filename string, stage models.Stage) time.Time {
	job.setFileStage(index, stage, "")
	job.publish(models.ProgressEvent{
		BlobID:   blobID,
		Filename: filename,
		Stage:    stage,
		Phase:    models.PhaseEntered,
	})
	return time.Now()
}

// completeStage emits the stage-completed event with the stage's elapsed time
func (o *Orchestrator) completeStage(job *Job, blobID, filename string, stage models.Stage, started time.Time, detail string) {
	job.publish(models.ProgressEvent{
		BlobID:    blobID,
		Filename:  filename,
		Stage:     stage,
		Phase:     models.PhaseCompleted,
		Detail:    detail,
		ElapsedMs: time.Since(started).Milliseconds(),
	})
}

// runBlocking executes fn on the bounded worker pool and waits for it,
// falling back to inline execution if the pool rejects the task.
func (o *Orchestrator) runBlocking(fn func()) {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	if err := o.pool.Submit(task); err != nil {
		task()
	}
	<-done
}

// updateMeta is a best-effort meta progress write; failures are logged,
// not propagated, because meta progress is advisory.
func (o *Orchestrator) updateMeta(blobID, status string, stage models.Stage, pageCount int) {
	if err := o.store.UpdateMetaProgress(context.Background(), blobID, status, string(stage), pageCount); err != nil {
		o.logger.Warn().
			Str("blob_id", blobID).
			Str("stage", string(stage)).
			Err(err).
			Msg("Meta progress update failed")
	}
}

// isCancellation matches both the explicit checkpoint sentinel and
// context cancellation surfaced from a stage call after Cancel.
func isCancellation(err error, job *Job) bool {
	if errors.Is(err, errCancelled) {
		return true
	}
	return job.IsCancelled() && errors.Is(err, context.Canceled)
}
