package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
	"github.com/shibazach/rag-local-dev-sub000/internal/models"
	"github.com/shibazach/rag-local-dev-sub000/internal/services/pipeline"
)

// startJobRequest is the batch-start payload
type startJobRequest struct {
	FileIDs []string `json:"file_ids" validate:"min=1,dive,required"`
	models.IngestOptions
}

// JobHandler exposes batch start, status, and cancel over HTTP
type JobHandler struct {
	orchestrator *pipeline.Orchestrator
	validate     *validator.Validate
	logger       arbor.ILogger
}

// NewJobHandler creates the job handler
func NewJobHandler(orchestrator *pipeline.Orchestrator, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		orchestrator: orchestrator,
		validate:     validator.New(),
		logger:       logger,
	}
}

// HandleStart launches a batch ingestion job
func (h *JobHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := h.orchestrator.Start(r.Context(), req.FileIDs, req.IngestOptions)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrUnknownEngine), errors.Is(err, interfaces.ErrUnknownBackend):
			WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, interfaces.ErrStoreUnavailable):
			WriteError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error().Err(err).Msg("Job start failed")
			WriteError(w, http.StatusInternalServerError, "failed to start job")
		}
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// HandleStatus returns the job snapshot
func (h *JobHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	snapshot, err := h.orchestrator.Status(jobID)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, "failed to read job status")
		return
	}

	WriteJSON(w, http.StatusOK, snapshot)
}

// HandleCancel flips the job's cancellation flag; idempotent
func (h *JobHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	if err := h.orchestrator.Cancel(jobID); err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	WriteSuccess(w, "cancellation requested")
}
