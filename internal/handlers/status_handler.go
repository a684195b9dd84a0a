package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

// StatusHandler serves health, version, and engine discovery endpoints
type StatusHandler struct {
	store   interfaces.ContentStore
	engines interfaces.OCRRegistry
	logger  arbor.ILogger
}

// NewStatusHandler creates the status handler
func NewStatusHandler(store interfaces.ContentStore, engines interfaces.OCRRegistry, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		store:   store,
		engines: engines,
		logger:  logger,
	}
}

// HandleHealth reports service and storage health
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := "healthy"
	storage := "ok"
	status := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		health = "degraded"
		storage = err.Error()
		status = http.StatusServiceUnavailable
	}

	WriteJSON(w, status, map[string]string{
		"status":  health,
		"storage": storage,
		"version": common.GetVersion(),
	})
}

// HandleVersion returns build information
func (h *StatusHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetFullVersion(),
	})
}

// HandleEngines lists the registered text-extraction engines and their
// declared parameters.
func (h *StatusHandler) HandleEngines(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"engines": h.engines.List(),
	})
}
