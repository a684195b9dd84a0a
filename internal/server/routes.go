package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Documents
	mux.HandleFunc("POST /api/upload", s.app.UploadHandler.HandleUpload)
	mux.HandleFunc("GET /api/documents", s.app.DocumentHandler.HandleList)
	mux.HandleFunc("GET /api/documents/{id}", s.app.DocumentHandler.HandleGet)
	mux.HandleFunc("DELETE /api/documents/{id}", s.app.DocumentHandler.HandleDelete)

	// Ingestion jobs
	mux.HandleFunc("POST /api/jobs", s.app.JobHandler.HandleStart)
	mux.HandleFunc("GET /api/jobs/{id}", s.app.JobHandler.HandleStatus)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.app.JobHandler.HandleCancel)

	// Live progress stream
	mux.HandleFunc("GET /ws/jobs/{id}", s.app.WSHandler.HandleProgress)

	// Service status
	mux.HandleFunc("GET /health", s.app.StatusHandler.HandleHealth)
	mux.HandleFunc("GET /api/health", s.app.StatusHandler.HandleHealth)
	mux.HandleFunc("GET /api/version", s.app.StatusHandler.HandleVersion)
	mux.HandleFunc("GET /api/engines", s.app.StatusHandler.HandleEngines)

	return mux
}
