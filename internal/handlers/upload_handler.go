package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

// UploadHandler accepts document uploads into the content store. Extension
// and size limits are enforced before any bytes reach storage; identical
// content resolves to the existing blob.
type UploadHandler struct {
	store  interfaces.ContentStore
	config *common.UploadConfig
	logger arbor.ILogger
}

// NewUploadHandler creates the upload handler
func NewUploadHandler(store interfaces.ContentStore, config *common.UploadConfig, logger arbor.ILogger) *UploadHandler {
	return &UploadHandler{
		store:  store,
		config: config,
		logger: logger,
	}
}

// HandleUpload accepts one multipart file under the "file" field
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxSizeBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxSizeBytes+4096)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing 'file' form field")
		return
	}
	defer file.Close()

	if err := h.validateFilename(header.Filename); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.config.MaxSizeBytes > 0 && header.Size > h.config.MaxSizeBytes {
		WriteError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds the %d byte limit", h.config.MaxSizeBytes))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(data) == 0 {
		WriteError(w, http.StatusBadRequest, "empty file")
		return
	}

	mimeType := mimetype.Detect(data).String()

	result, err := h.store.Put(r.Context(), data, header.Filename, mimeType)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("Upload storage failed")
		WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	h.logger.Info().
		Str("blob_id", result.BlobID).
		Str("filename", header.Filename).
		Str("mime_type", mimeType).
		Int64("size", result.Size).
		Bool("is_new", result.IsNew).
		Msg("Document uploaded")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"blob_id":  result.BlobID,
		"filename": header.Filename,
		"size":     result.Size,
		"checksum": result.Checksum,
		"is_new":   result.IsNew,
	})
}

func (h *UploadHandler) validateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename is required")
	}
	if len(h.config.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range h.config.AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("extension %q is not allowed", ext)
}
