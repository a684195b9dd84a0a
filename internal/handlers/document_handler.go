package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

// DocumentHandler exposes stored documents: metadata listing, text and
// chunk retrieval, and cascading delete.
type DocumentHandler struct {
	store  interfaces.ContentStore
	logger arbor.ILogger
}

// NewDocumentHandler creates the document handler
func NewDocumentHandler(store interfaces.ContentStore, logger arbor.ILogger) *DocumentHandler {
	return &DocumentHandler{
		store:  store,
		logger: logger,
	}
}

// HandleList returns stored document metadata with pagination
func (h *DocumentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := GetPaginationParams(r)

	metas, err := h.store.ListMetas(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Document listing failed")
		WriteError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": metas,
		"count":     len(metas),
	})
}

// HandleGet returns one document's metadata, text record, and chunk count
func (h *DocumentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	blobID := r.PathValue("id")

	meta, err := h.store.GetMeta(r.Context(), blobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "document not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "failed to read document")
		return
	}

	text, err := h.store.GetText(r.Context(), blobID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read document text")
		return
	}

	chunks, err := h.store.GetChunks(r.Context(), blobID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read document chunks")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"meta":        meta,
		"text":        text,
		"chunk_count": len(chunks),
	})
}

// HandleDelete removes a document; the delete cascades to its metadata,
// text record, and chunks.
func (h *DocumentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	blobID := r.PathValue("id")

	if err := h.store.Delete(r.Context(), blobID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "document not found")
			return
		}
		h.logger.Error().Err(err).Str("blob_id", blobID).Msg("Document delete failed")
		WriteError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}

	h.logger.Info().Str("blob_id", blobID).Msg("Document deleted")
	WriteSuccess(w, "document deleted")
}
