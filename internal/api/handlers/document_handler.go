package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/studyrag/internal/core"
	"github.com/markdave123-py/studyrag/internal/core/ingest"
)

const maxUploadBytes = 32 << 20 // 32 MB

type DocumentHandler struct {
	store       core.ChunkStore
	coordinator *ingest.Coordinator
	objects     core.ObjectStore // nil when archival is disabled
	logger      *slog.Logger
}

func NewDocumentHandler(store core.ChunkStore, coordinator *ingest.Coordinator, objects core.ObjectStore, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{
		store:       store,
		coordinator: coordinator,
		objects:     objects,
		logger:      logger.With("component", "documents"),
	}
}

// Upload accepts a multipart file, starts ingestion, and returns the upload
// id to poll. The request returns before any embedding work happens.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	// Strip path components the client may have sent.
	cleanName := filepath.Base(header.Filename)

	uploadID, err := h.coordinator.Ingest(r.Context(), cleanName, data, contentType)
	if err != nil {
		if errors.Is(err, core.ErrExtraction) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("ingest failed to start", "file", cleanName, "err", err)
		http.Error(w, "failed to start ingestion", http.StatusInternalServerError)
		return
	}

	if h.objects != nil {
		go h.archive(uploadID, cleanName, contentType, data)
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"upload_id": uploadID})
}

// archive keeps the original upload in object storage. Failures are logged,
// never surfaced: the pipeline already has the bytes it needs.
func (h *DocumentHandler) archive(uploadID, filename, contentType string, data []byte) {
	key := fmt.Sprintf("uploads/%s/%s", uploadID, filename)
	if _, err := h.objects.Put(context.Background(), key, data, contentType); err != nil {
		h.logger.Warn("archiving original upload failed", "key", key, "err", err)
	}
}

// UploadStatus reports ingestion progress for polling.
func (h *DocumentHandler) UploadStatus(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")
	job, ok := h.coordinator.Status(uploadID)
	if !ok {
		http.Error(w, "upload not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// EvictUpload drops a finished job from the tracker. Jobs still in flight
// are refused.
func (h *DocumentHandler) EvictUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")
	if _, ok := h.coordinator.Status(uploadID); !ok {
		http.Error(w, "upload not found", http.StatusNotFound)
		return
	}
	if !h.coordinator.Evict(uploadID) {
		http.Error(w, "upload still in progress", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error("list documents failed", "err", err)
		http.Error(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	err := h.store.DeleteDocument(r.Context(), documentID)
	if errors.Is(err, core.ErrUnknownDocument) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("delete document failed", "document_id", documentID, "err", err)
		http.Error(w, "failed to delete document", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
