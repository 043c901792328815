package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"corpora/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

var validExts = map[string]bool{
	".pdf": true, ".md": true, ".txt": true, ".json": true, ".csv": true,
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	collectionID := r.PathValue("collectionId")
	if collectionID == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Collection id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Filename == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Filename is required", http.StatusBadRequest)
		return
	}
	if !validExts[strings.ToLower(filepath.Ext(req.Filename))] {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Unsupported file type", http.StatusBadRequest)
		return
	}

	doc, uploadURL, err := h.service.Register(r.Context(), collectionID, filepath.Base(req.Filename))
	if err != nil {
		slog.Error("document registration failed", "error", err, "collection_id", collectionID)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{
		"document":   doc,
		"upload_url": uploadURL,
	}}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.service.TriggerIngest(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to trigger ingestion", "error", err, "document_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"status": "queued"}})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get document", "error", err, "document_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"data": detail})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	collectionID := r.PathValue("collectionId")

	docs, err := h.service.List(r.Context(), collectionID)
	if err != nil {
		slog.Error("failed to list documents", "error", err, "collection_id", collectionID)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []Document{}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"data": docs})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	json.NewEncoder(w).Encode(resp)
}
