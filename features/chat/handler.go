package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"corpora/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CollectionID string `json:"collection_id"`
		Model        string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.CollectionID == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Collection id is required", http.StatusBadRequest)
		return
	}

	session := h.service.CreateSession(req.CollectionID, req.Model)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"data": session})
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Message == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Session id and message are required", http.StatusBadRequest)
		return
	}

	answer, err := h.service.Send(r.Context(), req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Session not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(r.Context(), "chat send failed", "error", err, "session_id", req.SessionID)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"answer": answer}})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	session, err := h.service.GetSession(id)
	if err != nil {
		h.writeError(r.Context(), w, "NOT_FOUND", "Session not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"data": session.Messages})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.service.DeleteSession(id); err != nil {
		h.writeError(r.Context(), w, "NOT_FOUND", "Session not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.service.ListSessions()
	json.NewEncoder(w).Encode(map[string]interface{}{"data": sessions})
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
