package conversation

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"notia/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conversations, err := h.service.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list conversations", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to list conversations", http.StatusInternalServerError)
		return
	}
	if conversations == nil {
		conversations = []Conversation{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": conversations}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	messages, found, err := h.service.Messages(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load messages", "error", err, "conversation_id", id)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to load messages", http.StatusInternalServerError)
		return
	}
	if !found {
		h.writeError(ctx, w, "NOT_FOUND", "conversation not found", http.StatusNotFound)
		return
	}
	if messages == nil {
		messages = []Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"conversation_id": id,
		"messages":        messages,
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := h.service.Delete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to delete conversation", "error", err, "conversation_id", id)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to delete conversation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
