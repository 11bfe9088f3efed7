package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"notia/internal/middleware"
	"notia/internal/vector"
)

type ChunkIndex interface {
	Count(ctx context.Context) int
	Suppressed() vector.Metrics
}

type EmbeddingCache interface {
	CacheSize() int
}

type ConversationRepo interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	index         ChunkIndex
	cache         EmbeddingCache
	conversations ConversationRepo
}

func NewHandler(ix ChunkIndex, cache EmbeddingCache, conversations ConversationRepo) *Handler {
	return &Handler{index: ix, cache: cache, conversations: conversations}
}

type StatsResponse struct {
	TotalChunks        int   `json:"total_chunks"`
	EmbeddingCacheSize int   `json:"embedding_cache_size"`
	Conversations      int   `json:"conversations"`
	QueryFailures      int64 `json:"query_failures"`
	UpsertFailures     int64 `json:"upsert_failures"`
	DeleteFailures     int64 `json:"delete_failures"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	cCount, err := h.conversations.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count conversations", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count conversations", http.StatusInternalServerError)
		return
	}

	suppressed := h.index.Suppressed()
	resp := StatsResponse{
		TotalChunks:        h.index.Count(ctx),
		EmbeddingCacheSize: h.cache.CacheSize(),
		Conversations:      cCount,
		QueryFailures:      suppressed.QueryFailures,
		UpsertFailures:     suppressed.UpsertFailures,
		DeleteFailures:     suppressed.DeleteFailures,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
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
