package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"notia/internal/config"
	"notia/internal/middleware"
	"notia/internal/worker"
)

// Publisher enqueues sync requests; satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

type IndexStatus interface {
	LastSync(ctx context.Context) (time.Time, error)
	Count(ctx context.Context) int
}

type SourceStatus interface {
	LastEditedTime(ctx context.Context) (time.Time, error)
}

type Handler struct {
	publisher Publisher
	index     IndexStatus
	source    SourceStatus
}

func NewHandler(p Publisher, ix IndexStatus, src SourceStatus) *Handler {
	return &Handler{publisher: p, index: ix, source: src}
}

type StatusResponse struct {
	LastSync         *time.Time `json:"last_sync"`
	SourceLastEdited *time.Time `json:"source_last_edited"`
	IsActual         bool       `json:"is_actual"`
	TotalChunks      int        `json:"total_chunks"`
}

// Rebuild queues a full drop-and-reindex of the vector index.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, worker.ModeRebuild)
}

// Sync queues an incremental update against the source.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, worker.ModeIncremental)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, mode string) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	event := worker.SyncRequested{
		Mode:          mode,
		Force:         r.URL.Query().Get("force") == "true",
		CorrelationID: correlationID,
	}
	body, err := json.Marshal(event)
	if err != nil {
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to encode sync request", http.StatusInternalServerError)
		return
	}
	if err := h.publisher.Publish(config.TopicIndexSync, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish sync request", "error", err, "mode", mode)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to queue sync", http.StatusInternalServerError)
		return
	}
	slog.InfoContext(ctx, "sync queued", "mode", mode, "correlationId", correlationID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	resp := map[string]string{"status": "queued", "mode": mode}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Status reports whether the index is current against the source. The
// source check is best-effort; when it fails the index timestamps still
// come back, with is_actual false.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatusResponse{TotalChunks: h.index.Count(ctx)}

	lastSync, err := h.index.LastSync(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "reading last sync time failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to read index status", http.StatusInternalServerError)
		return
	}
	if !lastSync.IsZero() {
		resp.LastSync = &lastSync
	}

	lastEdited, err := h.source.LastEditedTime(ctx)
	if err != nil {
		slog.WarnContext(ctx, "fetching source edit time failed", "error", err)
	} else if !lastEdited.IsZero() {
		resp.SourceLastEdited = &lastEdited
		resp.IsActual = !lastSync.IsZero() && !lastEdited.After(lastSync)
	} else {
		// Empty source means nothing to index.
		resp.IsActual = true
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
