package search

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"notia/internal/middleware"
	"notia/internal/ranking"
)

const defaultMaxPages = 10

type Searcher interface {
	Search(ctx context.Context, query string, maxPages int) (ranking.SearchResponse, error)
}

type Handler struct {
	searcher Searcher
}

func NewHandler(s Searcher) *Handler {
	return &Handler{searcher: s}
}

type SearchRequest struct {
	Query    string `json:"query"`
	MaxPages int    `json:"max_pages"`
}

// Search handles both POST bodies and the ?q= form used by older clients.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	req, err := parseRequest(r)
	if err != nil {
		h.writeError(ctx, w, "INVALID_INPUT", err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.searcher.Search(ctx, req.Query, req.MaxPages)
	if err != nil {
		if errors.Is(err, ranking.ErrEmptyQuery) {
			h.writeError(ctx, w, "INVALID_INPUT", "query is required", http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "search failed", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "search failed", http.StatusInternalServerError)
		return
	}
	if resp.Results == nil {
		resp.Results = []ranking.RankedPage{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func parseRequest(r *http.Request) (SearchRequest, error) {
	req := SearchRequest{MaxPages: defaultMaxPages}

	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			q = r.URL.Query().Get("q")
		}
		req.Query = q
		if n := r.URL.Query().Get("max_pages"); n != "" {
			parsed, err := strconv.Atoi(n)
			if err != nil {
				return req, errors.New("max_pages must be an integer")
			}
			req.MaxPages = parsed
		}
		return req, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errors.New("invalid request body")
	}
	if req.MaxPages <= 0 {
		req.MaxPages = defaultMaxPages
	}
	return req, nil
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
