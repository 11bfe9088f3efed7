package ask

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"notia/internal/adapter/openai"
	"notia/internal/middleware"
	"notia/internal/ranking"
)

const (
	searchPages = 10
	maxSources  = 5
)

const noContextAnswer = "I could not find any relevant information to answer your question."

type Searcher interface {
	Search(ctx context.Context, query string, maxPages int) (ranking.SearchResponse, error)
}

type AnswerEngine interface {
	GenerateAnswer(ctx context.Context, query string, results ranking.SearchResponse, history []openai.Message) (string, error)
}

// Conversations persists question/answer turns. A nil implementation keeps
// the endpoint stateless.
type Conversations interface {
	History(ctx context.Context, conversationID string) ([]openai.Message, error)
	Record(ctx context.Context, conversationID, question, answer string, sources interface{}) (string, error)
}

type Handler struct {
	searcher      Searcher
	engine        AnswerEngine
	conversations Conversations
}

func NewHandler(s Searcher, e AnswerEngine, c Conversations) *Handler {
	return &Handler{searcher: s, engine: e, conversations: c}
}

type AskRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
}

// Source is one page reference the answer was grounded in.
type Source struct {
	PageID string  `json:"page_id"`
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	Score  float64 `json:"score"`
}

type AskResponse struct {
	Query          string   `json:"query"`
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	ConversationID string   `json:"conversation_id,omitempty"`
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "INVALID_INPUT", "invalid request body", http.StatusBadRequest)
		return
	}
	h.answer(w, r, req)
}

// AskQuery is the GET form of Ask, taking the question from query
// parameters instead of a JSON body.
func (h *Handler) AskQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		query = r.URL.Query().Get("q")
	}
	req := AskRequest{
		Query:          query,
		ConversationID: r.URL.Query().Get("conversation_id"),
	}
	h.answer(w, r, req)
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request, req AskRequest) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	results, err := h.searcher.Search(ctx, req.Query, searchPages)
	if err != nil {
		if errors.Is(err, ranking.ErrEmptyQuery) {
			h.writeError(ctx, w, "INVALID_INPUT", "query is required", http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "search failed", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "search failed", http.StatusInternalServerError)
		return
	}

	resp := AskResponse{Query: req.Query, Sources: []Source{}}

	if len(results.Results) == 0 {
		resp.Answer = noContextAnswer
		h.writeResponse(ctx, w, resp)
		return
	}

	var history []openai.Message
	if h.conversations != nil && req.ConversationID != "" {
		history, err = h.conversations.History(ctx, req.ConversationID)
		if err != nil {
			slog.WarnContext(ctx, "loading history failed, answering without it",
				"error", err, "conversation_id", req.ConversationID)
		}
	}

	answer, err := h.engine.GenerateAnswer(ctx, req.Query, results, history)
	if err != nil {
		slog.ErrorContext(ctx, "answer generation failed", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "UPSTREAM_ERROR", "answer generation failed", http.StatusBadGateway)
		return
	}
	resp.Answer = answer
	resp.Sources = topSources(results, maxSources)

	if h.conversations != nil {
		convID, err := h.conversations.Record(ctx, req.ConversationID, req.Query, answer, resp.Sources)
		if err != nil {
			slog.WarnContext(ctx, "recording conversation failed", "error", err)
		} else {
			resp.ConversationID = convID
		}
	}

	h.writeResponse(ctx, w, resp)
}

// topSources lists the highest-ranked distinct pages behind the answer.
func topSources(results ranking.SearchResponse, limit int) []Source {
	sources := make([]Source, 0, limit)
	for _, page := range results.Results {
		if len(sources) >= limit {
			break
		}
		sources = append(sources, Source{
			PageID: page.PageID,
			Title:  page.Title,
			URL:    page.URL,
			Score:  page.Relevance,
		})
	}
	return sources
}

func (h *Handler) writeResponse(ctx context.Context, w http.ResponseWriter, resp AskResponse) {
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
