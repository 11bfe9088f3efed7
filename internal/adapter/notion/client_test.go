package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageJSON(id, title, lastEdited string) map[string]interface{} {
	return map[string]interface{}{
		"id":               id,
		"last_edited_time": lastEdited,
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"title": []map[string]interface{}{{"plain_text": title}},
			},
		},
	}
}

func paragraph(texts ...string) map[string]interface{} {
	var rich []map[string]interface{}
	for _, t := range texts {
		rich = append(rich, map[string]interface{}{"plain_text": t})
	}
	return map[string]interface{}{
		"type":      "paragraph",
		"paragraph": map[string]interface{}{"rich_text": rich},
	}
}

func TestClient_FetchDocuments(t *testing.T) {
	t.Run("Flattens Titled Pages", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/search":
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				assert.NotEmpty(t, r.Header.Get("Notion-Version"))
				json.NewEncoder(w).Encode(map[string]interface{}{
					"results": []map[string]interface{}{
						pageJSON("abc-123", "Sprint retro", ""),
						pageJSON("def-456", "page", ""), // placeholder title, skipped
						pageJSON("ghi-789", "   ", ""),  // blank title, skipped
					},
					"has_more": false,
				})
			case r.URL.Path == "/blocks/abc-123/children":
				json.NewEncoder(w).Encode(map[string]interface{}{
					"results":  []map[string]interface{}{paragraph("What went", "well")},
					"has_more": false,
				})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))
		defer server.Close()

		client := NewClient("secret", WithBaseURL(server.URL))
		docs, err := client.FetchDocuments(context.Background())
		require.NoError(t, err)

		require.Len(t, docs, 1)
		assert.Equal(t, "abc-123", docs[0].ID)
		assert.Equal(t, "Sprint retro", docs[0].Title)
		assert.Equal(t, "What went well", docs[0].Content)
		assert.Equal(t, "https://www.notion.so/abc123", docs[0].URL)
	})

	t.Run("Paginates Search And Blocks", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/search":
				var req searchRequest
				json.NewDecoder(r.Body).Decode(&req)
				if req.StartCursor == "" {
					json.NewEncoder(w).Encode(map[string]interface{}{
						"results":     []map[string]interface{}{pageJSON("p1", "First", "")},
						"has_more":    true,
						"next_cursor": "c2",
					})
				} else {
					json.NewEncoder(w).Encode(map[string]interface{}{
						"results":  []map[string]interface{}{pageJSON("p2", "Second", "")},
						"has_more": false,
					})
				}
			case "/blocks/p1/children", "/blocks/p2/children":
				if r.URL.Query().Get("start_cursor") == "" {
					json.NewEncoder(w).Encode(map[string]interface{}{
						"results":     []map[string]interface{}{paragraph("part one")},
						"has_more":    true,
						"next_cursor": "b2",
					})
				} else {
					json.NewEncoder(w).Encode(map[string]interface{}{
						"results":  []map[string]interface{}{paragraph("part two")},
						"has_more": false,
					})
				}
			}
		}))
		defer server.Close()

		client := NewClient("secret", WithBaseURL(server.URL))
		docs, err := client.FetchDocuments(context.Background())
		require.NoError(t, err)

		require.Len(t, docs, 2)
		for _, d := range docs {
			assert.Equal(t, "part one part two", d.Content)
		}
	})

	t.Run("Content Fetch Failure Skips Page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/search":
				json.NewEncoder(w).Encode(map[string]interface{}{
					"results": []map[string]interface{}{
						pageJSON("ok", "Good", ""),
						pageJSON("broken", "Bad", ""),
					},
					"has_more": false,
				})
			case "/blocks/ok/children":
				json.NewEncoder(w).Encode(map[string]interface{}{
					"results":  []map[string]interface{}{paragraph("content")},
					"has_more": false,
				})
			case "/blocks/broken/children":
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"message":"block not found"}`)
			}
		}))
		defer server.Close()

		client := NewClient("secret", WithBaseURL(server.URL))
		docs, err := client.FetchDocuments(context.Background())
		require.NoError(t, err)

		require.Len(t, docs, 1)
		assert.Equal(t, "ok", docs[0].ID)
	})

	t.Run("Retries Server Errors", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"results":  []map[string]interface{}{},
				"has_more": false,
			})
		}))
		defer server.Close()

		client := NewClient("secret", WithBaseURL(server.URL))
		docs, err := client.FetchDocuments(context.Background())
		require.NoError(t, err)
		assert.Empty(t, docs)
		assert.GreaterOrEqual(t, attempts.Load(), int32(2))
	})
}

func TestClient_LastEditedTime(t *testing.T) {
	t.Run("Most Recent Edit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req searchRequest
			json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, 1, req.PageSize)
			assert.Equal(t, "descending", req.Sort["direction"])

			json.NewEncoder(w).Encode(map[string]interface{}{
				"results":  []map[string]interface{}{pageJSON("p1", "Latest", "2025-06-01T12:00:00Z")},
				"has_more": false,
			})
		}))
		defer server.Close()

		client := NewClient("secret", WithBaseURL(server.URL))
		got, err := client.LastEditedTime(context.Background())
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	})

	t.Run("Empty Workspace", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"results": []map[string]interface{}{}})
		}))
		defer server.Close()

		client := NewClient("secret", WithBaseURL(server.URL))
		got, err := client.LastEditedTime(context.Background())
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})
}
