package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"notia/internal/retry"
	"notia/internal/text"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
	pageSize       = 100
	fetchWorkers   = 4
)

// Client reads workspace pages through the Notion REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	retries    uint64
}

type Option func(*Client)

// WithBaseURL overrides the API endpoint, used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		retries:    3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Filter      map[string]string `json:"filter,omitempty"`
	Sort        map[string]string `json:"sort,omitempty"`
	PageSize    int               `json:"page_size,omitempty"`
	StartCursor string            `json:"start_cursor,omitempty"`
}

type searchResponse struct {
	Results    []page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type page struct {
	ID             string              `json:"id"`
	LastEditedTime string              `json:"last_edited_time"`
	Properties     map[string]property `json:"properties"`
}

type property struct {
	Title []richText `json:"title"`
}

type richText struct {
	PlainText string `json:"plain_text"`
}

type blockListResponse struct {
	Results    []map[string]interface{} `json:"results"`
	HasMore    bool                     `json:"has_more"`
	NextCursor string                   `json:"next_cursor"`
}

// FetchDocuments lists every titled page in the workspace and flattens each
// page's block tree into plain text. Pages without a usable title or with no
// text content are skipped, as is a page whose blocks cannot be fetched.
func (c *Client) FetchDocuments(ctx context.Context) ([]text.Document, error) {
	pages, err := c.searchPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("searching pages: %w", err)
	}

	docs := make([]text.Document, len(pages))
	var wg sync.WaitGroup
	sem := make(chan struct{}, fetchWorkers)
	for i, p := range pages {
		wg.Add(1)
		go func(i int, p page) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			content, err := c.pageContent(ctx, p.ID)
			if err != nil {
				slog.WarnContext(ctx, "fetching page content failed, skipping page",
					"page_id", p.ID, "error", err)
				return
			}
			if content == "" {
				return
			}
			docs[i] = text.Document{
				ID:      p.ID,
				URL:     pageURL(p.ID),
				Title:   extractTitle(p),
				Content: content,
			}
		}(i, p)
	}
	wg.Wait()

	out := make([]text.Document, 0, len(docs))
	for _, d := range docs {
		if d.Valid() {
			out = append(out, d)
		}
	}
	return out, nil
}

// LastEditedTime returns the most recent edit across the workspace, for
// cheap staleness checks. The zero time means the workspace has no pages.
func (c *Client) LastEditedTime(ctx context.Context) (time.Time, error) {
	req := searchRequest{
		Filter:   map[string]string{"property": "object", "value": "page"},
		Sort:     map[string]string{"direction": "descending", "timestamp": "last_edited_time"},
		PageSize: 1,
	}
	var res searchResponse
	if err := c.do(ctx, http.MethodPost, "/search", req, &res); err != nil {
		return time.Time{}, err
	}
	if len(res.Results) == 0 || res.Results[0].LastEditedTime == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, res.Results[0].LastEditedTime)
}

func (c *Client) searchPages(ctx context.Context) ([]page, error) {
	var pages []page
	cursor := ""
	for {
		req := searchRequest{
			Filter:      map[string]string{"property": "object", "value": "page"},
			PageSize:    pageSize,
			StartCursor: cursor,
		}
		var res searchResponse
		if err := c.do(ctx, http.MethodPost, "/search", req, &res); err != nil {
			return nil, err
		}
		for _, p := range res.Results {
			if extractTitle(p) != "" {
				pages = append(pages, p)
			}
		}
		if !res.HasMore || res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	return pages, nil
}

func (c *Client) pageContent(ctx context.Context, pageID string) (string, error) {
	var texts []string
	cursor := ""
	for {
		path := fmt.Sprintf("/blocks/%s/children?page_size=%d", pageID, pageSize)
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		var res blockListResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
			return "", err
		}
		for _, block := range res.Results {
			texts = append(texts, blockTexts(block)...)
		}
		if !res.HasMore || res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	return strings.Join(texts, " "), nil
}

// extractTitle pulls the plain-text title property. Untitled pages and the
// literal placeholder "page" do not count as titles.
func extractTitle(p page) string {
	prop, ok := p.Properties["title"]
	if !ok || len(prop.Title) == 0 {
		return ""
	}
	title := strings.TrimSpace(prop.Title[0].PlainText)
	if title == "" || strings.EqualFold(title, "page") {
		return ""
	}
	return title
}

// blockTexts collects the trimmed plain_text fragments of one block. The
// block payload nests its rich text under a key named after the block type.
func blockTexts(block map[string]interface{}) []string {
	blockType, _ := block["type"].(string)
	if blockType == "" {
		return nil
	}
	content, _ := block[blockType].(map[string]interface{})
	richTexts, _ := content["rich_text"].([]interface{})

	var out []string
	for _, rt := range richTexts {
		fields, _ := rt.(map[string]interface{})
		if t, _ := fields["plain_text"].(string); strings.TrimSpace(t) != "" {
			out = append(out, strings.TrimSpace(t))
		}
	}
	return out
}

func pageURL(pageID string) string {
	return "https://www.notion.so/" + strings.ReplaceAll(pageID, "-", "")
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return retry.Do(ctx, c.retries, time.Second, func() error {
		var reader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				return retry.Permanent(err)
			}
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Notion-Version", apiVersion)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				slog.Warn("failed to close response body", "error", closeErr)
			}
		}()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("notion api status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return retry.Permanent(fmt.Errorf("notion api status %d: %s", resp.StatusCode, data))
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}
