package ranking

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"notia/internal/middleware"
	"notia/internal/vector"
)

// titleFraming rewraps the query so its embedding lands near title chunks.
// Title and content chunks share one vector space but differ in granularity;
// querying with both framings captures "discusses X" and "is about X".
const titleFraming = "Page title: "

const (
	maxNeighbors = 100
	overFetch    = 5
	snippetRunes = 300
)

var ErrEmptyQuery = errors.New("query must not be empty")

// RankedPage is one page-level search result after chunk aggregation.
type RankedPage struct {
	PageID            string  `json:"page_id"`
	Title             string  `json:"title"`
	URL               string  `json:"url"`
	Relevance         float64 `json:"relevance_score"`
	MatchType         string  `json:"match_type"`
	TitleSimilarity   float64 `json:"title_similarity"`
	ContentSimilarity float64 `json:"content_similarity"`
	ContentSnippet    string  `json:"content_snippet"`
}

// SearchResponse carries the ranked pages plus the candidate count before
// truncation, so callers can tell how much was cut off.
type SearchResponse struct {
	Results    []RankedPage `json:"results"`
	TotalPages int          `json:"total_pages"`
}

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type ChunkIndex interface {
	Query(ctx context.Context, vector []float32, k int) []vector.Hit
}

// Ranker turns chunk-level nearest-neighbor hits into page-level results.
type Ranker struct {
	embedder Embedder
	index    ChunkIndex
	logger   *QueryLogger
}

func NewRanker(e Embedder, ix ChunkIndex, l *QueryLogger) *Ranker {
	return &Ranker{embedder: e, index: ix, logger: l}
}

// pageCandidate accumulates per-page evidence while grouping chunk hits.
type pageCandidate struct {
	pageID       string
	title        string
	url          string
	titleSim     float64
	contentSims  []float64
	bestSnippet  string
	bestSim      float64
	fullContent  string
	rawScore     float64
	relevance    float64
	matchType    string
	contentScore float64
}

// Search ranks indexed pages against the query and returns at most maxPages
// results. Index-level failures degrade to fewer results rather than an
// error; only embedding failures and an empty query fail the call.
func (r *Ranker) Search(ctx context.Context, query string, maxPages int) (SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return SearchResponse{}, ErrEmptyQuery
	}
	if maxPages <= 0 {
		maxPages = 10
	}
	start := time.Now()

	k := maxPages * overFetch
	if k > maxNeighbors {
		k = maxNeighbors
	}

	hits, err := r.fetchHits(ctx, query, k)
	if err != nil {
		return SearchResponse{}, err
	}

	candidates := groupByPage(hits)
	for _, c := range candidates {
		c.score()
	}
	normalize(candidates)

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].relevance != candidates[j].relevance {
			return candidates[i].relevance > candidates[j].relevance
		}
		return candidates[i].pageID < candidates[j].pageID
	})

	total := len(candidates)
	if len(candidates) > maxPages {
		candidates = candidates[:maxPages]
	}

	results := make([]RankedPage, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, RankedPage{
			PageID:            c.pageID,
			Title:             c.title,
			URL:               c.url,
			Relevance:         c.relevance,
			MatchType:         c.matchType,
			TitleSimilarity:   c.titleSim,
			ContentSimilarity: c.contentScore,
			ContentSnippet:    c.snippet(),
		})
	}

	if r.logger != nil {
		r.logger.Log(QueryLogEntry{
			Query:         query,
			NumResults:    len(results),
			TotalPages:    total,
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return SearchResponse{Results: results, TotalPages: total}, nil
}

// fetchHits runs the content-framed and title-framed sub-queries
// concurrently and merges both hit lists. Duplicates are kept; the per-page
// aggregation absorbs them.
func (r *Ranker) fetchHits(ctx context.Context, query string, k int) ([]vector.Hit, error) {
	type subResult struct {
		hits []vector.Hit
		err  error
	}
	queries := []string{query, titleFraming + query}
	results := make([]subResult, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			vec, err := r.embedder.EmbedQuery(ctx, q)
			if err != nil {
				results[i] = subResult{err: err}
				return
			}
			results[i] = subResult{hits: r.index.Query(ctx, vec, k)}
		}(i, q)
	}
	wg.Wait()

	var merged []vector.Hit
	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
		merged = append(merged, res.hits...)
	}
	return merged, nil
}

func groupByPage(hits []vector.Hit) []*pageCandidate {
	byPage := make(map[string]*pageCandidate)
	var order []string

	for _, h := range hits {
		id := h.Meta.SourceID
		if id == "" {
			continue
		}
		c, ok := byPage[id]
		if !ok {
			c = &pageCandidate{pageID: id, title: h.Meta.Title, url: h.Meta.SourceURL}
			byPage[id] = c
			order = append(order, id)
		}
		if c.fullContent == "" {
			c.fullContent = h.Meta.FullContent
		}

		sim := similarity(h.Distance)
		switch h.Meta.ChunkType {
		case "title":
			if sim > c.titleSim {
				c.titleSim = sim
			}
		case "content":
			c.contentSims = append(c.contentSims, sim)
			if sim > c.bestSim {
				c.bestSim = sim
				c.bestSnippet = h.Text
			}
		}
	}

	candidates := make([]*pageCandidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, byPage[id])
	}
	return candidates
}

// similarity converts cosine distance to (0, 1]. The 1/(1+d) form stays
// positive for every distance the backend can return.
func similarity(distance float32) float64 {
	return 1.0 / (1.0 + float64(distance))
}

// score blends title and content evidence into the page's raw score.
func (c *pageCandidate) score() {
	n := len(c.contentSims)
	c.contentScore = contentScore(c.contentSims)

	// Thin content evidence makes the title the stronger signal, so its
	// weight shrinks as content hits accumulate.
	weight := 2.0
	switch {
	case n >= 10:
		weight = 4.0
	case n >= 3:
		weight = 3.0
	}

	bonus := 1.0
	switch {
	case c.titleSim > 0.6:
		bonus = 1 + (c.titleSim-0.6)*2.0
	case c.titleSim > 0.5:
		bonus = 1 + (c.titleSim-0.5)*1.0
	}

	c.rawScore = (c.contentScore*bonus + c.titleSim*weight) / (weight + 1)

	switch {
	case c.titleSim >= c.contentScore && c.titleSim > 0:
		c.matchType = "title"
	case c.contentScore > 0:
		c.matchType = "content"
	default:
		c.matchType = "none"
	}
}

// contentScore judges a page by its strongest handful of content hits.
// Pages with many scattered weak matches must not win on volume alone.
func contentScore(sims []float64) float64 {
	n := len(sims)
	switch {
	case n == 0:
		return 0.0
	case n == 1:
		return sims[0]
	case n <= 5:
		return mean(sims)
	case n < 10:
		return meanTop(sims, 3)
	default:
		return meanTop(sims, 5)
	}
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func meanTop(vals []float64, top int) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	return mean(sorted[:top])
}

// normalize min-max rescales raw scores to [0, 1]. All candidates tied is a
// defined edge case: every relevance becomes 0.0.
func normalize(candidates []*pageCandidate) {
	if len(candidates) == 0 {
		return
	}
	minScore, maxScore := candidates[0].rawScore, candidates[0].rawScore
	for _, c := range candidates[1:] {
		if c.rawScore < minScore {
			minScore = c.rawScore
		}
		if c.rawScore > maxScore {
			maxScore = c.rawScore
		}
	}
	if maxScore == minScore {
		for _, c := range candidates {
			c.relevance = 0.0
		}
		return
	}
	for _, c := range candidates {
		c.relevance = (c.rawScore - minScore) / (maxScore - minScore)
	}
}

// snippet prefers the best-matching content chunk, falling back to the
// start of the page body for title-only matches.
func (c *pageCandidate) snippet() string {
	text := c.bestSnippet
	if text == "" {
		text = c.fullContent
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetRunes]) + "..."
}
