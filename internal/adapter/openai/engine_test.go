package openai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"notia/internal/ranking"
)

func rankedPage(title, snippet string, relevance float64) ranking.RankedPage {
	return ranking.RankedPage{Title: title, ContentSnippet: snippet, Relevance: relevance}
}

func TestBuildContext(t *testing.T) {
	t.Run("No Results", func(t *testing.T) {
		got := BuildContext(ranking.SearchResponse{}, 5, 4000)
		assert.Equal(t, "No relevant context found.", got)
	})

	t.Run("Labels Sources", func(t *testing.T) {
		results := ranking.SearchResponse{Results: []ranking.RankedPage{
			rankedPage("Onboarding", "first steps", 0.92),
		}}
		got := BuildContext(results, 5, 4000)
		assert.Contains(t, got, "[Source: Onboarding | Relevance: 0.920]")
		assert.Contains(t, got, "first steps")
	})

	t.Run("Missing Title Fallback", func(t *testing.T) {
		results := ranking.SearchResponse{Results: []ranking.RankedPage{
			rankedPage("", "body", 0.5),
		}}
		got := BuildContext(results, 5, 4000)
		assert.Contains(t, got, "[Source: Unknown source")
	})

	t.Run("Chunk Limit", func(t *testing.T) {
		var pages []ranking.RankedPage
		for i := 0; i < 8; i++ {
			pages = append(pages, rankedPage("P", "snippet", 0.5))
		}
		got := BuildContext(ranking.SearchResponse{Results: pages}, 5, 100000)
		assert.Equal(t, 5, strings.Count(got, "[Source:"))
	})

	t.Run("Char Budget Truncates", func(t *testing.T) {
		long := strings.Repeat("a", 500)
		results := ranking.SearchResponse{Results: []ranking.RankedPage{
			rankedPage("First", long, 0.9),
			rankedPage("Second", long, 0.8),
		}}
		got := BuildContext(results, 5, 700)
		assert.LessOrEqual(t, len(got), 720)
		assert.Contains(t, got, "...")
	})

	t.Run("Tiny Remainder Dropped", func(t *testing.T) {
		long := strings.Repeat("a", 500)
		results := ranking.SearchResponse{Results: []ranking.RankedPage{
			rankedPage("First", long, 0.9),
			rankedPage("Second", long, 0.8),
		}}
		// Remaining budget after the first chunk is under 100 chars, so the
		// second chunk is dropped entirely.
		got := BuildContext(results, 5, 600)
		assert.Equal(t, 1, strings.Count(got, "[Source:"))
	})
}

func TestPrompts(t *testing.T) {
	t.Run("Language Selection", func(t *testing.T) {
		assert.Contains(t, systemPrompt("en"), "Project Management Assistant")
		assert.Contains(t, systemPrompt("ru"), "помощник")
		assert.Contains(t, systemPrompt("uk"), "помічник")
		// Unknown codes fall back to English.
		assert.Contains(t, systemPrompt("de"), "Project Management Assistant")
	})

	t.Run("User Prompt Embeds Query And Context", func(t *testing.T) {
		got := userPrompt("en", "what is our release cadence", "ctx-block")
		assert.Contains(t, got, "what is our release cadence")
		assert.Contains(t, got, "ctx-block")
		assert.Contains(t, got, "HTML")
	})
}

type fixedDetector struct{ lang string }

func (d fixedDetector) Detect(string) string { return d.lang }

func TestQueryLanguage(t *testing.T) {
	tests := []struct {
		detected string
		want     string
	}{
		{"ru", "ru"},
		{"uk", "uk"},
		{"en", "en"},
		{"unknown", "en"},
	}
	for _, tt := range tests {
		e := NewEngine("key", fixedDetector{lang: tt.detected})
		assert.Equal(t, tt.want, e.queryLanguage("query"))
	}

	e := NewEngine("key", nil)
	assert.Equal(t, "en", e.queryLanguage("query"))
}
