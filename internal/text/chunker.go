package text

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

type ChunkType string

const (
	ChunkTypeTitle   ChunkType = "title"
	ChunkTypeContent ChunkType = "content"
)

// Chunk is the unit of embedding and indexing: either the page title or
// one token-bounded window of the page body.
type Chunk struct {
	Text        string
	Type        ChunkType
	Index       int // window position for content chunks, 0 for the title chunk
	ContentHash string
	Language    string
}

// HashContent returns the dedup key for a chunk's text. Two chunks with
// identical text across syncs share a hash and are never re-embedded.
func HashContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}

// Chunker splits documents into title and content chunks. Windows are
// non-overlapping so the partition is deterministic and hash-friendly.
type Chunker struct {
	maxTokens int
	detector  LanguageDetector
}

func NewChunker(maxTokens int, detector LanguageDetector) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 100
	}
	return &Chunker{maxTokens: maxTokens, detector: detector}
}

// Chunk derives the chunk sequence for a document: one title chunk when the
// trimmed title is non-empty, then one content chunk per token window.
// Chunking the same document always yields the same sequence.
func (c *Chunker) Chunk(doc Document) []Chunk {
	var chunks []Chunk

	if title := strings.TrimSpace(doc.Title); title != "" {
		chunks = append(chunks, Chunk{
			Text:        title,
			Type:        ChunkTypeTitle,
			ContentHash: HashContent(title),
			Language:    c.detectLanguage(title),
		})
	}

	for i, window := range c.windows(doc.Content) {
		chunks = append(chunks, Chunk{
			Text:        window,
			Type:        ChunkTypeContent,
			Index:       i,
			ContentHash: HashContent(window),
			Language:    c.detectLanguage(window),
		})
	}

	return chunks
}

// windows partitions the content into consecutive word windows of at most
// maxTokens tokens. Whitespace-only content yields no windows.
func (c *Chunker) windows(content string) []string {
	content = strings.ToValidUTF8(content, "�")
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}

	var out []string
	for start := 0; start < len(words); start += c.maxTokens {
		end := start + c.maxTokens
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

func (c *Chunker) detectLanguage(s string) string {
	if c.detector == nil {
		return "unknown"
	}
	return c.detector.Detect(s)
}
