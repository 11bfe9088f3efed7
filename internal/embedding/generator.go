package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"notia/internal/text"
)

// Backend computes embeddings for a slice of texts, preserving input order.
// All vectors from one backend share the same dimensionality.
type Backend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator wraps a Backend with input cleaning, bounded batching, and a
// process-local cache keyed by content hash. The cache is purely a
// performance optimization; it does not survive restarts and nothing
// depends on it being populated.
type Generator struct {
	backend   Backend
	batchSize int

	mu    sync.RWMutex
	cache map[string][]float32
}

func NewGenerator(backend Backend, batchSize int) *Generator {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Generator{
		backend:   backend,
		batchSize: batchSize,
		cache:     make(map[string][]float32),
	}
}

// EmbedChunks returns one vector per text, in input order. hashes must be
// parallel to texts; previously seen hashes reuse the cached vector.
// Batching never changes an individual text's vector, only throughput.
func (g *Generator) EmbedChunks(ctx context.Context, texts, hashes []string) ([][]float32, error) {
	if len(texts) != len(hashes) {
		return nil, fmt.Errorf("texts and hashes length mismatch: %d vs %d", len(texts), len(hashes))
	}

	vectors := make([][]float32, len(texts))

	var missTexts []string
	var missIdx []int

	g.mu.RLock()
	for i, h := range hashes {
		if v, ok := g.cache[h]; ok {
			vectors[i] = v
		} else {
			missTexts = append(missTexts, text.CleanForEmbedding(texts[i]))
			missIdx = append(missIdx, i)
		}
	}
	g.mu.RUnlock()

	for start := 0; start < len(missTexts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}

		batch, err := g.backend.EmbedBatch(ctx, missTexts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("backend returned %d vectors for %d texts", len(batch), end-start)
		}

		g.mu.Lock()
		for j, vec := range batch {
			idx := missIdx[start+j]
			vectors[idx] = vec
			g.cache[hashes[idx]] = vec
		}
		g.mu.Unlock()
	}

	slog.DebugContext(ctx, "embedded chunks", "total", len(texts), "cache_misses", len(missTexts))
	return vectors, nil
}

// EmbedQuery embeds a single query string, bypassing the cache.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := g.backend.EmbedBatch(ctx, []string{text.CleanForEmbedding(query)})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("backend returned %d vectors for one query", len(vecs))
	}
	return vecs[0], nil
}

// CacheSize reports the number of cached vectors, for stats.
func (g *Generator) CacheSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}
