package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"notia/internal/text"
	"notia/internal/vector"
)

type Chunker interface {
	Chunk(doc text.Document) []text.Chunk
}

type Embedder interface {
	EmbedChunks(ctx context.Context, texts, hashes []string) ([][]float32, error)
}

// Index is the slice of the vector index the ingest pipeline writes to.
type Index interface {
	Upsert(ctx context.Context, entries []vector.Entry) int
	Delete(ctx context.Context, sourceID string) bool
	Clear(ctx context.Context) bool
	IndexedPages(ctx context.Context) ([]vector.PageInfo, error)
	SetLastSync(ctx context.Context, t time.Time) error
	LastSync(ctx context.Context) (time.Time, error)
}

// UpdateStats reports what an incremental update touched.
type UpdateStats struct {
	Added       int `json:"added"`
	Changed     int `json:"changed"`
	Removed     int `json:"removed"`
	ChunksAdded int `json:"chunks_added"`
}

// Service turns documents into indexed chunk entries. Chunking fans out over
// a bounded worker pool; embedding stays sequential since the model is the
// throughput bottleneck either way.
type Service struct {
	chunker  Chunker
	embedder Embedder
	index    Index
	workers  int
}

func NewService(chunker Chunker, embedder Embedder, index Index, workers int) *Service {
	if workers <= 0 {
		workers = 4
	}
	return &Service{chunker: chunker, embedder: embedder, index: index, workers: workers}
}

// AddDocuments chunks, embeds, and upserts the documents, returning the
// number of chunks actually inserted. Duplicate chunks and persistence
// failures reduce the count rather than failing the call; an embedding
// failure indexes nothing and is returned.
func (s *Service) AddDocuments(ctx context.Context, docs []text.Document) (int, error) {
	entries := s.chunkAll(ctx, docs)
	if len(entries) == 0 {
		return 0, nil
	}

	texts := make([]string, len(entries))
	hashes := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
		hashes[i] = e.Meta.ContentHash
	}

	vectors, err := s.embedder.EmbedChunks(ctx, texts, hashes)
	if err != nil {
		return 0, fmt.Errorf("embedding documents: %w", err)
	}
	for i := range entries {
		entries[i].Vector = vectors[i]
	}

	inserted := s.index.Upsert(ctx, entries)
	slog.InfoContext(ctx, "documents indexed",
		"documents", len(docs), "chunks", len(entries), "inserted", inserted)
	return inserted, nil
}

// Rebuild drops the whole index and re-indexes every document, then stamps
// the sync time. Used for first sync or an explicit reset.
func (s *Service) Rebuild(ctx context.Context, docs []text.Document) (int, error) {
	if ok := s.index.Clear(ctx); !ok {
		return 0, fmt.Errorf("clearing index failed")
	}
	added, err := s.AddDocuments(ctx, docs)
	if err != nil {
		return added, err
	}
	if err := s.index.SetLastSync(ctx, time.Now()); err != nil {
		slog.WarnContext(ctx, "recording sync time failed", "error", err)
	}
	return added, nil
}

// IncrementalUpdate diffs the current documents against the indexed pages
// and applies only the delta. Changed pages are detected by direct title and
// content comparison against the last-indexed version.
func (s *Service) IncrementalUpdate(ctx context.Context, docs []text.Document) (UpdateStats, error) {
	indexed, err := s.index.IndexedPages(ctx)
	if err != nil {
		return UpdateStats{}, fmt.Errorf("listing indexed pages: %w", err)
	}

	indexedByID := make(map[string]vector.PageInfo, len(indexed))
	for _, p := range indexed {
		indexedByID[p.SourceID] = p
	}
	currentIDs := make(map[string]bool, len(docs))

	var stats UpdateStats
	var toIndex []text.Document
	for _, doc := range docs {
		currentIDs[doc.ID] = true
		prev, ok := indexedByID[doc.ID]
		switch {
		case !ok:
			stats.Added++
			toIndex = append(toIndex, doc)
		case prev.Title != doc.Title || prev.Content != doc.Content:
			stats.Changed++
			s.index.Delete(ctx, doc.ID)
			toIndex = append(toIndex, doc)
		}
	}

	var removed []string
	for _, p := range indexed {
		if !currentIDs[p.SourceID] {
			removed = append(removed, p.SourceID)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		if s.index.Delete(ctx, id) {
			stats.Removed++
		}
	}

	if len(toIndex) > 0 {
		added, err := s.AddDocuments(ctx, toIndex)
		if err != nil {
			return stats, err
		}
		stats.ChunksAdded = added
	}

	if err := s.index.SetLastSync(ctx, time.Now()); err != nil {
		slog.WarnContext(ctx, "recording sync time failed", "error", err)
	}
	slog.InfoContext(ctx, "incremental update complete",
		"added", stats.Added, "changed", stats.Changed, "removed", stats.Removed,
		"chunks_added", stats.ChunksAdded)
	return stats, nil
}

// NeedsSync compares the source's most recent edit against the recorded
// sync time. A missing sync record always means a sync is due.
func (s *Service) NeedsSync(ctx context.Context, sourceModified time.Time) (bool, error) {
	last, err := s.index.LastSync(ctx)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return true, nil
	}
	return sourceModified.After(last), nil
}

// chunkAll fans document chunking out over the worker pool. Each worker
// produces entries for whole documents, so the merge needs no locking
// beyond the result channel.
func (s *Service) chunkAll(ctx context.Context, docs []text.Document) []vector.Entry {
	jobs := make(chan text.Document)
	results := make(chan []vector.Entry)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				results <- s.entriesFor(doc)
			}
		}()
	}

	go func() {
		for _, doc := range docs {
			if doc.Valid() {
				jobs <- doc
			}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	byDoc := make(map[string][]vector.Entry, len(docs))
	for entries := range results {
		if len(entries) > 0 {
			byDoc[entries[0].Meta.SourceID] = entries
		}
	}

	// Workers finish in arbitrary order; reassemble in input order so the
	// whole pipeline stays deterministic.
	var all []vector.Entry
	for _, doc := range docs {
		all = append(all, byDoc[doc.ID]...)
	}
	return all
}

func (s *Service) entriesFor(doc text.Document) []vector.Entry {
	chunks := s.chunker.Chunk(doc)
	entries := make([]vector.Entry, 0, len(chunks))
	for _, c := range chunks {
		entries = append(entries, vector.Entry{
			ID:   vector.EntryID(doc.ID, string(c.Type), c.Index),
			Text: c.Text,
			Meta: vector.Metadata{
				SourceID:    doc.ID,
				SourceURL:   doc.URL,
				Title:       doc.Title,
				ChunkType:   string(c.Type),
				ChunkIndex:  c.Index,
				Language:    c.Language,
				ContentHash: c.ContentHash,
				FullContent: doc.Content,
			},
		})
	}
	return entries
}
