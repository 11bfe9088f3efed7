package vector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Store is the persistence layer beneath the Index. Implementations return
// errors; the Index decides what to do with them.
type Store interface {
	InsertEntries(ctx context.Context, entries []Entry) error
	ExistingHashes(ctx context.Context) (map[string]struct{}, error)
	QueryNearest(ctx context.Context, vector []float32, k int) ([]Hit, error)
	DeleteBySourceID(ctx context.Context, sourceID string) error
	FetchBySourceID(ctx context.Context, sourceID string, limit int) ([]StoredChunk, error)
	IndexedPages(ctx context.Context) ([]PageInfo, error)
	CountChunks(ctx context.Context) (int, error)
	DropAll(ctx context.Context) error
}

// Metrics counts persistence errors the Index absorbed. Suppression keeps
// queries degraded rather than failing, but every swallowed error must stay
// observable.
type Metrics struct {
	QueryFailures  int64
	UpsertFailures int64
	DeleteFailures int64
}

// Index owns chunk storage. Writes dedup on content hash; reads convert
// persistence errors into empty results, counting each suppression.
type Index struct {
	store Store

	queryFailures  atomic.Int64
	upsertFailures atomic.Int64
	deleteFailures atomic.Int64
}

func NewIndex(store Store) *Index {
	return &Index{store: store}
}

// Upsert inserts entries whose content hash is not yet indexed and returns
// the number actually inserted. A persistence failure inserts nothing from
// this call; the shortfall is visible in the returned count.
func (ix *Index) Upsert(ctx context.Context, entries []Entry) int {
	if len(entries) == 0 {
		return 0
	}

	existing, err := ix.store.ExistingHashes(ctx)
	if err != nil {
		ix.upsertFailures.Add(1)
		slog.ErrorContext(ctx, "fetching existing hashes failed, skipping upsert", "error", err)
		return 0
	}

	fresh := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Meta.SourceID != SystemSourceID {
			if _, dup := existing[e.Meta.ContentHash]; dup {
				continue
			}
		}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return 0
	}

	if err := ix.store.InsertEntries(ctx, fresh); err != nil {
		ix.upsertFailures.Add(1)
		slog.ErrorContext(ctx, "upsert failed", "error", err, "entries", len(fresh))
		return 0
	}
	return len(fresh)
}

// Query returns up to k nearest neighbors for the vector. The reserved
// system record never appears in results. Persistence errors surface as
// zero hits, not as failures.
func (ix *Index) Query(ctx context.Context, vector []float32, k int) []Hit {
	hits, err := ix.store.QueryNearest(ctx, vector, k)
	if err != nil {
		ix.queryFailures.Add(1)
		slog.ErrorContext(ctx, "vector query failed", "error", err, "k", k)
		return nil
	}

	filtered := hits[:0]
	for _, h := range hits {
		if h.Meta.SourceID == SystemSourceID {
			continue
		}
		filtered = append(filtered, h)
	}
	return filtered
}

// Delete removes all entries for one source page.
func (ix *Index) Delete(ctx context.Context, sourceID string) bool {
	if err := ix.store.DeleteBySourceID(ctx, sourceID); err != nil {
		ix.deleteFailures.Add(1)
		slog.ErrorContext(ctx, "delete by source failed", "error", err, "source_id", sourceID)
		return false
	}
	return true
}

// Clear drops every entry, the system record included. Used only for a
// full rebuild.
func (ix *Index) Clear(ctx context.Context) bool {
	if err := ix.store.DropAll(ctx); err != nil {
		ix.deleteFailures.Add(1)
		slog.ErrorContext(ctx, "clearing index failed", "error", err)
		return false
	}
	return true
}

// Count reports the number of indexed chunks, excluding the system record.
func (ix *Index) Count(ctx context.Context) int {
	n, err := ix.store.CountChunks(ctx)
	if err != nil {
		ix.queryFailures.Add(1)
		slog.ErrorContext(ctx, "counting chunks failed", "error", err)
		return 0
	}
	return n
}

// IndexedPages lists one record per indexed page for diffing during
// incremental updates.
func (ix *Index) IndexedPages(ctx context.Context) ([]PageInfo, error) {
	pages, err := ix.store.IndexedPages(ctx)
	if err != nil {
		return nil, err
	}
	filtered := pages[:0]
	for _, p := range pages {
		if p.SourceID == SystemSourceID {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered, nil
}

// SetLastSync records the sync completion time through the regular write
// path, replacing the previous system record.
func (ix *Index) SetLastSync(ctx context.Context, t time.Time) error {
	entry := Entry{
		ID:   EntryID(SystemSourceID, "system", 0),
		Text: "system_record",
		Meta: Metadata{
			SourceID:    SystemSourceID,
			ChunkType:   "system",
			ContentHash: "system",
			FullContent: t.UTC().Format(time.RFC3339),
		},
	}
	return ix.store.InsertEntries(ctx, []Entry{entry})
}

// LastSync returns the recorded sync time, or the zero time when no sync
// has completed yet.
func (ix *Index) LastSync(ctx context.Context) (time.Time, error) {
	chunks, err := ix.store.FetchBySourceID(ctx, SystemSourceID, 1)
	if err != nil {
		return time.Time{}, err
	}
	if len(chunks) == 0 {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, chunks[0].Meta.FullContent)
}

// Suppressed exposes the absorbed-failure counters for stats and tests.
func (ix *Index) Suppressed() Metrics {
	return Metrics{
		QueryFailures:  ix.queryFailures.Load(),
		UpsertFailures: ix.upsertFailures.Load(),
		DeleteFailures: ix.deleteFailures.Load(),
	}
}
