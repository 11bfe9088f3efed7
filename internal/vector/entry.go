package vector

import (
	"fmt"

	"github.com/google/uuid"
)

// SystemSourceID marks the reserved record that stores the last sync time.
// It is written through the regular upsert path but excluded from query
// results, counts, and page listings.
const SystemSourceID = "__system__"

// Metadata is the per-chunk record persisted alongside the vector.
// FullContent duplicates the whole document body on every chunk so the
// ranker can return page content without a second fetch.
type Metadata struct {
	SourceID    string
	SourceURL   string
	Title       string
	ChunkType   string
	ChunkIndex  int
	Language    string
	ContentHash string
	FullContent string
}

// Entry is one indexed chunk: vector, text, and metadata.
type Entry struct {
	ID     string
	Vector []float32
	Text   string
	Meta   Metadata
}

// Hit is one nearest-neighbor result. Distance is cosine distance:
// 0 means identical direction, larger means more different.
type Hit struct {
	Distance float32
	Text     string
	Meta     Metadata
}

// StoredChunk is a chunk fetched by metadata predicate rather than by
// vector proximity.
type StoredChunk struct {
	Text string
	Meta Metadata
}

// PageInfo summarizes one indexed page, used for incremental-update diffs.
type PageInfo struct {
	SourceID string
	URL      string
	Title    string
	Content  string
}

// EntryID derives the deterministic store ID for a chunk. Weaviate wants
// UUIDs for object IDs, so the source_id/index pair is hashed into one.
func EntryID(sourceID, chunkType string, chunkIndex int) string {
	name := fmt.Sprintf("%s_%s_%d", sourceID, chunkType, chunkIndex)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
