package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBackend returns a fixed-dimension vector derived from call order
// and records every batch it receives.
type recordingBackend struct {
	batches [][]string
	fail    bool
	next    float32
}

func (b *recordingBackend) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if b.fail {
		return nil, errors.New("backend unavailable")
	}
	b.batches = append(b.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i := range texts {
		b.next++
		out[i] = []float32{b.next}
	}
	return out, nil
}

func TestGenerator_EmbedChunks(t *testing.T) {
	t.Run("Length Mismatch", func(t *testing.T) {
		g := NewGenerator(&recordingBackend{}, 32)
		_, err := g.EmbedChunks(context.Background(), []string{"a", "b"}, []string{"h1"})
		assert.Error(t, err)
	})

	t.Run("One Vector Per Text", func(t *testing.T) {
		g := NewGenerator(&recordingBackend{}, 32)
		vecs, err := g.EmbedChunks(context.Background(), []string{"a", "b", "c"}, []string{"h1", "h2", "h3"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		for _, v := range vecs {
			assert.NotEmpty(t, v)
		}
	})

	t.Run("Cache Hit Skips Backend", func(t *testing.T) {
		backend := &recordingBackend{}
		g := NewGenerator(backend, 32)

		first, err := g.EmbedChunks(context.Background(), []string{"same text"}, []string{"h1"})
		require.NoError(t, err)
		second, err := g.EmbedChunks(context.Background(), []string{"same text"}, []string{"h1"})
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, backend.batches, 1)
		assert.Equal(t, 1, g.CacheSize())
	})

	t.Run("Batches Bounded By Batch Size", func(t *testing.T) {
		backend := &recordingBackend{}
		g := NewGenerator(backend, 2)

		texts := []string{"a", "b", "c", "d", "e"}
		hashes := []string{"h1", "h2", "h3", "h4", "h5"}
		_, err := g.EmbedChunks(context.Background(), texts, hashes)
		require.NoError(t, err)

		require.Len(t, backend.batches, 3)
		assert.Len(t, backend.batches[0], 2)
		assert.Len(t, backend.batches[1], 2)
		assert.Len(t, backend.batches[2], 1)
	})

	t.Run("Backend Failure Propagates", func(t *testing.T) {
		g := NewGenerator(&recordingBackend{fail: true}, 32)
		_, err := g.EmbedChunks(context.Background(), []string{"a"}, []string{"h1"})
		assert.Error(t, err)
		assert.Equal(t, 0, g.CacheSize())
	})

	t.Run("Texts Cleaned Before Backend", func(t *testing.T) {
		backend := &recordingBackend{}
		g := NewGenerator(backend, 32)

		_, err := g.EmbedChunks(context.Background(), []string{"<b>hello</b>  world"}, []string{"h1"})
		require.NoError(t, err)
		require.Len(t, backend.batches, 1)
		assert.Equal(t, "hello world", backend.batches[0][0])
	})
}

func TestGenerator_EmbedQuery(t *testing.T) {
	t.Run("Bypasses Cache", func(t *testing.T) {
		backend := &recordingBackend{}
		g := NewGenerator(backend, 32)

		_, err := g.EmbedQuery(context.Background(), "query")
		require.NoError(t, err)
		_, err = g.EmbedQuery(context.Background(), "query")
		require.NoError(t, err)

		assert.Len(t, backend.batches, 2)
		assert.Equal(t, 0, g.CacheSize())
	})
}
