package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"notia/internal/vector"
)

// metadataFetchLimit bounds non-vector listing queries (hash sets, page
// inventories). Large enough for a workspace, small enough to stay cheap.
const metadataFetchLimit = 10000

// Store persists chunk entries in Weaviate and implements vector.Store.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(s.client))
}

func (s *Store) InsertEntries(ctx context.Context, entries []vector.Entry) error {
	objects := make([]*models.Object, 0, len(entries))
	for _, e := range entries {
		obj := &models.Object{
			Class: vector.ClassName,
			ID:    strfmt.UUID(e.ID),
			Properties: map[string]interface{}{
				"content":     e.Text,
				"sourceId":    e.Meta.SourceID,
				"sourceUrl":   e.Meta.SourceURL,
				"title":       e.Meta.Title,
				"chunkType":   e.Meta.ChunkType,
				"chunkIndex":  e.Meta.ChunkIndex,
				"language":    e.Meta.Language,
				"contentHash": e.Meta.ContentHash,
				"fullContent": e.Meta.FullContent,
			},
		}
		if len(e.Vector) > 0 {
			obj.Vector = models.C11yVector(e.Vector)
		}
		objects = append(objects, obj)
	}

	res, err := s.client.Batch().ObjectsBatcher().
		WithObjects(objects...).
		Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch insert error: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) ExistingHashes(ctx context.Context) (map[string]struct{}, error) {
	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithLimit(metadataFetchLimit).
		WithFields(graphql.Field{Name: "contentHash"}).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	hashes := make(map[string]struct{})
	for _, props := range chunkMaps(res) {
		if h, ok := props["contentHash"].(string); ok && h != "" {
			hashes[h] = struct{}{}
		}
	}
	return hashes, nil
}

func (s *Store) QueryNearest(ctx context.Context, vec []float32, k int) ([]vector.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vec)

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(chunkFields(true)...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var hits []vector.Hit
	for _, props := range chunkMaps(res) {
		hit := vector.Hit{Meta: metadataFromProps(props)}
		if content, ok := props["content"].(string); ok {
			hit.Text = content
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				hit.Distance = float32(d)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Store) DeleteBySourceID(ctx context.Context, sourceID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"sourceId"}).
			WithOperator(filters.Equal).
			WithValueString(sourceID)).
		Do(ctx)
	return err
}

func (s *Store) FetchBySourceID(ctx context.Context, sourceID string, limit int) ([]vector.StoredChunk, error) {
	where := filters.Where().
		WithPath([]string{"sourceId"}).
		WithOperator(filters.Equal).
		WithValueString(sourceID)

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithWhere(where).
		WithLimit(limit).
		WithFields(chunkFields(false)...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var chunks []vector.StoredChunk
	for _, props := range chunkMaps(res) {
		chunk := vector.StoredChunk{Meta: metadataFromProps(props)}
		if content, ok := props["content"].(string); ok {
			chunk.Text = content
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (s *Store) IndexedPages(ctx context.Context) ([]vector.PageInfo, error) {
	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithLimit(metadataFetchLimit).
		WithFields(
			graphql.Field{Name: "sourceId"},
			graphql.Field{Name: "sourceUrl"},
			graphql.Field{Name: "title"},
			graphql.Field{Name: "fullContent"},
		).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	seen := make(map[string]bool)
	var pages []vector.PageInfo
	for _, props := range chunkMaps(res) {
		id, _ := props["sourceId"].(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		page := vector.PageInfo{SourceID: id}
		if url, ok := props["sourceUrl"].(string); ok {
			page.URL = url
		}
		if title, ok := props["title"].(string); ok {
			page.Title = title
		}
		if content, ok := props["fullContent"].(string); ok {
			page.Content = content
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	where := filters.Where().
		WithPath([]string{"sourceId"}).
		WithOperator(filters.NotEqual).
		WithValueString(vector.SystemSourceID)

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithWhere(where).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := data[vector.ClassName].([]interface{}); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := row["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

// DropAll removes the class and recreates an empty schema.
func (s *Store) DropAll(ctx context.Context) error {
	if err := s.client.Schema().ClassDeleter().WithClassName(vector.ClassName).Do(ctx); err != nil {
		return err
	}
	return s.EnsureSchema(ctx)
}

func chunkFields(withDistance bool) []graphql.Field {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "sourceId"},
		{Name: "sourceUrl"},
		{Name: "title"},
		{Name: "chunkType"},
		{Name: "chunkIndex"},
		{Name: "language"},
		{Name: "contentHash"},
		{Name: "fullContent"},
	}
	if withDistance {
		fields = append(fields, graphql.Field{
			Name:   "_additional",
			Fields: []graphql.Field{{Name: "distance"}},
		})
	}
	return fields
}

func chunkMaps(res *models.GraphQLResponse) []map[string]interface{} {
	var out []map[string]interface{}
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if rows, ok := data[vector.ClassName].([]interface{}); ok {
			for _, r := range rows {
				if props, ok := r.(map[string]interface{}); ok {
					out = append(out, props)
				}
			}
		}
	}
	return out
}

func metadataFromProps(props map[string]interface{}) vector.Metadata {
	meta := vector.Metadata{}
	if v, ok := props["sourceId"].(string); ok {
		meta.SourceID = v
	}
	if v, ok := props["sourceUrl"].(string); ok {
		meta.SourceURL = v
	}
	if v, ok := props["title"].(string); ok {
		meta.Title = v
	}
	if v, ok := props["chunkType"].(string); ok {
		meta.ChunkType = v
	}
	if v, ok := props["chunkIndex"].(float64); ok {
		meta.ChunkIndex = int(v)
	}
	if v, ok := props["language"].(string); ok {
		meta.Language = v
	}
	if v, ok := props["contentHash"].(string); ok {
		meta.ContentHash = v
	}
	if v, ok := props["fullContent"].(string); ok {
		meta.FullContent = v
	}
	return meta
}
