package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"corpora/internal/ingest"
	"corpora/internal/retrieval"
	"corpora/internal/vector"
)

// Index stores one Weaviate class per collection. Object ids come from the
// pipeline's deterministic chunk ids, so a batch upsert of a retried document
// overwrites the previous attempt's entries.
type Index struct {
	client *weaviate.Client
}

func NewIndex(client *weaviate.Client) *Index {
	return &Index{client: client}
}

func (i *Index) EnsureCollection(ctx context.Context, collectionID string) error {
	adapter := vector.NewWeaviateClientAdapter(i.client)
	return vector.EnsureCollectionClass(ctx, adapter, collectionID)
}

func (i *Index) Upsert(ctx context.Context, collectionID string, entries []ingest.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	className := vector.ClassName(collectionID)

	objects := make([]*models.Object, len(entries))
	for n, e := range entries {
		objects[n] = &models.Object{
			Class: className,
			ID:    strfmt.UUID(e.ChunkID),
			Properties: map[string]interface{}{
				"content":      e.Text,
				"documentId":   e.DocumentID,
				"collectionId": e.CollectionID,
				"tokens":       e.Tokens,
				"offset":       e.Offset,
			},
			Vector: models.C11yVector(e.Vector),
		}
	}

	res, err := i.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}
	for _, obj := range res {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch upsert error for %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (i *Index) Count(ctx context.Context, collectionID string) (int, error) {
	className := vector.ClassName(collectionID)

	exists, err := i.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	res, err := i.client.GraphQL().Aggregate().
		WithClassName(className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := agg[className].([]interface{}); ok && len(rows) > 0 {
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

func (i *Index) Query(ctx context.Context, collectionID string, queryVector []float32, k int) ([]retrieval.Match, error) {
	className := vector.ClassName(collectionID)

	nearVector := i.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "documentId"},
		{Name: "tokens"},
		{Name: "offset"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	res, err := i.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var matches []retrieval.Match
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if rows, ok := data[className].([]interface{}); ok {
			for _, r := range rows {
				props, ok := r.(map[string]interface{})
				if !ok {
					continue
				}

				match := retrieval.Match{Metadata: make(map[string]interface{})}
				if content, ok := props["content"].(string); ok {
					match.Text = content
				}
				if docID, ok := props["documentId"].(string); ok {
					match.Metadata["documentId"] = docID
				}
				if tokens, ok := props["tokens"].(float64); ok {
					match.Metadata["tokens"] = int(tokens)
				}
				if offset, ok := props["offset"].(float64); ok {
					match.Metadata["offset"] = int(offset)
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if id, ok := additional["id"].(string); ok {
						match.ChunkID = id
						match.Metadata["chunkId"] = id
					}
					if distance, ok := additional["distance"].(float64); ok {
						match.Distance = float32(distance)
					}
				}
				matches = append(matches, match)
			}
		}
	}
	return matches, nil
}
