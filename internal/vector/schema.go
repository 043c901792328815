package vector

import (
	"context"
	"strings"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient is the subset of Weaviate schema operations the index needs.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
}

// ClassName maps a collection id to its Weaviate class. Weaviate class names
// must start with an uppercase letter and be alphanumeric, so the id is
// sanitized (uuid dashes dropped).
func ClassName(collectionID string) string {
	var b strings.Builder
	b.WriteString("Collection_")
	for _, r := range collectionID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ChunkProperties is the property schema of every collection class.
func ChunkProperties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "documentId", DataType: []string{"string"}}, // UUID as string (exact match)
		{Name: "collectionId", DataType: []string{"string"}},
		{Name: "tokens", DataType: []string{"int"}},
		{Name: "offset", DataType: []string{"int"}},
	}
}

// EnsureCollectionClass creates the collection's class if it does not exist.
// Vectors are supplied by the embedding pipeline, so the vectorizer is "none".
func EnsureCollectionClass(ctx context.Context, client SchemaClient, collectionID string) error {
	className := ClassName(collectionID)
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       className,
		Description: "Embedded chunks of one document collection",
		Vectorizer:  "none",
		Properties:  ChunkProperties(),
	}
	return client.CreateClass(ctx, class)
}
