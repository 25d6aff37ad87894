package usecase

import (
	"context"
	"fmt"

	"pulse-backend/internal/content/domain"
	"pulse-backend/pkg/chroma"
)

// VectorStore is the document store behind a SemanticIndex.
type VectorStore interface {
	Upsert(ctx context.Context, docs []chroma.Document) error
	Search(ctx context.Context, userID, query string, limit int) ([]string, error)
	Delete(ctx context.Context, ids []string) error
}

type vectorIndex struct {
	store VectorStore
}

// NewSemanticIndex indexes content rows in store under their content id.
func NewSemanticIndex(store VectorStore) SemanticIndex {
	return &vectorIndex{store: store}
}

func (i *vectorIndex) Upsert(ctx context.Context, items []domain.ContentItem) error {
	docs := make([]chroma.Document, 0, len(items))
	for _, item := range items {
		docs = append(docs, chroma.Document{
			ID:     item.ID,
			UserID: item.UserID,
			Text:   documentText(&item),
			Metadata: map[string]interface{}{
				"platform":     string(item.Platform),
				"content_type": string(item.ContentType),
				"resource_id":  item.ResourceID,
				"timestamp":    item.SourceTimestamp.Unix(),
			},
		})
	}
	return i.store.Upsert(ctx, docs)
}

func (i *vectorIndex) Search(ctx context.Context, userID, query string, limit int) ([]string, error) {
	return i.store.Search(ctx, userID, query, limit)
}

func (i *vectorIndex) Delete(ctx context.Context, ids []string) error {
	return i.store.Delete(ctx, ids)
}

func documentText(item *domain.ContentItem) string {
	if item.Title == "" {
		return item.Text
	}
	return fmt.Sprintf("%s\n\n%s", item.Title, item.Text)
}
