package usecase

import (
	"context"
	"testing"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/content/domain"
	"pulse-backend/pkg/chroma"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVectorStore struct {
	docs    []chroma.Document
	deleted []string
}

func (f *fakeVectorStore) Upsert(_ context.Context, docs []chroma.Document) error {
	f.docs = append(f.docs, docs...)
	return nil
}

func (f *fakeVectorStore) Search(context.Context, string, string, int) ([]string, error) {
	return []string{"a"}, nil
}

func (f *fakeVectorStore) Delete(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func TestSemanticIndexDocuments(t *testing.T) {
	store := &fakeVectorStore{}
	index := NewSemanticIndex(store)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, index.Upsert(context.Background(), []domain.ContentItem{
		{ID: "a", UserID: "u1", Platform: connectiondomain.PlatformNotion, ContentType: domain.ContentTypePage, ResourceID: "workspace", Title: "Roadmap", Text: "Q3 goals", SourceTimestamp: ts},
		{ID: "b", UserID: "u1", Platform: connectiondomain.PlatformSlack, ContentType: domain.ContentTypeMessage, ResourceID: "C1", Text: "ship it", SourceTimestamp: ts},
	}))

	require.Len(t, store.docs, 2)
	assert.Equal(t, "Roadmap\n\nQ3 goals", store.docs[0].Text)
	assert.Equal(t, "ship it", store.docs[1].Text)
	assert.Equal(t, "u1", store.docs[0].UserID)
	assert.Equal(t, "page", store.docs[0].Metadata["content_type"])
	assert.Equal(t, ts.Unix(), store.docs[1].Metadata["timestamp"])

	ids, err := index.Search(context.Background(), "u1", "goals", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	require.NoError(t, index.Delete(context.Background(), []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, store.deleted)
}
