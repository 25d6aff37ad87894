package usecase

import (
	"context"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/content/domain"
	"pulse-backend/internal/content/dto"
)

// ContentReader is the only surface consumers get. It never reaches a platform API.
type ContentReader interface {
	Query(ctx context.Context, userID string, query *dto.Query) ([]domain.ContentItem, error)
	MarkRetained(ctx context.Context, ref domain.ItemRef) error
	IsFreshSince(ctx context.Context, userID string, platform connectiondomain.Platform, within time.Duration) (bool, error)
}

// SemanticIndex is the vector index mirroring the content store.
type SemanticIndex interface {
	Upsert(ctx context.Context, items []domain.ContentItem) error
	Search(ctx context.Context, userID, query string, limit int) ([]string, error)
	Delete(ctx context.Context, ids []string) error
}
