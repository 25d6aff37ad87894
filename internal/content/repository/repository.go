package repository

import (
	"context"
	"time"

	"pulse-backend/internal/content/domain"
)

type ContentRepository interface {
	// Upsert inserts item unless a row with the same dedup key exists, in which
	// case only last_seen_at of an unretained row is touched. It reports whether a row was inserted.
	Upsert(ctx context.Context, item *domain.ContentItem) (bool, error)
	Find(ctx context.Context, userID string, filter domain.Filter) ([]domain.ContentItem, error)
	FindByIDs(ctx context.Context, userID string, ids []string) ([]domain.ContentItem, error)
	FindByID(ctx context.Context, id string) (*domain.ContentItem, error)
	MarkRetained(ctx context.Context, id string) error
	// DeleteExpiredBatch deletes up to limit unretained rows that expired before the cutoff and returns their ids.
	DeleteExpiredBatch(ctx context.Context, before time.Time, limit int) ([]string, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
}
