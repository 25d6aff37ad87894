package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pulse-backend/internal/content/domain"

	"github.com/google/uuid"
)

type memoryContentRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.ContentItem
	dedup map[string]string
}

func NewMemoryContentRepository() ContentRepository {
	return &memoryContentRepository{
		items: make(map[string]*domain.ContentItem),
		dedup: make(map[string]string),
	}
}

func dedupKey(item *domain.ContentItem) string {
	return strings.Join([]string{item.UserID, string(item.Platform), item.ResourceID, item.ItemID, item.ContentHash}, "\x00")
}

func (r *memoryContentRepository) Upsert(_ context.Context, item *domain.ContentItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	key := dedupKey(item)
	if id, ok := r.dedup[key]; ok {
		existing := r.items[id]
		if !existing.Retained {
			existing.LastSeenAt = now
		}
		return false, nil
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.SyncedAt = now
	item.LastSeenAt = now
	stored := *item
	r.items[stored.ID] = &stored
	r.dedup[key] = stored.ID
	return true, nil
}

func (r *memoryContentRepository) Find(_ context.Context, userID string, filter domain.Filter) ([]domain.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ContentItem
	for _, item := range r.items {
		if item.UserID != userID {
			continue
		}
		if filter.Platform != "" && item.Platform != filter.Platform {
			continue
		}
		if filter.ContentType != "" && item.ContentType != filter.ContentType {
			continue
		}
		if filter.ResourceID != "" && item.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Since != nil && item.SourceTimestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !item.SourceTimestamp.Before(*filter.Until) {
			continue
		}
		out = append(out, *item)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SourceTimestamp.Equal(out[j].SourceTimestamp) {
			return out[i].SourceTimestamp.After(out[j].SourceTimestamp)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryContentRepository) FindByIDs(_ context.Context, userID string, ids []string) ([]domain.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ContentItem
	for _, id := range ids {
		if item, ok := r.items[id]; ok && item.UserID == userID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *memoryContentRepository) FindByID(_ context.Context, id string) (*domain.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (r *memoryContentRepository) MarkRetained(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	item.Retained = true
	return nil
}

func (r *memoryContentRepository) DeleteExpiredBatch(_ context.Context, before time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*domain.ContentItem
	for _, item := range r.items {
		if item.Expired(before) {
			expired = append(expired, item)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(*expired[j].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	ids := make([]string, 0, len(expired))
	for _, item := range expired {
		delete(r.dedup, dedupKey(item))
		delete(r.items, item.ID)
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func (r *memoryContentRepository) CountByUser(_ context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, item := range r.items {
		if item.UserID == userID {
			count++
		}
	}
	return count, nil
}
