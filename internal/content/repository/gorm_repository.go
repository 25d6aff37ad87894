package repository

import (
	"context"
	"errors"
	"time"

	"pulse-backend/internal/content/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var dedupColumns = []clause.Column{
	{Name: "user_id"},
	{Name: "platform"},
	{Name: "resource_id"},
	{Name: "item_id"},
	{Name: "content_hash"},
}

type gormContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) ContentRepository {
	return &gormContentRepository{db: db}
}

func (r *gormContentRepository) Upsert(ctx context.Context, item *domain.ContentItem) (bool, error) {
	now := time.Now()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.SyncedAt = now
	item.LastSeenAt = now

	// The unique dedup index is the serialization point between concurrent writers.
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: dedupColumns, DoNothing: true}).
		Create(item)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	err := r.db.WithContext(ctx).Model(&domain.ContentItem{}).
		Where("user_id = ? AND platform = ? AND resource_id = ? AND item_id = ? AND content_hash = ? AND retained = ?",
			item.UserID, item.Platform, item.ResourceID, item.ItemID, item.ContentHash, false).
		Update("last_seen_at", now).Error
	return false, err
}

func (r *gormContentRepository) Find(ctx context.Context, userID string, filter domain.Filter) ([]domain.ContentItem, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.ContentType != "" {
		query = query.Where("content_type = ?", filter.ContentType)
	}
	if filter.ResourceID != "" {
		query = query.Where("resource_id = ?", filter.ResourceID)
	}
	if filter.Since != nil {
		query = query.Where("source_timestamp >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("source_timestamp < ?", *filter.Until)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var items []domain.ContentItem
	err := query.Order("source_timestamp DESC").Order("id").Find(&items).Error
	return items, err
}

func (r *gormContentRepository) FindByIDs(ctx context.Context, userID string, ids []string) ([]domain.ContentItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.ContentItem
	err := r.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Find(&items).Error
	return items, err
}

func (r *gormContentRepository) FindByID(ctx context.Context, id string) (*domain.ContentItem, error) {
	var item domain.ContentItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// MarkRetained only ever sets the flag; nothing in the store clears it.
func (r *gormContentRepository) MarkRetained(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&domain.ContentItem{}).
		Where("id = ?", id).
		Update("retained", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *gormContentRepository) DeleteExpiredBatch(ctx context.Context, before time.Time, limit int) ([]string, error) {
	var ids []string
	// Rows locked by an in-flight write are skipped and picked up by a later batch.
	err := r.db.WithContext(ctx).Raw(`
		DELETE FROM content_items
		WHERE id IN (
			SELECT id FROM content_items
			WHERE expires_at < ? AND retained = false
			ORDER BY expires_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		) AND retained = false
		RETURNING id`, before, limit).Scan(&ids).Error
	return ids, err
}

func (r *gormContentRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ContentItem{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
