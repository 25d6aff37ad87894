package repository

import (
	"context"
	"errors"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormRegistryRepository struct {
	db *gorm.DB
}

func NewRegistryRepository(db *gorm.DB) RegistryRepository {
	return &gormRegistryRepository{db: db}
}

func (r *gormRegistryRepository) ListByPair(ctx context.Context, pair domain.Pair) ([]domain.RegistryEntry, error) {
	var entries []domain.RegistryEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", pair.UserID, pair.Platform).
		Order("resource_id").
		Find(&entries).Error
	return entries, err
}

func (r *gormRegistryRepository) ListByConnection(ctx context.Context, connectionID string) ([]domain.RegistryEntry, error) {
	var entries []domain.RegistryEntry
	err := r.db.WithContext(ctx).Where("connection_id = ?", connectionID).Order("resource_id").Find(&entries).Error
	return entries, err
}

func (r *gormRegistryRepository) Advance(ctx context.Context, adv Advance) error {
	at := adv.At
	entry := &domain.RegistryEntry{
		ID:             uuid.New().String(),
		ConnectionID:   adv.ConnectionID,
		UserID:         adv.Pair.UserID,
		Platform:       adv.Pair.Platform,
		ResourceID:     adv.ResourceID,
		ResourceName:   adv.ResourceName,
		Cursor:         adv.Cursor.Token,
		CursorPosition: adv.Cursor.Position,
		ItemCount:      int64(adv.ItemsAdded),
		LastSyncedAt:   &at,
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The share lock orders this write against Disconnect, which updates the
		// row before purging the registry.
		var conn connectiondomain.PlatformConnection
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id", "status").
			Where("id = ?", adv.ConnectionID).
			Take(&conn).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrConnectionGone
		}
		if err != nil {
			return err
		}
		if conn.Status == connectiondomain.StatusDisconnected {
			return domain.ErrConnectionGone
		}
		return upsertEntry(tx, entry)
	})
}

func upsertEntry(tx *gorm.DB, entry *domain.RegistryEntry) error {
	// The WHERE on the update arm keeps the cursor monotonic under concurrent writers.
	result := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}, {Name: "resource_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"connection_id":   gorm.Expr("EXCLUDED.connection_id"),
			"resource_name":   gorm.Expr("COALESCE(NULLIF(EXCLUDED.resource_name, ''), sync_registry.resource_name)"),
			"cursor":          gorm.Expr("EXCLUDED.cursor"),
			"cursor_position": gorm.Expr("EXCLUDED.cursor_position"),
			"item_count":      gorm.Expr("sync_registry.item_count + EXCLUDED.item_count"),
			"last_synced_at":  gorm.Expr("EXCLUDED.last_synced_at"),
			"last_error":      "",
			"updated_at":      gorm.Expr("EXCLUDED.updated_at"),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "sync_registry.cursor_position <= EXCLUDED.cursor_position"},
		}},
	}).Create(entry)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrStaleCursor
	}
	return nil
}

func (r *gormRegistryRepository) RecordFailure(ctx context.Context, pair domain.Pair, resourceID, lastError string) error {
	return r.db.WithContext(ctx).Model(&domain.RegistryEntry{}).
		Where("user_id = ? AND platform = ? AND resource_id = ?", pair.UserID, pair.Platform, resourceID).
		Update("last_error", lastError).Error
}

func (r *gormRegistryRepository) DeleteByConnection(ctx context.Context, connectionID string) error {
	return r.db.WithContext(ctx).Where("connection_id = ?", connectionID).Delete(&domain.RegistryEntry{}).Error
}

type gormActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &gormActivityRepository{db: db}
}

func (r *gormActivityRepository) Append(ctx context.Context, activity *domain.SyncActivity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *gormActivityRepository) List(ctx context.Context, userID string, limit int) ([]domain.SyncActivity, error) {
	var activities []domain.SyncActivity
	query := r.db.WithContext(ctx).Order("started_at DESC")
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&activities).Error
	return activities, err
}
