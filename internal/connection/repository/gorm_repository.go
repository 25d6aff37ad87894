package repository

import (
	"context"
	"errors"
	"time"

	"pulse-backend/internal/connection/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &gormConnectionRepository{db: db}
}

func (r *gormConnectionRepository) Create(ctx context.Context, conn *domain.PlatformConnection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(conn).Error
}

func (r *gormConnectionRepository) Update(ctx context.Context, conn *domain.PlatformConnection) error {
	conn.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(conn).Error
}

func (r *gormConnectionRepository) first(ctx context.Context, query string, args ...interface{}) (*domain.PlatformConnection, error) {
	var conn domain.PlatformConnection
	err := r.db.WithContext(ctx).Where(query, args...).First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *gormConnectionRepository) FindByID(ctx context.Context, id string) (*domain.PlatformConnection, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormConnectionRepository) FindByUserAndPlatform(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error) {
	return r.first(ctx, "user_id = ? AND platform = ?", userID, platform)
}

func (r *gormConnectionRepository) FindByAccountEmail(ctx context.Context, platform domain.Platform, email string) (*domain.PlatformConnection, error) {
	return r.first(ctx, "platform = ? AND LOWER(account_email) = LOWER(?) AND status <> ?", platform, email, domain.StatusDisconnected)
}

func (r *gormConnectionRepository) ListByUser(ctx context.Context, userID string) ([]domain.PlatformConnection, error) {
	var conns []domain.PlatformConnection
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("platform").Find(&conns).Error
	return conns, err
}

func (r *gormConnectionRepository) ListSyncable(ctx context.Context) ([]domain.PlatformConnection, error) {
	var conns []domain.PlatformConnection
	err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.Status{domain.StatusActive, domain.StatusError}).
		Find(&conns).Error
	return conns, err
}

func (r *gormConnectionRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, lastError string) error {
	query := r.db.WithContext(ctx).Model(&domain.PlatformConnection{}).Where("id = ?", id)
	if status != domain.StatusDisconnected {
		query = query.Where("status <> ?", domain.StatusDisconnected)
	}
	return query.Updates(map[string]interface{}{
		"status":     status,
		"last_error": lastError,
		"updated_at": time.Now(),
	}).Error
}

func (r *gormConnectionRepository) UpdateCredentials(ctx context.Context, id, sealed string) error {
	return r.db.WithContext(ctx).Model(&domain.PlatformConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sealed_credentials": sealed,
			"updated_at":         time.Now(),
		}).Error
}

func (r *gormConnectionRepository) MarkSynced(ctx context.Context, id string, at time.Time, lastError string) error {
	return r.db.WithContext(ctx).Model(&domain.PlatformConnection{}).
		Where("id = ? AND status <> ?", id, domain.StatusDisconnected).
		Updates(map[string]interface{}{
			"last_synced_at": at,
			"status":         domain.StatusActive,
			"last_error":     lastError,
			"updated_at":     time.Now(),
		}).Error
}

func (r *gormConnectionRepository) Disconnect(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&domain.PlatformConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":             domain.StatusDisconnected,
			"sealed_credentials": "",
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

// Delete removes the connection; registry rows go with it through the foreign key cascade.
func (r *gormConnectionRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.PlatformConnection{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}
