package repository

import (
	"context"
	"errors"
	"time"

	"pulse-backend/internal/connection/domain"
)

// ConnectionRepository persists PlatformConnections. Finders return nil, nil when nothing matches.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *domain.PlatformConnection) error
	Update(ctx context.Context, conn *domain.PlatformConnection) error
	FindByID(ctx context.Context, id string) (*domain.PlatformConnection, error)
	FindByUserAndPlatform(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error)
	FindByAccountEmail(ctx context.Context, platform domain.Platform, email string) (*domain.PlatformConnection, error)
	ListByUser(ctx context.Context, userID string) ([]domain.PlatformConnection, error)
	ListSyncable(ctx context.Context) ([]domain.PlatformConnection, error)

	// UpdateStatus never moves a disconnected connection back to another status.
	UpdateStatus(ctx context.Context, id string, status domain.Status, lastError string) error
	UpdateCredentials(ctx context.Context, id, sealed string) error
	// MarkSynced records a successful sync and reactivates the connection unless it was disconnected meanwhile.
	MarkSynced(ctx context.Context, id string, at time.Time, lastError string) error
	Disconnect(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

var errDuplicate = errors.New("connection already exists for user and platform")
