package repository

import (
	"context"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"
)

// Advance describes a successful fetch of one resource.
type Advance struct {
	ConnectionID string
	Pair         domain.Pair
	ResourceID   string
	ResourceName string
	Cursor       domain.Cursor
	ItemsAdded   int
	At           time.Time
}

type RegistryRepository interface {
	ListByPair(ctx context.Context, pair domain.Pair) ([]domain.RegistryEntry, error)
	ListByConnection(ctx context.Context, connectionID string) ([]domain.RegistryEntry, error)
	// Advance creates the entry on first success, otherwise moves its cursor forward.
	// It returns domain.ErrStaleCursor when the stored position is already ahead
	// and domain.ErrConnectionGone when the connection is disconnected or missing.
	Advance(ctx context.Context, adv Advance) error
	// RecordFailure stores the error on an existing entry and leaves its cursor alone.
	RecordFailure(ctx context.Context, pair domain.Pair, resourceID, lastError string) error
	DeleteByConnection(ctx context.Context, connectionID string) error
}

// ConnectionLookup lets the in-memory registry see connection status.
type ConnectionLookup interface {
	FindByID(ctx context.Context, id string) (*connectiondomain.PlatformConnection, error)
}

type ActivityRepository interface {
	Append(ctx context.Context, activity *domain.SyncActivity) error
	List(ctx context.Context, userID string, limit int) ([]domain.SyncActivity, error)
}
