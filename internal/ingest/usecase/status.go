package usecase

import (
	"context"
	"errors"

	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/repository"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

var ErrMissingUser = errors.New("user_id is required")

type statusReader struct {
	registry repository.RegistryRepository
	activity repository.ActivityRepository
}

func NewStatusReader(registry repository.RegistryRepository, activity repository.ActivityRepository) StatusReader {
	return &statusReader{registry: registry, activity: activity}
}

func (r *statusReader) Registry(ctx context.Context, pair domain.Pair) ([]domain.RegistryEntry, error) {
	if pair.UserID == "" {
		return nil, ErrMissingUser
	}
	return r.registry.ListByPair(ctx, pair)
}

func (r *statusReader) Activity(ctx context.Context, userID string, limit int) ([]domain.SyncActivity, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	return r.activity.List(ctx, userID, limit)
}
