package usecase

import (
	"context"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/internal/platform"
)

// SyncWorker runs one sync of a (user, platform) pair. It never returns an
// error; every result, including failures, is described by the Outcome.
type SyncWorker interface {
	Sync(ctx context.Context, pair domain.Pair, trigger domain.Trigger) *domain.Outcome
}

// Enqueuer accepts background sync requests. Enqueue reports false when the
// request was dropped because the pair is already queued or the queue is full.
type Enqueuer interface {
	Enqueue(pair domain.Pair, trigger domain.Trigger) bool
}

// ConnectionService is the part of the connection usecase the worker needs.
type ConnectionService interface {
	platform.CredentialProvider
	MarkConnectionStatus(ctx context.Context, connectionID string, status connectiondomain.Status, reason string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// AuthAlerter tells a user that a connection needs re-authorization.
type AuthAlerter interface {
	NotifyAuthFailure(ctx context.Context, conn *connectiondomain.PlatformConnection, reason string)
}

type StatusReader interface {
	Registry(ctx context.Context, pair domain.Pair) ([]domain.RegistryEntry, error)
	Activity(ctx context.Context, userID string, limit int) ([]domain.SyncActivity, error)
}
