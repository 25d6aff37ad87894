package usecase

import (
	"context"

	authdomain "pulse-backend/internal/auth/domain"
	"pulse-backend/internal/connection/domain"
	"pulse-backend/internal/connection/dto"
)

// CredentialProvider is the narrow view adapters get of the credential store.
type CredentialProvider interface {
	GetValidToken(ctx context.Context, connectionID string) (*domain.Credentials, error)
}

type ConnectionUsecase interface {
	CredentialProvider
	MarkConnectionStatus(ctx context.Context, connectionID string, status domain.Status, reason string) error

	Connect(ctx context.Context, req *dto.ConnectRequest) (*domain.PlatformConnection, error)
	Disconnect(ctx context.Context, connectionID string) error
	Delete(ctx context.Context, connectionID string) error
	UpdateResources(ctx context.Context, connectionID string, resources []domain.Resource) (*domain.PlatformConnection, error)

	Get(ctx context.Context, connectionID string) (*domain.PlatformConnection, error)
	ListByUser(ctx context.Context, userID string) ([]domain.PlatformConnection, error)
	FindByAccountEmail(ctx context.Context, platform domain.Platform, email string) (*domain.PlatformConnection, error)
}

// RegistryPurger drops sync registry rows belonging to a connection.
type RegistryPurger interface {
	DeleteByConnection(ctx context.Context, connectionID string) error
}

type UserEnsurer interface {
	EnsureUser(userID, email string) (*authdomain.User, error)
}
