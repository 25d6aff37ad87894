package usecase

import (
	authdomain "pulse-backend/internal/auth/domain"
	authdto "pulse-backend/internal/auth/dto"
)

type AuthUsecase interface {
	IssueServiceToken(consumer string, scope authdomain.Scope) (*authdto.TokenResponse, error)
	ValidateToken(token string) (*authdomain.ServiceIdentity, error)

	EnsureUser(userID, email string) (*authdomain.User, error)
	SetTier(userID string, req *authdto.SetTierRequest) (*authdomain.User, error)
	RegisterDevice(userID string, req *authdto.RegisterDeviceRequest) error
}
