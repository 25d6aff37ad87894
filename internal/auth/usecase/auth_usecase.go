package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	authdomain "pulse-backend/internal/auth/domain"
	authdto "pulse-backend/internal/auth/dto"
	"pulse-backend/internal/auth/repository"
	"pulse-backend/pkg/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const serviceTokenType = "service"

var ErrInvalidToken = errors.New("invalid token")

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo   repository.UserRepository
	deviceRepo repository.DeviceTokenRepository
	config     *config.Config
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(userRepo repository.UserRepository, deviceRepo repository.DeviceTokenRepository, cfg *config.Config) AuthUsecase {
	return &authUsecase{
		userRepo:   userRepo,
		deviceRepo: deviceRepo,
		config:     cfg,
	}
}

func (u *authUsecase) IssueServiceToken(consumer string, scope authdomain.Scope) (*authdto.TokenResponse, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	if _, err := authdomain.ParseScope(string(scope)); err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(u.config.JWTServiceTokenExpiry)
	claims := jwt.MapClaims{
		"sub":   consumer,
		"scope": string(scope),
		"typ":   serviceTokenType,
		"jti":   uuid.New().String(),
		"exp":   expiresAt.Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(u.config.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &authdto.TokenResponse{
		AccessToken: signed,
		ExpiresAt:   expiresAt,
		Identity:    &authdomain.ServiceIdentity{Consumer: consumer, Scope: scope},
	}, nil
}

func (u *authUsecase) ValidateToken(tokenString string) (*authdomain.ServiceIdentity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(u.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	if typ, _ := claims["typ"].(string); typ != serviceTokenType {
		return nil, errors.New("invalid token claims")
	}
	consumer, ok := claims["sub"].(string)
	if !ok || consumer == "" {
		return nil, errors.New("invalid token claims")
	}
	rawScope, _ := claims["scope"].(string)
	scope, err := authdomain.ParseScope(rawScope)
	if err != nil {
		return nil, err
	}

	return &authdomain.ServiceIdentity{Consumer: consumer, Scope: scope}, nil
}

// EnsureUser returns the user, creating a free-tier record when it does not exist yet.
func (u *authUsecase) EnsureUser(userID, email string) (*authdomain.User, error) {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user = &authdomain.User{
		ID:    userID,
		Email: email,
		Tier:  authdomain.TierFree,
	}
	if err := u.userRepo.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (u *authUsecase) SetTier(userID string, req *authdto.SetTierRequest) (*authdomain.User, error) {
	tier := authdomain.Tier(req.Tier)
	if !tier.Valid() {
		return nil, fmt.Errorf("unknown tier %q", req.Tier)
	}

	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &authdomain.User{ID: userID}
	}
	user.Tier = tier
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Name != "" {
		user.Name = req.Name
	}

	if err := u.userRepo.Save(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (u *authUsecase) RegisterDevice(userID string, req *authdto.RegisterDeviceRequest) error {
	if _, err := u.EnsureUser(userID, ""); err != nil {
		return err
	}
	return u.deviceRepo.SaveToken(userID, req.Token, req.DeviceInfo)
}
