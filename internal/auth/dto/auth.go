package dto

import (
	"time"

	authdomain "pulse-backend/internal/auth/domain"
)

type TokenResponse struct {
	AccessToken string                      `json:"access_token"`
	ExpiresAt   time.Time                   `json:"expires_at"`
	Identity    *authdomain.ServiceIdentity `json:"identity"`
}

type SetTierRequest struct {
	Tier  string `json:"tier" binding:"required,oneof=free pro enterprise"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type RegisterDeviceRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}
