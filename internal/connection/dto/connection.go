package dto

import (
	"time"

	"pulse-backend/internal/connection/domain"
)

// ConnectRequest is what an OAuth callback (or an operator) hands over once a grant succeeded.
type ConnectRequest struct {
	UserID        string            `json:"user_id" binding:"required"`
	Platform      domain.Platform   `json:"platform" binding:"required"`
	AccountEmail  string            `json:"account_email"`
	AccessToken   string            `json:"access_token"`
	RefreshToken  string            `json:"refresh_token"`
	TokenType     string            `json:"token_type"`
	Expiry        time.Time         `json:"expiry"`
	Username      string            `json:"username"`
	Password      string            `json:"password"`
	Resources     []domain.Resource `json:"resources"`
	BootstrapDays int               `json:"bootstrap_days"`
	IMAPHost      string            `json:"imap_host"`
}

func (r *ConnectRequest) Credentials() domain.Credentials {
	return domain.Credentials{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry,
		Username:     r.Username,
		Password:     r.Password,
	}
}

type UpdateResourcesRequest struct {
	Resources []domain.Resource `json:"resources"`
}
