package platform

import (
	"context"

	connectiondomain "pulse-backend/internal/connection/domain"
)

// StaticCredentials serves fixed credentials. Adapter tests use it in place of the credential store.
type StaticCredentials struct {
	Creds *connectiondomain.Credentials
	Err   error
}

func (s StaticCredentials) GetValidToken(context.Context, string) (*connectiondomain.Credentials, error) {
	return s.Creds, s.Err
}
