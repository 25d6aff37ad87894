package domain

import (
	"errors"
	"fmt"
)

// AuthError means credentials for a connection are unusable: they failed to
// decrypt, could not be refreshed, or were rejected by the platform.
// Nothing retries an AuthError until the user re-authorizes.
type AuthError struct {
	Platform     Platform
	ConnectionID string
	Reason       string
	Err          error
}

func NewAuthError(platform Platform, connectionID, reason string, err error) *AuthError {
	return &AuthError{Platform: platform, ConnectionID: connectionID, Reason: reason, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s auth error for connection %s: %s: %v", e.Platform, e.ConnectionID, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s auth error for connection %s: %s", e.Platform, e.ConnectionID, e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
