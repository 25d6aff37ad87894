package domain

import "errors"

// Scope grants a consumer access to a slice of the HTTP surface.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeAdmin Scope = "admin"
)

var ErrInvalidScope = errors.New("invalid scope")

func ParseScope(raw string) (Scope, error) {
	switch Scope(raw) {
	case ScopeRead, ScopeAdmin:
		return Scope(raw), nil
	}
	return "", ErrInvalidScope
}

// Allows reports whether s satisfies required. Admin implies read.
func (s Scope) Allows(required Scope) bool {
	if s == ScopeAdmin {
		return true
	}
	return s == required
}

// ServiceIdentity is the authenticated caller behind a service token.
type ServiceIdentity struct {
	Consumer string `json:"consumer"`
	Scope    Scope  `json:"scope"`
}
