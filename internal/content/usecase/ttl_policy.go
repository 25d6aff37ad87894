package usecase

import (
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/content/domain"
)

// TTLPolicy maps (platform, content type) to a lifetime. A zero lifetime never expires.
type TTLPolicy struct {
	defaults  map[string]time.Duration
	overrides map[string]map[string]time.Duration
	fallback  time.Duration
}

func NewTTLPolicy(defaults map[string]time.Duration, overrides map[string]map[string]time.Duration) *TTLPolicy {
	return &TTLPolicy{
		defaults:  defaults,
		overrides: overrides,
		fallback:  7 * 24 * time.Hour,
	}
}

func (p *TTLPolicy) TTL(platform connectiondomain.Platform, contentType domain.ContentType) time.Duration {
	if perPlatform, ok := p.overrides[string(platform)]; ok {
		if ttl, ok := perPlatform[string(contentType)]; ok {
			return ttl
		}
	}
	if ttl, ok := p.defaults[string(contentType)]; ok {
		return ttl
	}
	return p.fallback
}

// ExpiresAt returns nil for content that never expires.
func (p *TTLPolicy) ExpiresAt(platform connectiondomain.Platform, contentType domain.ContentType, from time.Time) *time.Time {
	ttl := p.TTL(platform, contentType)
	if ttl <= 0 {
		return nil
	}
	expires := from.Add(ttl)
	return &expires
}
