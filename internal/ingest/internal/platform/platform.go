// Package platform holds the adapter contract and the machinery shared by every
// platform adapter. It lives under internal/ingest so that nothing outside the
// sync engine can build a credentialed platform client.
package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"
)

type CredentialProvider interface {
	GetValidToken(ctx context.Context, connectionID string) (*connectiondomain.Credentials, error)
}

type FetchRequest struct {
	Connection  *connectiondomain.PlatformConnection
	Entries     map[string]*domain.RegistryEntry
	Credentials CredentialProvider
}

// Cursor returns the stored cursor for a resource, nil on first sync.
func (r *FetchRequest) Cursor(resourceID string) *domain.Cursor {
	return r.Entries[resourceID].CurrentCursor()
}

// Bootstrap is the lower bound of a first sync.
func (r *FetchRequest) Bootstrap(now time.Time, defaultDays int) time.Time {
	days := r.Connection.Settings.Data().BootstrapDays
	if days <= 0 {
		days = defaultDays
	}
	if days <= 0 {
		days = 14
	}
	return now.AddDate(0, 0, -days)
}

type FetchResult struct {
	Items     []domain.NormalizedItem
	Cursors   map[string]domain.Cursor
	Errors    []*domain.ResourceError
	Resources []connectiondomain.Resource
}

// Failed reports whether the resource produced a ResourceError.
func (r *FetchResult) Failed(resourceID string) bool {
	for _, e := range r.Errors {
		if e.ResourceID == resourceID {
			return true
		}
	}
	return false
}

// Adapter is implemented once per platform. Fetch returns an AuthError when the
// connection's credentials are unusable; every other failure is reported per resource.
type Adapter interface {
	Platform() connectiondomain.Platform
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

type Registry map[connectiondomain.Platform]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	registry := make(Registry, len(adapters))
	for _, adapter := range adapters {
		registry[adapter.Platform()] = adapter
	}
	return registry
}

func (r Registry) Get(platform connectiondomain.Platform) (Adapter, error) {
	adapter, ok := r[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %s", connectiondomain.ErrUnknownPlatform, platform)
	}
	return adapter, nil
}

type Options struct {
	CallTimeout       time.Duration
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BootstrapDays     int
	Concurrency       int
	RequestsPerSecond float64
	HTTPClient        *http.Client
	// BaseURL points an adapter at a proxy or a test server.
	BaseURL string
	Now     func() time.Time
}

// WithDefaults fills unset options.
func (o Options) WithDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 250 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 10 * time.Second
	}
	if o.BootstrapDays <= 0 {
		o.BootstrapDays = 14
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
