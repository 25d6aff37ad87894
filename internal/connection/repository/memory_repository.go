package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pulse-backend/internal/connection/domain"

	"github.com/google/uuid"
)

type memoryConnectionRepository struct {
	mu    sync.RWMutex
	conns map[string]domain.PlatformConnection
}

func NewMemoryConnectionRepository() ConnectionRepository {
	return &memoryConnectionRepository{conns: make(map[string]domain.PlatformConnection)}
}

func (r *memoryConnectionRepository) Create(_ context.Context, conn *domain.PlatformConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.conns {
		if existing.UserID == conn.UserID && existing.Platform == conn.Platform {
			return errDuplicate
		}
	}
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	r.conns[conn.ID] = *conn
	return nil
}

func (r *memoryConnectionRepository) Update(_ context.Context, conn *domain.PlatformConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn.UpdatedAt = time.Now()
	r.conns[conn.ID] = *conn
	return nil
}

func (r *memoryConnectionRepository) find(match func(domain.PlatformConnection) bool) *domain.PlatformConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.conns {
		if match(conn) {
			c := conn
			return &c
		}
	}
	return nil
}

func (r *memoryConnectionRepository) FindByID(_ context.Context, id string) (*domain.PlatformConnection, error) {
	return r.find(func(c domain.PlatformConnection) bool { return c.ID == id }), nil
}

func (r *memoryConnectionRepository) FindByUserAndPlatform(_ context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error) {
	return r.find(func(c domain.PlatformConnection) bool { return c.UserID == userID && c.Platform == platform }), nil
}

func (r *memoryConnectionRepository) FindByAccountEmail(_ context.Context, platform domain.Platform, email string) (*domain.PlatformConnection, error) {
	return r.find(func(c domain.PlatformConnection) bool {
		return c.Platform == platform && strings.EqualFold(c.AccountEmail, email) && c.Status != domain.StatusDisconnected
	}), nil
}

func (r *memoryConnectionRepository) list(match func(domain.PlatformConnection) bool) []domain.PlatformConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PlatformConnection
	for _, conn := range r.conns {
		if match(conn) {
			out = append(out, conn)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Platform < out[j].Platform
	})
	return out
}

func (r *memoryConnectionRepository) ListByUser(_ context.Context, userID string) ([]domain.PlatformConnection, error) {
	return r.list(func(c domain.PlatformConnection) bool { return c.UserID == userID }), nil
}

func (r *memoryConnectionRepository) ListSyncable(_ context.Context) ([]domain.PlatformConnection, error) {
	return r.list(func(c domain.PlatformConnection) bool { return c.Syncable() }), nil
}

func (r *memoryConnectionRepository) mutate(id string, fn func(*domain.PlatformConnection) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return false
	}
	if fn(&conn) {
		conn.UpdatedAt = time.Now()
		r.conns[id] = conn
	}
	return true
}

func (r *memoryConnectionRepository) UpdateStatus(_ context.Context, id string, status domain.Status, lastError string) error {
	r.mutate(id, func(c *domain.PlatformConnection) bool {
		if c.Status == domain.StatusDisconnected && status != domain.StatusDisconnected {
			return false
		}
		c.Status = status
		c.LastError = lastError
		return true
	})
	return nil
}

func (r *memoryConnectionRepository) UpdateCredentials(_ context.Context, id, sealed string) error {
	r.mutate(id, func(c *domain.PlatformConnection) bool {
		c.SealedCredentials = sealed
		return true
	})
	return nil
}

func (r *memoryConnectionRepository) MarkSynced(_ context.Context, id string, at time.Time, lastError string) error {
	r.mutate(id, func(c *domain.PlatformConnection) bool {
		if c.Status == domain.StatusDisconnected {
			return false
		}
		synced := at
		c.LastSyncedAt = &synced
		c.Status = domain.StatusActive
		c.LastError = lastError
		return true
	})
	return nil
}

func (r *memoryConnectionRepository) Disconnect(_ context.Context, id string) error {
	found := r.mutate(id, func(c *domain.PlatformConnection) bool {
		c.Status = domain.StatusDisconnected
		c.SealedCredentials = ""
		return true
	})
	if !found {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (r *memoryConnectionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return domain.ErrConnectionNotFound
	}
	delete(r.conns, id)
	return nil
}
