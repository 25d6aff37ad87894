package repository

import (
	"sync"
	"time"

	authdomain "pulse-backend/internal/auth/domain"

	"github.com/google/uuid"
)

type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]authdomain.User
}

// NewMemoryUserRepository returns a process-local UserRepository.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{users: make(map[string]authdomain.User)}
}

func (r *memoryUserRepository) Create(user *authdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Tier == "" {
		user.Tier = authdomain.TierFree
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return nil
}

func (r *memoryUserRepository) FindByID(id string) (*authdomain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (r *memoryUserRepository) FindByIDs(ids []string) ([]authdomain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []authdomain.User
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (r *memoryUserRepository) Save(user *authdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if existing, ok := r.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.users[user.ID] = *user
	return nil
}

type memoryDeviceTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]authdomain.DeviceToken
}

func NewMemoryDeviceTokenRepository() DeviceTokenRepository {
	return &memoryDeviceTokenRepository{tokens: make(map[string]authdomain.DeviceToken)}
}

func (r *memoryDeviceTokenRepository) SaveToken(userID, token, deviceInfo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	existing, ok := r.tokens[token]
	if !ok {
		existing = authdomain.DeviceToken{ID: uuid.New().String(), Token: token, CreatedAt: now}
	}
	existing.UserID = userID
	existing.DeviceInfo = deviceInfo
	existing.UpdatedAt = now
	r.tokens[token] = existing
	return nil
}

func (r *memoryDeviceTokenRepository) GetTokensByUserID(userID string) ([]authdomain.DeviceToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []authdomain.DeviceToken
	for _, t := range r.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryDeviceTokenRepository) DeleteToken(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}
