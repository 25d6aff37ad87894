package repository

import (
	"context"
	"sort"
	"sync"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"

	"github.com/google/uuid"
)

type memoryRegistryRepository struct {
	mu          sync.Mutex
	entries     map[string]*domain.RegistryEntry
	connections ConnectionLookup
}

// NewMemoryRegistryRepository keeps entries in process. With a nil lookup the
// connection status is not checked on Advance.
func NewMemoryRegistryRepository(connections ConnectionLookup) RegistryRepository {
	return &memoryRegistryRepository{entries: make(map[string]*domain.RegistryEntry), connections: connections}
}

func registryKey(pair domain.Pair, resourceID string) string {
	return pair.Key() + "/" + resourceID
}

func (r *memoryRegistryRepository) list(match func(*domain.RegistryEntry) bool) []domain.RegistryEntry {
	var out []domain.RegistryEntry
	for _, entry := range r.entries {
		if match(entry) {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

func (r *memoryRegistryRepository) ListByPair(_ context.Context, pair domain.Pair) ([]domain.RegistryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(e *domain.RegistryEntry) bool {
		return e.UserID == pair.UserID && e.Platform == pair.Platform
	}), nil
}

func (r *memoryRegistryRepository) ListByConnection(_ context.Context, connectionID string) ([]domain.RegistryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(e *domain.RegistryEntry) bool { return e.ConnectionID == connectionID }), nil
}

func (r *memoryRegistryRepository) Advance(ctx context.Context, adv Advance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Checked under the registry lock: Disconnect flips the status before it
	// purges, so a write that passes here is removed by that purge.
	if r.connections != nil {
		conn, err := r.connections.FindByID(ctx, adv.ConnectionID)
		if err != nil {
			return err
		}
		if conn == nil || conn.Status == connectiondomain.StatusDisconnected {
			return domain.ErrConnectionGone
		}
	}

	at := adv.At
	key := registryKey(adv.Pair, adv.ResourceID)
	entry, ok := r.entries[key]
	if !ok {
		r.entries[key] = &domain.RegistryEntry{
			ID:             uuid.New().String(),
			ConnectionID:   adv.ConnectionID,
			UserID:         adv.Pair.UserID,
			Platform:       adv.Pair.Platform,
			ResourceID:     adv.ResourceID,
			ResourceName:   adv.ResourceName,
			Cursor:         adv.Cursor.Token,
			CursorPosition: adv.Cursor.Position,
			ItemCount:      int64(adv.ItemsAdded),
			LastSyncedAt:   &at,
			CreatedAt:      at,
			UpdatedAt:      at,
		}
		return nil
	}

	if entry.CursorPosition > adv.Cursor.Position {
		return domain.ErrStaleCursor
	}
	entry.ConnectionID = adv.ConnectionID
	if adv.ResourceName != "" {
		entry.ResourceName = adv.ResourceName
	}
	entry.Cursor = adv.Cursor.Token
	entry.CursorPosition = adv.Cursor.Position
	entry.ItemCount += int64(adv.ItemsAdded)
	entry.LastSyncedAt = &at
	entry.LastError = ""
	entry.UpdatedAt = at
	return nil
}

func (r *memoryRegistryRepository) RecordFailure(_ context.Context, pair domain.Pair, resourceID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[registryKey(pair, resourceID)]; ok {
		entry.LastError = lastError
	}
	return nil
}

func (r *memoryRegistryRepository) DeleteByConnection(_ context.Context, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.entries {
		if entry.ConnectionID == connectionID {
			delete(r.entries, key)
		}
	}
	return nil
}

type memoryActivityRepository struct {
	mu         sync.Mutex
	activities []domain.SyncActivity
}

func NewMemoryActivityRepository() ActivityRepository {
	return &memoryActivityRepository{}
}

func (r *memoryActivityRepository) Append(_ context.Context, activity *domain.SyncActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	r.activities = append(r.activities, *activity)
	return nil
}

func (r *memoryActivityRepository) List(_ context.Context, userID string, limit int) ([]domain.SyncActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SyncActivity
	for i := len(r.activities) - 1; i >= 0; i-- {
		if userID != "" && r.activities[i].UserID != userID {
			continue
		}
		out = append(out, r.activities[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
