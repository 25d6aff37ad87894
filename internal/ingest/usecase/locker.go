package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Locker hands out per-pair exclusive locks. TryLock never waits: ok is false
// when another holder already has key.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

type memoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker serializes syncs inside one process.
func NewMemoryLocker() Locker {
	return &memoryLocker{held: make(map[string]struct{})}
}

func (l *memoryLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

type advisoryLocker struct {
	db    *gorm.DB
	local Locker
}

// NewAdvisoryLocker serializes syncs across every process sharing the database
// with Postgres session advisory locks. The session is pinned to one pooled
// connection for as long as the lock is held.
func NewAdvisoryLocker(db *gorm.DB) Locker {
	return &advisoryLocker{db: db, local: NewMemoryLocker()}
}

func lockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

func (l *advisoryLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	unlockLocal, ok, err := l.local.TryLock(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	sqlDB, err := l.db.DB()
	if err != nil {
		unlockLocal()
		return nil, false, fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		unlockLocal()
		return nil, false, fmt.Errorf("reserve lock connection: %w", err)
	}

	id := lockID(key)
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		_ = conn.Close()
		unlockLocal()
		return nil, false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		unlockLocal()
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The sync context may be gone by now; the unlock must still reach the server.
			if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", id); err != nil {
				log.WithError(err).WithField("key", key).Warn("[Locker] Failed to release advisory lock")
			}
			_ = conn.Close()
			unlockLocal()
		})
	}, true, nil
}
