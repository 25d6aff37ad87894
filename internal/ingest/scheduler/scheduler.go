package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	authdomain "pulse-backend/internal/auth/domain"
	authrepo "pulse-backend/internal/auth/repository"
	connectiondomain "pulse-backend/internal/connection/domain"
	connrepo "pulse-backend/internal/connection/repository"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/usecase"
	"pulse-backend/pkg/config"

	log "github.com/sirupsen/logrus"
)

const fallbackInterval = 6 * time.Hour

// SyncScheduler decides which (user, platform) pairs are due and hands them to
// the dispatcher. Deciding never fetches anything.
type SyncScheduler struct {
	connRepo  connrepo.ConnectionRepository
	userRepo  authrepo.UserRepository
	enqueuer  usecase.Enqueuer
	tiers     map[string]time.Duration
	overrides map[string]map[string]time.Duration
	interval  time.Duration
	now       func() time.Time
	stopChan  chan struct{}
}

func NewSyncScheduler(
	connRepo connrepo.ConnectionRepository,
	userRepo authrepo.UserRepository,
	enqueuer usecase.Enqueuer,
	cfg *config.Config,
) *SyncScheduler {
	interval := cfg.SchedulerInterval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &SyncScheduler{
		connRepo:  connRepo,
		userRepo:  userRepo,
		enqueuer:  enqueuer,
		tiers:     cfg.TierIntervals,
		overrides: cfg.PlatformIntervals,
		interval:  interval,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// SyncInterval is how often a tier syncs a platform. Platform overrides win
// over tier defaults; unknown tiers sync like free.
func (s *SyncScheduler) SyncInterval(platform connectiondomain.Platform, tier authdomain.Tier) time.Duration {
	if perPlatform, ok := s.overrides[string(platform)]; ok {
		if d, ok := perPlatform[string(tier)]; ok && d > 0 {
			return d
		}
	}
	if d, ok := s.tiers[string(tier)]; ok && d > 0 {
		return d
	}
	if d, ok := s.tiers[string(authdomain.TierFree)]; ok && d > 0 {
		return d
	}
	return fallbackInterval
}

// DuePairs lists every syncable pair whose last sync is at least one interval
// old at now. Pairs that never synced are always due. Connections in error
// stay due so a refreshed token can heal them.
func (s *SyncScheduler) DuePairs(ctx context.Context, now time.Time) ([]domain.Pair, error) {
	conns, err := s.connRepo.ListSyncable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list syncable connections: %w", err)
	}
	if len(conns) == 0 {
		return nil, nil
	}

	tiers, err := s.userTiers(conns)
	if err != nil {
		return nil, err
	}

	var due []domain.Pair
	for i := range conns {
		conn := &conns[i]
		if !conn.Syncable() {
			continue
		}
		if conn.LastSyncedAt != nil && now.Sub(*conn.LastSyncedAt) < s.SyncInterval(conn.Platform, tiers[conn.UserID]) {
			continue
		}
		due = append(due, domain.Pair{UserID: conn.UserID, Platform: conn.Platform})
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Key() < due[j].Key() })
	return due, nil
}

func (s *SyncScheduler) userTiers(conns []connectiondomain.PlatformConnection) (map[string]authdomain.Tier, error) {
	seen := make(map[string]struct{}, len(conns))
	var ids []string
	for _, conn := range conns {
		if _, ok := seen[conn.UserID]; !ok {
			seen[conn.UserID] = struct{}{}
			ids = append(ids, conn.UserID)
		}
	}
	users, err := s.userRepo.FindByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("load user tiers: %w", err)
	}
	tiers := make(map[string]authdomain.Tier, len(users))
	for _, user := range users {
		tiers[user.ID] = user.Tier
	}
	return tiers, nil
}

// Tick enqueues the pairs due now and reports how many were accepted.
func (s *SyncScheduler) Tick(ctx context.Context) (int, error) {
	due, err := s.DuePairs(ctx, s.now())
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, pair := range due {
		if s.enqueuer.Enqueue(pair, domain.TriggerScheduled) {
			enqueued++
		}
	}
	if len(due) > 0 {
		log.WithFields(log.Fields{"due": len(due), "enqueued": enqueued}).Info("[Scheduler] Enqueued due syncs")
	}
	return enqueued, nil
}

// Start begins the scheduler loop
func (s *SyncScheduler) Start() {
	log.Infof("[Scheduler] Starting sync scheduler (interval: %s)", s.interval)

	go func() {
		s.tick()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stopChan:
				log.Info("[Scheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *SyncScheduler) Stop() {
	close(s.stopChan)
}

func (s *SyncScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	if _, err := s.Tick(ctx); err != nil {
		log.WithError(err).Error("[Scheduler] Due check failed")
	}
}
