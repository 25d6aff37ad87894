package usecase

import (
	"context"
	"time"

	"pulse-backend/internal/content/repository"

	log "github.com/sirupsen/logrus"
)

// CleanupJob deletes expired, unretained content in batches.
type CleanupJob struct {
	repo      repository.ContentRepository
	index     SemanticIndex
	batchSize int
	interval  time.Duration
	now       func() time.Time
	stopChan  chan struct{}
}

func NewCleanupJob(repo repository.ContentRepository, index SemanticIndex, batchSize int, interval time.Duration) *CleanupJob {
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupJob{
		repo:      repo,
		index:     index,
		batchSize: batchSize,
		interval:  interval,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start runs cleanup immediately and then on every interval
func (j *CleanupJob) Start() {
	log.Infof("[Cleanup] Starting content cleanup (interval: %s, batch: %d)", j.interval, j.batchSize)

	go func() {
		j.run()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.run()
			case <-j.stopChan:
				log.Info("[Cleanup] Cleanup stopped")
				return
			}
		}
	}()
}

func (j *CleanupJob) Stop() {
	close(j.stopChan)
}

func (j *CleanupJob) run() {
	if _, err := j.RunOnce(context.Background()); err != nil {
		log.WithError(err).Error("[Cleanup] Cleanup run failed")
	}
}

// RunOnce deletes everything that expired before now and returns the number of rows removed.
func (j *CleanupJob) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now()
	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		ids, err := j.repo.DeleteExpiredBatch(ctx, cutoff, j.batchSize)
		if err != nil {
			return total, err
		}
		total += len(ids)

		if len(ids) > 0 && j.index != nil {
			if err := j.index.Delete(ctx, ids); err != nil {
				log.WithError(err).Warn("[Cleanup] Failed to prune semantic index")
			}
		}

		if len(ids) < j.batchSize {
			break
		}
	}

	if total > 0 {
		log.WithField("deleted", total).Info("[Cleanup] Removed expired content")
	}
	return total, nil
}
