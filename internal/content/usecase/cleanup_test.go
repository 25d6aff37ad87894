package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/content/domain"
	"pulse-backend/internal/content/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupRunOnceDeletesOnlyExpiredUnretained(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryContentRepository()
	index := &stubIndex{}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	insert := func(itemID string, expires *time.Time) *domain.ContentItem {
		item := &domain.ContentItem{
			UserID:      "u1",
			Platform:    connectiondomain.PlatformSlack,
			ResourceID:  "C1",
			ItemID:      itemID,
			ContentHash: itemID,
			ContentType: domain.ContentTypeMessage,
			ExpiresAt:   expires,
		}
		_, err := repo.Upsert(ctx, item)
		require.NoError(t, err)
		return item
	}

	for i := 0; i < 7; i++ {
		insert(fmt.Sprintf("expired-%d", i), &past)
	}
	kept := insert("retained", &past)
	require.NoError(t, repo.MarkRetained(ctx, kept.ID))
	insert("live", &future)
	insert("forever", nil)

	job := NewCleanupJob(repo, index, 3, time.Hour)
	job.now = func() time.Time { return now }

	deleted, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, deleted)
	assert.Len(t, index.deleted, 7)

	count, err := repo.CountByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	deleted, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestCleanupRunOnceStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewCleanupJob(repository.NewMemoryContentRepository(), nil, 10, time.Hour)
	_, err := job.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
