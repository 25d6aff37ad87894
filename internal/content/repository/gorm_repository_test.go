package repository

import (
	"context"
	"testing"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/content/domain"
	"pulse-backend/internal/testsupport"

	"github.com/stretchr/testify/suite"
)

func TestGormContentRepository(t *testing.T) {
	suite.Run(t, new(GormContentSuite))
}

type GormContentSuite struct {
	suite.Suite
	pg   *testsupport.Postgres
	repo ContentRepository
	ctx  context.Context
}

func (s *GormContentSuite) SetupSuite() {
	s.pg = testsupport.StartPostgres(s.T())
	s.Require().NoError(s.pg.DB.AutoMigrate(&domain.ContentItem{}))
	s.repo = NewContentRepository(s.pg.DB)
	s.ctx = context.Background()
}

func (s *GormContentSuite) SetupTest() {
	s.pg.Truncate(s.T(), "content_items")
}

func (s *GormContentSuite) TearDownSuite() {
	if s.pg != nil {
		s.pg.Close()
	}
}

func item(itemID, hash string, expiresAt time.Time) *domain.ContentItem {
	return &domain.ContentItem{
		UserID:          "u1",
		Platform:        connectiondomain.PlatformSlack,
		ResourceID:      "C1",
		ItemID:          itemID,
		ContentHash:     hash,
		ContentType:     domain.ContentTypeMessage,
		Text:            "hello " + itemID,
		SourceTimestamp: time.Now().UTC(),
		ExpiresAt:       &expiresAt,
	}
}

func (s *GormContentSuite) TestUpsertDeduplicatesOnHash() {
	expires := time.Now().Add(time.Hour)

	inserted, err := s.repo.Upsert(s.ctx, item("m1", "h1", expires))
	s.Require().NoError(err)
	s.True(inserted)

	inserted, err = s.repo.Upsert(s.ctx, item("m1", "h1", expires))
	s.Require().NoError(err)
	s.False(inserted)

	// An edit is a new version.
	inserted, err = s.repo.Upsert(s.ctx, item("m1", "h2", expires))
	s.Require().NoError(err)
	s.True(inserted)

	count, err := s.repo.CountByUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *GormContentSuite) TestDeleteExpiredSkipsRetained() {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	expired := item("m1", "h1", past)
	kept := item("m2", "h2", past)
	fresh := item("m3", "h3", future)
	for _, it := range []*domain.ContentItem{expired, kept, fresh} {
		_, err := s.repo.Upsert(s.ctx, it)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.repo.MarkRetained(s.ctx, kept.ID))

	ids, err := s.repo.DeleteExpiredBatch(s.ctx, time.Now(), 100)
	s.Require().NoError(err)
	s.Equal([]string{expired.ID}, ids)

	left, err := s.repo.Find(s.ctx, "u1", domain.Filter{})
	s.Require().NoError(err)
	s.Len(left, 2)
}

func (s *GormContentSuite) TestMarkRetainedUnknownItem() {
	s.ErrorIs(s.repo.MarkRetained(s.ctx, "missing"), domain.ErrItemNotFound)
}

func (s *GormContentSuite) TestFindFiltersAndOrders() {
	older := item("m1", "h1", time.Now().Add(time.Hour))
	older.SourceTimestamp = time.Now().Add(-2 * time.Hour).UTC()
	newer := item("m2", "h2", time.Now().Add(time.Hour))
	newer.ResourceID = "C2"
	for _, it := range []*domain.ContentItem{older, newer} {
		_, err := s.repo.Upsert(s.ctx, it)
		s.Require().NoError(err)
	}

	all, err := s.repo.Find(s.ctx, "u1", domain.Filter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("m2", all[0].ItemID)

	byResource, err := s.repo.Find(s.ctx, "u1", domain.Filter{ResourceID: "C1"})
	s.Require().NoError(err)
	s.Require().Len(byResource, 1)
	s.Equal("m1", byResource[0].ItemID)
}
