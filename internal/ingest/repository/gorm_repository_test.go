package repository

import (
	"context"
	"testing"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	connrepo "pulse-backend/internal/connection/repository"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/testsupport"

	"github.com/stretchr/testify/suite"
)

func TestGormRepositories(t *testing.T) {
	suite.Run(t, new(GormRepositorySuite))
}

type GormRepositorySuite struct {
	suite.Suite
	pg       *testsupport.Postgres
	registry RegistryRepository
	activity ActivityRepository
	ctx      context.Context
	pair     domain.Pair
}

func (s *GormRepositorySuite) SetupSuite() {
	s.pg = testsupport.StartPostgres(s.T())
	s.Require().NoError(s.pg.DB.AutoMigrate(
		&connectiondomain.PlatformConnection{},
		&domain.RegistryEntry{},
		&domain.SyncActivity{},
	))
	s.registry = NewRegistryRepository(s.pg.DB)
	s.activity = NewActivityRepository(s.pg.DB)
	s.ctx = context.Background()
	s.pair = domain.Pair{UserID: "u1", Platform: connectiondomain.PlatformSlack}
}

func (s *GormRepositorySuite) SetupTest() {
	s.pg.Truncate(s.T(), "sync_activities", "sync_registry", "connections")
	s.Require().NoError(connrepo.NewConnectionRepository(s.pg.DB).Create(s.ctx, &connectiondomain.PlatformConnection{
		ID:       "c1",
		UserID:   "u1",
		Platform: connectiondomain.PlatformSlack,
		Status:   connectiondomain.StatusActive,
	}))
}

func (s *GormRepositorySuite) TearDownSuite() {
	if s.pg != nil {
		s.pg.Close()
	}
}

func (s *GormRepositorySuite) advance(position int64, added int) error {
	return s.registry.Advance(s.ctx, Advance{
		ConnectionID: "c1",
		Pair:         s.pair,
		ResourceID:   "C1",
		ResourceName: "general",
		Cursor:       domain.Cursor{Token: "ts", Position: position},
		ItemsAdded:   added,
		At:           time.Now().UTC(),
	})
}

func (s *GormRepositorySuite) TestAdvanceCreatesThenAccumulates() {
	s.Require().NoError(s.advance(1000, 3))
	s.Require().NoError(s.advance(2000, 12))

	entries, err := s.registry.ListByPair(s.ctx, s.pair)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(int64(2000), entries[0].CursorPosition)
	s.Equal(int64(15), entries[0].ItemCount)
	s.Equal("general", entries[0].ResourceName)
	s.NotNil(entries[0].LastSyncedAt)
}

func (s *GormRepositorySuite) TestAdvanceRejectsOlderCursor() {
	s.Require().NoError(s.advance(2000, 5))
	s.ErrorIs(s.advance(1500, 1), domain.ErrStaleCursor)

	entries, err := s.registry.ListByPair(s.ctx, s.pair)
	s.Require().NoError(err)
	s.Equal(int64(2000), entries[0].CursorPosition)
	s.Equal(int64(5), entries[0].ItemCount)
}

func (s *GormRepositorySuite) TestRecordFailureKeepsCursor() {
	s.Require().NoError(s.advance(1000, 2))
	s.Require().NoError(s.registry.RecordFailure(s.ctx, s.pair, "C1", "channel_not_found"))

	entries, err := s.registry.ListByPair(s.ctx, s.pair)
	s.Require().NoError(err)
	s.Equal("channel_not_found", entries[0].LastError)
	s.Equal(int64(1000), entries[0].CursorPosition)

	s.Require().NoError(s.advance(1100, 1))
	entries, err = s.registry.ListByPair(s.ctx, s.pair)
	s.Require().NoError(err)
	s.Empty(entries[0].LastError)
}

func (s *GormRepositorySuite) TestDeleteByConnection() {
	s.Require().NoError(s.advance(1000, 2))
	s.Require().NoError(s.registry.DeleteByConnection(s.ctx, "c1"))

	entries, err := s.registry.ListByConnection(s.ctx, "c1")
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *GormRepositorySuite) TestAdvanceAfterDisconnectIsRefused() {
	s.Require().NoError(s.advance(1000, 2))
	s.Require().NoError(connrepo.NewConnectionRepository(s.pg.DB).Disconnect(s.ctx, "c1"))
	s.Require().NoError(s.registry.DeleteByConnection(s.ctx, "c1"))

	s.ErrorIs(s.advance(2000, 1), domain.ErrConnectionGone)

	entries, err := s.registry.ListByConnection(s.ctx, "c1")
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *GormRepositorySuite) TestAdvanceForUnknownConnectionIsRefused() {
	err := s.registry.Advance(s.ctx, Advance{
		ConnectionID: "missing",
		Pair:         s.pair,
		ResourceID:   "C1",
		Cursor:       domain.Cursor{Token: "ts", Position: 1},
		At:           time.Now().UTC(),
	})
	s.ErrorIs(err, domain.ErrConnectionGone)

	entries, err := s.registry.ListByPair(s.ctx, s.pair)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *GormRepositorySuite) TestActivityNewestFirst() {
	base := time.Now().UTC().Truncate(time.Second)
	for i, kind := range []domain.OutcomeKind{domain.OutcomeSuccess, domain.OutcomeFailure, domain.OutcomePartialFailure} {
		s.Require().NoError(s.activity.Append(s.ctx, &domain.SyncActivity{
			UserID:     "u1",
			Platform:   connectiondomain.PlatformSlack,
			Trigger:    domain.TriggerScheduled,
			Outcome:    kind,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		}))
	}

	list, err := s.activity.List(s.ctx, "u1", 2)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(domain.OutcomePartialFailure, list[0].Outcome)
	s.Equal(domain.OutcomeFailure, list[1].Outcome)
}
