package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	connrepo "pulse-backend/internal/connection/repository"
	contentdomain "pulse-backend/internal/content/domain"
	contentrepo "pulse-backend/internal/content/repository"
	contentusecase "pulse-backend/internal/content/usecase"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/internal/platform"
	"pulse-backend/internal/ingest/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type fakeAdapter struct {
	mu    sync.Mutex
	calls int
	fetch func(ctx context.Context, req platform.FetchRequest) (*platform.FetchResult, error)
}

func (a *fakeAdapter) Platform() connectiondomain.Platform {
	return connectiondomain.PlatformSlack
}

func (a *fakeAdapter) Fetch(ctx context.Context, req platform.FetchRequest) (*platform.FetchResult, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	// Credentials are always resolved first, the way the real adapters do it.
	if _, err := req.Credentials.GetValidToken(ctx, req.Connection.ID); err != nil {
		return nil, err
	}
	return a.fetch(ctx, req)
}

func (a *fakeAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeConnections struct {
	repo connrepo.ConnectionRepository
	err  error
}

func (f *fakeConnections) GetValidToken(_ context.Context, _ string) (*connectiondomain.Credentials, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &connectiondomain.Credentials{AccessToken: "xoxp-test"}, nil
}

func (f *fakeConnections) MarkConnectionStatus(ctx context.Context, connectionID string, status connectiondomain.Status, reason string) error {
	return f.repo.UpdateStatus(ctx, connectionID, status, reason)
}

type recordingAlerter struct {
	mu      sync.Mutex
	reasons []string
}

func (a *recordingAlerter) NotifyAuthFailure(_ context.Context, _ *connectiondomain.PlatformConnection, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []SyncCompletedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, message.(SyncCompletedEvent))
	return nil
}

type recordingIndex struct {
	upserted []contentdomain.ContentItem
}

func (i *recordingIndex) Upsert(_ context.Context, items []contentdomain.ContentItem) error {
	i.upserted = append(i.upserted, items...)
	return nil
}

func (i *recordingIndex) Search(context.Context, string, string, int) ([]string, error) {
	return nil, nil
}

func (i *recordingIndex) Delete(context.Context, []string) error {
	return nil
}

// failingContent fails every write for one resource.
type failingContent struct {
	contentrepo.ContentRepository
	resourceID string
}

func (f *failingContent) Upsert(ctx context.Context, item *contentdomain.ContentItem) (bool, error) {
	if item.ResourceID == f.resourceID {
		return false, errors.New("disk full")
	}
	return f.ContentRepository.Upsert(ctx, item)
}

type WorkerSuite struct {
	suite.Suite
	ctx       context.Context
	conns     connrepo.ConnectionRepository
	creds     *fakeConnections
	registry  repository.RegistryRepository
	activity  repository.ActivityRepository
	content   contentrepo.ContentRepository
	adapter   *fakeAdapter
	alerter   *recordingAlerter
	publisher *recordingPublisher
	index     *recordingIndex
	conn      *connectiondomain.PlatformConnection
	pair      domain.Pair
	now       time.Time
	workerPatch func(*WorkerDeps)
}

func TestWorker(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctx = context.Background()
	s.conns = connrepo.NewMemoryConnectionRepository()
	s.creds = &fakeConnections{repo: s.conns}
	s.registry = repository.NewMemoryRegistryRepository(s.conns)
	s.activity = repository.NewMemoryActivityRepository()
	s.content = contentrepo.NewMemoryContentRepository()
	s.adapter = &fakeAdapter{}
	s.alerter = &recordingAlerter{}
	s.publisher = &recordingPublisher{}
	s.index = &recordingIndex{}
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.workerPatch = nil

	s.conn = &connectiondomain.PlatformConnection{
		ID:       "conn-1",
		UserID:   "user-1",
		Platform: connectiondomain.PlatformSlack,
		Status:   connectiondomain.StatusActive,
	}
	s.Require().NoError(s.conns.Create(s.ctx, s.conn))
	s.pair = domain.Pair{UserID: "user-1", Platform: connectiondomain.PlatformSlack}
}

func (s *WorkerSuite) worker() SyncWorker {
	deps := WorkerDeps{
		Connections: s.conns,
		Credentials: s.creds,
		Registry:    s.registry,
		Activity:    s.activity,
		Content:     s.content,
		TTL:         contentusecase.NewTTLPolicy(map[string]time.Duration{"message": 7 * 24 * time.Hour}, nil),
		Adapters:    platform.NewRegistry(s.adapter),
		Index:       s.index,
		Publisher:   s.publisher,
		Alerter:     s.alerter,
		Now:         func() time.Time { return s.now },
	}
	if s.workerPatch != nil {
		s.workerPatch(&deps)
	}
	return NewSyncWorker(deps)
}

func messages(resourceID string, from, to int) []domain.NormalizedItem {
	var items []domain.NormalizedItem
	for i := from; i < to; i++ {
		items = append(items, domain.NormalizedItem{
			ItemID:      fmt.Sprintf("%s-%d", resourceID, i),
			ResourceID:  resourceID,
			ContentType: contentdomain.ContentTypeMessage,
			Author:      "U1",
			Text:        fmt.Sprintf("message %d", i),
			Timestamp:   time.Date(2026, 3, 1, 0, i, 0, 0, time.UTC),
		})
	}
	return items
}

func resources(ids ...string) []connectiondomain.Resource {
	var out []connectiondomain.Resource
	for _, id := range ids {
		out = append(out, connectiondomain.Resource{ID: id, Name: "#" + id})
	}
	return out
}

func (s *WorkerSuite) entry(resourceID string) *domain.RegistryEntry {
	entries, err := s.registry.ListByPair(s.ctx, s.pair)
	s.Require().NoError(err)
	for i := range entries {
		if entries[i].ResourceID == resourceID {
			return &entries[i]
		}
	}
	return nil
}

func (s *WorkerSuite) connection() *connectiondomain.PlatformConnection {
	conn, err := s.conns.FindByID(s.ctx, s.conn.ID)
	s.Require().NoError(err)
	return conn
}

func (s *WorkerSuite) TestAccumulatesOnlyNewItems() {
	s.adapter.fetch = func(_ context.Context, req platform.FetchRequest) (*platform.FetchResult, error) {
		s.Nil(req.Cursor("C1"))
		return &platform.FetchResult{
			Items:     messages("C1", 0, 3),
			Cursors:   map[string]domain.Cursor{"C1": {Token: "100.000", Position: 100}},
			Resources: resources("C1"),
		}, nil
	}
	first := s.worker().Sync(s.ctx, s.pair, domain.TriggerManual)
	s.Equal(domain.OutcomeSuccess, first.Kind)
	s.Equal(3, first.ItemsAdded)

	s.adapter.fetch = func(_ context.Context, req platform.FetchRequest) (*platform.FetchResult, error) {
		s.Equal(&domain.Cursor{Token: "100.000", Position: 100}, req.Cursor("C1"))
		return &platform.FetchResult{
			Items:     messages("C1", 0, 15),
			Cursors:   map[string]domain.Cursor{"C1": {Token: "200.000", Position: 200}},
			Resources: resources("C1"),
		}, nil
	}
	s.now = s.now.Add(time.Hour)
	second := s.worker().Sync(s.ctx, s.pair, domain.TriggerScheduled)

	s.Equal(domain.OutcomeSuccess, second.Kind)
	s.Equal(15, second.ItemsFetched)
	s.Equal(12, second.ItemsAdded)
	s.Equal(3, second.ItemsUnchanged)

	count, err := s.content.CountByUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(int64(15), count)

	entry := s.entry("C1")
	s.Require().NotNil(entry)
	s.Equal(int64(200), entry.CursorPosition)
	s.Equal(int64(15), entry.ItemCount)
	s.Equal("#C1", entry.ResourceName)

	conn := s.connection()
	s.Require().NotNil(conn.LastSyncedAt)
	s.Equal(s.now, *conn.LastSyncedAt)

	items, err := s.content.Find(s.ctx, "user-1", contentdomain.Filter{Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Require().NotNil(items[0].ExpiresAt)
	s.Equal(s.now.Add(7*24*time.Hour), *items[0].ExpiresAt)
	s.Len(s.index.upserted, 15)
}

func (s *WorkerSuite) TestEditedItemIsStoredAsNewVersion() {
	item := messages("C1", 0, 1)
	s.adapter.fetch = func(context.Context, platform.FetchRequest) (*platform.FetchResult, error) {
		return &platform.FetchResult{Items: item, Cursors: map[string]domain.Cursor{"C1": {Position: 1}}, Resources: resources("C1")}, nil
	}
	s.worker().Sync(s.ctx, s.pair, domain.TriggerManual)

	item[0].Text = "message 0 (edited)"
	outcome := s.worker().Sync(s.ctx, s.pair, domain.TriggerManual)

	s.Equal(1, outcome.ItemsAdded)
	count, err := s.content.CountByUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *WorkerSuite) TestUndecryptableCredentialsAreAuthFailure() {
	s.creds.err = connectiondomain.NewAuthError(connectiondomain.PlatformSlack, "conn-1", "credentials could not be decrypted", errors.New("bad key"))
	s.adapter.fetch = func(context.Context, platform.FetchRequest) (*platform.FetchResult, error) {
		s.Fail("fetch must not run without credentials")
		return nil, nil
	}

	outcome := s.worker().Sync(s.ctx, s.pair, domain.TriggerScheduled)

	s.Equal(domain.OutcomeAuthFailure, outcome.Kind)
	s.False(outcome.Synced())
	conn := s.connection()
	s.Nil(conn.LastSyncedAt)
	s.Equal(connectiondomain.StatusError, conn.Status)
	s.Equal("credentials could not be decrypted", conn.LastError)
	s.Equal([]string{"credentials could not be decrypted"}, s.alerter.reasons)

	activity, err := s.activity.List(s.ctx, "user-1", 10)
	s.Require().NoError(err)
	s.Require().Len(activity, 1)
	s.Equal(domain.OutcomeAuthFailure, activity[0].Outcome)
}

func (s *WorkerSuite) TestZeroItemsIsSuccess() {
	s.adapter.fetch = func(context.Context, platform.FetchRequest) (*platform.FetchResult, error) {
		return &platform.FetchResult{Cursors: map[string]domain.Cursor{"C1": {Position: 5}}, Resources: resources("C1")}, nil
	}

	outcome := s.worker().Sync(s.ctx, s.pair, domain.TriggerScheduled)

	s.Equal(domain.OutcomeSuccess, outcome.Kind)
	s.Zero(outcome.ItemsFetched)
	s.NotNil(s.connection().LastSyncedAt)
	s.Empty(s.alerter.reasons)
}

func (s *WorkerSuite) TestResourceFailureIsIsolated() {
	s.Require().NoError(s.registry.Advance(s.ctx, repository.Advance{
		ConnectionID: "conn-1", Pair: s.pair, ResourceID: "C3", Cursor: domain.Cursor{Position: 42}, At: s.now,
	}))
	s.adapter.fetch = func(context.Context, platform.FetchRequest) (*platform.FetchResult, error) {
		items := append(messages("C1", 0, 2), messages("C2", 0, 2)...)
		return &platform.FetchResult{
			Items:     items,
			Cursors:   map[string]domain.Cursor{"C1": {Position: 10}, "C2": {Position: 20}},
			Errors:    []*domain.ResourceError{{Platform: connectiondomain.PlatformSlack, ResourceID: "C3", Err: errors.New("channel_not_found")}},
			Resources: resources("C1", "C2", "C3"),
		}, nil
	}

	outcome := s.worker().Sync(s.ctx, s.pair, domain.TriggerManual)

	s.Equal(domain.OutcomePartialFailure, outcome.Kind)
	s.True(outcome.Synced())
	s.Equal(4, outcome.ItemsAdded)
	s.Require().Len(outcome.ResourceErrors, 1)
	s.Equal("C3", outcome.ResourceErrors[0].ResourceID)

	s.Equal(int64(10), s.entry("C1").CursorPosition)
	s.Equal(int64(20), s.entry("C2").CursorPosition)
	failed := s.entry("C3")
	s.Equal(int64(42), failed.CursorPosition)
	s.Contains(failed.LastError, "channel_not_found")

	conn := s.connection()
	s.NotNil(conn.LastSyncedAt)
	s.Contains(conn.LastError, "channel_not_found")
}

func (s *WorkerSuite) TestAllResourcesFailedIsFailure() {
	s.adapter.fetch = func(context.Context, platform.FetchRequest) (*platform.FetchResult, error) {
		return &platform.FetchResult{
			Errors: []*domain.ResourceError{
				{Platform: connectiondomain.PlatformSlack, ResourceID: "C1", Err: errors.New("timeout")},
				{Platform: connectiondomain.PlatformSlack, ResourceID: "C2", Err: errors.New("timeout")},
			},
			Resources: resources("C1", "C2"),
		}, nil
	}

	outcome := s.worker().Sync(s.ctx, s.pair, domain.TriggerScheduled)

	s.Equal(domain.OutcomeFailure, outcome.Kind)
	s.Error(outcome.Err)
	s.Nil(s.connection().LastSyncedAt)
	s.Equal(connectiondomain.StatusActive, s.connection().Status)
}

func (s *WorkerSuite) TestStoreFailureHoldsCursor() {
	s.workerPatch = func(deps *WorkerDeps) {
		deps.Content = &failingContent{ContentRepository: s.content, resourceID: "C2"}
	}
	s.adapter.fetch = func(context.Context, platform.FetchRequest) (*platform.FetchResult, error) {
		return &platform.FetchResult{
			Items:     append(messages("C1", 0, 2), messages("C2", 0, 2)...),
			Cursors:   map[string]domain.Cursor{"C1": {Position: 10}, "C2": {Position: 20}},
			Resources: resources("C1", "C2"),
		}, nil
	}

	outcome := s.worker().Sync(s.ctx, s.pair, domain.TriggerManual)

	s.Equal(domain.OutcomePartialFailure, outcome.Kind)
	s.Equal(2, outcome.ItemsAdded)
	s.NotNil(s.entry("C1"))
	s.Nil(s.entry("C2"))
}

func (s *WorkerSuite) TestCursorNeverMovesBackwards() {
	s.Require().NoError(s.registry.Advance(s.ctx, repository.Advance{
		ConnectionID: "conn-1", Pair: s.pair, ResourceID: "C1", Cursor: domain.Cursor{Token: "new", Position: 500}, At: s.now,
	}))
	s.adapter.fetch = func(context.Context, platform.FetchRequest) (*platform.FetchResult, error) {
		return &platform.FetchResult{
			Items:     messages("C1", 0, 1),
			Cursors:   map[string]domain.Cursor{"C1": {Token: "old", Position: 300}},
			Resources: resources("C1"),
		}, nil
	}

	outcome := s.worker().Sync(s.ctx, s.pair, domain.TriggerManual)

	s.Equal(domain.OutcomeSuccess, outcome.Kind)
	entry := s.entry("C1")
	s.Equal(int64(500), entry.CursorPosition)
	s.Equal("new", entry.Cursor)
}

func (s *WorkerSuite) TestConcurrentSyncOfSamePairIsSkipped() {
	entered := make(chan struct{})
	release := make(chan struct{})
	s.adapter.fetch = func(context.Context, platform.FetchRequest) (*platform.FetchResult, error) {
		close(entered)
		<-release
		return &platform.FetchResult{Resources: resources("C1")}, nil
	}
	worker := s.worker()

	done := make(chan *domain.Outcome)
	go func() { done <- worker.Sync(s.ctx, s.pair, domain.TriggerScheduled) }()
	<-entered

	second := worker.Sync(s.ctx, s.pair, domain.TriggerPush)
	s.Equal(domain.OutcomeSkipped, second.Kind)

	close(release)
	first := <-done
	s.Equal(domain.OutcomeSuccess, first.Kind)
	s.Equal(1, s.adapter.Calls())

	activity, err := s.activity.List(s.ctx, "user-1", 10)
	s.Require().NoError(err)
	s.Len(activity, 1)
}

func (s *WorkerSuite) TestDisconnectedPairIsNotFetched() {
	s.Require().NoError(s.conns.Disconnect(s.ctx, "conn-1"))
	s.adapter.fetch = func(context.Context, platform.FetchRequest) (*platform.FetchResult, error) {
		return &platform.FetchResult{}, nil
	}

	outcome := s.worker().Sync(s.ctx, s.pair, domain.TriggerManual)

	s.Equal(domain.OutcomeFailure, outcome.Kind)
	s.ErrorIs(outcome.Err, connectiondomain.ErrNotConnected)
	s.Zero(s.adapter.Calls())
}

func (s *WorkerSuite) TestDisconnectDuringFetchLeavesNoCursor() {
	s.adapter.fetch = func(ctx context.Context, _ platform.FetchRequest) (*platform.FetchResult, error) {
		// Same order as the credential store: flip the status, then purge.
		s.Require().NoError(s.conns.Disconnect(ctx, "conn-1"))
		s.Require().NoError(s.registry.DeleteByConnection(ctx, "conn-1"))
		return &platform.FetchResult{
			Items:     messages("C1", 0, 2),
			Cursors:   map[string]domain.Cursor{"C1": {Token: "t", Position: 100}},
			Resources: resources("C1"),
		}, nil
	}

	outcome := s.worker().Sync(s.ctx, s.pair, domain.TriggerManual)

	s.Empty(outcome.ResourceErrors)
	s.Nil(s.entry("C1"))
	entries, err := s.registry.ListByConnection(s.ctx, "conn-1")
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *WorkerSuite) TestUnknownPairFails() {
	outcome := s.worker().Sync(s.ctx, domain.Pair{UserID: "nobody", Platform: connectiondomain.PlatformSlack}, domain.TriggerManual)
	s.Equal(domain.OutcomeFailure, outcome.Kind)
	s.ErrorIs(outcome.Err, connectiondomain.ErrNotConnected)
}

func (s *WorkerSuite) TestPublishesCompletionEvent() {
	s.adapter.fetch = func(context.Context, platform.FetchRequest) (*platform.FetchResult, error) {
		return &platform.FetchResult{Items: messages("C1", 0, 2), Cursors: map[string]domain.Cursor{"C1": {Position: 1}}, Resources: resources("C1")}, nil
	}

	s.worker().Sync(s.ctx, s.pair, domain.TriggerPush)

	s.Equal([]string{"sync.completed"}, s.publisher.keys)
	s.Require().Len(s.publisher.events, 1)
	event := s.publisher.events[0]
	s.Equal(domain.OutcomeSuccess, event.Outcome)
	s.Equal(domain.TriggerPush, event.Trigger)
	s.Equal(2, event.ItemsAdded)
}

func TestContentHash(t *testing.T) {
	base := domain.NormalizedItem{ContentType: contentdomain.ContentTypeEmail, Author: "a@x.io", Title: "Hi", Text: "body"}
	same := base
	same.Timestamp = time.Now()
	same.Metadata = map[string]any{"labels": []string{"INBOX"}}

	edited := base
	edited.Text = "body!"

	shifted := base
	shifted.Title, shifted.Text = "Hib", "ody"

	assert.Equal(t, contentHash(&base), contentHash(&same))
	assert.NotEqual(t, contentHash(&base), contentHash(&edited))
	assert.NotEqual(t, contentHash(&base), contentHash(&shifted))
	assert.Len(t, contentHash(&base), 64)
}
