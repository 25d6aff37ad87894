package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/repository"
	"pulse-backend/internal/ingest/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorker struct {
	kind domain.OutcomeKind
	err  error
}

func (w *stubWorker) Sync(_ context.Context, pair domain.Pair, trigger domain.Trigger) *domain.Outcome {
	return &domain.Outcome{Kind: w.kind, Pair: pair, Trigger: trigger, Err: w.err, ItemsAdded: 2}
}

type stubEnqueuer struct {
	accept bool
	pairs  []domain.Pair
}

func (e *stubEnqueuer) Enqueue(pair domain.Pair, _ domain.Trigger) bool {
	e.pairs = append(e.pairs, pair)
	return e.accept
}

func newRouter(worker usecase.SyncWorker, enqueuer usecase.Enqueuer, registry repository.RegistryRepository, activity repository.ActivityRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSyncHandler(worker, enqueuer, usecase.NewStatusReader(registry, activity))
	r := gin.New()
	r.POST("/api/sync/trigger", h.Trigger)
	r.GET("/api/sync/registry", h.Registry)
	r.GET("/api/sync/activity", h.Activity)
	return r
}

func post(r *gin.Engine, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestTriggerRunsSync(t *testing.T) {
	r := newRouter(&stubWorker{kind: domain.OutcomeSuccess}, &stubEnqueuer{}, repository.NewMemoryRegistryRepository(nil), repository.NewMemoryActivityRepository())

	w := post(r, "/api/sync/trigger", `{"user_id":"u1","platform":"slack"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["kind"])
	assert.Equal(t, "manual", resp["trigger"])
	assert.EqualValues(t, 2, resp["items_added"])
}

func TestTriggerStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		worker *stubWorker
		body   string
		want   int
	}{
		{"skipped", &stubWorker{kind: domain.OutcomeSkipped}, `{"user_id":"u1","platform":"gmail"}`, http.StatusConflict},
		{"not connected", &stubWorker{kind: domain.OutcomeFailure, err: connectiondomain.ErrNotConnected}, `{"user_id":"u1","platform":"gmail"}`, http.StatusNotFound},
		{"auth failure", &stubWorker{kind: domain.OutcomeAuthFailure, err: connectiondomain.NewAuthError("gmail", "c1", "revoked", nil)}, `{"user_id":"u1","platform":"gmail"}`, http.StatusOK},
		{"unknown platform", &stubWorker{}, `{"user_id":"u1","platform":"myspace"}`, http.StatusBadRequest},
		{"missing user", &stubWorker{}, `{"platform":"gmail"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(tc.worker, &stubEnqueuer{}, repository.NewMemoryRegistryRepository(nil), repository.NewMemoryActivityRepository())
			assert.Equal(t, tc.want, post(r, "/api/sync/trigger", tc.body).Code)
		})
	}
}

func TestTriggerAsyncUsesDispatcher(t *testing.T) {
	enqueuer := &stubEnqueuer{accept: true}
	r := newRouter(&stubWorker{}, enqueuer, repository.NewMemoryRegistryRepository(nil), repository.NewMemoryActivityRepository())

	assert.Equal(t, http.StatusAccepted, post(r, "/api/sync/trigger?async=true", `{"user_id":"u1","platform":"notion"}`).Code)
	enqueuer.accept = false
	assert.Equal(t, http.StatusConflict, post(r, "/api/sync/trigger?async=true", `{"user_id":"u1","platform":"notion"}`).Code)
	assert.Len(t, enqueuer.pairs, 2)
}

func TestRegistryAndActivity(t *testing.T) {
	ctx := context.Background()
	registry := repository.NewMemoryRegistryRepository(nil)
	activity := repository.NewMemoryActivityRepository()
	pair := domain.Pair{UserID: "u1", Platform: connectiondomain.PlatformSlack}
	require.NoError(t, registry.Advance(ctx, repository.Advance{ConnectionID: "c1", Pair: pair, ResourceID: "C1", Cursor: domain.Cursor{Position: 7}, At: time.Now()}))
	require.NoError(t, activity.Append(ctx, &domain.SyncActivity{UserID: "u1", Platform: connectiondomain.PlatformSlack, Outcome: domain.OutcomeSuccess}))

	r := newRouter(&stubWorker{}, &stubEnqueuer{}, registry, activity)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sync/registry?user_id=u1&platform=slack", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var entries struct {
		Entries []domain.RegistryEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries.Entries, 1)
	assert.Equal(t, int64(7), entries.Entries[0].CursorPosition)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sync/activity?user_id=u1&limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"success"`)

	for _, target := range []string{"/api/sync/registry?platform=slack", "/api/sync/registry?user_id=u1", "/api/sync/activity", "/api/sync/activity?user_id=u1&limit=x"} {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}
