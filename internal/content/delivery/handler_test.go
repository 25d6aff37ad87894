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
	connectionrepo "pulse-backend/internal/connection/repository"
	"pulse-backend/internal/content/domain"
	"pulse-backend/internal/content/dto"
	"pulse-backend/internal/content/repository"
	"pulse-backend/internal/content/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, repository.ContentRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryContentRepository()
	handler := NewContentHandler(usecase.NewContentReader(repo, connectionrepo.NewMemoryConnectionRepository(), nil))

	r := gin.New()
	r.GET("/api/content", handler.Query)
	r.POST("/api/content/:id/retain", handler.Retain)
	r.GET("/api/freshness", handler.Freshness)
	return r, repo
}

func TestQueryHandler(t *testing.T) {
	r, repo := newTestRouter(t)
	_, err := repo.Upsert(context.Background(), &domain.ContentItem{
		UserID:          "u1",
		Platform:        connectiondomain.PlatformSlack,
		ResourceID:      "C1",
		ItemID:          "1700000000.000100",
		ContentHash:     "h",
		ContentType:     domain.ContentTypeMessage,
		Text:            "standup moved to 10",
		SourceTimestamp: time.Now(),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/content?user_id=u1&platform=slack&q=standup", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "standup moved to 10", resp.Items[0].Text)
}

func TestQueryHandlerRejectsBadInput(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, target := range []string{
		"/api/content",
		"/api/content?user_id=u1&platform=myspace",
		"/api/content?user_id=u1&since=yesterday",
		"/api/content?user_id=u1&limit=ten",
		"/api/content?user_id=u1&content_type=tweet",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestRetainHandlerHidesOtherUsersItems(t *testing.T) {
	r, repo := newTestRouter(t)
	item := &domain.ContentItem{UserID: "u1", Platform: connectiondomain.PlatformGmail, ResourceID: "INBOX", ItemID: "m1", ContentHash: "h", ContentType: domain.ContentTypeEmail}
	_, err := repo.Upsert(context.Background(), item)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/content/"+item.ID+"/retain", strings.NewReader(`{"user_id":"u2"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/content/"+item.ID+"/retain", strings.NewReader(`{"user_id":"u1"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFreshnessHandler(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/freshness?user_id=u1&platform=notion&within=2d", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.FreshnessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Fresh)
	assert.Equal(t, "48h0m0s", resp.Within)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/freshness?user_id=u1&platform=notion&within=soon", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
