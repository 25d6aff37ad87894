package delivery

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/dto"
	"pulse-backend/internal/ingest/usecase"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	worker   usecase.SyncWorker
	enqueuer usecase.Enqueuer
	status   usecase.StatusReader
}

func NewSyncHandler(worker usecase.SyncWorker, enqueuer usecase.Enqueuer, status usecase.StatusReader) *SyncHandler {
	return &SyncHandler{worker: worker, enqueuer: enqueuer, status: status}
}

// Trigger handles POST /api/sync/trigger
// The sync runs inside the request unless ?async=true, which hands it to the dispatcher.
func (h *SyncHandler) Trigger(c *gin.Context) {
	var req dto.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": connectiondomain.ErrUnknownPlatform.Error()})
		return
	}
	pair := domain.Pair{UserID: req.UserID, Platform: req.Platform}

	if c.Query("async") == "true" {
		queued := h.enqueuer.Enqueue(pair, domain.TriggerManual)
		status := http.StatusAccepted
		if !queued {
			status = http.StatusConflict
		}
		c.JSON(status, dto.QueuedResponse{Queued: queued, UserID: pair.UserID, Platform: pair.Platform, At: time.Now()})
		return
	}

	outcome := h.worker.Sync(c.Request.Context(), pair, domain.TriggerManual)
	status := http.StatusOK
	switch {
	case outcome.Kind == domain.OutcomeSkipped:
		status = http.StatusConflict
	case errors.Is(outcome.Err, connectiondomain.ErrNotConnected):
		status = http.StatusNotFound
	}
	c.JSON(status, dto.NewOutcomeResponse(outcome))
}

// Registry handles GET /api/sync/registry?user_id=&platform=
func (h *SyncHandler) Registry(c *gin.Context) {
	pair := domain.Pair{UserID: c.Query("user_id"), Platform: connectiondomain.Platform(c.Query("platform"))}
	if !pair.Platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": connectiondomain.ErrUnknownPlatform.Error()})
		return
	}

	entries, err := h.status.Registry(c.Request.Context(), pair)
	if err != nil {
		if errors.Is(err, usecase.ErrMissingUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []domain.RegistryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Activity handles GET /api/sync/activity?user_id=&limit=
func (h *SyncHandler) Activity(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		limit = n
	}

	activity, err := h.status.Activity(c.Request.Context(), c.Query("user_id"), limit)
	if err != nil {
		if errors.Is(err, usecase.ErrMissingUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if activity == nil {
		activity = []domain.SyncActivity{}
	}
	c.JSON(http.StatusOK, gin.H{"activity": activity})
}
