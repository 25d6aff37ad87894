package delivery

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/content/domain"
	"pulse-backend/internal/content/dto"
	"pulse-backend/internal/content/usecase"
	"pulse-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type ContentHandler struct {
	reader usecase.ContentReader
}

func NewContentHandler(reader usecase.ContentReader) *ContentHandler {
	return &ContentHandler{reader: reader}
}

// Query handles GET /api/content
// Query params: user_id (required), platform, content_type, resource, since, until, q, semantic, limit, offset.
func (h *ContentHandler) Query(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	query, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items, err := h.reader.Query(c.Request.Context(), userID, query)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if items == nil {
		items = []domain.ContentItem{}
	}

	c.JSON(http.StatusOK, dto.QueryResponse{
		Items:  items,
		Count:  len(items),
		Limit:  query.Limit,
		Offset: query.Offset,
	})
}

func parseQuery(c *gin.Context) (*dto.Query, error) {
	query := &dto.Query{
		Platform:    connectiondomain.Platform(c.Query("platform")),
		ContentType: domain.ContentType(c.Query("content_type")),
		ResourceID:  c.Query("resource"),
		Text:        c.Query("q"),
		Semantic:    c.Query("semantic") == "true",
	}
	if query.Platform != "" && !query.Platform.Valid() {
		return nil, connectiondomain.ErrUnknownPlatform
	}

	var err error
	if query.Since, err = parseTime(c.Query("since")); err != nil {
		return nil, errors.New("since must be RFC3339")
	}
	if query.Until, err = parseTime(c.Query("until")); err != nil {
		return nil, errors.New("until must be RFC3339")
	}
	if raw := c.Query("limit"); raw != "" {
		if query.Limit, err = strconv.Atoi(raw); err != nil {
			return nil, errors.New("limit must be an integer")
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if query.Offset, err = strconv.Atoi(raw); err != nil {
			return nil, errors.New("offset must be an integer")
		}
	}
	return query, nil
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type retainRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Retain handles POST /api/content/:id/retain
func (h *ContentHandler) Retain(c *gin.Context) {
	var req retainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref := domain.ItemRef{UserID: req.UserID, ContentID: c.Param("id")}
	if err := h.reader.MarkRetained(c.Request.Context(), ref); err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "retained"})
}

// Freshness handles GET /api/freshness?user_id=&platform=&within=1h
func (h *ContentHandler) Freshness(c *gin.Context) {
	userID := c.Query("user_id")
	platform := connectiondomain.Platform(c.Query("platform"))
	if userID == "" || !platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and a valid platform are required"})
		return
	}

	within, err := config.ParseDuration(c.DefaultQuery("within", "1h"))
	if err != nil || within <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "within must be a positive duration"})
		return
	}

	fresh, err := h.reader.IsFreshSince(c.Request.Context(), userID, platform, within)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.FreshnessResponse{
		UserID:   userID,
		Platform: platform,
		Within:   within.String(),
		Fresh:    fresh,
	})
}
