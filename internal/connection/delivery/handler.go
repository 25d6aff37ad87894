package delivery

import (
	"errors"
	"net/http"

	"pulse-backend/internal/connection/domain"
	"pulse-backend/internal/connection/dto"
	"pulse-backend/internal/connection/usecase"

	"github.com/gin-gonic/gin"
)

type ConnectionHandler struct {
	connectionUsecase usecase.ConnectionUsecase
}

func NewConnectionHandler(connectionUsecase usecase.ConnectionUsecase) *ConnectionHandler {
	return &ConnectionHandler{connectionUsecase: connectionUsecase}
}

// List handles GET /api/connections?user_id=
func (h *ConnectionHandler) List(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	conns, err := h.connectionUsecase.ListByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"connections": conns})
}

// Connect handles POST /api/connections, the sink for completed OAuth grants.
func (h *ConnectionHandler) Connect(c *gin.Context) {
	var req dto.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.connectionUsecase.Connect(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownPlatform) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, conn)
}

// UpdateResources handles PATCH /api/connections/:id/resources
func (h *ConnectionHandler) UpdateResources(c *gin.Context) {
	var req dto.UpdateResourcesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.connectionUsecase.UpdateResources(c.Request.Context(), c.Param("id"), req.Resources)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conn)
}

// Disconnect handles DELETE /api/connections/:id; ?purge=true removes the row entirely.
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	var err error
	if c.Query("purge") == "true" {
		err = h.connectionUsecase.Delete(c.Request.Context(), c.Param("id"))
	} else {
		err = h.connectionUsecase.Disconnect(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "disconnected"})
}

func respondError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrConnectionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
