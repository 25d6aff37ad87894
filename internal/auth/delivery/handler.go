package delivery

import (
	"net/http"

	authdto "pulse-backend/internal/auth/dto"
	"pulse-backend/internal/auth/usecase"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	authUsecase usecase.AuthUsecase
}

func NewUserHandler(authUsecase usecase.AuthUsecase) *UserHandler {
	return &UserHandler{authUsecase: authUsecase}
}

// SetTier handles PUT /api/users/:id/tier
func (h *UserHandler) SetTier(c *gin.Context) {
	var req authdto.SetTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authUsecase.SetTier(c.Param("id"), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, user)
}

// RegisterDevice handles POST /api/users/:id/devices
func (h *UserHandler) RegisterDevice(c *gin.Context) {
	var req authdto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authUsecase.RegisterDevice(c.Param("id"), &req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "device registered"})
}
