package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pulse-backend/internal/app"
	authDelivery "pulse-backend/internal/auth/delivery"
	connectionDelivery "pulse-backend/internal/connection/delivery"
	contentDelivery "pulse-backend/internal/content/delivery"
	ingestDelivery "pulse-backend/internal/ingest/delivery"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	app               *app.App
	server            *http.Server
	userHandler       *authDelivery.UserHandler
	connectionHandler *connectionDelivery.ConnectionHandler
	contentHandler    *contentDelivery.ContentHandler
	syncHandler       *ingestDelivery.SyncHandler
}

func NewHandler(a *app.App) *Handler {
	return &Handler{
		app:               a,
		userHandler:       authDelivery.NewUserHandler(a.Auth),
		connectionHandler: connectionDelivery.NewConnectionHandler(a.Credentials),
		contentHandler:    contentDelivery.NewContentHandler(a.Reader),
		syncHandler:       ingestDelivery.NewSyncHandler(a.Worker, a.Dispatcher, a.Status),
	}
}

// Engine builds the gin engine with middleware and routes.
func (h *Handler) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.app.Auth, h.userHandler, h.connectionHandler, h.contentHandler, h.syncHandler)
	return r
}

// Start serves until Shutdown is called.
func (h *Handler) Start(addr string) error {
	h.server = &http.Server{
		Addr:              addr,
		Handler:           h.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("[API] Server starting on %s", addr)
	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *Handler) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("[API] Request failed")
			return
		}
		entry.Debug("[API] Request")
	}
}
