package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "pulse-backend/cmd/api"
	"pulse-backend/internal/app"
	"pulse-backend/pkg/config"
	"pulse-backend/pkg/logger"

	log "github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("[Main] Failed to initialize application")
	}
	defer application.Close()

	application.Dispatcher.Start()
	application.Scheduler.Start()
	application.Cleanup.Start()
	if application.PushListener != nil {
		go application.PushListener.Start(ctx)
	} else {
		log.Warn("[Main] GoogleProjectID not configured, push-triggered sync disabled")
	}

	handler := api.NewHandler(application)

	errChan := make(chan error, 1)
	go func() {
		errChan <- handler.Start(":" + cfg.Port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("[Main] Received %s, shutting down", sig)
	case err := <-errChan:
		if err != nil {
			log.WithError(err).Error("[Main] Server stopped")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("[Main] HTTP server did not stop cleanly")
	}

	// Stop producers before the dispatcher so nothing enqueues into a closed pool.
	cancel()
	application.Scheduler.Stop()
	application.Cleanup.Stop()
	application.Dispatcher.Stop()
	log.Info("[Main] Shutdown complete")
}
