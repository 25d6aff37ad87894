// Package app builds the component graph shared by the service and the operator CLI.
package app

import (
	"context"
	"fmt"
	"strings"

	authdomain "pulse-backend/internal/auth/domain"
	authrepo "pulse-backend/internal/auth/repository"
	authusecase "pulse-backend/internal/auth/usecase"
	connectiondomain "pulse-backend/internal/connection/domain"
	connrepo "pulse-backend/internal/connection/repository"
	connusecase "pulse-backend/internal/connection/usecase"
	contentdomain "pulse-backend/internal/content/domain"
	contentrepo "pulse-backend/internal/content/repository"
	contentusecase "pulse-backend/internal/content/usecase"
	ingestdomain "pulse-backend/internal/ingest/domain"
	ingestrepo "pulse-backend/internal/ingest/repository"
	"pulse-backend/internal/ingest/scheduler"
	ingestusecase "pulse-backend/internal/ingest/usecase"
	"pulse-backend/internal/notification"
	"pulse-backend/pkg/chroma"
	"pulse-backend/pkg/config"
	"pulse-backend/pkg/database"
	"pulse-backend/pkg/events"
	"pulse-backend/pkg/fcm"
	"pulse-backend/pkg/vault"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type App struct {
	Config *config.Config
	// DB is nil with the memory storage driver.
	DB *gorm.DB

	Users       authrepo.UserRepository
	Devices     authrepo.DeviceTokenRepository
	Connections connrepo.ConnectionRepository
	Registry    ingestrepo.RegistryRepository
	Activity    ingestrepo.ActivityRepository
	Content     contentrepo.ContentRepository

	Auth         authusecase.AuthUsecase
	Credentials  connusecase.ConnectionUsecase
	Reader       contentusecase.ContentReader
	Index        contentusecase.SemanticIndex
	Worker       ingestusecase.SyncWorker
	Dispatcher   *ingestusecase.Dispatcher
	Status       ingestusecase.StatusReader
	Scheduler    *scheduler.SyncScheduler
	Cleanup      *contentusecase.CleanupJob
	PushListener *notification.PushListener

	events *events.Client
}

// New wires every component. Optional integrations (Chroma, FCM, RabbitMQ,
// Pub/Sub) are skipped with a warning when they are not configured or fail to start.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	var locker ingestusecase.Locker
	switch strings.ToLower(cfg.StorageDriver) {
	case StorageMemory:
		log.Warn("[App] Using in-memory storage; nothing survives a restart")
		a.Users = authrepo.NewMemoryUserRepository()
		a.Devices = authrepo.NewMemoryDeviceTokenRepository()
		a.Connections = connrepo.NewMemoryConnectionRepository()
		a.Registry = ingestrepo.NewMemoryRegistryRepository(a.Connections)
		a.Activity = ingestrepo.NewMemoryActivityRepository()
		a.Content = contentrepo.NewMemoryContentRepository()
		locker = ingestusecase.NewMemoryLocker()
	case StoragePostgres, "":
		db, err := database.NewPostgresConnection(cfg)
		if err != nil {
			return nil, err
		}
		if err := Migrate(db); err != nil {
			return nil, err
		}
		a.DB = db
		a.Users = authrepo.NewUserRepository(db)
		a.Devices = authrepo.NewDeviceTokenRepository(db)
		a.Connections = connrepo.NewConnectionRepository(db)
		a.Registry = ingestrepo.NewRegistryRepository(db)
		a.Activity = ingestrepo.NewActivityRepository(db)
		a.Content = contentrepo.NewContentRepository(db)
		locker = ingestusecase.NewAdvisoryLocker(db)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	sealer, err := vault.NewSealer(cfg.CredentialCipher, cfg.CredentialAgeIdentity, cfg.CredentialSecretboxKey)
	if err != nil {
		return nil, fmt.Errorf("credential sealer: %w", err)
	}

	a.Auth = authusecase.NewAuthUsecase(a.Users, a.Devices, cfg)
	a.Credentials = connusecase.NewConnectionUsecase(a.Connections, sealer, connusecase.OAuthConfigs(cfg), a.Registry, a.Auth)

	if cfg.ChromaAPIKey != "" {
		client, err := chroma.NewChromaClient(cfg)
		if err != nil {
			log.WithError(err).Warn("[App] Chroma unavailable, semantic filter disabled")
		} else {
			a.Index = contentusecase.NewSemanticIndex(client)
		}
	}

	var alerter ingestusecase.AuthAlerter
	if cfg.FirebaseCredentials != "" {
		client, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.WithError(err).Warn("[App] FCM unavailable, auth alerts disabled")
		} else {
			alerter = notification.NewDeviceAlerter(client, a.Devices)
		}
	}

	var publisher ingestusecase.EventPublisher
	if cfg.AMQPURL != "" {
		if p, err := a.openEvents(cfg); err != nil {
			log.WithError(err).Warn("[App] RabbitMQ unavailable, sync events disabled")
		} else {
			publisher = p
		}
	}

	ttl := contentusecase.NewTTLPolicy(cfg.ContentTTL, cfg.ContentTTLOverrides)
	a.Reader = contentusecase.NewContentReader(a.Content, a.Connections, a.Index)
	a.Cleanup = contentusecase.NewCleanupJob(a.Content, a.Index, cfg.CleanupBatchSize, cfg.CleanupInterval)

	deps := ingestusecase.WorkerDeps{
		Connections: a.Connections,
		Credentials: a.Credentials,
		Registry:    a.Registry,
		Activity:    a.Activity,
		Content:     a.Content,
		TTL:         ttl,
		Adapters:    ingestusecase.DefaultAdapters(cfg),
		Locker:      locker,
		Index:       a.Index,
		Publisher:   publisher,
		Alerter:     alerter,
	}
	a.Worker = ingestusecase.NewSyncWorker(deps)
	a.Dispatcher = ingestusecase.NewDispatcher(a.Worker, cfg.SyncWorkers, cfg.SyncQueueSize)
	a.Status = ingestusecase.NewStatusReader(a.Registry, a.Activity)
	a.Scheduler = scheduler.NewSyncScheduler(a.Connections, a.Users, a.Dispatcher, cfg)

	if cfg.GoogleProjectID != "" {
		listener, err := notification.NewPushListener(ctx, cfg.GoogleProjectID, topicName(cfg.GooglePubSubTopic), cfg.GoogleCredentials, a.Credentials, a.Dispatcher)
		if err != nil {
			log.WithError(err).Warn("[App] Pub/Sub unavailable, push-triggered sync disabled")
		} else {
			a.PushListener = listener
		}
	}

	return a, nil
}

func (a *App) openEvents(cfg *config.Config) (*events.Publisher, error) {
	client, err := events.NewClient(cfg.AMQPURL)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareExchange(cfg.AMQPExchange); err != nil {
		_ = client.Close()
		return nil, err
	}
	a.events = client
	return events.NewPublisher(client, cfg.AMQPExchange), nil
}

// topicName accepts either a short topic name or a full projects/x/topics/y resource name.
func topicName(raw string) string {
	if parts := strings.Split(raw, "/"); len(parts) > 1 {
		raw = parts[len(parts)-1]
	}
	if raw == "" {
		return "gmail-updates"
	}
	return raw
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.DeviceToken{},
		&connectiondomain.PlatformConnection{},
		&ingestdomain.RegistryEntry{},
		&ingestdomain.SyncActivity{},
		&contentdomain.ContentItem{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases external connections. Background loops are stopped by their owners.
func (a *App) Close() {
	if a.PushListener != nil {
		if err := a.PushListener.Close(); err != nil {
			log.WithError(err).Warn("[App] Failed to close Pub/Sub client")
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			log.WithError(err).Warn("[App] Failed to close AMQP client")
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
