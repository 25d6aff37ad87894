package database

import (
	"fmt"
	"time"

	"pulse-backend/pkg/config"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewPostgresConnection(cfg *config.Config) (*gorm.DB, error) {
	gormLogLevel := logger.Warn
	if cfg.LogLevel == "debug" {
		gormLogLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// Leave room for the per-pair advisory lock connections held by sync workers.
	sqlDB.SetMaxOpenConns(cfg.SyncWorkers*2 + 10)
	sqlDB.SetMaxIdleConns(cfg.SyncWorkers + 2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info("[Database] Connected to Postgres")
	return db, nil
}
