// Package testsupport starts throwaway Postgres containers for repository tests.
package testsupport

import (
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	PostgresUser     = "pulse"
	PostgresPassword = "pulse_pwd"
	PostgresDB       = "pulse_test"
	PostgresHost     = "localhost"
)

func PostgresDSN(port string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", PostgresUser, PostgresPassword, PostgresHost, port, PostgresDB)
}

// Postgres is a running container plus a gorm handle on it.
type Postgres struct {
	DB       *gorm.DB
	pool     *dockertest.Pool
	resource *dockertest.Resource
}

// StartPostgres skips the test under -short or when Docker is unreachable.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres-backed test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	pool.MaxWait = 60 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=" + PostgresUser,
			"POSTGRES_PASSWORD=" + PostgresPassword,
			"POSTGRES_DB=" + PostgresDB,
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start postgres: %v", err)
	}
	_ = resource.Expire(120)

	dsn := PostgresDSN(resource.GetPort("5432/tcp"))
	var db *gorm.DB
	err = pool.Retry(func() error {
		var openErr error
		db, openErr = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if openErr != nil {
			return openErr
		}
		sqlDB, openErr := db.DB()
		if openErr != nil {
			return openErr
		}
		return sqlDB.Ping()
	})
	if err != nil {
		_ = pool.Purge(resource)
		t.Fatalf("could not connect to postgres: %v", err)
	}

	return &Postgres{DB: db, pool: pool, resource: resource}
}

// Truncate empties the given tables between tests.
func (p *Postgres) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if err := p.DB.Exec("TRUNCATE TABLE " + table + " CASCADE").Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

func (p *Postgres) Close() {
	if sqlDB, err := p.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if p.pool != nil && p.resource != nil {
		_ = p.pool.Purge(p.resource)
	}
}
