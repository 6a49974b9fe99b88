//go:build integration

package integration

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"matchengine/internal/config"
	"matchengine/internal/database"
	"matchengine/internal/database/migration"
	dbpostgres "matchengine/internal/database/postgres"
	"matchengine/internal/infrastructure/cache"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("docker not available")
	}
}

func terminate(t *testing.T, c testcontainers.Container) {
	t.Helper()
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})
}

func startPostgres(t *testing.T, ctx context.Context) database.DB {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "matchengine",
				"POSTGRES_PASSWORD": "matchengine",
				"POSTGRES_DB":       "matchengine",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	terminate(t, c)

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	db, err := dbpostgres.Connect(ctx, config.DatabaseConfig{
		DBHost:     host,
		DBPort:     port.Port(),
		DBName:     "matchengine",
		DBUser:     "matchengine",
		DBPassword: "matchengine",
		DBSSLMode:  "disable",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := (migration.Runner{Logger: zerolog.Nop()}).Run(ctx, db.SQLDB()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func startRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	terminate(t, c)

	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}

	rdb, err := cache.NewClient(ctx, config.RedisConfig{Addr: endpoint}, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
