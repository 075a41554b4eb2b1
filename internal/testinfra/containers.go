// Package testinfra starts throwaway Postgres and Redis containers for the
// integration tests. Tests using it carry the integration build tag.
package testinfra

import (
	"context"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/pkg/runstatus"
)

const (
	postgresImage = "postgres:15-alpine"
	redisImage    = "redis:7-alpine"
)

// Logger returns a logger that drops every message
func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// MigrationsFolder returns the absolute path of db/pg
func MigrationsFolder() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "pg")
}

// Postgres starts a migrated Postgres container and returns a connection to it.
// The container is removed when the test ends.
func Postgres(t *testing.T) *database.Instance {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "fern",
				"POSTGRES_PASSWORD": "fern",
				"POSTGRES_DB":       "fern",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, port := endpoint(t, ctx, container, "5432")
	logger := Logger()
	db, err := database.Connect(ctx, database.Config{
		Host:     host,
		Port:     port,
		User:     "fern",
		Password: "fern",
		Name:     "fern",
	}, logger)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, database.MigrationConfig{Folder: MigrationsFolder()})
	if err := migrations.MigratePostgres(db, "fern"); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// Redis starts a Redis container and returns its connection settings
func Redis(t *testing.T) runstatus.Config {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        redisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, port := endpoint(t, ctx, container, "6379")
	return runstatus.Config{Host: host, Port: port}
}

func endpoint(t *testing.T, ctx context.Context, container testcontainers.Container, port nat.Port) (string, int) {
	t.Helper()
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to resolve container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("failed to resolve port %s: %v", port, err)
	}
	n, err := strconv.Atoi(mapped.Port())
	if err != nil {
		t.Fatalf("unexpected port %q: %v", mapped.Port(), err)
	}
	return host, n
}
