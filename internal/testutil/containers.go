// Package testutil starts throwaway PostgreSQL and Redis containers for
// integration tests. Containers are shared across a test binary run.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PostgresImage = "postgres:16-alpine"
	RedisImage    = "redis:7-alpine"
)

// Container is a started test container and the address to reach it.
type Container struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

// Addr returns host:port.
func (c *Container) Addr() string {
	return c.Host + ":" + c.Port
}

var (
	pgOnce sync.Once
	pgC    *Container
	pgErr  error

	redisOnce sync.Once
	redisC    *Container
	redisErr  error
)

// PostgresURL returns a connection string for a shared PostgreSQL container.
func PostgresURL(t *testing.T) string {
	t.Helper()
	skipShort(t)

	pgOnce.Do(func() {
		pgC, pgErr = start(testcontainers.ContainerRequest{
			Image:        PostgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "certiva_test",
				"POSTGRES_USER":     "certiva",
				"POSTGRES_PASSWORD": "test_password",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		}, "5432")
	})
	if pgErr != nil {
		t.Fatalf("Failed to start postgres container: %v", pgErr)
	}

	return fmt.Sprintf("postgres://certiva:test_password@%s/certiva_test?sslmode=disable", pgC.Addr())
}

// RedisAddr returns host:port of a shared Redis container.
func RedisAddr(t *testing.T) string {
	t.Helper()
	skipShort(t)

	redisOnce.Do(func() {
		redisC, redisErr = start(testcontainers.ContainerRequest{
			Image:        RedisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		}, "6379")
	})
	if redisErr != nil {
		t.Fatalf("Failed to start redis container: %v", redisErr)
	}

	return redisC.Addr()
}

func skipShort(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
}

func start(req testcontainers.ContainerRequest, port string) (*Container, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &Container{Container: container, Host: host, Port: mapped.Port()}, nil
}
