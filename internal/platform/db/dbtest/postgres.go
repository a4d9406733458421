//go:build integration

// Package dbtest starts a disposable Postgres with the console schema for
// integration tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/odyssey-erp/console/internal/platform/db"
)

const image = "postgres:17-alpine"

// Start runs a Postgres container, applies the schema and returns a pool.
// Container and pool are released when the test ends.
func Start(t testing.TB) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "console",
				"POSTGRES_PASSWORD": "console",
				"POSTGRES_DB":       "console",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://console:console@%s:%s/console?sslmode=disable", host, port.Port())
	pool, err := db.New(ctx, dsn, 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

// Company inserts a bare company row and returns its id.
func Company(t testing.TB, pool *pgxpool.Pool, name string) string {
	t.Helper()
	var id string
	err := pool.QueryRow(context.Background(), `INSERT INTO companies (name) VALUES ($1) RETURNING id::text`, name).Scan(&id)
	require.NoError(t, err)
	return id
}
