//go:build !integration

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/console/internal/platform/db"
)

const dsnEnv = "CONSOLE_E2E_PG_DSN"

// postgres connects to an existing database named by CONSOLE_E2E_PG_DSN.
// Run with -tags integration to start one in a container instead.
func postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}
