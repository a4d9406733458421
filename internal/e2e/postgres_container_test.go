//go:build integration

package e2e

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/console/internal/platform/db/dbtest"
)

func postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	return dbtest.Start(t)
}
