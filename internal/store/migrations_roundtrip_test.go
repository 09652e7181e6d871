package store

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn, Pool{MaxOpen: 2})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)

	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir), "up, pass 1")
	require.Equal(t, 2, appliedCount(ctx, t, db))

	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir), "up again is a no-op")
	require.Equal(t, 2, appliedCount(ctx, t, db))

	require.NoError(t, RollbackMigrations(ctx, db, migrationsDir, 1))
	require.Equal(t, 1, appliedCount(ctx, t, db))

	require.NoError(t, RollbackMigrations(ctx, db, migrationsDir, 0))
	require.Equal(t, 0, appliedCount(ctx, t, db))

	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir), "up, pass 2")
	require.Equal(t, 2, appliedCount(ctx, t, db))
}

func appliedCount(ctx context.Context, t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	return n
}
