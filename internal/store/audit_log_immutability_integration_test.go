package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// openIntegrationStore applies every migration to TEST_DATABASE_URL and
// returns a store over it. Tests skip when no database is configured.
func openIntegrationStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, databaseURL, Pool{MaxOpen: 4})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func TestAuditLogImmutabilityBlocksUpdateAndDelete(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	if err := s.AppendAudit(ctx, AuditEntry{
		EventType: "CHECKLIST_CREATED",
		Details:   map[string]any{"checklist_id": 1, "title": "immutability sentinel"},
	}); err != nil {
		t.Fatalf("append audit entry should succeed: %v", err)
	}
	t.Cleanup(func() { _, _ = s.DB().ExecContext(ctx, `TRUNCATE audit_log`) })

	cases := []struct {
		op    string
		query string
	}{
		{op: "UPDATE", query: `UPDATE audit_log SET event_type = 'TAMPERED' WHERE details->>'title' = 'immutability sentinel'`},
		{op: "DELETE", query: `DELETE FROM audit_log WHERE details->>'title' = 'immutability sentinel'`},
	}
	for _, tc := range cases {
		t.Run(tc.op, func(t *testing.T) {
			_, err := s.DB().ExecContext(ctx, tc.query)
			if err == nil {
				t.Fatalf("expected %s to be blocked, but it succeeded", tc.op)
			}
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				t.Fatalf("expected PostgreSQL error, got: %v", err)
			}
			if pgErr.SQLState() != "55000" {
				t.Fatalf("expected SQLSTATE 55000, got: %s", pgErr.SQLState())
			}
			if want := "audit_log is immutable; " + tc.op + " is not allowed"; pgErr.Message != want {
				t.Fatalf("unexpected error message: %s", pgErr.Message)
			}
		})
	}

	entries, total, err := s.ListAudit(ctx, AuditFilter{EventType: "CHECKLIST_CREATED"})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if total < 1 || len(entries) < 1 {
		t.Fatalf("expected the sentinel entry to survive, got total=%d", total)
	}
}
