package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditLogImmutabilityMigrationUsesBlockingTriggers(t *testing.T) {
	migrationPath := filepath.Join("..", "..", "db", "migrations", "0002_audit_log_immutability.up.sql")
	sqlBytes, err := os.ReadFile(migrationPath)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	for _, snippet := range []string{
		"audit_log_immutable_guard",
		"RAISE EXCEPTION",
		"ERRCODE = '55000'",
		"CREATE TRIGGER trg_audit_log_block_update",
		"CREATE TRIGGER trg_audit_log_block_delete",
	} {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if strings.Contains(sqlText, "DO INSTEAD NOTHING") {
		t.Fatalf("expected hard-fail immutability guard, found silent DO INSTEAD NOTHING rule")
	}
}

func TestCoreSchemaDefersSiblingPositionUniqueness(t *testing.T) {
	sqlBytes, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_core_schema.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	if got := strings.Count(sqlText, "DEFERRABLE INITIALLY DEFERRED"); got < 2 {
		t.Fatalf("expected deferred position constraints on sections and items, found %d", got)
	}
	if !strings.Contains(sqlText, "collaborators_owner_guard") {
		t.Fatal("expected owner guard on collaborators")
	}
}
