package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// migrationLockID serializes migrators when several API replicas start at
// once.
const migrationLockID = 7_340_112

var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one numbered schema change. Version is the file stem, e.g.
// "0002_audit_log_immutability", and is what schema_migrations records.
type Migration struct {
	Version  string
	UpPath   string
	DownPath string
}

// LoadMigrations pairs the up and down files in dir, ordered by version.
// A version missing either half is an error.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := map[string]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version := match[1] + "_" + match[2]
		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version}
			byVersion[version] = m
		}
		path := filepath.Join(dir, entry.Name())
		switch match[3] {
		case "up":
			m.UpPath = path
		case "down":
			m.DownPath = path
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpPath == "" || m.DownPath == "" {
			return nil, fmt.Errorf("migration %s needs both up and down files", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// ApplyMigrations runs every pending up migration, each in its own
// transaction.
func ApplyMigrations(ctx context.Context, db *sql.DB, dir string) error {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}

	for _, m := range migrations {
		err := migrateStep(ctx, db, m.Version, m.UpPath, func(tx *sql.Tx, applied bool) (bool, error) {
			if applied {
				return false, nil
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return true, err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RollbackMigrations undoes the newest steps applied migrations. steps <= 0
// rolls back everything.
func RollbackMigrations(ctx context.Context, db *sql.DB, dir string, steps int) error {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}

	done := 0
	for i := len(migrations) - 1; i >= 0; i-- {
		if steps > 0 && done == steps {
			break
		}
		m := migrations[i]
		var ran bool
		err := migrateStep(ctx, db, m.Version, m.DownPath, func(tx *sql.Tx, applied bool) (bool, error) {
			if !applied {
				return false, nil
			}
			ran = true
			_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
			return true, err
		})
		if err != nil {
			return err
		}
		if ran {
			done++
		}
	}
	return nil
}

// migrateStep takes the migration lock, asks record whether to run the file
// at path given the version's current state, and commits both together.
func migrateStep(ctx context.Context, db *sql.DB, version, path string, record func(tx *sql.Tx, applied bool) (bool, error)) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}

	var applied bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&applied); err != nil {
		return fmt.Errorf("check migration %s: %w", version, err)
	}

	run, err := record(tx, applied)
	if err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if !run {
		return nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}
	if statement := strings.TrimSpace(string(contents)); statement != "" {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("execute migration %s: %w", filepath.Base(path), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}
