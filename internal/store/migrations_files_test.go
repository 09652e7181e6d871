package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestLoadMigrationsPairsShippedFiles(t *testing.T) {
	migrations, err := LoadMigrations(migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	versions := make([]string, 0, len(migrations))
	for _, m := range migrations {
		versions = append(versions, m.Version)
		assert.FileExists(t, m.UpPath)
		assert.FileExists(t, m.DownPath)
	}
	assert.Equal(t, []string{"0001_core_schema", "0002_audit_log_immutability"}, versions)
}

func TestLoadMigrationsRejectsHalfPairs(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}
	write("0001_init.up.sql")
	write("0001_init.down.sql")
	write("0002_tags.up.sql")
	write("README.md")

	_, err := LoadMigrations(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0002_tags")
}

func TestLoadMigrationsOrdersByVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"0010_later.up.sql", "0010_later.down.sql",
		"0002_early.up.sql", "0002_early.down.sql",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	migrations, err := LoadMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "0002_early", migrations[0].Version)
	assert.Equal(t, "0010_later", migrations[1].Version)
}
