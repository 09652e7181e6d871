package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checklists/api/internal/quota"
)

var envKeys = []string{
	"API_ADDR", "CHECKLISTS_CORS_ORIGIN", "CHECKLISTS_STORE", "DATABASE_URL",
	"CHECKLISTS_MIGRATIONS_DIR", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "CHECKLISTS_TOKEN_SECRET", "CHECKLISTS_PREVIOUS_TOKEN_SECRET", "CHECKLISTS_IDENTITY_KEY",
	"CHECKLISTS_TOKEN_TTL_SECONDS", "REDIS_URL",
	"LOG_LEVEL", "LOG_FILE", "HTTP_READ_HEADER_TIMEOUT_SECONDS",
	"HTTP_READ_TIMEOUT_SECONDS", "HTTP_WRITE_TIMEOUT_SECONDS",
	"HTTP_IDLE_TIMEOUT_SECONDS", "HTTP_SHUTDOWN_TIMEOUT_SECONDS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8787", cfg.HTTP.Addr)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, "./db/migrations", cfg.Store.MigrationsDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Write)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Auth.IdentityKey)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 20, cfg.Store.MaxOpenConns)
	assert.Equal(t, 10, cfg.Store.MaxIdleConns)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
store:
  driver: memory
log:
  level: debug
quotas:
  tags_per_user: 5
timeouts:
  write: 45s
`), 0o600))

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("HTTP_IDLE_TIMEOUT_SECONDS", "90")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level, "environment wins over the file")
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, 5, cfg.Quotas.TagsPerUser)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.Write)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Idle)
	assert.Equal(t, 50, cfg.Store.MaxOpenConns)
}

func TestQuotaOverridesMergeIntoDefaults(t *testing.T) {
	limits := QuotaConfig{TagsPerUser: 5}.Limits()
	assert.Equal(t, 5, limits[quota.TagsPerUser])
	assert.Equal(t, quota.Default()[quota.ChecklistsPerOwner], limits[quota.ChecklistsPerOwner])
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHECKLISTS_STORE", "sqlite")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestGetenvIntFallsBack(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT_SECONDS", "soon")
	assert.Equal(t, 7, getenvInt("HTTP_READ_TIMEOUT_SECONDS", 7))
}
