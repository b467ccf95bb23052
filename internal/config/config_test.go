package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BASIS_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 7*24*time.Hour, cfg.SyncOverlap)
	assert.Equal(t, 4, cfg.SyncRetryAttempts)
	assert.Nil(t, cfg.SyncAccounts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BASIS_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SYNC_OVERLAP_DAYS", "3")
	t.Setenv("SYNC_ACCOUNTS", "acct-1, acct-2,,acct-3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*24*time.Hour, cfg.SyncOverlap)
	assert.Equal(t, []string{"acct-1", "acct-2", "acct-3"}, cfg.SyncAccounts)
}

func TestDBPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BASIS_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.LedgerDBPath())
	assert.Equal(t, filepath.Join(dir, "cache.db"), cfg.CacheDBPath())
}
