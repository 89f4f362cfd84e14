package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("SCAN_MAX_WORKERS", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 15, cfg.Scan.MaxWorkers)
	assert.Equal(t, 30*time.Second, cfg.Scan.UnitTimeout)
	assert.Equal(t, 5*time.Second, cfg.Scan.FlushInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.ProgressInterval)
	assert.Equal(t, time.Hour, cfg.Scan.TaskRetention)
	assert.Equal(t, "@every 10m", cfg.Scan.ReaperSchedule)
}

func TestLoad_EnvFile(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "SCAN_MAX_WORKERS", "SCAN_UNIT_TIMEOUT", "SERVER_PORT"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_DRIVER=memory\nSCAN_MAX_WORKERS=4\nSCAN_UNIT_TIMEOUT=2s\nSERVER_PORT=9000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 4, cfg.Scan.MaxWorkers)
	assert.Equal(t, 2*time.Second, cfg.Scan.UnitTimeout)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("SCAN_MAX_WORKERS", "abc")
	t.Setenv("SCAN_FLUSH_INTERVAL", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Scan.MaxWorkers, "解釈できない値は既定値")
	assert.Equal(t, 5*time.Second, cfg.Scan.FlushInterval)

	t.Setenv("STORE_DRIVER", "sqlite")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SCAN_MAX_WORKERS", "0")
	_, err = Load("")
	assert.Error(t, err)
}
