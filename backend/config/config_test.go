package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("boardConfig", "")
	require.NoError(t, err)
	assert.Equal(t, 3002, cfg.Running.Port)
	assert.Empty(t, cfg.Mysql.DSN)
	assert.Equal(t, 1000.0, cfg.Realtime.Step)
	assert.Equal(t, 1e-6, cfg.Realtime.Epsilon)
	assert.Equal(t, 5*time.Second, cfg.Realtime.PersistTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
Running:
  Port: 4000
Redis:
  addrs: ["127.0.0.1:7000", "127.0.0.1:7001"]
Realtime:
  persistTimeout: 2s
  step: 500
`), 0o600))
	t.Setenv("BOARD_MYSQL_DSN", "root:pw@tcp(db:3306)/kanban")
	t.Setenv("BOARD_LOG_LEVEL", "debug")

	cfg, err := Load("", path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Running.Port)
	assert.Equal(t, []string{"127.0.0.1:7000", "127.0.0.1:7001"}, cfg.Redis.Addrs)
	assert.Equal(t, 2*time.Second, cfg.Realtime.PersistTimeout)
	assert.Equal(t, 500.0, cfg.Realtime.Step)
	assert.Equal(t, "root:pw@tcp(db:3306)/kanban", cfg.Mysql.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
