package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_OverridesOnlyGivenFields(t *testing.T) {
	cfg := Default()
	data := []byte(`
hub:
  addr: ":9999"
  xpPerMessage: 7
mysql:
  driver: sqlite
  dsn: /tmp/hub.db
`)
	require.NoError(t, Parse(data, &cfg))

	assert.Equal(t, ":9999", cfg.Hub.Addr)
	assert.Equal(t, int64(7), cfg.Hub.XPPerMessage)
	assert.Equal(t, "sqlite", cfg.MySQL.Driver)
	assert.Equal(t, "/tmp/hub.db", cfg.MySQL.DSN)
	// 未出现的字段保留默认值
	assert.Equal(t, 64, cfg.Hub.SendQueueSize)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestParse_InvalidYAML(t *testing.T) {
	cfg := Default()
	err := Parse([]byte("hub: [1, 2"), &cfg)
	require.Error(t, err)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt:\n  tokenTtl: 1h\n"), 0o644))

	t.Setenv("HUB_ADDR", ":7000")
	t.Setenv("HUB_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Hub.Addr)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, time.Hour, cfg.JWT.TokenTTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
