package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "http://127.0.0.1:9222", cfg.DevToolsURL)
	assert.Equal(t, ":memory:", cfg.Sqlite.Dsn)
	assert.Equal(t, "default", cfg.Mapper.UnhandledPromptBehavior)
	assert.Equal(t, []string{"console"}, cfg.Log.Writer)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: 0.0.0.0:9000
devToolsURL: http://10.0.0.1:9222
mapper:
  acceptInsecureCerts: true
  idleTimeoutMS: 5000
log:
  level: debug
  writer: [console, file]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "http://10.0.0.1:9222", cfg.DevToolsURL)
	assert.True(t, cfg.Mapper.AcceptInsecureCerts)
	assert.Equal(t, 5000, cfg.Mapper.IdleTimeoutMS)
	assert.Equal(t, "debug", cfg.Log.Level)
	// 未覆盖的字段保持默认
	assert.Equal(t, ":memory:", cfg.Sqlite.Dsn)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
