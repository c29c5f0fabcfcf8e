package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg := Load()

	assert.Equal(t, "ws://localhost:8000/chat", cfg.WSURL)
	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, 3*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.HandshakeDelay)
	assert.Equal(t, 3*time.Second, cfg.TypingTimeout)
	assert.Equal(t, 2000*time.Millisecond, cfg.PopupTTL)
	assert.Equal(t, ":8000", cfg.ServerAddr)
	assert.Empty(t, cfg.Redis.URL)
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"ws_url: ws://file.example/chat\nreconnect_interval_sec: 7\npopup_ttl_ms: 900\n"), 0o644))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("WS_URL", "ws://env.example/chat")
	t.Setenv("TYPING_TIMEOUT_SEC", "5")

	cfg := Load()
	assert.Equal(t, "ws://env.example/chat", cfg.WSURL, "environment wins over the file")
	assert.Equal(t, 7*time.Second, cfg.ReconnectInterval, "file wins over defaults")
	assert.Equal(t, 900*time.Millisecond, cfg.PopupTTL)
	assert.Equal(t, 5*time.Second, cfg.TypingTimeout)
}

func TestBadNumericEnvFallsBack(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("RECONNECT_INTERVAL_SEC", "soon")
	cfg := Load()
	assert.Equal(t, 3*time.Second, cfg.ReconnectInterval)
}
