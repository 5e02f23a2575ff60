package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "127.0.0.1:30000", cfg.ServerAddr)
	assert.Equal(t, "axum_event", cfg.EventName)
	assert.Equal(t, 32, cfg.QueueSize)
}

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventbridge.yaml")
	data := []byte("server_addr: 127.0.0.1:31000\nqueue_size: 8\nregistration_timeout: 2s\nmount_target: \"#root\"\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("EVENTBRIDGE_QUEUE_SIZE", "64")
	t.Setenv("EVENTBRIDGE_INTERACTIVE", "false")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:31000", cfg.ServerAddr)
	assert.Equal(t, 64, cfg.QueueSize, "environment wins over file")
	assert.Equal(t, 2*time.Second, cfg.RegistrationTimeout)
	assert.Equal(t, "#root", cfg.MountTarget)
	assert.False(t, cfg.Interactive)
	assert.Equal(t, "/events", cfg.WSPath, "unset keys keep defaults")
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue_size: 0\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue_size")
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_addr: [unclosed\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
