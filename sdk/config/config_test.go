package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
room_url: https://acme.whereby.com/standup
display_name: Ann
ice_servers:
  - stun:stun.example.org:3478
device: static
camera_enabled: true
`), 0o600))
	t.Setenv("ROOMCTL_DISPLAY_NAME", "Bo")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.whereby.com/standup", cfg.RoomURL)
	assert.Equal(t, "Bo", cfg.DisplayName, "environment wins")
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, cfg.ICEServers)
	assert.Equal(t, "static", cfg.Device)
	assert.True(t, cfg.CameraEnabled)
	assert.False(t, cfg.MicrophoneEnabled)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "whereby.com", cfg.BaseDomain)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv(envConfigPath, "")
	t.Setenv("ROOMCTL_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{defaultSTUNServer}, cfg.ICEServers)
	assert.ErrorIs(t, cfg.Validate(), ErrRoomURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrNotFound)
}
