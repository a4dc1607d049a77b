package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, "help", cfg.Engine.HelpToken)
	assert.Equal(t, "stop", cfg.Engine.StopToken)
	assert.Equal(t, "done", cfg.Engine.DoneToken)
	assert.Equal(t, 3, cfg.Engine.CooldownSeconds)
	assert.False(t, cfg.Channels.Telegram.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"engine": {"cooldown_seconds": 10, "admins": ["42", 1337]},
		"channels": {"telegram": {"enabled": true, "token": "tok", "allow_from": [99]}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Engine.CooldownSeconds)
	assert.Equal(t, FlexibleStringSlice{"42", "1337"}, cfg.Engine.Admins)
	assert.True(t, cfg.Channels.Telegram.Enabled)
	assert.Equal(t, "tok", cfg.Channels.Telegram.Token)
	assert.Equal(t, FlexibleStringSlice{"99"}, cfg.Channels.Telegram.AllowFrom)
	// Untouched sections keep their defaults.
	assert.Equal(t, "done", cfg.Engine.DoneToken)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"engine": {"stop_token": "abort"}}`), 0o600))

	t.Setenv("CARAVEL_ENGINE_STOP_TOKEN", "cancel")
	t.Setenv("CARAVEL_CHANNELS_DISCORD_TOKEN", "env-tok")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "cancel", cfg.Engine.StopToken)
	assert.Equal(t, "env-tok", cfg.Channels.Discord.Token)
}

func TestFlexibleStringSliceMixedTypes(t *testing.T) {
	var f FlexibleStringSlice
	require.NoError(t, json.Unmarshal([]byte(`["a", 7, true]`), &f))
	assert.Equal(t, FlexibleStringSlice{"a", "7", "true"}, f)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Engine.CooldownSeconds = 42

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Engine.CooldownSeconds)
}
