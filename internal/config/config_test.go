package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), cfg.Path())
	assert.FileExists(t, cfg.Path())
	assert.Equal(t, DefaultGamePort, cfg.GetNetwork().GamePort)
	assert.Equal(t, DefaultDiscoveryPort, cfg.GetNetwork().DiscoveryPort)
	assert.True(t, cfg.IsFirstRun())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"player":{"name":"Misty"},"network":{"game_port":9000}}`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "Misty", cfg.GetPlayer().Name)
	assert.Equal(t, 9000, cfg.GetNetwork().GamePort)
	assert.Equal(t, 500, cfg.GetNetwork().RetryDelayMS, "missing fields keep their defaults")
	assert.False(t, cfg.IsFirstRun())

	// The re-save fills in the missing fields on disk.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Contains(t, onDisk, "mqtt")
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Player.Name = "Ash"
	result := Validate(cfg)
	assert.True(t, result.IsValid(), "%v", result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateCatchesErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port clash", func(c *Config) { c.Network.DiscoveryPort = c.Network.GamePort }, "network.discovery_port"},
		{"bad port", func(c *Config) { c.Network.GamePort = 70000 }, "network.game_port"},
		{"bad bind", func(c *Config) { c.Network.BindAddress = "localhost" }, "network.bind_address"},
		{"ipv6 broadcast", func(c *Config) { c.Network.BroadcastAddress = "ff02::1" }, "network.broadcast_address"},
		{"zero retry delay", func(c *Config) { c.Network.RetryDelayMS = 0 }, "network.retry_delay_ms"},
		{"negative retries", func(c *Config) { c.Network.MaxRetries = -1 }, "network.max_retries"},
		{"tiny queue", func(c *Config) { c.Network.QueueSize = 1 }, "network.queue_size"},
		{"multi-line name", func(c *Config) { c.Player.Name = "Ash\nKetchum" }, "player.name"},
		{"storage without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker_url"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Player.Name = "Ash"
			tt.mutate(cfg)

			result := Validate(cfg)
			require.False(t, result.IsValid())

			var fields []string
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.MaxRetries = 0
	cfg.Network.GamePort = 888

	result := Validate(cfg)
	assert.True(t, result.IsValid())

	var fields []string
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.ElementsMatch(t, []string{"network.max_retries", "network.game_port", "player.name"}, fields)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DUELNET_NAME":         "Brock",
		"DUELNET_GAME_PORT":    "9100",
		"DUELNET_API_ENABLED":  "true",
		"DUELNET_MQTT_PORT":    "not-a-number",
		"DUELNET_LOG_LEVEL":    "debug",
		"DUELNET_UNUSED_THING": "x",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	applied := cfg.ApplyEnv(lookup)

	assert.ElementsMatch(t, []string{"DUELNET_NAME", "DUELNET_GAME_PORT", "DUELNET_API_ENABLED", "DUELNET_LOG_LEVEL"}, applied)
	assert.Equal(t, "Brock", cfg.GetPlayer().Name)
	assert.Equal(t, 9100, cfg.GetNetwork().GamePort)
	assert.True(t, cfg.GetAPI().Enabled)
	assert.Equal(t, 1883, cfg.GetMQTT().Port)
	assert.Equal(t, "debug", cfg.GetLogging().Level)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DUELNET_TEST_ONLY_VAR=pallet\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("DUELNET_TEST_ONLY_VAR") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "pallet", os.Getenv("DUELNET_TEST_ONLY_VAR"))

	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
}

func TestSetupWizard(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	input := strings.Join([]string{
		"",        // player name: accept default
		"Pikachu", // favourite
		"9000",    // game port
		"",        // discovery port
		"no",      // history
		"yes",     // api
		"",        // mqtt
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, RunSetupWizard(cfg, strings.NewReader(input), &out, "gary-laptop"))

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, PlayerConfig{Name: "gary-laptop", Pokemon: "Pikachu"}, reloaded.GetPlayer())
	assert.Equal(t, 9000, reloaded.GetNetwork().GamePort)
	assert.False(t, reloaded.GetStorage().Enabled)
	assert.True(t, reloaded.GetAPI().Enabled)
	assert.Contains(t, out.String(), "Configuration saved")
}

func TestSetupWizardGivesUpOnInvalidInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), DefaultConfigFile)

	// Same port for game and discovery, then decline to retry.
	input := "Ash\n\n8890\n8890\n\n\n\nno\n"
	err := RunSetupWizard(cfg, strings.NewReader(input), &bytes.Buffer{}, "")
	assert.Error(t, err)
	assert.NoFileExists(t, cfg.path)
}
