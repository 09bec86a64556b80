package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DUELNET_"

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables already set are left alone, and a missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overlays DUELNET_* variables read through lookup (normally
// os.LookupEnv) onto the configuration. It returns the names it applied.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var applied []string
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
			applied = append(applied, EnvPrefix+key)
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			log.Warn().Str("var", EnvPrefix+key).Str("value", v).Msg("ignoring non-numeric override")
			return
		}
		*dst = n
		applied = append(applied, EnvPrefix+key)
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			log.Warn().Str("var", EnvPrefix+key).Str("value", v).Msg("ignoring non-boolean override")
			return
		}
		*dst = b
		applied = append(applied, EnvPrefix+key)
	}

	str("NAME", &c.Player.Name)
	str("POKEMON", &c.Player.Pokemon)
	str("BIND_ADDRESS", &c.Network.BindAddress)
	num("GAME_PORT", &c.Network.GamePort)
	num("DISCOVERY_PORT", &c.Network.DiscoveryPort)
	str("BROADCAST_ADDRESS", &c.Network.BroadcastAddress)
	str("POKEMON_FILE", &c.Data.PokemonFile)
	str("MOVES_FILE", &c.Data.MovesFile)
	str("STICKER_DIR", &c.Chat.StickerDirectory)
	flag("STORAGE_ENABLED", &c.Storage.Enabled)
	str("DB_PATH", &c.Storage.Path)
	flag("API_ENABLED", &c.API.Enabled)
	num("API_PORT", &c.API.Port)
	flag("MQTT_ENABLED", &c.MQTT.Enabled)
	str("MQTT_BROKER", &c.MQTT.BrokerURL)
	num("MQTT_PORT", &c.MQTT.Port)
	str("MQTT_USERNAME", &c.MQTT.Username)
	str("MQTT_PASSWORD", &c.MQTT.Password)
	str("LOG_LEVEL", &c.Logging.Level)

	return applied
}
