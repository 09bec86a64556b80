// Package config handles configuration loading, validation, and persistence
// for duelnet.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir     = "config"
	DefaultConfigFile    = "config.json"
	DefaultGamePort      = 8888
	DefaultDiscoveryPort = 8890
	DefaultAPIPort       = 8891
)

// Config is the root configuration structure for duelnet.
type Config struct {
	mu   sync.RWMutex
	path string

	Network NetworkConfig `json:"network"`
	Player  PlayerConfig  `json:"player"`
	Data    DataConfig    `json:"data"`
	Chat    ChatConfig    `json:"chat"`
	Storage StorageConfig `json:"storage"`
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Logging LoggingConfig `json:"logging"`
}

// NetworkConfig holds link and discovery settings.
type NetworkConfig struct {
	BindAddress         string `json:"bind_address"`
	GamePort            int    `json:"game_port"`
	DiscoveryPort       int    `json:"discovery_port"`
	BroadcastAddress    string `json:"broadcast_address"`
	BroadcastIntervalMS int    `json:"broadcast_interval_ms"`
	ScanTimeoutSec      int    `json:"scan_timeout_sec"`
	RetryDelayMS        int    `json:"retry_delay_ms"`
	MaxRetries          int    `json:"max_retries"`
	SweepIntervalMS     int    `json:"sweep_interval_ms"`
	QueueSize           int    `json:"queue_size"`
}

func (n NetworkConfig) RetryDelay() time.Duration {
	return time.Duration(n.RetryDelayMS) * time.Millisecond
}

func (n NetworkConfig) SweepInterval() time.Duration {
	return time.Duration(n.SweepIntervalMS) * time.Millisecond
}

func (n NetworkConfig) BroadcastInterval() time.Duration {
	return time.Duration(n.BroadcastIntervalMS) * time.Millisecond
}

func (n NetworkConfig) ScanTimeout() time.Duration {
	return time.Duration(n.ScanTimeoutSec) * time.Second
}

// PlayerConfig identifies the local player.
type PlayerConfig struct {
	Name    string `json:"name"`
	Pokemon string `json:"pokemon"`
}

// DataConfig points at the game data files. Empty paths select the
// built-in starter dex.
type DataConfig struct {
	PokemonFile string `json:"pokemon_file"`
	MovesFile   string `json:"moves_file"`
}

// ChatConfig holds chat and sticker settings.
type ChatConfig struct {
	StickerDirectory string `json:"sticker_directory"`
}

// StorageConfig holds battle history settings.
type StorageConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// APIConfig holds the local status API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Address        string   `json:"address"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level         string `json:"level"`
	Directory     string `json:"directory"`
	RetentionDays int    `json:"retention_days"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			BindAddress:         "0.0.0.0",
			GamePort:            DefaultGamePort,
			DiscoveryPort:       DefaultDiscoveryPort,
			BroadcastAddress:    "255.255.255.255",
			BroadcastIntervalMS: 2000,
			ScanTimeoutSec:      5,
			RetryDelayMS:        500,
			MaxRetries:          3,
			SweepIntervalMS:     100,
			QueueSize:           64,
		},
		Chat: ChatConfig{
			StickerDirectory: "stickers",
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    filepath.Join("data", "duelnet.db"),
		},
		API: APIConfig{
			Enabled:        false,
			Address:        "127.0.0.1",
			Port:           DefaultAPIPort,
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			RateLimitRPS:   20,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Port:        1883,
			TopicPrefix: "duelnet",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Directory:     "logs",
			RetentionDays: 7,
		},
	}
}

// Load reads configuration from configDir, writing the defaults there when
// no file exists yet.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Persist fields added since the file was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

func (c *Config) GetNetwork() NetworkConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Network
}

func (c *Config) GetPlayer() PlayerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Player
}

// SetPlayer updates the player section.
func (c *Config) SetPlayer(p PlayerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Player = p
}

func (c *Config) GetData() DataConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Data
}

func (c *Config) GetChat() ChatConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Chat
}

func (c *Config) GetStorage() StorageConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Storage
}

// GetAPI returns a copy of the API section.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	api := c.API
	api.AllowedOrigins = append([]string(nil), c.API.AllowedOrigins...)
	return api
}

func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// SetLogLevel overrides the configured log level.
func (c *Config) SetLogLevel(level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logging.Level = level
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun reports whether the player has never been set up.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Player.Name == ""
}
