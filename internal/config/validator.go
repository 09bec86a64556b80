package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration for errors and questionable settings.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}

	validateNetwork(&cfg.Network, result)
	validatePlayer(&cfg.Player, result)
	validateServices(cfg, result)

	return result
}

func validateNetwork(n *NetworkConfig, result *ValidationResult) {
	validatePort(n.GamePort, "network.game_port", result)
	validatePort(n.DiscoveryPort, "network.discovery_port", result)

	if n.GamePort == n.DiscoveryPort {
		result.AddError("network.discovery_port", "discovery port must differ from the game port")
	}

	if n.BindAddress != "" && net.ParseIP(n.BindAddress) == nil {
		result.AddError("network.bind_address", fmt.Sprintf("not an IP address: %s", n.BindAddress))
	}
	if ip := net.ParseIP(n.BroadcastAddress); ip == nil || ip.To4() == nil {
		result.AddError("network.broadcast_address", fmt.Sprintf("not an IPv4 address: %s", n.BroadcastAddress))
	}

	if n.RetryDelayMS < 1 {
		result.AddError("network.retry_delay_ms", "retry delay must be positive")
	}
	if n.SweepIntervalMS < 1 {
		result.AddError("network.sweep_interval_ms", "sweep interval must be positive")
	} else if n.SweepIntervalMS > n.RetryDelayMS {
		result.AddWarning("network.sweep_interval_ms", "sweep interval longer than the retry delay delays retransmissions")
	}
	if n.MaxRetries < 0 {
		result.AddError("network.max_retries", "max retries cannot be negative")
	}
	if n.MaxRetries == 0 {
		result.AddWarning("network.max_retries", "retransmission is disabled, a single lost datagram stalls the battle")
	}

	if n.BroadcastIntervalMS < 100 {
		result.AddError("network.broadcast_interval_ms", "broadcast interval must be at least 100ms")
	}
	if n.ScanTimeoutSec < 1 {
		result.AddError("network.scan_timeout_sec", "scan timeout must be at least 1 second")
	}
	if n.QueueSize < 4 {
		result.AddError("network.queue_size", "queue size must be at least 4")
	}
}

func validatePlayer(p *PlayerConfig, result *ValidationResult) {
	if strings.TrimSpace(p.Name) == "" {
		result.AddWarning("player.name", "no player name set, the host name will be used")
	}
	if strings.ContainsAny(p.Name, "\r\n") {
		result.AddError("player.name", "player name cannot contain line breaks")
	}
}

func validateServices(cfg *Config, result *ValidationResult) {
	if cfg.Storage.Enabled && strings.TrimSpace(cfg.Storage.Path) == "" {
		result.AddError("storage.path", "database path is required when storage is enabled")
	}

	if cfg.API.Enabled {
		validatePort(cfg.API.Port, "api.port", result)
		if cfg.API.Port == cfg.Network.GamePort || cfg.API.Port == cfg.Network.DiscoveryPort {
			result.AddWarning("api.port", "api port matches a UDP port, make sure that is intended")
		}
		if cfg.API.RateLimitRPS < 1 {
			result.AddWarning("api.rate_limit_rps", "rate limit is disabled (0 RPS)")
		}
	}

	if cfg.MQTT.Enabled {
		if strings.TrimSpace(cfg.MQTT.BrokerURL) == "" {
			result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
			result.AddError("mqtt.port", "invalid MQTT port")
		}
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		result.AddError("logging.level", fmt.Sprintf("unknown log level: %s", cfg.Logging.Level))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsUDPPortAvailable checks if a UDP port can be bound.
func IsUDPPortAvailable(port int) bool {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
