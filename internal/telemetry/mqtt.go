// Package telemetry publishes duelnet battle events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/pokelink/duelnet/internal/config"
	"github.com/pokelink/duelnet/internal/events"
	"github.com/pokelink/duelnet/internal/util"
)

// Topic suffixes, appended to the configured prefix.
const (
	TopicPlayerStatus  = "player/status"
	TopicBattleStarted = "battle/started"
	TopicBattleTurn    = "battle/turn"
	TopicBattleResult  = "battle/result"
	TopicLinkAbandoned = "link/abandoned"
	TopicDiscoveryHost = "discovery/host"
)

const (
	disconnectQuiesceMS = 2000
	defaultPublishQoS   = 1
	statusOnline        = "online"
	statusOffline       = "offline"
)

// publishFunc sends one message; retained messages replace the broker's
// last value for the topic.
type publishFunc func(topic string, retained bool, payload []byte) error

// MQTTHandler forwards bus events to MQTT topics under a common prefix.
type MQTTHandler struct {
	prefix   string
	metadata map[string]interface{}
	client   mqtt.Client
	publish  publishFunc
	logger   zerolog.Logger
}

// NewMQTTHandler builds a handler for the configured broker. The client
// connects in Start.
func NewMQTTHandler(cfg config.MQTTConfig, host util.HostInfo, player string) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	h := newHandler(cfg.TopicPrefix, hostMetadata(host, player), nil)

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("duelnet-%s", host.Hostname)
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	will, err := json.Marshal(h.buildMessage(map[string]string{"status": statusOffline}))
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(h.topic(TopicPlayerStatus), will, defaultPublishQoS, true)

	if cfg.UseTLS {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		h.logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	h.publish = h.clientPublish
	return h, nil
}

func newHandler(prefix string, metadata map[string]interface{}, publish publishFunc) *MQTTHandler {
	return &MQTTHandler{
		prefix:   strings.Trim(prefix, "/"),
		metadata: metadata,
		publish:  publish,
		logger:   util.ComponentLogger("telemetry"),
	}
}

func hostMetadata(host util.HostInfo, player string) map[string]interface{} {
	return map[string]interface{}{
		"player":       player,
		"hostname":     host.Hostname,
		"os":           host.OS,
		"platform":     host.Platform,
		"architecture": host.Architecture,
		"cpus":         host.CPUs,
		"memory_mb":    host.TotalMemory,
	}
}

func buildTLSConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	// mTLS
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Start connects to the broker, forwards bus events until ctx is done and
// then disconnects.
func (h *MQTTHandler) Start(ctx context.Context, bus *events.EventBus) error {
	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.Subscribe(bus)
	h.publishStatus(statusOnline)

	<-ctx.Done()

	h.publishStatus(statusOffline)
	h.client.Disconnect(disconnectQuiesceMS)
	h.logger.Info().Msg("MQTT disconnected")
	return nil
}

// Subscribe registers the handler's event forwarders on bus.
func (h *MQTTHandler) Subscribe(bus *events.EventBus) {
	forward := func(topic string) events.HandlerFunc {
		return func(_ context.Context, e events.Event) error {
			return h.send(topic, false, e.Payload)
		}
	}
	bus.Subscribe(events.EventBattleStarted, "mqtt.battleStarted", forward(TopicBattleStarted))
	bus.Subscribe(events.EventTurnResolved, "mqtt.turnResolved", forward(TopicBattleTurn))
	bus.Subscribe(events.EventGameOver, "mqtt.gameOver", forward(TopicBattleResult))
	bus.Subscribe(events.EventDeliveryAbandoned, "mqtt.deliveryAbandoned", forward(TopicLinkAbandoned))
	bus.Subscribe(events.EventHostDiscovered, "mqtt.hostDiscovered", forward(TopicDiscoveryHost))
}

func (h *MQTTHandler) publishStatus(status string) {
	if err := h.send(TopicPlayerStatus, true, map[string]string{"status": status}); err != nil {
		h.logger.Warn().Err(err).Str("status", status).Msg("failed to publish player status")
	}
}

func (h *MQTTHandler) send(suffix string, retained bool, payload interface{}) error {
	topic := h.topic(suffix)
	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		return fmt.Errorf("failed to marshal MQTT message for %s: %w", topic, err)
	}
	return h.publish(topic, retained, data)
}

func (h *MQTTHandler) clientPublish(topic string, retained bool, payload []byte) error {
	if !h.client.IsConnected() {
		return nil
	}
	token := h.client.Publish(topic, defaultPublishQoS, retained, payload)
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
	return nil
}

func (h *MQTTHandler) topic(suffix string) string {
	if h.prefix == "" {
		return suffix
	}
	return h.prefix + "/" + suffix
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}
