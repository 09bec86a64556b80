package network

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pokelink/duelnet/internal/events"
	"github.com/pokelink/duelnet/internal/protocol"
)

// Discovery defaults.
const (
	DefaultDiscoveryPort     = 8890
	DefaultBroadcastAddress  = "255.255.255.255"
	DefaultBroadcastInterval = 2 * time.Second
	DefaultScanTimeout       = 5 * time.Second

	broadcastErrorBackoff = 5 * time.Second
	scanReadSlice         = time.Second
	announceBufferSize    = 1024
)

// DiscoveryOptions configures LAN discovery.
type DiscoveryOptions struct {
	Port             int
	BroadcastAddress string
	Interval         time.Duration
	Bus              *events.EventBus
}

// DiscoveredHosts maps a host IP to the game port it advertised.
type DiscoveredHosts map[string]int

// Discovery advertises a hosted game on the LAN and lets joiners find one.
// Hosts broadcast BROADCAST_ANNOUNCE datagrams to the discovery port; a
// scanner binds that port and records the first announcement per source IP.
type Discovery struct {
	opts   DiscoveryOptions
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewDiscovery creates a Discovery, filling unset options with defaults.
func NewDiscovery(opts DiscoveryOptions) *Discovery {
	if opts.Port == 0 {
		opts.Port = DefaultDiscoveryPort
	}
	if opts.BroadcastAddress == "" {
		opts.BroadcastAddress = DefaultBroadcastAddress
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultBroadcastInterval
	}
	return &Discovery{
		opts:   opts,
		logger: log.With().Str("component", "discovery").Int("port", opts.Port).Logger(),
	}
}

// StartBroadcast announces gamePort every interval until StopBroadcast is
// called or ctx is cancelled. A second call while broadcasting is a no-op.
func (d *Discovery) StartBroadcast(ctx context.Context, gamePort int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return nil
	}

	msg, err := protocol.Encode(protocol.KindBroadcastAnnounce, protocol.AnnouncePayload(gamePort))
	if err != nil {
		return err
	}

	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(d.opts.BroadcastAddress, strconv.Itoa(d.opts.Port)))
	if err != nil {
		return err
	}

	// Go enables SO_BROADCAST on UDP sockets it creates.
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.doneCh = make(chan struct{})

	go d.broadcastLoop(loopCtx, conn, target, msg, d.doneCh)

	d.logger.Info().
		Int("game_port", gamePort).
		Str("target", target.String()).
		Msg("broadcasting game availability")
	return nil
}

func (d *Discovery) broadcastLoop(ctx context.Context, conn *net.UDPConn, target *net.UDPAddr, msg []byte, done chan struct{}) {
	defer close(done)
	defer conn.Close()

	for {
		wait := d.opts.Interval
		if _, err := conn.WriteToUDP(msg, target); err != nil {
			d.logger.Warn().Err(err).Msg("broadcast failed")
			wait = broadcastErrorBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// StopBroadcast stops the announcement loop and waits for it to exit.
func (d *Discovery) StopBroadcast() {
	d.mu.Lock()
	cancel, done := d.cancel, d.doneCh
	d.cancel, d.doneCh = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.logger.Info().Msg("broadcast stopped")
}

// Broadcasting reports whether the announcement loop is running.
func (d *Discovery) Broadcasting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

// Scan listens on the discovery port for up to timeout and returns every
// host seen. The port is bound without address reuse, so if it is already
// taken locally the scan returns an empty result immediately.
func (d *Discovery) Scan(ctx context.Context, timeout time.Duration) DiscoveredHosts {
	found := make(DiscoveredHosts)

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: d.opts.Port})
	if err != nil {
		d.logger.Warn().Err(err).Msg("discovery port busy, cannot scan")
		return found
	}
	defer conn.Close()

	d.logger.Info().Dur("timeout", timeout).Msg("scanning for games")

	deadline := time.Now().Add(timeout)
	buf := make([]byte, announceBufferSize)

	for {
		if ctx.Err() != nil {
			break
		}
		now := time.Now()
		if !now.Before(deadline) {
			break
		}

		slice := now.Add(scanReadSlice)
		if slice.After(deadline) {
			slice = deadline
		}
		conn.SetReadDeadline(slice)

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}

		kind, payload, err := protocol.Decode(buf[:n])
		if err != nil || kind != protocol.KindBroadcastAnnounce {
			continue
		}

		ip := from.IP.String()
		if _, known := found[ip]; known {
			continue
		}

		port := DefaultGamePort
		if p, ok := payload.Int(protocol.KeyPort); ok {
			port = int(p)
		}
		found[ip] = port

		d.logger.Info().Str("ip", ip).Int("game_port", port).Msg("found game")
		d.opts.Bus.Emit(ctx, events.Event{
			Type:    events.EventHostDiscovered,
			Source:  "discovery",
			Payload: events.HostDiscoveredPayload{IP: ip, Port: port},
		})
	}

	return found
}
