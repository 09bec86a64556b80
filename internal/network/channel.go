// Package network implements the duelnet transport: a reliable, acknowledged
// message channel on top of a single UDP socket, and LAN discovery through
// periodic broadcast announcements on a separate port.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pokelink/duelnet/internal/events"
	"github.com/pokelink/duelnet/internal/metrics"
	"github.com/pokelink/duelnet/internal/protocol"
)

// Link layer defaults.
const (
	DefaultGamePort      = 8888
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultMaxRetries    = 3
	DefaultSweepInterval = 100 * time.Millisecond
)

var (
	// ErrMessageTooLarge is returned by SendReliable when the encoded message
	// does not fit in one datagram. Nothing is queued for retry.
	ErrMessageTooLarge = errors.New("message exceeds datagram size limit")

	// ErrClosed is returned when sending on a closed channel.
	ErrClosed = errors.New("channel closed")
)

// ChannelOptions configures a Channel.
type ChannelOptions struct {
	BindAddress   string
	Port          int
	RetryDelay    time.Duration
	MaxRetries    int
	SweepInterval time.Duration

	Metrics *metrics.Link
	Bus     *events.EventBus
}

// DefaultChannelOptions returns the stock link tuning.
func DefaultChannelOptions() ChannelOptions {
	return ChannelOptions{
		BindAddress:   "0.0.0.0",
		Port:          DefaultGamePort,
		RetryDelay:    DefaultRetryDelay,
		MaxRetries:    DefaultMaxRetries,
		SweepInterval: DefaultSweepInterval,
	}
}

// PendingSend is a reliable message waiting for its acknowledgement.
type PendingSend struct {
	Seq     uint64
	Data    []byte
	SentAt  time.Time
	Retries int
	Kind    string
}

// Delivery is one inbound application message handed to the Handler.
type Delivery struct {
	Kind    string
	Payload protocol.Payload
	From    *net.UDPAddr
}

// Handler receives every decoded non-ACK message, duplicates included. It
// runs on the receive goroutine and must not block for long.
type Handler func(Delivery)

// Channel is a reliable message channel to a single peer over UDP.
//
// Every SendReliable is stamped with a monotonically increasing sequence
// number and kept in a pending table until the peer acknowledges it. A sweep
// goroutine retransmits the identical bytes every RetryDelay, up to
// MaxRetries times, after which the message is silently abandoned. Inbound
// messages are acknowledged on every arrival and passed to the handler
// at least once.
type Channel struct {
	opts   ChannelOptions
	conn   *net.UDPConn
	port   int
	logger zerolog.Logger

	// mu guards peer, nextSeq and pending. It is never held across a socket call.
	mu      sync.Mutex
	peer    *net.UDPAddr
	nextSeq uint64
	pending map[uint64]*PendingSend

	handler   Handler
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewChannel binds the channel socket. When the requested port is taken it
// falls back to an ephemeral one; Port reports what was actually bound.
func NewChannel(opts ChannelOptions) (*Channel, error) {
	defaults := DefaultChannelOptions()
	if opts.BindAddress == "" {
		opts.BindAddress = defaults.BindAddress
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = defaults.MaxRetries
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaults.SweepInterval
	}

	logger := log.With().Str("component", "channel").Logger()

	conn, err := listenUDP(opts.BindAddress, opts.Port)
	if err != nil && opts.Port != 0 {
		logger.Warn().Err(err).Int("port", opts.Port).Msg("requested port unavailable, falling back to an ephemeral port")
		conn, err = listenUDP(opts.BindAddress, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind channel socket: %w", err)
	}

	c := &Channel{
		opts:    opts,
		conn:    conn,
		port:    conn.LocalAddr().(*net.UDPAddr).Port,
		pending: make(map[uint64]*PendingSend),
		done:    make(chan struct{}),
	}
	c.logger = logger.With().Int("port", c.port).Logger()
	return c, nil
}

func listenUDP(host string, port int) (*net.UDPConn, error) {
	lc := ReuseAddrListenConfig()
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// Start registers handler and launches the receive loop and the retry sweep.
// Cancelling ctx closes the channel.
func (c *Channel) Start(ctx context.Context, handler Handler) {
	c.handler = handler

	c.wg.Add(2)
	go c.receiveLoop()
	go c.retryLoop()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	c.logger.Info().Msg("channel listening")
}

// Port returns the bound local port.
func (c *Channel) Port() int {
	return c.port
}

// SetPeer sets the single destination for reliable sends, replacing any
// previous peer.
func (c *Channel) SetPeer(addr *net.UDPAddr) {
	c.mu.Lock()
	c.peer = addr
	c.mu.Unlock()

	c.logger.Debug().Str("peer", addr.String()).Msg("peer set")
}

// Peer returns the current peer, or nil.
func (c *Channel) Peer() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// PendingCount returns the number of unacknowledged sends.
func (c *Channel) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// SendReliable stamps payload with the next sequence number, records it for
// retransmission and sends it once to the peer. The caller's payload is not
// modified. Messages larger than one datagram are refused with
// ErrMessageTooLarge and never retried.
func (c *Channel) SendReliable(kind string, payload protocol.Payload) (uint64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}

	msg := payload.Clone()

	c.mu.Lock()
	seq := c.nextSeq
	c.nextSeq++
	msg[protocol.KeySequenceNumber] = seq

	data, err := protocol.Encode(kind, msg)
	if err != nil {
		c.mu.Unlock()
		return 0, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	if len(data) > protocol.MaxDatagramSize {
		c.mu.Unlock()
		c.logger.Error().
			Str("kind", kind).
			Int("size", len(data)).
			Int("max", protocol.MaxDatagramSize).
			Msg("message too large, dropped")
		c.opts.Metrics.Oversized()
		c.opts.Bus.Emit(context.Background(), events.Event{
			Type:    events.EventOversizedDropped,
			Source:  "channel",
			Payload: events.OversizedPayload{Kind: kind, Size: len(data)},
		})
		return 0, fmt.Errorf("%s is %d bytes: %w", kind, len(data), ErrMessageTooLarge)
	}

	c.pending[seq] = &PendingSend{
		Seq:    seq,
		Data:   data,
		SentAt: time.Now(),
		Kind:   kind,
	}
	peer := c.peer
	pending := len(c.pending)
	c.mu.Unlock()

	c.opts.Metrics.Sent(kind)
	c.opts.Metrics.SetPending(pending)
	c.writeTo(data, peer)

	c.logger.Debug().Str("kind", kind).Uint64("seq", seq).Msg("sent")
	return seq, nil
}

// writeTo transmits data to addr. Without a peer the datagram is not sent;
// the pending entry stays and the sweep will try again.
func (c *Channel) writeTo(data []byte, addr *net.UDPAddr) {
	if addr == nil {
		return
	}
	if _, err := c.conn.WriteToUDP(data, addr); err != nil && !c.closed.Load() {
		c.logger.Warn().Err(err).Str("remote", addr.String()).Msg("udp write failed")
	}
}

func (c *Channel) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		if c.closed.Load() {
			return
		}

		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn().Err(err).Msg("udp read error")
			continue
		}

		c.handleDatagram(buf[:n], from)
	}
}

// handleDatagram processes one inbound datagram: drop if malformed, clear a
// pending entry on ACK, otherwise acknowledge and dispatch.
func (c *Channel) handleDatagram(data []byte, from *net.UDPAddr) {
	kind, payload, err := protocol.Decode(data)
	if err != nil {
		c.opts.Metrics.Malformed()
		c.logger.Debug().Str("remote", from.String()).Int("size", len(data)).Msg("dropped malformed datagram")
		return
	}

	if kind == protocol.KindAck {
		c.acknowledge(payload)
		return
	}

	c.opts.Metrics.Received(kind)

	if seq, ok := payload.Int(protocol.KeySequenceNumber); ok {
		c.sendAck(seq, from)
	}

	c.logger.Trace().Str("kind", kind).Str("remote", from.String()).Msg("received")

	if c.handler != nil {
		c.handler(Delivery{Kind: kind, Payload: payload, From: from})
	}
}

// acknowledge removes the pending entry named by an ACK. Unknown or already
// removed sequence numbers are ignored.
func (c *Channel) acknowledge(payload protocol.Payload) {
	seq, ok := payload.Int(protocol.KeySequenceNumber)
	if !ok || seq < 0 {
		return
	}

	c.mu.Lock()
	_, found := c.pending[uint64(seq)]
	if found {
		delete(c.pending, uint64(seq))
	}
	pending := len(c.pending)
	c.mu.Unlock()

	if found {
		c.opts.Metrics.Acked()
		c.opts.Metrics.SetPending(pending)
		c.logger.Debug().Int64("seq", seq).Msg("ack received")
	}
}

func (c *Channel) sendAck(seq int64, to *net.UDPAddr) {
	data, err := protocol.Encode(protocol.KindAck, protocol.AckPayload(seq))
	if err != nil {
		return
	}
	c.writeTo(data, to)
}

func (c *Channel) retryLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

// sweep retransmits pending sends older than RetryDelay and abandons the ones
// that already used their retry budget.
func (c *Channel) sweep(now time.Time) {
	var resend, abandoned []PendingSend

	c.mu.Lock()
	peer := c.peer
	for seq, p := range c.pending {
		if now.Sub(p.SentAt) <= c.opts.RetryDelay {
			continue
		}
		if p.Retries < c.opts.MaxRetries {
			p.Retries++
			p.SentAt = now
			resend = append(resend, *p)
			continue
		}
		delete(c.pending, seq)
		abandoned = append(abandoned, *p)
	}
	pending := len(c.pending)
	c.mu.Unlock()

	for _, p := range resend {
		c.logger.Warn().Str("kind", p.Kind).Uint64("seq", p.Seq).Int("retry", p.Retries).Msg("retransmitting")
		c.opts.Metrics.Retransmitted()
		c.writeTo(p.Data, peer)
	}

	for _, p := range abandoned {
		c.logger.Warn().Str("kind", p.Kind).Uint64("seq", p.Seq).Msg("delivery failed, giving up")
		c.opts.Metrics.Abandoned()
		c.opts.Bus.Emit(context.Background(), events.Event{
			Type:   events.EventDeliveryAbandoned,
			Source: "channel",
			Payload: events.DeliveryAbandonedPayload{
				Sequence: p.Seq,
				Kind:     p.Kind,
				Retries:  p.Retries,
			},
		})
	}

	if len(resend) > 0 || len(abandoned) > 0 {
		c.opts.Metrics.SetPending(pending)
	}
}

// Close stops both workers and releases the socket. It does not wait for the
// workers; use Wait for that. Safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.conn.Close()
		c.logger.Info().Msg("channel closed")
	})
	return err
}

// Wait blocks until the receive loop and the retry sweep have exited.
func (c *Channel) Wait() {
	c.wg.Wait()
}
