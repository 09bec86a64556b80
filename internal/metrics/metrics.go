// Package metrics exposes Prometheus instrumentation for the duelnet link
// layer and battle session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every duelnet metric.
const Namespace = "duelnet"

// Link counts traffic through one reliable channel. All methods accept a nil
// receiver so the channel can run uninstrumented.
type Link struct {
	sent          *prometheus.CounterVec
	received      *prometheus.CounterVec
	retransmitted prometheus.Counter
	abandoned     prometheus.Counter
	acked         prometheus.Counter
	malformed     prometheus.Counter
	oversized     prometheus.Counter
	pending       prometheus.Gauge
}

// Battle counts session level outcomes.
type Battle struct {
	turns       prometheus.Counter
	damage      prometheus.Histogram
	chats       prometheus.Counter
	battlesDone *prometheus.CounterVec
}

// Registry bundles a dedicated Prometheus registry with the duelnet metric sets.
type Registry struct {
	Registry *prometheus.Registry
	Link     *Link
	Battle   *Battle
}

// New creates a registry with Go runtime collectors plus the duelnet metrics.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &Registry{
		Registry: reg,
		Link:     NewLink(reg),
		Battle:   NewBattle(reg),
	}
}

// NewLink registers link metrics on reg.
func NewLink(reg prometheus.Registerer) *Link {
	factory := promauto.With(reg)
	return &Link{
		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "link",
			Name:      "sent_total",
			Help:      "Reliable messages sent, by kind (first transmission only).",
		}, []string{"kind"}),
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "link",
			Name:      "received_total",
			Help:      "Decoded datagrams received, by kind, duplicates included.",
		}, []string{"kind"}),
		retransmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "link",
			Name:      "retransmitted_total",
			Help:      "Retransmissions performed by the retry sweep.",
		}),
		abandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "link",
			Name:      "abandoned_total",
			Help:      "Reliable sends dropped after exhausting their retry budget.",
		}),
		acked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "link",
			Name:      "acked_total",
			Help:      "Pending sends cleared by an acknowledgement.",
		}),
		malformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "link",
			Name:      "malformed_total",
			Help:      "Datagrams dropped because they could not be decoded.",
		}),
		oversized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "link",
			Name:      "oversized_total",
			Help:      "Sends refused because the encoded message exceeded the datagram limit.",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "link",
			Name:      "pending",
			Help:      "Reliable sends waiting for an acknowledgement.",
		}),
	}
}

// NewBattle registers session metrics on reg.
func NewBattle(reg prometheus.Registerer) *Battle {
	factory := promauto.With(reg)
	return &Battle{
		turns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "battle",
			Name:      "turns_total",
			Help:      "Completed action resolution cycles.",
		}),
		damage: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "battle",
			Name:      "damage",
			Help:      "Damage dealt per turn.",
			Buckets:   []float64{0, 5, 10, 20, 40, 80, 160},
		}),
		chats: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "battle",
			Name:      "chat_messages_total",
			Help:      "Chat messages and stickers received.",
		}),
		battlesDone: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "battle",
			Name:      "finished_total",
			Help:      "Finished battles by outcome.",
		}, []string{"outcome"}),
	}
}

func (l *Link) Sent(kind string) {
	if l != nil {
		l.sent.WithLabelValues(kind).Inc()
	}
}

func (l *Link) Received(kind string) {
	if l != nil {
		l.received.WithLabelValues(kind).Inc()
	}
}

func (l *Link) Retransmitted() {
	if l != nil {
		l.retransmitted.Inc()
	}
}

func (l *Link) Abandoned() {
	if l != nil {
		l.abandoned.Inc()
	}
}

func (l *Link) Acked() {
	if l != nil {
		l.acked.Inc()
	}
}

func (l *Link) Malformed() {
	if l != nil {
		l.malformed.Inc()
	}
}

func (l *Link) Oversized() {
	if l != nil {
		l.oversized.Inc()
	}
}

// SetPending records the current size of the pending-send table.
func (l *Link) SetPending(n int) {
	if l != nil {
		l.pending.Set(float64(n))
	}
}

// Turn records one resolved action cycle.
func (b *Battle) Turn(damage int) {
	if b != nil {
		b.turns.Inc()
		b.damage.Observe(float64(damage))
	}
}

func (b *Battle) Chat() {
	if b != nil {
		b.chats.Inc()
	}
}

// Finished records a battle outcome ("won", "lost", "forfeit").
func (b *Battle) Finished(outcome string) {
	if b != nil {
		b.battlesDone.WithLabelValues(outcome).Inc()
	}
}
