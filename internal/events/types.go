// Package events defines event types and payloads for the duelnet event system.
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Link events
	EventDeliveryAbandoned EventType = "delivery_abandoned"
	EventOversizedDropped  EventType = "oversized_dropped"

	// Discovery events
	EventHostDiscovered EventType = "host_discovered"

	// Session events
	EventPeerConnected EventType = "peer_connected"
	EventBattleStarted EventType = "battle_started"
	EventTurnResolved  EventType = "turn_resolved"
	EventChatReceived  EventType = "chat_received"
	EventGameOver      EventType = "game_over"

	// System events
	EventShutdown EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// DeliveryAbandonedPayload describes a reliable send that ran out of retries.
type DeliveryAbandonedPayload struct {
	Sequence uint64 `json:"sequence"`
	Kind     string `json:"kind"`
	Retries  int    `json:"retries"`
}

// OversizedPayload describes a send refused for exceeding the datagram limit.
type OversizedPayload struct {
	Kind string `json:"kind"`
	Size int    `json:"size"`
}

// HostDiscoveredPayload is emitted the first time a scan sees a host.
type HostDiscoveredPayload struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// PeerConnectedPayload is emitted when the handshake completes.
type PeerConnectedPayload struct {
	Peer string `json:"peer"`
	Role string `json:"role"`
}

// BattleStartedPayload is emitted once both snapshots are exchanged and the
// first mover is known.
type BattleStartedPayload struct {
	BattleID   string `json:"battle_id"`
	Role       string `json:"role"`
	Peer       string `json:"peer"`
	Local      string `json:"local"`
	Opponent   string `json:"opponent"`
	FirstMover string `json:"first_mover"`
}

// TurnResolvedPayload is emitted after every completed action cycle, on both
// sides.
type TurnResolvedPayload struct {
	BattleID      string `json:"battle_id"`
	Turn          int    `json:"turn"`
	Attacker      string `json:"attacker"`
	Move          string `json:"move"`
	Damage        int    `json:"damage"`
	DefenderHP    int    `json:"defender_hp"`
	StatusMessage string `json:"status_message"`
	Initiator     bool   `json:"initiator"`
}

// ChatPayload carries a received chat line or sticker.
type ChatPayload struct {
	Sender      string `json:"sender"`
	ContentType string `json:"type"`
	Content     string `json:"content"`
}

// GameOverPayload is emitted when a session reaches the terminal phase.
type GameOverPayload struct {
	BattleID string `json:"battle_id"`
	Winner   string `json:"winner"`
	Won      bool   `json:"won"`
	Reason   string `json:"reason"`
	Turns    int    `json:"turns"`
}
