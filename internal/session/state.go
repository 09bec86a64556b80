package session

import (
	"errors"
	"time"
)

// Phase is the lifecycle stage of a session.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseSetup
	PhaseBattle
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "LOBBY"
	case PhaseSetup:
		return "SETUP"
	case PhaseBattle:
		return "BATTLE"
	case PhaseTerminal:
		return "TERMINAL"
	}
	return "UNKNOWN"
}

// Owner is the side allowed to act during BATTLE.
type Owner int

const (
	OwnerNone Owner = iota
	OwnerSelf
	OwnerPeer
)

func (o Owner) String() string {
	switch o {
	case OwnerSelf:
		return "SELF"
	case OwnerPeer:
		return "PEER"
	}
	return "NONE"
}

// Role is how this process entered the battle.
type Role string

const (
	RoleHost Role = "host"
	RoleJoin Role = "join"
)

// Finish reasons.
const (
	ReasonFainted  = "fainted"
	ReasonForfeit  = "forfeit"
	ReasonGameOver = "game_over"
)

var (
	// ErrNotYourTurn is returned when acting out of turn.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrGameOver is returned once the session is terminal.
	ErrGameOver = errors.New("game over")

	// ErrWrongPhase is returned when an operation is not valid in the
	// current phase.
	ErrWrongPhase = errors.New("operation not valid in current phase")

	// ErrNoBoostLeft is returned for a boost action whose allowance is spent.
	ErrNoBoostLeft = errors.New("no boosts left for that stat")
)

// ResolveTurnOrder decides who acts first: the faster side, or on a speed
// tie the side with the greater nonce. Equal nonces give the first turn to
// the peer.
func ResolveTurnOrder(localSpeed int, localNonce int64, peerSpeed int, peerNonce int64) Owner {
	switch {
	case localSpeed > peerSpeed:
		return OwnerSelf
	case peerSpeed > localSpeed:
		return OwnerPeer
	case localNonce > peerNonce:
		return OwnerSelf
	}
	return OwnerPeer
}

// ChatMessage is a received chat line or sticker.
type ChatMessage struct {
	Sender  string
	Type    string
	Content string
	At      time.Time
}

// Outcome describes how a session ended.
type Outcome struct {
	Won    bool   `json:"won"`
	Winner string `json:"winner"`
	Reason string `json:"reason"`
	Turns  int    `json:"turns"`
}

// TurnResult describes one completed action cycle.
type TurnResult struct {
	Turn          int
	Initiator     bool
	Attacker      string
	Move          string
	Damage        int
	DefenderHP    int
	StatusMessage string
	BoostedStat   string
	BoostedValue  int
	GameOver      bool
}

// CombatantStatus is the public view of one combatant.
type CombatantStatus struct {
	Name  string `json:"name"`
	Types string `json:"types"`
	HP    int    `json:"hp"`
	MaxHP int    `json:"max_hp"`
}

// Status is a point-in-time view of the session.
type Status struct {
	BattleID string           `json:"battle_id"`
	Role     Role             `json:"role"`
	Phase    string           `json:"phase"`
	Owner    string           `json:"owner"`
	Peer     string           `json:"peer,omitempty"`
	Turn     int              `json:"turn"`
	Local    *CombatantStatus `json:"local,omitempty"`
	Opponent *CombatantStatus `json:"opponent,omitempty"`
	Outcome  *Outcome         `json:"outcome,omitempty"`
}
