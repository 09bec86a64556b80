// Package protocol implements the text wire format exchanged between two
// duelnet peers. Every datagram is a UTF-8 block of newline separated
// "key: value" lines whose first line is always "message_type: <KIND>".
// Nested mappings and sequences travel as compact JSON strings.
package protocol

// Message kinds.
const (
	KindHandshakeRequest   = "HANDSHAKE_REQUEST"
	KindHandshakeResponse  = "HANDSHAKE_RESPONSE"
	KindBattleSetup        = "BATTLE_SETUP"
	KindAttackAnnounce     = "ATTACK_ANNOUNCE"
	KindDefenseAnnounce    = "DEFENSE_ANNOUNCE"
	KindCalculationReport  = "CALCULATION_REPORT"
	KindCalculationConfirm = "CALCULATION_CONFIRM"
	KindGameOver           = "GAME_OVER"
	KindChatMessage        = "CHAT_MESSAGE"
	KindAck                = "ACK"
	KindBroadcastAnnounce  = "BROADCAST_ANNOUNCE"
)

// Well-known payload keys.
const (
	KeyMessageType    = "message_type"
	KeySequenceNumber = "sequence_number"
	KeyPort           = "port"

	// HANDSHAKE_RESPONSE
	KeySeed = "seed"

	// ATTACK_ANNOUNCE
	KeyMoveName       = "move_name"
	KeyBasePower      = "base_power"
	KeyDamageCategory = "damage_category"
	KeyMoveType       = "move_type"

	// DEFENSE_ANNOUNCE
	KeyHP     = "hp"
	KeyStatus = "status"

	// CALCULATION_REPORT
	KeyAttacker            = "attacker"
	KeyMoveUsed            = "move_used"
	KeyRemainingHealth     = "remaining_health"
	KeyDamageDealt         = "damage_dealt"
	KeyDefenderHPRemaining = "defender_hp_remaining"
	KeyStatusMessage       = "status_message"
	KeyBoostedStat         = "boosted_stat"
	KeyBoostedValue        = "boosted_value"

	// GAME_OVER
	KeyWinner = "winner"

	// CHAT_MESSAGE
	KeySender      = "sender"
	KeyContentType = "type"
	KeyContent     = "content"
)

// Chat content types.
const (
	ChatText    = "text"
	ChatSticker = "sticker"
)

// MaxDatagramSize is the largest encoded message a single UDP datagram may carry.
const MaxDatagramSize = 65535

// Message is a decoded application message.
type Message struct {
	Kind    string
	Payload Payload
}

// IsBattleKind reports whether kind belongs to the turn resolution cycle
// (or terminates it).
func IsBattleKind(kind string) bool {
	switch kind {
	case KindAttackAnnounce, KindDefenseAnnounce, KindCalculationReport,
		KindCalculationConfirm, KindGameOver:
		return true
	}
	return false
}
