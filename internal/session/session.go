// Package session implements the duelnet battle protocol: the connection
// handshake, the snapshot exchange that decides turn order, and the
// four-message action cycle that keeps both processes in lock-step.
package session

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pokelink/duelnet/internal/battle"
	"github.com/pokelink/duelnet/internal/events"
	"github.com/pokelink/duelnet/internal/metrics"
	"github.com/pokelink/duelnet/internal/network"
	"github.com/pokelink/duelnet/internal/protocol"
)

const (
	DefaultQueueSize  = 64
	DefaultChatBuffer = 32

	defenseStatusReady = "ready"
)

// Transport is the reliable link a session talks over. *network.Channel
// implements it.
type Transport interface {
	SendReliable(kind string, payload protocol.Payload) (uint64, error)
	SetPeer(addr *net.UDPAddr)
	Peer() *net.UDPAddr
}

// Options configures a Session.
type Options struct {
	Role       Role
	QueueSize  int
	ChatBuffer int
	Bus        *events.EventBus
	Metrics    *metrics.Battle
}

// Session is one side of a two-player battle.
//
// HandleDelivery runs on the transport's receive goroutine. Battle messages
// are handed to the foreground through a bounded queue and consumed by
// TakeTurn and AwaitTurn; chat bypasses the queue and is available at any
// time on Chat. A GAME_OVER from the peer ends the session immediately.
type Session struct {
	transport Transport
	opts      Options
	battleID  string
	logger    zerolog.Logger

	mu       sync.Mutex
	phase    Phase
	owner    Owner
	local    *battle.Pokemon
	opponent *battle.Snapshot
	turn     int
	seen     map[int64]struct{}
	held     *protocol.Message
	outcome  *Outcome

	queue    chan protocol.Message
	chat     chan ChatMessage
	setup    chan struct{}
	ready    chan struct{}
	terminal chan struct{}

	setupOnce    sync.Once
	readyOnce    sync.Once
	terminalOnce sync.Once
}

// New creates a session in the LOBBY phase.
func New(transport Transport, opts Options) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ChatBuffer <= 0 {
		opts.ChatBuffer = DefaultChatBuffer
	}

	id := uuid.NewString()
	return &Session{
		transport: transport,
		opts:      opts,
		battleID:  id,
		logger: log.With().
			Str("component", "session").
			Str("role", string(opts.Role)).
			Str("battle_id", id).
			Logger(),
		phase:    PhaseLobby,
		seen:     make(map[int64]struct{}),
		queue:    make(chan protocol.Message, opts.QueueSize),
		chat:     make(chan ChatMessage, opts.ChatBuffer),
		setup:    make(chan struct{}),
		ready:    make(chan struct{}),
		terminal: make(chan struct{}),
	}
}

// BattleID identifies this battle in local history and telemetry.
func (s *Session) BattleID() string {
	return s.battleID
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Owner returns who may act. Only meaningful in BATTLE.
func (s *Session) Owner() Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Local returns a copy of the local combatant, nil before Setup.
func (s *Session) Local() *battle.Pokemon {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return nil
	}
	return s.local.Copy()
}

// Opponent returns a copy of the opponent snapshot, nil until received.
func (s *Session) Opponent() *battle.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opponent == nil {
		return nil
	}
	return s.opponent.Copy()
}

// Chat delivers received chat messages and stickers.
func (s *Session) Chat() <-chan ChatMessage {
	return s.chat
}

// Done is closed when the session reaches TERMINAL.
func (s *Session) Done() <-chan struct{} {
	return s.terminal
}

// Outcome returns how the session ended, once it has.
func (s *Session) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

// HandleDelivery is the transport handler. It must not block. Until a peer
// is bound only HANDSHAKE_REQUEST is accepted; afterwards anything from
// another address is ignored.
func (s *Session) HandleDelivery(d network.Delivery) {
	if !s.fromPeer(d) {
		return
	}

	if seq, ok := d.Payload.Int(protocol.KeySequenceNumber); ok {
		s.mu.Lock()
		_, dup := s.seen[seq]
		s.seen[seq] = struct{}{}
		s.mu.Unlock()
		if dup {
			s.logger.Debug().Str("kind", d.Kind).Int64("seq", seq).Msg("duplicate ignored")
			return
		}
	}

	switch d.Kind {
	case protocol.KindHandshakeRequest:
		s.handleHandshakeRequest(d.From)
	case protocol.KindHandshakeResponse:
		if s.Phase() == PhaseLobby {
			s.enterSetup(d.From)
		}
	case protocol.KindBattleSetup:
		s.handleBattleSetup(d.Payload)
	case protocol.KindChatMessage:
		s.handleChat(d.Payload)
	case protocol.KindGameOver:
		s.enqueue(d)
		winner, _ := d.Payload.String(protocol.KeyWinner)
		s.finish(true, winner, ReasonGameOver)
	default:
		if protocol.IsBattleKind(d.Kind) {
			s.enqueue(d)
			return
		}
		s.logger.Debug().Str("kind", d.Kind).Msg("ignoring unknown message kind")
	}
}

// fromPeer reports whether d should be acted on: it comes from the bound
// peer, or it is the HANDSHAKE_REQUEST that will bind one.
func (s *Session) fromPeer(d network.Delivery) bool {
	if d.From == nil {
		return false
	}
	peer := s.transport.Peer()
	if peer == nil {
		if d.Kind == protocol.KindHandshakeRequest {
			return true
		}
		s.logger.Debug().Str("kind", d.Kind).Str("from", d.From.String()).Msg("no peer yet, message ignored")
		return false
	}
	if sameAddr(peer, d.From) {
		return true
	}
	if d.Kind == protocol.KindHandshakeRequest {
		s.logger.Warn().Str("from", d.From.String()).Msg("rejecting handshake, already paired")
	} else {
		s.logger.Debug().Str("kind", d.Kind).Str("from", d.From.String()).Msg("message from unknown address ignored")
	}
	return false
}

func (s *Session) handleHandshakeRequest(from *net.UDPAddr) {
	if s.Phase() != PhaseLobby {
		return
	}

	s.transport.SetPeer(from)
	if _, err := s.transport.SendReliable(protocol.KindHandshakeResponse, protocol.Payload{
		protocol.KeySeed: rand.Intn(100000),
	}); err != nil {
		s.logger.Error().Err(err).Msg("failed to send handshake response")
	}
	s.enterSetup(from)
}

func (s *Session) enterSetup(peer *net.UDPAddr) {
	s.mu.Lock()
	if s.phase != PhaseLobby {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseSetup
	s.mu.Unlock()

	s.setupOnce.Do(func() { close(s.setup) })
	s.logger.Info().Str("peer", peer.String()).Msg("peer connected")
	s.opts.Bus.Emit(context.Background(), events.Event{
		Type:    events.EventPeerConnected,
		Source:  "session",
		Payload: events.PeerConnectedPayload{Peer: peer.String(), Role: string(s.opts.Role)},
	})
}

func (s *Session) handleBattleSetup(payload protocol.Payload) {
	snap, err := battle.SnapshotFromPayload(payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("dropping battle setup")
		return
	}

	s.mu.Lock()
	if s.opponent != nil {
		s.mu.Unlock()
		return
	}
	s.opponent = snap
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info().Str("opponent", snap.Name).Int("hp", snap.HP).Msg("opponent snapshot received")
}

func (s *Session) handleChat(payload protocol.Payload) {
	msg := ChatMessage{Sender: "Peer", Type: protocol.ChatText, At: time.Now()}
	if v, ok := payload.String(protocol.KeySender); ok {
		msg.Sender = v
	}
	if v, ok := payload.String(protocol.KeyContentType); ok {
		msg.Type = v
	}
	msg.Content, _ = payload.String(protocol.KeyContent)

	s.opts.Metrics.Chat()
	s.opts.Bus.Emit(context.Background(), events.Event{
		Type:   events.EventChatReceived,
		Source: "session",
		Payload: events.ChatPayload{
			Sender:      msg.Sender,
			ContentType: msg.Type,
			Content:     msg.Content,
		},
	})

	select {
	case s.chat <- msg:
	default:
		s.logger.Warn().Str("sender", msg.Sender).Msg("chat buffer full, message dropped")
	}
}

func (s *Session) enqueue(d network.Delivery) {
	select {
	case s.queue <- protocol.Message{Kind: d.Kind, Payload: d.Payload}:
	default:
		s.logger.Error().Str("kind", d.Kind).Msg("battle queue full, message dropped")
	}
}

// Connect pairs with a host: it sets the peer, sends HANDSHAKE_REQUEST and
// waits for the response.
func (s *Session) Connect(ctx context.Context, host *net.UDPAddr) error {
	if s.Phase() != PhaseLobby {
		return ErrWrongPhase
	}

	s.transport.SetPeer(host)
	if _, err := s.transport.SendReliable(protocol.KindHandshakeRequest, protocol.Payload{}); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}

	s.logger.Info().Str("host", host.String()).Msg("handshake sent")
	return s.WaitForPeer(ctx)
}

// WaitForPeer blocks until a handshake completes.
func (s *Session) WaitForPeer(ctx context.Context) error {
	select {
	case <-s.setup:
		return nil
	case <-s.terminal:
		return ErrGameOver
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Setup sends the local combatant, waits for the opponent's and resolves the
// turn order. It returns who acts first.
func (s *Session) Setup(ctx context.Context, local *battle.Pokemon) (Owner, error) {
	if err := s.WaitForPeer(ctx); err != nil {
		return OwnerNone, err
	}

	s.mu.Lock()
	if s.phase != PhaseSetup || s.local != nil {
		s.mu.Unlock()
		return OwnerNone, ErrWrongPhase
	}
	s.local = local
	snapshot := local.Snapshot()
	s.mu.Unlock()

	if _, err := s.transport.SendReliable(protocol.KindBattleSetup, snapshot.Payload()); err != nil {
		return OwnerNone, fmt.Errorf("failed to send battle setup: %w", err)
	}
	s.logger.Info().Str("local", local.Name).Int64("nonce", local.Nonce).Msg("battle setup sent, waiting for opponent")

	select {
	case <-s.ready:
	case <-s.terminal:
		return OwnerNone, ErrGameOver
	case <-ctx.Done():
		return OwnerNone, ctx.Err()
	}

	s.mu.Lock()
	opp := s.opponent
	first := ResolveTurnOrder(local.Stats.Speed, local.Nonce, opp.Stats.Speed, opp.Nonce)
	s.owner = first
	s.phase = PhaseBattle
	s.mu.Unlock()

	firstName := opp.Name
	if first == OwnerSelf {
		firstName = local.Name
	}
	peer := ""
	if addr := s.transport.Peer(); addr != nil {
		peer = addr.String()
	}

	s.logger.Info().
		Str("local", local.Name).
		Str("opponent", opp.Name).
		Str("first", first.String()).
		Msg("battle started")
	s.opts.Bus.Emit(ctx, events.Event{
		Type:   events.EventBattleStarted,
		Source: "session",
		Payload: events.BattleStartedPayload{
			BattleID:   s.battleID,
			Role:       string(s.opts.Role),
			Peer:       peer,
			Local:      local.Name,
			Opponent:   opp.Name,
			FirstMover: firstName,
		},
	})
	return first, nil
}

// checkTurn verifies the session is in BATTLE with want as owner.
func (s *Session) checkTurn(want Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.phase == PhaseTerminal:
		return ErrGameOver
	case s.phase != PhaseBattle:
		return ErrWrongPhase
	case s.owner != want:
		return ErrNotYourTurn
	}
	return nil
}

// TakeTurn runs the action cycle as initiator: announce the action, learn
// the defender's HP, compute and report the outcome, and wait for the
// confirmation.
func (s *Session) TakeTurn(ctx context.Context, action battle.Action) (*TurnResult, error) {
	if err := s.checkTurn(OwnerSelf); err != nil {
		return nil, err
	}

	s.mu.Lock()
	local := s.local
	if action.IsBoost() && local.Boosts[action.Boost] <= 0 {
		s.mu.Unlock()
		return nil, ErrNoBoostLeft
	}
	s.mu.Unlock()

	move := action.Move
	if _, err := s.transport.SendReliable(protocol.KindAttackAnnounce, protocol.Payload{
		protocol.KeyMoveName:       move.Name,
		protocol.KeyBasePower:      move.Power,
		protocol.KeyDamageCategory: move.Category,
		protocol.KeyMoveType:       move.Type,
	}); err != nil {
		return nil, fmt.Errorf("failed to announce attack: %w", err)
	}

	defense, err := s.wait(ctx, protocol.KindDefenseAnnounce)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if hp, ok := defense.Payload.Int(protocol.KeyHP); ok {
		s.opponent.HP = int(hp)
	}

	result := &TurnResult{Initiator: true, Attacker: local.Name, Move: move.Name}
	if action.IsBoost() {
		value, _ := local.ApplyBoost(action.Boost)
		result.BoostedStat = action.Boost
		result.BoostedValue = value
		result.StatusMessage = battle.BoostMessage(local.Name, action.Boost, value)
	} else {
		dmg, eff := battle.CalculateDamage(local, s.opponent, move)
		result.Damage = dmg
		result.StatusMessage = battle.StatusMessage(local.Name, move.Name, eff)
	}
	result.DefenderHP = s.opponent.HP - result.Damage
	ownHP := local.HP
	s.mu.Unlock()

	report := protocol.Payload{
		protocol.KeyAttacker:            local.Name,
		protocol.KeyMoveUsed:            move.Name,
		protocol.KeyRemainingHealth:     ownHP,
		protocol.KeyDamageDealt:         result.Damage,
		protocol.KeyDefenderHPRemaining: result.DefenderHP,
		protocol.KeyStatusMessage:       result.StatusMessage,
	}
	if result.BoostedStat != "" {
		report[protocol.KeyBoostedStat] = result.BoostedStat
		report[protocol.KeyBoostedValue] = result.BoostedValue
	}
	if _, err := s.transport.SendReliable(protocol.KindCalculationReport, report); err != nil {
		return nil, fmt.Errorf("failed to send calculation report: %w", err)
	}

	if _, err := s.wait(ctx, protocol.KindCalculationConfirm); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.opponent.HP = result.DefenderHP
	s.turn++
	result.Turn = s.turn
	fainted := s.opponent.Fainted()
	if !fainted {
		s.owner = OwnerPeer
	}
	s.mu.Unlock()

	s.resolved(result)
	if fainted {
		s.finish(true, local.Name, ReasonFainted)
		result.GameOver = true
	}
	return result, nil
}

// AwaitTurn runs the action cycle as responder: report HP on the attack
// announcement, apply the reported damage and confirm. When the local
// combatant faints it sends GAME_OVER and the session ends.
func (s *Session) AwaitTurn(ctx context.Context) (*TurnResult, error) {
	if err := s.checkTurn(OwnerPeer); err != nil {
		return nil, err
	}

	attack, err := s.wait(ctx, protocol.KindAttackAnnounce)
	if err != nil {
		return nil, err
	}
	moveName, _ := attack.Payload.String(protocol.KeyMoveName)
	s.logger.Debug().Str("move", moveName).Msg("opponent declared attack")

	s.mu.Lock()
	hp := s.local.HP
	s.mu.Unlock()

	if _, err := s.transport.SendReliable(protocol.KindDefenseAnnounce, protocol.Payload{
		protocol.KeyHP:     hp,
		protocol.KeyStatus: defenseStatusReady,
	}); err != nil {
		return nil, fmt.Errorf("failed to announce defense: %w", err)
	}

	report, err := s.wait(ctx, protocol.KindCalculationReport)
	if err != nil {
		return nil, err
	}

	damage, _ := report.Payload.Int(protocol.KeyDamageDealt)
	result := &TurnResult{Move: moveName, Damage: int(damage)}
	result.Attacker, _ = report.Payload.String(protocol.KeyAttacker)
	result.StatusMessage, _ = report.Payload.String(protocol.KeyStatusMessage)
	if used, ok := report.Payload.String(protocol.KeyMoveUsed); ok {
		result.Move = used
	}

	s.mu.Lock()
	s.local.HP -= int(damage)
	result.DefenderHP = s.local.HP
	if v, ok := report.Payload.Int(protocol.KeyRemainingHealth); ok {
		s.opponent.HP = int(v)
	}
	if stat, ok := report.Payload.String(protocol.KeyBoostedStat); ok && stat != "" {
		if v, ok := report.Payload.Int(protocol.KeyBoostedValue); ok {
			s.opponent.Stats.Set(stat, int(v))
			if s.opponent.Boosts[stat] > 0 {
				s.opponent.Boosts[stat]--
			}
			result.BoostedStat = stat
			result.BoostedValue = int(v)
		}
	}
	s.mu.Unlock()

	if _, err := s.transport.SendReliable(protocol.KindCalculationConfirm, protocol.Payload{}); err != nil {
		return nil, fmt.Errorf("failed to confirm calculation: %w", err)
	}

	s.mu.Lock()
	s.turn++
	result.Turn = s.turn
	fainted := s.local.Fainted()
	winner := s.opponent.Name
	if !fainted {
		s.owner = OwnerSelf
	}
	s.mu.Unlock()

	s.resolved(result)
	if fainted {
		if _, err := s.transport.SendReliable(protocol.KindGameOver, protocol.Payload{
			protocol.KeyWinner: winner,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("failed to send game over")
		}
		s.finish(false, winner, ReasonFainted)
		result.GameOver = true
	}
	return result, nil
}

// Forfeit concedes the battle.
func (s *Session) Forfeit() error {
	s.mu.Lock()
	if s.phase == PhaseTerminal {
		s.mu.Unlock()
		return ErrGameOver
	}
	winner := ""
	if s.opponent != nil {
		winner = s.opponent.Name
	}
	s.mu.Unlock()

	_, err := s.transport.SendReliable(protocol.KindGameOver, protocol.Payload{protocol.KeyWinner: winner})
	s.finish(false, winner, ReasonForfeit)
	return err
}

// SendChat sends a text chat line. Allowed in every phase.
func (s *Session) SendChat(sender, text string) error {
	_, err := s.transport.SendReliable(protocol.KindChatMessage, protocol.Payload{
		protocol.KeySender:      sender,
		protocol.KeyContentType: protocol.ChatText,
		protocol.KeyContent:     text,
	})
	return err
}

// SendSticker sends a base64 encoded image.
func (s *Session) SendSticker(sender, encoded string) error {
	_, err := s.transport.SendReliable(protocol.KindChatMessage, protocol.Payload{
		protocol.KeySender:      sender,
		protocol.KeyContentType: protocol.ChatSticker,
		protocol.KeyContent:     encoded,
	})
	return err
}

// wait blocks until a battle message of the wanted kind arrives. An
// ATTACK_ANNOUNCE that overtakes the message being waited for is held for
// the next wait; other battle kinds are skipped. Once the session is
// terminal, anything already queued of the wanted kind is still returned;
// otherwise ErrGameOver.
func (s *Session) wait(ctx context.Context, want string) (protocol.Message, error) {
	if msg, ok := s.takeHeld(want); ok {
		return msg, nil
	}
	for {
		select {
		case msg := <-s.queue:
			if msg.Kind == want {
				return msg, nil
			}
			s.hold(msg, want)
		case <-s.terminal:
			for {
				select {
				case msg := <-s.queue:
					if msg.Kind == want {
						return msg, nil
					}
				default:
					return protocol.Message{}, ErrGameOver
				}
			}
		case <-ctx.Done():
			return protocol.Message{}, ctx.Err()
		}
	}
}

// hold keeps an early ATTACK_ANNOUNCE, the opening of the peer's next turn,
// in a single slot.
func (s *Session) hold(msg protocol.Message, want string) {
	switch msg.Kind {
	case protocol.KindAttackAnnounce:
		s.mu.Lock()
		s.held = &msg
		s.mu.Unlock()
		s.logger.Debug().Str("want", want).Msg("attack announce arrived early, holding it for the next turn")
	case protocol.KindGameOver:
	default:
		s.logger.Debug().Str("kind", msg.Kind).Str("want", want).Msg("skipping unexpected battle message")
	}
}

func (s *Session) takeHeld(want string) (protocol.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == nil || s.held.Kind != want {
		return protocol.Message{}, false
	}
	msg := *s.held
	s.held = nil
	return msg, true
}

func (s *Session) resolved(r *TurnResult) {
	s.opts.Metrics.Turn(r.Damage)
	s.logger.Info().
		Int("turn", r.Turn).
		Str("attacker", r.Attacker).
		Str("move", r.Move).
		Int("damage", r.Damage).
		Int("defender_hp", r.DefenderHP).
		Msg(r.StatusMessage)

	s.opts.Bus.Emit(context.Background(), events.Event{
		Type:   events.EventTurnResolved,
		Source: "session",
		Payload: events.TurnResolvedPayload{
			BattleID:      s.battleID,
			Turn:          r.Turn,
			Attacker:      r.Attacker,
			Move:          r.Move,
			Damage:        r.Damage,
			DefenderHP:    r.DefenderHP,
			StatusMessage: r.StatusMessage,
			Initiator:     r.Initiator,
		},
	})
}

// finish moves the session to TERMINAL. Only the first call has an effect.
func (s *Session) finish(won bool, winner, reason string) {
	s.mu.Lock()
	if s.phase == PhaseTerminal {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseTerminal
	s.owner = OwnerNone
	s.outcome = &Outcome{Won: won, Winner: winner, Reason: reason, Turns: s.turn}
	outcome := *s.outcome
	s.mu.Unlock()

	s.terminalOnce.Do(func() { close(s.terminal) })

	label := "lost"
	switch {
	case won:
		label = "won"
	case reason == ReasonForfeit:
		label = "forfeit"
	}
	s.opts.Metrics.Finished(label)

	s.logger.Info().
		Bool("won", won).
		Str("winner", winner).
		Str("reason", reason).
		Int("turns", outcome.Turns).
		Msg("game over")
	s.opts.Bus.Emit(context.Background(), events.Event{
		Type:   events.EventGameOver,
		Source: "session",
		Payload: events.GameOverPayload{
			BattleID: s.battleID,
			Winner:   winner,
			Won:      won,
			Reason:   reason,
			Turns:    outcome.Turns,
		},
	})
}

// Status returns a snapshot of the session for display.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		BattleID: s.battleID,
		Role:     s.opts.Role,
		Phase:    s.phase.String(),
		Owner:    s.owner.String(),
		Turn:     s.turn,
	}
	if peer := s.transport.Peer(); peer != nil {
		st.Peer = peer.String()
	}
	if s.local != nil {
		st.Local = &CombatantStatus{
			Name:  s.local.Name,
			Types: battle.TypeLabel(s.local.Type1, s.local.Type2),
			HP:    s.local.HP,
			MaxHP: s.local.MaxHP,
		}
	}
	if s.opponent != nil {
		st.Opponent = &CombatantStatus{
			Name:  s.opponent.Name,
			Types: battle.TypeLabel(s.opponent.Type1, s.opponent.Type2),
			HP:    s.opponent.HP,
			MaxHP: s.opponent.MaxHP,
		}
	}
	if s.outcome != nil {
		o := *s.outcome
		st.Outcome = &o
	}
	return st
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
