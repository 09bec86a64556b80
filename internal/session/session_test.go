package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokelink/duelnet/internal/battle"
	"github.com/pokelink/duelnet/internal/network"
	"github.com/pokelink/duelnet/internal/protocol"
)

// memLink is an in-memory Transport. Messages go through the real codec and
// are delivered in order to the other end's handler.
type memLink struct {
	self   *net.UDPAddr
	remote *memLink
	inbox  chan network.Delivery
	done   chan struct{}

	mu   sync.Mutex
	seq  uint64
	peer *net.UDPAddr
	drop map[string]bool
	sent []string
}

func newMemLink(port int) *memLink {
	return &memLink{
		self:  &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
		inbox: make(chan network.Delivery, 128),
		done:  make(chan struct{}),
		drop:  map[string]bool{},
	}
}

func (l *memLink) SendReliable(kind string, payload protocol.Payload) (uint64, error) {
	l.mu.Lock()
	seq := l.seq
	l.seq++
	l.sent = append(l.sent, kind)
	drop := l.drop[kind]
	l.mu.Unlock()

	msg := payload.Clone()
	msg[protocol.KeySequenceNumber] = seq
	data, err := protocol.Encode(kind, msg)
	if err != nil {
		return 0, err
	}
	k, p, err := protocol.Decode(data)
	if err != nil {
		return 0, err
	}
	if !drop {
		select {
		case l.remote.inbox <- network.Delivery{Kind: k, Payload: p, From: l.self}:
		case <-l.remote.done:
		}
	}
	return seq, nil
}

func (l *memLink) SetPeer(addr *net.UDPAddr) {
	l.mu.Lock()
	l.peer = addr
	l.mu.Unlock()
}

func (l *memLink) Peer() *net.UDPAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peer
}

func (l *memLink) dropKind(kind string) {
	l.mu.Lock()
	l.drop[kind] = true
	l.mu.Unlock()
}

func (l *memLink) sentKinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sent...)
}

func (l *memLink) pump(handler func(network.Delivery)) {
	go func() {
		for {
			select {
			case d := <-l.inbox:
				handler(d)
			case <-l.done:
				return
			}
		}
	}()
}

type duel struct {
	host, join         *Session
	hostLink, joinLink *memLink
}

func newDuel(t *testing.T) *duel {
	t.Helper()
	hl, jl := newMemLink(8888), newMemLink(40000)
	hl.remote, jl.remote = jl, hl

	d := &duel{
		host:     New(hl, Options{Role: RoleHost}),
		join:     New(jl, Options{Role: RoleJoin}),
		hostLink: hl,
		joinLink: jl,
	}
	hl.pump(d.host.HandleDelivery)
	jl.pump(d.join.HandleDelivery)
	t.Cleanup(func() {
		close(hl.done)
		close(jl.done)
	})
	return d
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// connectAndSetup pairs the two sessions and exchanges combatants.
func (d *duel) connectAndSetup(t *testing.T, ctx context.Context, host, join *battle.Pokemon) (Owner, Owner) {
	t.Helper()
	require.NoError(t, d.join.Connect(ctx, d.hostLink.self))
	require.NoError(t, d.host.WaitForPeer(ctx))

	type res struct {
		owner Owner
		err   error
	}
	hostDone := make(chan res, 1)
	go func() {
		o, err := d.host.Setup(ctx, host)
		hostDone <- res{o, err}
	}()

	joinOwner, err := d.join.Setup(ctx, join)
	require.NoError(t, err)
	hr := <-hostDone
	require.NoError(t, hr.err)
	return hr.owner, joinOwner
}

func attacker() *battle.Pokemon {
	return battle.NewPokemon("Charmander", "fire", "", 39,
		battle.Stats{Attack: 52, Defense: 43, SpAttack: 60, SpDefense: 50, Speed: 65},
		map[string]float64{"water": 2},
		[]battle.Move{{Name: "Ember", Power: 40, Category: battle.CategorySpecial, Type: "fire"}},
	)
}

func defender(hp int) *battle.Pokemon {
	return battle.NewPokemon("Squirtle", "water", "", hp,
		battle.Stats{Attack: 48, Defense: 65, SpAttack: 50, SpDefense: 100, Speed: 43},
		map[string]float64{"fire": 0.5},
		[]battle.Move{{Name: "Water Gun", Power: 40, Category: battle.CategorySpecial, Type: "water"}},
	)
}

func ember() battle.Action {
	return battle.MoveAction(battle.Move{Name: "Ember", Power: 40, Category: battle.CategorySpecial, Type: "fire"})
}

type turnOutcome struct {
	result *TurnResult
	err    error
}

func awaitAsync(ctx context.Context, s *Session) <-chan turnOutcome {
	ch := make(chan turnOutcome, 1)
	go func() {
		r, err := s.AwaitTurn(ctx)
		ch <- turnOutcome{r, err}
	}()
	return ch
}

func TestResolveTurnOrder(t *testing.T) {
	tests := []struct {
		name                  string
		localSpeed, peerSpeed int
		localNonce, peerNonce int64
		want                  Owner
	}{
		{"faster local", 10, 7, 0, 0, OwnerSelf},
		{"faster peer", 7, 10, 999, 0, OwnerPeer},
		{"tie greater local nonce", 10, 10, 500, 300, OwnerSelf},
		{"tie greater peer nonce", 10, 10, 300, 500, OwnerPeer},
		{"tie equal nonce", 10, 10, 42, 42, OwnerPeer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveTurnOrder(tt.localSpeed, tt.localNonce, tt.peerSpeed, tt.peerNonce))
		})
	}
}

func TestSetupResolvesOrderOnBothSides(t *testing.T) {
	d := newDuel(t)
	ctx := testContext(t)

	a, b := attacker(), defender(44)
	a.Stats.Speed, b.Stats.Speed = 10, 10
	a.Nonce, b.Nonce = 300, 500

	hostOwner, joinOwner := d.connectAndSetup(t, ctx, a, b)
	assert.Equal(t, OwnerPeer, hostOwner)
	assert.Equal(t, OwnerSelf, joinOwner)
	assert.Equal(t, PhaseBattle, d.host.Phase())
	assert.Equal(t, PhaseBattle, d.join.Phase())
	assert.Equal(t, "Squirtle", d.host.Opponent().Name)
	assert.Equal(t, int64(500), d.host.Opponent().Nonce)
}

func TestEmberScenario(t *testing.T) {
	d := newDuel(t)
	ctx := testContext(t)

	hostOwner, _ := d.connectAndSetup(t, ctx, attacker(), defender(35))
	require.Equal(t, OwnerSelf, hostOwner)

	pending := awaitAsync(ctx, d.join)
	res, err := d.host.TakeTurn(ctx, ember())
	require.NoError(t, err)
	got := <-pending
	require.NoError(t, got.err)

	assert.Equal(t, 12, res.Damage)
	assert.Equal(t, 23, res.DefenderHP)
	assert.Equal(t, "Charmander used Ember! It was not very effective...", res.StatusMessage)
	assert.False(t, res.GameOver)

	assert.Equal(t, 12, got.result.Damage)
	assert.Equal(t, 23, got.result.DefenderHP)
	assert.Equal(t, "Ember", got.result.Move)
	assert.Equal(t, "Charmander", got.result.Attacker)

	assert.Equal(t, 23, d.join.Local().HP)
	assert.Equal(t, 23, d.host.Opponent().HP)
	assert.Equal(t, OwnerPeer, d.host.Owner())
	assert.Equal(t, OwnerSelf, d.join.Owner())
	assert.Equal(t, 1, d.host.Status().Turn)
	assert.Equal(t, 1, d.join.Status().Turn)

	// Out of turn actions are refused without touching the wire.
	_, err = d.host.TakeTurn(ctx, ember())
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = d.join.AwaitTurn(ctx)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	assert.Equal(t, []string{
		protocol.KindHandshakeResponse,
		protocol.KindBattleSetup,
		protocol.KindAttackAnnounce,
		protocol.KindCalculationReport,
	}, d.hostLink.sentKinds())
}

func TestFaintEndsBothSidesWithoutGameOver(t *testing.T) {
	d := newDuel(t)
	ctx := testContext(t)

	d.connectAndSetup(t, ctx, attacker(), defender(10))
	d.joinLink.dropKind(protocol.KindGameOver)

	pending := awaitAsync(ctx, d.join)
	res, err := d.host.TakeTurn(ctx, ember())
	require.NoError(t, err)
	got := <-pending
	require.NoError(t, got.err)

	assert.True(t, res.GameOver)
	assert.True(t, got.result.GameOver)
	assert.Equal(t, -2, d.join.Local().HP)

	assert.Equal(t, PhaseTerminal, d.host.Phase())
	assert.Equal(t, PhaseTerminal, d.join.Phase())

	hostOutcome, ok := d.host.Outcome()
	require.True(t, ok)
	assert.True(t, hostOutcome.Won)
	assert.Equal(t, ReasonFainted, hostOutcome.Reason)

	joinOutcome, ok := d.join.Outcome()
	require.True(t, ok)
	assert.False(t, joinOutcome.Won)
	assert.Equal(t, "Charmander", joinOutcome.Winner)

	_, err = d.host.TakeTurn(ctx, ember())
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestGameOverInterruptsWait(t *testing.T) {
	d := newDuel(t)
	ctx := testContext(t)

	d.connectAndSetup(t, ctx, attacker(), defender(35))

	pending := awaitAsync(ctx, d.join)
	require.NoError(t, d.host.Forfeit())

	got := <-pending
	assert.ErrorIs(t, got.err, ErrGameOver)

	select {
	case <-d.join.Done():
	case <-time.After(time.Second):
		t.Fatal("join session did not terminate")
	}

	outcome, _ := d.join.Outcome()
	assert.True(t, outcome.Won)
	hostOutcome, _ := d.host.Outcome()
	assert.False(t, hostOutcome.Won)
	assert.Equal(t, ReasonForfeit, hostOutcome.Reason)
	assert.ErrorIs(t, d.host.Forfeit(), ErrGameOver)
}

func TestBoostTurnUpdatesOpponentSnapshot(t *testing.T) {
	d := newDuel(t)
	ctx := testContext(t)

	d.connectAndSetup(t, ctx, attacker(), defender(35))

	pending := awaitAsync(ctx, d.join)
	res, err := d.host.TakeTurn(ctx, battle.BoostAction(battle.StatSpAttack))
	require.NoError(t, err)
	got := <-pending
	require.NoError(t, got.err)

	assert.Zero(t, res.Damage)
	assert.Equal(t, 90, res.BoostedValue)
	assert.Equal(t, 90, d.host.Local().Stats.SpAttack)

	assert.Equal(t, battle.StatSpAttack, got.result.BoostedStat)
	assert.Equal(t, 35, d.join.Local().HP)
	opp := d.join.Opponent()
	assert.Equal(t, 90, opp.Stats.SpAttack)
	assert.Equal(t, 1, opp.Boosts[battle.StatSpAttack])
}

func TestBoostRefusedWhenSpent(t *testing.T) {
	d := newDuel(t)
	ctx := testContext(t)

	a := attacker()
	a.Boosts[battle.StatSpDefense] = 0
	d.connectAndSetup(t, ctx, a, defender(35))

	_, err := d.host.TakeTurn(ctx, battle.BoostAction(battle.StatSpDefense))
	assert.ErrorIs(t, err, ErrNoBoostLeft)
	assert.Equal(t, OwnerSelf, d.host.Owner())
}

func TestChatFlowsDuringBattleWait(t *testing.T) {
	d := newDuel(t)
	ctx := testContext(t)

	d.connectAndSetup(t, ctx, attacker(), defender(35))
	pending := awaitAsync(ctx, d.join)

	require.NoError(t, d.host.SendChat("Ash", "good luck"))
	require.NoError(t, d.host.SendSticker("Ash", "aGVsbG8="))

	for _, want := range []ChatMessage{
		{Sender: "Ash", Type: protocol.ChatText, Content: "good luck"},
		{Sender: "Ash", Type: protocol.ChatSticker, Content: "aGVsbG8="},
	} {
		select {
		case msg := <-d.join.Chat():
			assert.Equal(t, want.Sender, msg.Sender)
			assert.Equal(t, want.Type, msg.Type)
			assert.Equal(t, want.Content, msg.Content)
		case <-time.After(time.Second):
			t.Fatal("chat not delivered")
		}
	}

	// The pending turn is unaffected by chat.
	_, err := d.host.TakeTurn(ctx, ember())
	require.NoError(t, err)
	require.NoError(t, (<-pending).err)
}

func TestHandshakeRequestHandling(t *testing.T) {
	link := newMemLink(8888)
	link.remote = newMemLink(40000)
	s := New(link, Options{Role: RoleHost})

	joiner := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 40000}
	s.HandleDelivery(network.Delivery{
		Kind:    protocol.KindHandshakeRequest,
		Payload: protocol.Payload{protocol.KeySequenceNumber: int64(0)},
		From:    joiner,
	})

	assert.Equal(t, PhaseSetup, s.Phase())
	assert.Equal(t, joiner, link.Peer())
	assert.Equal(t, []string{protocol.KindHandshakeResponse}, link.sentKinds())

	// A duplicate copy and a third party are both ignored.
	s.HandleDelivery(network.Delivery{
		Kind:    protocol.KindHandshakeRequest,
		Payload: protocol.Payload{protocol.KeySequenceNumber: int64(0)},
		From:    joiner,
	})
	intruder := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 3), Port: 40000}
	s.HandleDelivery(network.Delivery{
		Kind:    protocol.KindHandshakeRequest,
		Payload: protocol.Payload{protocol.KeySequenceNumber: int64(1)},
		From:    intruder,
	})

	assert.Equal(t, joiner, link.Peer())
	assert.Len(t, link.sentKinds(), 1)
}

func TestDuplicateBattleMessageActedOnOnce(t *testing.T) {
	link := newMemLink(8888)
	link.remote = newMemLink(40000)
	s := New(link, Options{Role: RoleHost})
	link.SetPeer(link.remote.self)

	chat := network.Delivery{
		Kind: protocol.KindChatMessage,
		Payload: protocol.Payload{
			protocol.KeySequenceNumber: int64(4),
			protocol.KeyContent:        "hi",
		},
		From: link.remote.self,
	}
	s.HandleDelivery(chat)
	s.HandleDelivery(chat)

	assert.Len(t, s.Chat(), 1)
	msg := <-s.Chat()
	assert.Equal(t, "Peer", msg.Sender)
	assert.Equal(t, protocol.ChatText, msg.Type)
}

func TestMessagesBeforePairingIgnored(t *testing.T) {
	link := newMemLink(8888)
	link.remote = newMemLink(40000)
	s := New(link, Options{Role: RoleHost})

	stranger := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 5000}
	s.HandleDelivery(network.Delivery{
		Kind:    protocol.KindChatMessage,
		Payload: protocol.Payload{protocol.KeySequenceNumber: int64(0), protocol.KeyContent: "psst"},
		From:    stranger,
	})
	s.HandleDelivery(network.Delivery{
		Kind:    protocol.KindGameOver,
		Payload: protocol.Payload{protocol.KeySequenceNumber: int64(1)},
		From:    stranger,
	})

	assert.Empty(t, s.Chat())
	assert.Equal(t, PhaseLobby, s.Phase())
}

func TestStrangerCannotDisturbBattle(t *testing.T) {
	d := newDuel(t)
	ctx := testContext(t)

	d.connectAndSetup(t, ctx, attacker(), defender(35))

	// Every sequence number the host could use next is taken by a stranger.
	stranger := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 5000}
	for seq := int64(0); seq < 16; seq++ {
		d.join.HandleDelivery(network.Delivery{
			Kind:    protocol.KindChatMessage,
			Payload: protocol.Payload{protocol.KeySequenceNumber: seq, protocol.KeyContent: "spam"},
			From:    stranger,
		})
	}
	d.join.HandleDelivery(network.Delivery{
		Kind:    protocol.KindGameOver,
		Payload: protocol.Payload{protocol.KeySequenceNumber: int64(99), protocol.KeyWinner: "Mallory"},
		From:    stranger,
	})
	assert.Equal(t, PhaseBattle, d.join.Phase())
	assert.Empty(t, d.join.Chat())

	pending := awaitAsync(ctx, d.join)
	res, err := d.host.TakeTurn(ctx, ember())
	require.NoError(t, err)
	got := <-pending
	require.NoError(t, got.err)

	assert.Equal(t, res.DefenderHP, got.result.DefenderHP)
	assert.Equal(t, OwnerSelf, d.join.Owner())
}

func TestEarlyAttackAnnounceHeldForNextTurn(t *testing.T) {
	d := newDuel(t)
	ctx := testContext(t)

	d.connectAndSetup(t, ctx, attacker(), defender(100))

	// The joiner's confirmation is lost, so the host is still waiting for it
	// when the joiner opens its own turn.
	d.joinLink.dropKind(protocol.KindCalculationConfirm)

	pending := awaitAsync(ctx, d.join)
	hostTurn := make(chan turnOutcome, 1)
	go func() {
		r, err := d.host.TakeTurn(ctx, ember())
		hostTurn <- turnOutcome{r, err}
	}()
	require.NoError(t, (<-pending).err)
	require.Equal(t, OwnerSelf, d.join.Owner())

	joinTurn := make(chan turnOutcome, 1)
	go func() {
		r, err := d.join.TakeTurn(ctx, battle.MoveAction(defender(100).Moves[0]))
		joinTurn <- turnOutcome{r, err}
	}()

	require.Eventually(t, func() bool {
		d.host.mu.Lock()
		defer d.host.mu.Unlock()
		return d.host.held != nil
	}, time.Second, 10*time.Millisecond)

	// The retransmitted confirmation finally arrives.
	d.host.HandleDelivery(network.Delivery{
		Kind:    protocol.KindCalculationConfirm,
		Payload: protocol.Payload{protocol.KeySequenceNumber: int64(1000)},
		From:    d.joinLink.self,
	})
	hostRes := <-hostTurn
	require.NoError(t, hostRes.err)
	require.Equal(t, OwnerPeer, d.host.Owner())

	got, err := d.host.AwaitTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Water Gun", got.Move)

	joinRes := <-joinTurn
	require.NoError(t, joinRes.err)
	assert.Equal(t, got.DefenderHP, joinRes.result.DefenderHP)
}

func TestAccessorsReturnCopies(t *testing.T) {
	d := newDuel(t)
	ctx := testContext(t)

	d.connectAndSetup(t, ctx, attacker(), defender(35))

	local := d.host.Local()
	local.HP = 1
	local.Boosts[battle.StatSpAttack] = 0
	opp := d.host.Opponent()
	opp.Boosts[battle.StatSpDefense] = 0
	opp.Resistances["fire"] = 4

	assert.Equal(t, 39, d.host.Local().HP)
	assert.Equal(t, battle.DefaultBoosts, d.host.Local().Boosts[battle.StatSpAttack])
	assert.Equal(t, battle.DefaultBoosts, d.host.Opponent().Boosts[battle.StatSpDefense])
	assert.Equal(t, 0.5, d.host.Opponent().Resistances["fire"])
}

func TestSetupSnapshotFirstCopyWins(t *testing.T) {
	link := newMemLink(8888)
	link.remote = newMemLink(40000)
	s := New(link, Options{Role: RoleHost})
	link.SetPeer(link.remote.self)

	first := defender(35).Snapshot().Payload()
	first[protocol.KeySequenceNumber] = int64(1)
	second := attacker().Snapshot().Payload()
	second[protocol.KeySequenceNumber] = int64(2)

	s.HandleDelivery(network.Delivery{Kind: protocol.KindBattleSetup, Payload: first, From: link.remote.self})
	s.HandleDelivery(network.Delivery{Kind: protocol.KindBattleSetup, Payload: second, From: link.remote.self})

	assert.Equal(t, "Squirtle", s.Opponent().Name)
}

func TestBattleOverLoopback(t *testing.T) {
	ctx := testContext(t)

	opts := network.DefaultChannelOptions()
	opts.BindAddress = "127.0.0.1"
	opts.Port = 0

	hostCh, err := network.NewChannel(opts)
	require.NoError(t, err)
	joinCh, err := network.NewChannel(opts)
	require.NoError(t, err)

	host := New(hostCh, Options{Role: RoleHost})
	join := New(joinCh, Options{Role: RoleJoin})
	hostCh.Start(ctx, host.HandleDelivery)
	joinCh.Start(ctx, join.HandleDelivery)
	t.Cleanup(func() {
		hostCh.Close()
		joinCh.Close()
		hostCh.Wait()
		joinCh.Wait()
	})

	hostAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: hostCh.Port()}
	require.NoError(t, join.Connect(ctx, hostAddr))
	require.NoError(t, host.WaitForPeer(ctx))

	setupErr := make(chan error, 1)
	go func() {
		_, err := host.Setup(ctx, attacker())
		setupErr <- err
	}()
	joinFirst, err := join.Setup(ctx, defender(10))
	require.NoError(t, err)
	require.NoError(t, <-setupErr)
	require.Equal(t, OwnerPeer, joinFirst)

	pending := awaitAsync(ctx, join)
	res, err := host.TakeTurn(ctx, ember())
	require.NoError(t, err)
	require.NoError(t, (<-pending).err)

	assert.True(t, res.GameOver)
	assert.Equal(t, PhaseTerminal, host.Phase())
	assert.Equal(t, PhaseTerminal, join.Phase())
}
