package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokelink/duelnet/internal/events"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := NewHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func started(id string) events.BattleStartedPayload {
	return events.BattleStartedPayload{
		BattleID:   id,
		Role:       "host",
		Peer:       "192.168.1.20:8888",
		Local:      "Charmander",
		Opponent:   "Squirtle",
		FirstMover: "SELF",
	}
}

func TestHistoryRecordsBattle(t *testing.T) {
	h := newTestHistory(t)
	t0 := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, h.RecordStart(started("b1"), t0))
	require.NoError(t, h.RecordTurn(events.TurnResolvedPayload{
		BattleID: "b1", Turn: 1, Attacker: "Charmander", Move: "Ember",
		Damage: 12, DefenderHP: 23, StatusMessage: "Charmander used Ember! It's not very effective...",
		Initiator: true,
	}, t0.Add(time.Second)))
	require.NoError(t, h.RecordTurn(events.TurnResolvedPayload{
		BattleID: "b1", Turn: 2, Attacker: "Squirtle", Move: "Water Gun", Damage: 30, DefenderHP: 9,
	}, t0.Add(2*time.Second)))
	require.NoError(t, h.RecordResult(events.GameOverPayload{
		BattleID: "b1", Winner: "Charmander", Won: true, Reason: "fainted", Turns: 2,
	}, t0.Add(3*time.Second)))

	battles, err := h.ListBattles(10)
	require.NoError(t, err)
	require.Len(t, battles, 1)

	b := battles[0]
	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, "Charmander", b.Local)
	assert.Equal(t, "Squirtle", b.Opponent)
	assert.Equal(t, "SELF", b.FirstMover)
	assert.True(t, b.Finished())
	assert.True(t, b.Won)
	assert.Equal(t, "fainted", b.Reason)
	assert.Equal(t, 2, b.Turns)
	assert.Equal(t, t0.UnixMilli(), b.StartedAt.UnixMilli())

	turns, err := h.Turns("b1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "Ember", turns[0].Move)
	assert.True(t, turns[0].Initiator)
	assert.Equal(t, 9, turns[1].DefenderHP)
	assert.False(t, turns[1].Initiator)
}

func TestHistoryResultBeforeStart(t *testing.T) {
	h := newTestHistory(t)
	t0 := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, h.RecordResult(events.GameOverPayload{
		BattleID: "b1", Winner: "Squirtle", Reason: "forfeit", Turns: 0,
	}, t0.Add(time.Second)))
	require.NoError(t, h.RecordStart(started("b1"), t0))

	battles, err := h.ListBattles(0)
	require.NoError(t, err)
	require.Len(t, battles, 1)
	assert.Equal(t, "Charmander", battles[0].Local)
	assert.Equal(t, "forfeit", battles[0].Reason)
	assert.True(t, battles[0].Finished())
	assert.Equal(t, t0.UnixMilli(), battles[0].StartedAt.UnixMilli())
}

func TestHistoryDuplicateTurnKeepsFirst(t *testing.T) {
	h := newTestHistory(t)
	now := time.Now()

	turn := events.TurnResolvedPayload{BattleID: "b1", Turn: 1, Attacker: "A", Move: "Scratch", Damage: 5}
	require.NoError(t, h.RecordTurn(turn, now))
	turn.Damage = 99
	require.NoError(t, h.RecordTurn(turn, now))

	turns, err := h.Turns("b1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, 5, turns[0].Damage)
}

func TestHistoryListOrderAndTally(t *testing.T) {
	h := newTestHistory(t)
	t0 := time.UnixMilli(1_700_000_000_000)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, h.RecordStart(started(id), t0.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, h.RecordResult(events.GameOverPayload{BattleID: "old", Won: true}, t0))
	require.NoError(t, h.RecordResult(events.GameOverPayload{BattleID: "mid", Won: false}, t0))

	battles, err := h.ListBattles(2)
	require.NoError(t, err)
	require.Len(t, battles, 2)
	assert.Equal(t, "new", battles[0].ID)
	assert.Equal(t, "mid", battles[1].ID)
	assert.False(t, battles[0].Finished())

	tally, err := h.Tally()
	require.NoError(t, err)
	assert.Equal(t, Tally{Battles: 3, Wins: 1, Losses: 1, Open: 1}, tally)
}

func TestHistorySubscribe(t *testing.T) {
	h := newTestHistory(t)
	bus := events.NewEventBus()
	h.Subscribe(bus)

	ctx := context.Background()
	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventBattleStarted, Payload: started("b1")}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventTurnResolved,
		Payload: events.TurnResolvedPayload{BattleID: "b1", Turn: 1, Attacker: "Charmander", Move: "Ember"},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventGameOver,
		Payload: events.GameOverPayload{BattleID: "b1", Won: true, Turns: 1},
	}))

	battles, err := h.ListBattles(0)
	require.NoError(t, err)
	require.Len(t, battles, 1)
	assert.True(t, battles[0].Won)

	turns, err := h.Turns("b1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestInMemoryDatabase(t *testing.T) {
	h, err := NewHistory(":memory:")
	require.NoError(t, err)
	defer h.Close()

	tally, err := h.Tally()
	require.NoError(t, err)
	assert.Zero(t, tally.Battles)
}
