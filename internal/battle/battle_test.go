package battle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokelink/duelnet/internal/protocol"
)

func charmander() *Pokemon {
	return NewPokemon("Charmander", "fire", "", 39,
		Stats{Attack: 52, Defense: 43, SpAttack: 60, SpDefense: 50, Speed: 65},
		map[string]float64{"water": 2, "grass": 0.5, "fire": 0.5},
		[]Move{{Name: "Ember", Power: 40, Category: CategorySpecial, Type: "fire"}},
	)
}

func defender() *Snapshot {
	return &Snapshot{
		Name:        "Squirtle",
		HP:          35,
		MaxHP:       44,
		Stats:       Stats{Attack: 48, Defense: 64, SpAttack: 50, SpDefense: 100, Speed: 43},
		Resistances: map[string]float64{"fire": 0.5, "electric": 2, "ghost": 0},
	}
}

func TestCalculateDamage(t *testing.T) {
	tests := []struct {
		name    string
		move    Move
		damage  int
		eff     float64
		message string
	}{
		{
			name:    "special resisted",
			move:    Move{Name: "Ember", Power: 40, Category: CategorySpecial, Type: "fire"},
			damage:  12, // 40 * 60/100 * 0.5
			eff:     0.5,
			message: "Charmander used Ember! It was not very effective...",
		},
		{
			name:    "physical neutral rounds up",
			move:    Move{Name: "Scratch", Power: 40, Category: "physical", Type: "normal"},
			damage:  33, // ceil(40 * 52/64)
			eff:     1,
			message: "Charmander used Scratch!",
		},
		{
			name:    "super effective",
			move:    Move{Name: "Thunder Shock", Power: 40, Category: CategorySpecial, Type: "Electric"},
			damage:  48,
			eff:     2,
			message: "Charmander used Thunder Shock! It was super effective!",
		},
		{
			name:    "immune",
			move:    Move{Name: "Lick", Power: 30, Category: CategoryPhysical, Type: "ghost"},
			damage:  0,
			eff:     0,
			message: "Charmander used Lick! It had no effect...",
		},
		{
			name:    "status move",
			move:    BoostAction(StatSpAttack).Move,
			damage:  0,
			eff:     1,
			message: "Charmander used Special Attack Boost!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dmg, eff := CalculateDamage(charmander(), defender(), tt.move)
			assert.Equal(t, tt.damage, dmg)
			assert.Equal(t, tt.eff, eff)
			assert.Equal(t, tt.message, StatusMessage("Charmander", tt.move.Name, eff))
		})
	}
}

func TestCalculateDamageZeroDefense(t *testing.T) {
	def := defender()
	def.Stats.SpDefense = 0
	dmg, _ := CalculateDamage(charmander(), def, Move{Power: 10, Category: CategorySpecial, Type: "normal"})
	assert.Equal(t, 600, dmg)
}

func TestApplyBoost(t *testing.T) {
	p := charmander()

	v, ok := p.ApplyBoost(StatSpAttack)
	require.True(t, ok)
	assert.Equal(t, 90, v)
	v, ok = p.ApplyBoost(StatSpAttack)
	require.True(t, ok)
	assert.Equal(t, 135, v)

	_, ok = p.ApplyBoost(StatSpAttack)
	assert.False(t, ok, "boosts are consumable")
	assert.Equal(t, 135, p.Stats.SpAttack)

	_, ok = p.ApplyBoost(StatSpeed)
	assert.False(t, ok, "speed has no boost allowance")
}

func TestNewPokemonFallsBackToStruggle(t *testing.T) {
	p := NewPokemon("Magikarp", "water", "", 20, Stats{}, nil, nil)
	require.Len(t, p.Moves, 1)
	assert.Equal(t, Struggle, p.Moves[0])
	assert.NotNil(t, p.Resistances)
	assert.Equal(t, 20, p.MaxHP)
	assert.GreaterOrEqual(t, p.Nonce, int64(0))
	assert.LessOrEqual(t, p.Nonce, int64(MaxNonce))
}

func TestCloneIsIndependent(t *testing.T) {
	p := charmander()
	c := p.Clone()
	c.HP = 1
	c.Resistances["water"] = 4
	c.ApplyBoost(StatSpDefense)

	assert.Equal(t, 39, p.HP)
	assert.Equal(t, 2.0, p.Resistances["water"])
	assert.Equal(t, DefaultBoosts, p.Boosts[StatSpDefense])
}

func TestCopyKeepsNonce(t *testing.T) {
	p := charmander()
	c := p.Copy()
	assert.Equal(t, p.Nonce, c.Nonce)

	c.Boosts[StatSpAttack] = 0
	assert.Equal(t, DefaultBoosts, p.Boosts[StatSpAttack])
}

func TestSnapshotCopyIsIndependent(t *testing.T) {
	s := defender()
	s.Boosts = map[string]int{StatSpDefense: 2}
	c := s.Copy()
	c.HP = 0
	c.Resistances["fire"] = 4
	c.Boosts[StatSpDefense] = 0

	assert.Equal(t, 35, s.HP)
	assert.Equal(t, 0.5, s.Resistances["fire"])
	assert.Equal(t, 2, s.Boosts[StatSpDefense])
}

func TestSnapshotSurvivesWire(t *testing.T) {
	p := NewPokemon("Bulbasaur", "grass", "poison", 45,
		Stats{Attack: 49, Defense: 49, SpAttack: 65, SpDefense: 65, Speed: 45},
		map[string]float64{"fire": 2, "water": 0.5, "psychic": 2},
		nil,
	)
	p.Nonce = 500

	data, err := protocol.Encode(protocol.KindBattleSetup, p.Snapshot().Payload())
	require.NoError(t, err)
	kind, payload, err := protocol.Decode(data)
	require.NoError(t, err)
	require.Equal(t, protocol.KindBattleSetup, kind)

	s, err := SnapshotFromPayload(payload)
	require.NoError(t, err)

	assert.Equal(t, "Bulbasaur", s.Name)
	assert.Equal(t, "grass", s.Type1)
	assert.Equal(t, "poison", s.Type2)
	assert.Equal(t, 45, s.HP)
	assert.Equal(t, 45, s.MaxHP)
	assert.Equal(t, p.Stats, s.Stats)
	assert.Equal(t, p.Resistances, s.Resistances)
	assert.Equal(t, int64(500), s.Nonce)
	assert.Equal(t, map[string]int{StatSpAttack: 2, StatSpDefense: 2}, s.Boosts)
}

func TestSnapshotFromPayloadRejectsIncomplete(t *testing.T) {
	tests := map[string]protocol.Payload{
		"no name":  {"hp": int64(10), "stats": map[string]any{}},
		"no hp":    {"name": "Pidgey", "stats": map[string]any{}},
		"no stats": {"name": "Pidgey", "hp": int64(10)},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := SnapshotFromPayload(p)
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestSnapshotDefaults(t *testing.T) {
	s, err := SnapshotFromPayload(protocol.Payload{
		"name":  "Pidgey",
		"hp":    int64(40),
		"stats": map[string]any{"speed": int64(56)},
	})
	require.NoError(t, err)
	assert.Equal(t, 40, s.MaxHP)
	assert.Equal(t, 56, s.Stats.Speed)
	assert.Zero(t, s.Nonce)
	assert.Empty(t, s.Resistances)
}

func TestTypeLabel(t *testing.T) {
	assert.Equal(t, "fire", TypeLabel("fire", ""))
	assert.Equal(t, "grass / poison", TypeLabel("grass", "poison"))
}
