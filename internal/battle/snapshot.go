package battle

import (
	"errors"
	"fmt"

	"github.com/pokelink/duelnet/internal/protocol"
)

// ErrInvalidSnapshot is returned when a BATTLE_SETUP payload lacks the
// fields a battle needs.
var ErrInvalidSnapshot = errors.New("invalid combatant snapshot")

// Snapshot payload keys.
const (
	keyName        = "name"
	keyHP          = "hp"
	keyMaxHP       = "max_hp"
	keyType1       = "type1"
	keyType2       = "type2"
	keyStats       = "stats"
	keyResistances = "resistances"
	keyNonce       = "nonce"
	keyStatBoosts  = "stat_boosts"
)

// Snapshot is the opponent as this side knows it: copied once from the
// peer's BATTLE_SETUP and then updated in place from the messages of each
// action cycle.
type Snapshot struct {
	Name        string
	Type1       string
	Type2       string
	HP          int
	MaxHP       int
	Stats       Stats
	Resistances map[string]float64
	Nonce       int64
	Boosts      map[string]int
}

// Copy returns a deep copy of s.
func (s *Snapshot) Copy() *Snapshot {
	c := *s
	c.Resistances = make(map[string]float64, len(s.Resistances))
	for k, v := range s.Resistances {
		c.Resistances[k] = v
	}
	c.Boosts = make(map[string]int, len(s.Boosts))
	for k, v := range s.Boosts {
		c.Boosts[k] = v
	}
	return &c
}

// Payload renders the snapshot as a BATTLE_SETUP payload. Nested records are
// carried as maps so the codec sends them as JSON.
func (s *Snapshot) Payload() protocol.Payload {
	resistances := make(map[string]any, len(s.Resistances))
	for k, v := range s.Resistances {
		resistances[k] = v
	}
	boosts := make(map[string]any, len(s.Boosts))
	for k, v := range s.Boosts {
		boosts[k] = v
	}

	return protocol.Payload{
		keyName:  s.Name,
		keyHP:    s.HP,
		keyMaxHP: s.MaxHP,
		keyType1: s.Type1,
		keyType2: s.Type2,
		keyStats: map[string]any{
			StatAttack:    s.Stats.Attack,
			StatDefense:   s.Stats.Defense,
			StatSpAttack:  s.Stats.SpAttack,
			StatSpDefense: s.Stats.SpDefense,
			StatSpeed:     s.Stats.Speed,
		},
		keyResistances: resistances,
		keyNonce:       s.Nonce,
		keyStatBoosts:  boosts,
	}
}

// SnapshotFromPayload decodes a BATTLE_SETUP payload. Name, hp and stats are
// required; everything else falls back to neutral values, and max_hp to hp.
func SnapshotFromPayload(p protocol.Payload) (*Snapshot, error) {
	name, ok := p.String(keyName)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidSnapshot, keyName)
	}
	hp, ok := p.Int(keyHP)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidSnapshot, keyHP)
	}
	stats, ok := p.Map(keyStats)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidSnapshot, keyStats)
	}

	s := &Snapshot{
		Name:        name,
		HP:          int(hp),
		MaxHP:       int(hp),
		Resistances: make(map[string]float64),
		Boosts:      make(map[string]int),
	}
	if v, ok := p.Int(keyMaxHP); ok {
		s.MaxHP = int(v)
	}
	s.Type1, _ = p.String(keyType1)
	s.Type2, _ = p.String(keyType2)
	if v, ok := p.Int(keyNonce); ok {
		s.Nonce = v
	}

	for _, stat := range []string{StatAttack, StatDefense, StatSpAttack, StatSpDefense, StatSpeed} {
		if v, ok := stats.Int(stat); ok {
			s.Stats.Set(stat, int(v))
		}
	}

	if res, ok := p.Map(keyResistances); ok {
		for k := range res {
			if v, ok := res.Float(k); ok {
				s.Resistances[k] = v
			}
		}
	}
	if boosts, ok := p.Map(keyStatBoosts); ok {
		for k := range boosts {
			if v, ok := boosts.Int(k); ok {
				s.Boosts[k] = int(v)
			}
		}
	}

	return s, nil
}

// Fainted reports whether the opponent's known HP is zero or below.
func (s *Snapshot) Fainted() bool {
	return s.HP <= 0
}
