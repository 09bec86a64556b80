// Package battle holds the combatant records and the damage formula used by
// a duelnet session.
package battle

import (
	"math/rand"
	"strings"
)

// Stat names used for boosts and on the wire.
const (
	StatAttack    = "attack"
	StatDefense   = "defense"
	StatSpAttack  = "sp_attack"
	StatSpDefense = "sp_defense"
	StatSpeed     = "speed"
)

// Move categories.
const (
	CategoryPhysical = "Physical"
	CategorySpecial  = "Special"
	CategoryStatus   = "Status"
)

const (
	// BoostMultiplier scales a stat each time a boost is spent.
	BoostMultiplier = 1.5

	// DefaultBoosts is how many boosts of each boostable stat a combatant starts with.
	DefaultBoosts = 2

	// MaxNonce bounds the speed tie-break nonce.
	MaxNonce = 1000000
)

// Struggle is used when a combatant has no known moves.
var Struggle = Move{Name: "Struggle", Power: 50, Category: CategoryPhysical, Type: "normal"}

// Stats are the combat stats of a combatant.
type Stats struct {
	Attack    int `json:"attack"`
	Defense   int `json:"defense"`
	SpAttack  int `json:"sp_attack"`
	SpDefense int `json:"sp_defense"`
	Speed     int `json:"speed"`
}

// Get returns the stat called name.
func (s Stats) Get(name string) (int, bool) {
	switch name {
	case StatAttack:
		return s.Attack, true
	case StatDefense:
		return s.Defense, true
	case StatSpAttack:
		return s.SpAttack, true
	case StatSpDefense:
		return s.SpDefense, true
	case StatSpeed:
		return s.Speed, true
	}
	return 0, false
}

// Set overwrites the stat called name.
func (s *Stats) Set(name string, v int) bool {
	switch name {
	case StatAttack:
		s.Attack = v
	case StatDefense:
		s.Defense = v
	case StatSpAttack:
		s.SpAttack = v
	case StatSpDefense:
		s.SpDefense = v
	case StatSpeed:
		s.Speed = v
	default:
		return false
	}
	return true
}

// Move is an attack a combatant can use.
type Move struct {
	Name     string
	Power    int
	Category string
	Type     string
}

// Physical reports whether the move uses attack/defense rather than the
// special stats.
func (m Move) Physical() bool {
	return strings.EqualFold(m.Category, CategoryPhysical)
}

// Pokemon is the locally owned combatant. Its HP is authoritative on this
// side of the battle.
type Pokemon struct {
	Name        string
	Type1       string
	Type2       string
	HP          int
	MaxHP       int
	Stats       Stats
	Resistances map[string]float64
	Moves       []Move
	Nonce       int64
	Boosts      map[string]int
}

// NewPokemon builds a combatant at full health with a fresh nonce and the
// default boost allowance. Without moves it gets Struggle.
func NewPokemon(name, type1, type2 string, hp int, stats Stats, resistances map[string]float64, moves []Move) *Pokemon {
	if len(moves) == 0 {
		moves = []Move{Struggle}
	}
	if resistances == nil {
		resistances = map[string]float64{}
	}
	return &Pokemon{
		Name:        name,
		Type1:       type1,
		Type2:       type2,
		HP:          hp,
		MaxHP:       hp,
		Stats:       stats,
		Resistances: resistances,
		Moves:       moves,
		Nonce:       rand.Int63n(MaxNonce + 1),
		Boosts: map[string]int{
			StatSpAttack:  DefaultBoosts,
			StatSpDefense: DefaultBoosts,
		},
	}
}

// Clone returns a deep copy with a fresh nonce, so a dex entry can be handed
// out for more than one battle.
func (p *Pokemon) Clone() *Pokemon {
	c := p.Copy()
	c.Nonce = rand.Int63n(MaxNonce + 1)
	return c
}

// Copy returns a deep copy that keeps the nonce.
func (p *Pokemon) Copy() *Pokemon {
	c := *p
	c.Resistances = make(map[string]float64, len(p.Resistances))
	for k, v := range p.Resistances {
		c.Resistances[k] = v
	}
	c.Moves = append([]Move(nil), p.Moves...)
	c.Boosts = make(map[string]int, len(p.Boosts))
	for k, v := range p.Boosts {
		c.Boosts[k] = v
	}
	return &c
}

// Fainted reports whether HP has dropped to zero or below.
func (p *Pokemon) Fainted() bool {
	return p.HP <= 0
}

// ApplyBoost spends one boost of stat and multiplies it by BoostMultiplier.
// It returns the new stat value, or false when no boost is left.
func (p *Pokemon) ApplyBoost(stat string) (int, bool) {
	if p.Boosts[stat] <= 0 {
		return 0, false
	}
	cur, ok := p.Stats.Get(stat)
	if !ok {
		return 0, false
	}
	p.Boosts[stat]--
	next := int(float64(cur) * BoostMultiplier)
	p.Stats.Set(stat, next)
	return next, true
}

// Snapshot returns the record sent to the opponent at setup.
func (p *Pokemon) Snapshot() *Snapshot {
	s := &Snapshot{
		Name:        p.Name,
		Type1:       p.Type1,
		Type2:       p.Type2,
		HP:          p.HP,
		MaxHP:       p.MaxHP,
		Stats:       p.Stats,
		Resistances: make(map[string]float64, len(p.Resistances)),
		Nonce:       p.Nonce,
		Boosts:      make(map[string]int, len(p.Boosts)),
	}
	for k, v := range p.Resistances {
		s.Resistances[k] = v
	}
	for k, v := range p.Boosts {
		s.Boosts[k] = v
	}
	return s
}

// TypeLabel renders "fire" or "grass / poison".
func TypeLabel(type1, type2 string) string {
	if type2 == "" {
		return type1
	}
	return type1 + " / " + type2
}
