package battle

import (
	"fmt"
	"math"
	"strings"
)

// Action is what the turn owner does on its turn: use a move, or spend a
// stat boost when Boost is set.
type Action struct {
	Move  Move
	Boost string
}

// MoveAction wraps a move.
func MoveAction(m Move) Action {
	return Action{Move: m}
}

// BoostAction builds the zero-power placeholder announced for a stat boost.
func BoostAction(stat string) Action {
	return Action{
		Move: Move{
			Name:     BoostMoveName(stat),
			Power:    0,
			Category: CategoryStatus,
			Type:     "normal",
		},
		Boost: stat,
	}
}

// IsBoost reports whether the action spends a stat boost.
func (a Action) IsBoost() bool {
	return a.Boost != ""
}

// BoostMoveName names the placeholder move for a boost of stat.
func BoostMoveName(stat string) string {
	return StatLabel(stat) + " Boost"
}

// StatLabel is the display name of a stat.
func StatLabel(stat string) string {
	switch stat {
	case StatAttack:
		return "Attack"
	case StatDefense:
		return "Defense"
	case StatSpAttack:
		return "Special Attack"
	case StatSpDefense:
		return "Special Defense"
	case StatSpeed:
		return "Speed"
	}
	return stat
}

// CalculateDamage computes the damage move deals to defender:
//
//	ceil(power * attackStat / defenseStat * effectiveness)
//
// Physical moves use attack against defense, everything else special attack
// against special defense. Effectiveness is the defender's resistance to
// the move type, 1.0 when unknown. The returned multiplier is that
// effectiveness.
func CalculateDamage(attacker *Pokemon, defender *Snapshot, move Move) (int, float64) {
	atk, def := attacker.Stats.SpAttack, defender.Stats.SpDefense
	if move.Physical() {
		atk, def = attacker.Stats.Attack, defender.Stats.Defense
	}
	if def <= 0 {
		def = 1
	}

	effectiveness := 1.0
	if v, ok := defender.Resistances[strings.ToLower(move.Type)]; ok {
		effectiveness = v
	}

	raw := float64(move.Power) * (float64(atk) / float64(def)) * effectiveness
	return int(math.Ceil(raw)), effectiveness
}

// EffectivenessText is the narration for a type multiplier.
func EffectivenessText(multiplier float64) string {
	switch {
	case multiplier > 1.0:
		return "It was super effective!"
	case multiplier == 0:
		return "It had no effect..."
	case multiplier < 1.0:
		return "It was not very effective..."
	}
	return ""
}

// StatusMessage is the narrative line carried in a CALCULATION_REPORT.
func StatusMessage(attacker, move string, multiplier float64) string {
	return strings.TrimSpace(fmt.Sprintf("%s used %s! %s", attacker, move, EffectivenessText(multiplier)))
}

// BoostMessage narrates a spent boost.
func BoostMessage(attacker, stat string, value int) string {
	return fmt.Sprintf("%s's %s rose to %d!", attacker, StatLabel(stat), value)
}
