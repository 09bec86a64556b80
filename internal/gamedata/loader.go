// Package gamedata loads the monster dex and move list from CSV files, with
// a small embedded starter dex used when none is configured.
package gamedata

import (
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pokelink/duelnet/internal/battle"
)

//go:embed data/*.csv
var starterFS embed.FS

const (
	resistancePrefix = "against_"
	learnerSeparator = ";"
)

var pokemonColumns = []string{"name", "type1", "type2", "hp", "attack", "defense", "sp_attack", "sp_defense", "speed"}

var moveColumns = []string{"move_name", "type", "base_power", "damage_category", "learns_by_pokemon"}

// Dex is a read-only set of combatants keyed by lower-cased name.
type Dex struct {
	entries map[string]*battle.Pokemon
}

// Get returns a fresh copy of the named combatant, matched case-insensitively.
func (d *Dex) Get(name string) (*battle.Pokemon, bool) {
	p, ok := d.entries[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Names returns the display names in alphabetical order.
func (d *Dex) Names() []string {
	names := make([]string, 0, len(d.entries))
	for _, p := range d.entries {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of combatants.
func (d *Dex) Len() int {
	return len(d.entries)
}

// Load reads the dex from the given CSV files. An empty pokemonPath selects
// the embedded starter dex. A missing moves file is not fatal: every
// combatant then falls back to Struggle.
func Load(pokemonPath, movesPath string) (*Dex, error) {
	if pokemonPath == "" {
		return Starter()
	}

	moves := map[string][]battle.Move{}
	if movesPath != "" {
		f, err := os.Open(movesPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warn().Str("path", movesPath).Msg("moves file not found, combatants will only know Struggle")
		case err != nil:
			return nil, fmt.Errorf("failed to open moves file: %w", err)
		default:
			moves, err = LoadMoves(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", movesPath, err)
			}
		}
	}

	f, err := os.Open(pokemonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pokemon file: %w", err)
	}
	defer f.Close()

	dex, err := LoadPokemon(f, moves)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pokemonPath, err)
	}

	log.Info().
		Str("pokemon", pokemonPath).
		Str("moves", movesPath).
		Int("entries", dex.Len()).
		Msg("game data loaded")
	return dex, nil
}

// Starter returns the embedded starter dex.
func Starter() (*Dex, error) {
	mf, err := starterFS.Open("data/moves.csv")
	if err != nil {
		return nil, err
	}
	defer mf.Close()

	moves, err := LoadMoves(mf)
	if err != nil {
		return nil, fmt.Errorf("embedded moves: %w", err)
	}

	pf, err := starterFS.Open("data/pokemon.csv")
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	dex, err := LoadPokemon(pf, moves)
	if err != nil {
		return nil, fmt.Errorf("embedded pokemon: %w", err)
	}
	return dex, nil
}

// LoadMoves parses a moves CSV into a map from lower-cased learner name to
// the moves it knows, in file order.
func LoadMoves(r io.Reader) (map[string][]battle.Move, error) {
	header, rows, err := readTable(r, moveColumns)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]battle.Move)
	for i, row := range rows {
		line := i + 2
		power, err := strconv.Atoi(strings.TrimSpace(row[header["base_power"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid base_power: %w", line, err)
		}

		move := battle.Move{
			Name:     strings.TrimSpace(row[header["move_name"]]),
			Power:    power,
			Category: strings.TrimSpace(row[header["damage_category"]]),
			Type:     strings.TrimSpace(row[header["type"]]),
		}

		for _, learner := range strings.Split(row[header["learns_by_pokemon"]], learnerSeparator) {
			key := strings.ToLower(strings.TrimSpace(learner))
			if key == "" {
				continue
			}
			out[key] = append(out[key], move)
		}
	}
	return out, nil
}

// LoadPokemon parses a pokemon CSV. Every against_<type> column becomes a
// resistance entry for <type>.
func LoadPokemon(r io.Reader, moves map[string][]battle.Move) (*Dex, error) {
	header, rows, err := readTable(r, pokemonColumns)
	if err != nil {
		return nil, err
	}

	dex := &Dex{entries: make(map[string]*battle.Pokemon, len(rows))}
	for i, row := range rows {
		line := i + 2

		ints := make(map[string]int, 6)
		for _, col := range []string{"hp", "attack", "defense", "sp_attack", "sp_defense", "speed"} {
			v, err := strconv.Atoi(strings.TrimSpace(row[header[col]]))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, col, err)
			}
			ints[col] = v
		}

		resistances := make(map[string]float64)
		for col, idx := range header {
			if !strings.HasPrefix(col, resistancePrefix) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, col, err)
			}
			resistances[strings.TrimPrefix(col, resistancePrefix)] = v
		}

		name := strings.TrimSpace(row[header["name"]])
		key := strings.ToLower(name)
		dex.entries[key] = battle.NewPokemon(
			name,
			strings.TrimSpace(row[header["type1"]]),
			strings.TrimSpace(row[header["type2"]]),
			ints["hp"],
			battle.Stats{
				Attack:    ints["attack"],
				Defense:   ints["defense"],
				SpAttack:  ints["sp_attack"],
				SpDefense: ints["sp_defense"],
				Speed:     ints["speed"],
			},
			resistances,
			moves[key],
		)
	}
	return dex, nil
}

// readTable reads a CSV with a header row and checks the required columns.
func readTable(r io.Reader, required []string) (map[string]int, [][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errors.New("empty file")
	}

	header := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		header[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range required {
		if _, ok := header[col]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", col)
		}
	}
	return header, records[1:], nil
}
