package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pokelink/duelnet/internal/battle"
	"github.com/pokelink/duelnet/internal/db"
	"github.com/pokelink/duelnet/internal/network"
)

// Commands accepted at the battle prompt.
const (
	cmdChat    = "/chat"
	cmdSticker = "/sticker"
	cmdStatus  = "/status"
	cmdForfeit = "/forfeit"
	cmdHelp    = "/help"
)

const notYourTurn = "Not your turn! You can only chat."

// command is one parsed line of battle input. A line that is not a slash
// command is a menu choice.
type command struct {
	name string
	arg  string
}

func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, false
	}
	name, arg, _ := strings.Cut(line, " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

func printBattleHelp(c *Console) {
	c.Println()
	c.Println("  <number>          use a move or boost from the menu")
	c.Println("  /chat <text>      send a chat message (any time)")
	c.Println("  /sticker <file>   send an image sticker (any time)")
	c.Println("  /status           show both combatants")
	c.Println("  /forfeit          give up the battle")
	c.Println()
}

// menuEntry is one numbered choice on the turn menu.
type menuEntry struct {
	label  string
	detail string
	action battle.Action
	usable bool
}

var boostableStats = []string{battle.StatSpAttack, battle.StatSpDefense}

// buildMenu lists the local combatant's moves followed by its boosts.
func buildMenu(p *battle.Pokemon) []menuEntry {
	entries := make([]menuEntry, 0, len(p.Moves)+len(boostableStats))
	for _, m := range p.Moves {
		entries = append(entries, menuEntry{
			label:  m.Name,
			detail: fmt.Sprintf("%s / %s / power %d", m.Type, m.Category, m.Power),
			action: battle.MoveAction(m),
			usable: true,
		})
	}
	for _, stat := range boostableStats {
		left := p.Boosts[stat]
		entries = append(entries, menuEntry{
			label:  "Boost " + battle.StatLabel(stat),
			detail: fmt.Sprintf("x%.1f, %d left", battle.BoostMultiplier, left),
			action: battle.BoostAction(stat),
			usable: left > 0,
		})
	}
	return entries
}

// pickEntry resolves a menu choice typed as its number or its label.
func pickEntry(entries []menuEntry, input string) (menuEntry, error) {
	input = strings.TrimSpace(input)
	if n, err := strconv.Atoi(input); err == nil {
		if n < 1 || n > len(entries) {
			return menuEntry{}, fmt.Errorf("choose a number between 1 and %d", len(entries))
		}
		return checkUsable(entries[n-1])
	}
	for _, e := range entries {
		if strings.EqualFold(e.label, input) {
			return checkUsable(e)
		}
	}
	return menuEntry{}, fmt.Errorf("unknown choice %q, type /help for commands", input)
}

func checkUsable(e menuEntry) (menuEntry, error) {
	if !e.usable {
		return menuEntry{}, fmt.Errorf("%s has no uses left", e.label)
	}
	return e, nil
}

func renderMenu(c *Console, entries []menuEntry) {
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		label := e.label
		if !e.usable {
			label += " (spent)"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), label, e.detail})
	}
	c.Table([]string{"#", "Action", "Details"}, rows)
}

func hpBar(hp, max int) string {
	const width = 20
	if max <= 0 {
		return ""
	}
	if hp < 0 {
		hp = 0
	}
	filled := hp * width / max
	if hp > 0 && filled == 0 {
		filled = 1
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// renderCards shows the two combatants side by side.
func renderCards(c *Console, local *battle.Pokemon, opponent *battle.Snapshot) {
	header := []string{"", "You", "Opponent"}
	oppName, oppTypes, oppHP, oppBar := "?", "", "", ""
	var oppStats battle.Stats
	if opponent != nil {
		oppName = opponent.Name
		oppTypes = battle.TypeLabel(opponent.Type1, opponent.Type2)
		oppHP = fmt.Sprintf("%d/%d", max(opponent.HP, 0), opponent.MaxHP)
		oppBar = hpBar(opponent.HP, opponent.MaxHP)
		oppStats = opponent.Stats
	}
	rows := [][]string{
		{"Name", local.Name, oppName},
		{"Type", battle.TypeLabel(local.Type1, local.Type2), oppTypes},
		{"HP", fmt.Sprintf("%d/%d", max(local.HP, 0), local.MaxHP), oppHP},
		{"", hpBar(local.HP, local.MaxHP), oppBar},
		{"Atk / Def", fmt.Sprintf("%d / %d", local.Stats.Attack, local.Stats.Defense),
			fmt.Sprintf("%d / %d", oppStats.Attack, oppStats.Defense)},
		{"SpA / SpD", fmt.Sprintf("%d / %d", local.Stats.SpAttack, local.Stats.SpDefense),
			fmt.Sprintf("%d / %d", oppStats.SpAttack, oppStats.SpDefense)},
		{"Speed", strconv.Itoa(local.Stats.Speed), strconv.Itoa(oppStats.Speed)},
	}
	c.Table(header, rows)
}

func renderDex(c *Console, mons []*battle.Pokemon) {
	rows := make([][]string, 0, len(mons))
	for i, p := range mons {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			p.Name,
			battle.TypeLabel(p.Type1, p.Type2),
			strconv.Itoa(p.MaxHP),
			strconv.Itoa(p.Stats.Attack),
			strconv.Itoa(p.Stats.Defense),
			strconv.Itoa(p.Stats.SpAttack),
			strconv.Itoa(p.Stats.SpDefense),
			strconv.Itoa(p.Stats.Speed),
		})
	}
	c.Table([]string{"#", "Name", "Type", "HP", "Atk", "Def", "SpA", "SpD", "Spe"}, rows)
}

// sortedHosts orders discovered hosts by IP so menu numbers are stable.
func sortedHosts(hosts network.DiscoveredHosts) []string {
	ips := make([]string, 0, len(hosts))
	for ip := range hosts {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

func renderHosts(c *Console, hosts network.DiscoveredHosts) {
	rows := make([][]string, 0, len(hosts))
	for i, ip := range sortedHosts(hosts) {
		rows = append(rows, []string{strconv.Itoa(i + 1), ip, strconv.Itoa(hosts[ip])})
	}
	c.Table([]string{"#", "Host", "Game port"}, rows)
}

func renderHistory(c *Console, battles []db.BattleRecord) {
	rows := make([][]string, 0, len(battles))
	for _, b := range battles {
		result := "in progress"
		if b.Finished() {
			result = "lost"
			if b.Won {
				result = "won"
			}
			if b.Reason != "" {
				result += " (" + b.Reason + ")"
			}
		}
		rows = append(rows, []string{
			b.StartedAt.Local().Format(time.DateTime),
			b.Role,
			b.Local,
			b.Opponent,
			strconv.Itoa(b.Turns),
			result,
		})
	}
	c.Table([]string{"Started", "Role", "You", "Opponent", "Turns", "Result"}, rows)
}
