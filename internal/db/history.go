package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pokelink/duelnet/internal/events"
)

// History records finished and in-progress battles.
type History struct {
	db *Database
}

// BattleRecord is one row of the battles table.
type BattleRecord struct {
	ID         string     `json:"id"`
	Role       string     `json:"role"`
	Peer       string     `json:"peer"`
	Local      string     `json:"local"`
	Opponent   string     `json:"opponent"`
	FirstMover string     `json:"first_mover"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Winner     string     `json:"winner,omitempty"`
	Won        bool       `json:"won"`
	Reason     string     `json:"reason,omitempty"`
	Turns      int        `json:"turns"`
}

// Finished reports whether a result has been recorded.
func (b BattleRecord) Finished() bool {
	return b.EndedAt != nil
}

// TurnRecord is one resolved action cycle.
type TurnRecord struct {
	BattleID      string    `json:"battle_id"`
	Turn          int       `json:"turn"`
	Attacker      string    `json:"attacker"`
	Move          string    `json:"move"`
	Damage        int       `json:"damage"`
	DefenderHP    int       `json:"defender_hp"`
	StatusMessage string    `json:"status_message"`
	Initiator     bool      `json:"initiator"`
	At            time.Time `json:"at"`
}

// Tally sums the recorded results.
type Tally struct {
	Battles int `json:"battles"`
	Wins    int `json:"wins"`
	Losses  int `json:"losses"`
	Open    int `json:"open"`
}

// NewHistory opens the history database at path and migrates its schema.
func NewHistory(path string) (*History, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}

	h := &History{db: database}
	if err := h.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return h, nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

// Turns and results may be recorded before their battle row: bus handlers
// run concurrently, so rows are upserted rather than linked by foreign key.
func (h *History) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS battles (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL DEFAULT '',
			peer TEXT NOT NULL DEFAULT '',
			local_pokemon TEXT NOT NULL DEFAULT '',
			opponent_pokemon TEXT NOT NULL DEFAULT '',
			first_mover TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			winner TEXT NOT NULL DEFAULT '',
			won INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			turns INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS turns (
			battle_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			attacker TEXT NOT NULL,
			move TEXT NOT NULL,
			damage INTEGER NOT NULL,
			defender_hp INTEGER NOT NULL,
			status_message TEXT NOT NULL DEFAULT '',
			initiator INTEGER NOT NULL DEFAULT 0,
			at INTEGER NOT NULL,
			PRIMARY KEY (battle_id, turn)
		);

		CREATE INDEX IF NOT EXISTS idx_battles_started_at ON battles(started_at);
	`

	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("history schema migrated")
	return nil
}

// RecordStart stores a battle that has finished setup.
func (h *History) RecordStart(p events.BattleStartedPayload, at time.Time) error {
	_, err := h.db.Exec(`
		INSERT INTO battles (id, role, peer, local_pokemon, opponent_pokemon, first_mover, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			peer = excluded.peer,
			local_pokemon = excluded.local_pokemon,
			opponent_pokemon = excluded.opponent_pokemon,
			first_mover = excluded.first_mover,
			started_at = MIN(battles.started_at, excluded.started_at)`,
		p.BattleID, p.Role, p.Peer, p.Local, p.Opponent, p.FirstMover, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record battle %s: %w", p.BattleID, err)
	}
	return nil
}

// RecordTurn stores one resolved turn. Recording the same turn twice keeps
// the first copy.
func (h *History) RecordTurn(p events.TurnResolvedPayload, at time.Time) error {
	_, err := h.db.Exec(`
		INSERT OR IGNORE INTO turns
			(battle_id, turn, attacker, move, damage, defender_hp, status_message, initiator, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.BattleID, p.Turn, p.Attacker, p.Move, p.Damage, p.DefenderHP, p.StatusMessage,
		boolToInt(p.Initiator), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record turn %d of %s: %w", p.Turn, p.BattleID, err)
	}
	return nil
}

// RecordResult stores the outcome of a battle.
func (h *History) RecordResult(p events.GameOverPayload, at time.Time) error {
	_, err := h.db.Exec(`
		INSERT INTO battles (id, started_at, ended_at, winner, won, reason, turns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			winner = excluded.winner,
			won = excluded.won,
			reason = excluded.reason,
			turns = excluded.turns`,
		p.BattleID, at.UnixMilli(), at.UnixMilli(), p.Winner, boolToInt(p.Won), p.Reason, p.Turns)
	if err != nil {
		return fmt.Errorf("failed to record result of %s: %w", p.BattleID, err)
	}
	return nil
}

// Subscribe records battle events published on bus.
func (h *History) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventBattleStarted, "history", func(_ context.Context, e events.Event) error {
		p, ok := e.Payload.(events.BattleStartedPayload)
		if !ok {
			return nil
		}
		return h.RecordStart(p, time.Now())
	})
	bus.Subscribe(events.EventTurnResolved, "history", func(_ context.Context, e events.Event) error {
		p, ok := e.Payload.(events.TurnResolvedPayload)
		if !ok {
			return nil
		}
		return h.RecordTurn(p, time.Now())
	})
	bus.Subscribe(events.EventGameOver, "history", func(_ context.Context, e events.Event) error {
		p, ok := e.Payload.(events.GameOverPayload)
		if !ok {
			return nil
		}
		return h.RecordResult(p, time.Now())
	})
}

// ListBattles returns up to limit battles, newest first. A limit below 1
// returns every battle.
func (h *History) ListBattles(limit int) ([]BattleRecord, error) {
	if limit < 1 {
		limit = -1
	}

	rows, err := h.db.Query(`
		SELECT id, role, peer, local_pokemon, opponent_pokemon, first_mover,
			started_at, ended_at, winner, won, reason, turns
		FROM battles
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list battles: %w", err)
	}
	defer rows.Close()

	var battles []BattleRecord
	for rows.Next() {
		var (
			b       BattleRecord
			started int64
			ended   sql.NullInt64
			won     int
		)
		if err := rows.Scan(&b.ID, &b.Role, &b.Peer, &b.Local, &b.Opponent, &b.FirstMover,
			&started, &ended, &b.Winner, &won, &b.Reason, &b.Turns); err != nil {
			return nil, fmt.Errorf("failed to scan battle: %w", err)
		}
		b.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			b.EndedAt = &t
		}
		b.Won = won != 0
		battles = append(battles, b)
	}
	return battles, rows.Err()
}

// Turns returns the recorded turns of one battle in order.
func (h *History) Turns(battleID string) ([]TurnRecord, error) {
	rows, err := h.db.Query(`
		SELECT battle_id, turn, attacker, move, damage, defender_hp, status_message, initiator, at
		FROM turns
		WHERE battle_id = ?
		ORDER BY turn`, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []TurnRecord
	for rows.Next() {
		var (
			t         TurnRecord
			initiator int
			at        int64
		)
		if err := rows.Scan(&t.BattleID, &t.Turn, &t.Attacker, &t.Move, &t.Damage,
			&t.DefenderHP, &t.StatusMessage, &initiator, &at); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Initiator = initiator != 0
		t.At = time.UnixMilli(at)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Tally counts wins, losses and unfinished battles.
func (h *History) Tally() (Tally, error) {
	var t Tally
	err := h.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN ended_at IS NOT NULL AND won = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ended_at IS NOT NULL AND won = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ended_at IS NULL THEN 1 ELSE 0 END), 0)
		FROM battles`).Scan(&t.Battles, &t.Wins, &t.Losses, &t.Open)
	if err != nil {
		return Tally{}, fmt.Errorf("failed to tally battles: %w", err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
