package cli

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pokelink/duelnet/internal/battle"
	"github.com/pokelink/duelnet/internal/chat"
	"github.com/pokelink/duelnet/internal/protocol"
	"github.com/pokelink/duelnet/internal/session"
	"github.com/pokelink/duelnet/internal/util"
)

// battleSession is the part of *session.Session the battle prompt drives.
type battleSession interface {
	Owner() session.Owner
	Local() *battle.Pokemon
	Opponent() *battle.Snapshot
	TakeTurn(ctx context.Context, action battle.Action) (*session.TurnResult, error)
	AwaitTurn(ctx context.Context) (*session.TurnResult, error)
	Forfeit() error
	SendChat(sender, text string) error
	SendSticker(sender, encoded string) error
	Chat() <-chan session.ChatMessage
	Done() <-chan struct{}
	Outcome() (session.Outcome, bool)
}

// Game runs the turn prompt of one battle.
type Game struct {
	console    *Console
	player     string
	stickerDir string
	now        func() time.Time
	logger     zerolog.Logger
}

// NewGame creates a battle prompt for player. Received stickers are saved
// under stickerDir.
func NewGame(console *Console, player, stickerDir string) *Game {
	return &Game{
		console:    console,
		player:     player,
		stickerDir: stickerDir,
		now:        time.Now,
		logger:     util.ComponentLogger("game"),
	}
}

// Play alternates between the local turn prompt and waiting on the
// opponent until the battle ends. Chat is printed as it arrives.
func (g *Game) Play(ctx context.Context, sess battleSession) (session.Outcome, error) {
	chatCtx, stopChat := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.printChat(chatCtx, sess)
	}()
	defer func() {
		stopChat()
		wg.Wait()
	}()

	for {
		select {
		case <-sess.Done():
			return g.finish(sess)
		default:
		}

		var err error
		if sess.Owner() == session.OwnerSelf {
			err = g.localTurn(ctx, sess)
		} else {
			err = g.remoteTurn(ctx, sess)
		}

		switch {
		case err == nil:
		case errors.Is(err, session.ErrGameOver):
			return g.finish(sess)
		case errors.Is(err, ErrInputClosed):
			g.console.Println("Input closed, forfeiting.")
			if ferr := sess.Forfeit(); ferr != nil && !errors.Is(ferr, session.ErrGameOver) {
				g.logger.Warn().Err(ferr).Msg("forfeit failed")
			}
			return g.finish(sess)
		default:
			return session.Outcome{}, err
		}
	}
}

func (g *Game) finish(sess battleSession) (session.Outcome, error) {
	outcome, _ := sess.Outcome()
	g.console.Println()
	switch {
	case outcome.Won:
		g.console.Printf("You won in %d turns! (%s)\n", outcome.Turns, outcome.Reason)
	case outcome.Winner != "":
		g.console.Printf("You lost. %s wins. (%s)\n", outcome.Winner, outcome.Reason)
	default:
		g.console.Printf("Battle over. (%s)\n", outcome.Reason)
	}
	return outcome, nil
}

// localTurn prompts until the player picks a usable action, then runs it.
func (g *Game) localTurn(ctx context.Context, sess battleSession) error {
	local := sess.Local()
	renderCards(g.console, local, sess.Opponent())
	entries := buildMenu(local)
	renderMenu(g.console, entries)

	for {
		g.console.Printf("Your turn > ")
		select {
		case <-sess.Done():
			return session.ErrGameOver
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-g.console.Lines():
			if !ok {
				return ErrInputClosed
			}
			if line == "" {
				continue
			}
			if cmd, isCmd := parseCommand(line); isCmd {
				if err := g.runCommand(sess, cmd); err != nil {
					return err
				}
				continue
			}

			entry, err := pickEntry(entries, line)
			if err != nil {
				g.console.Println(err.Error())
				continue
			}

			result, err := sess.TakeTurn(ctx, entry.action)
			if errors.Is(err, session.ErrNoBoostLeft) {
				g.console.Println("No boosts of that kind left.")
				continue
			}
			if err != nil {
				return err
			}
			g.printResult(result)
			return nil
		}
	}
}

// remoteTurn waits for the opponent's action. Only chat commands are
// accepted meanwhile.
func (g *Game) remoteTurn(ctx context.Context, sess battleSession) error {
	g.console.Println("Waiting for the opponent's move...")

	type outcome struct {
		result *session.TurnResult
		err    error
	}
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan outcome, 1)
	go func() {
		r, err := sess.AwaitTurn(turnCtx)
		done <- outcome{r, err}
	}()

	lines := g.console.Lines()
	for {
		select {
		case o := <-done:
			if o.err != nil {
				return o.err
			}
			g.printResult(o.result)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				cancel()
				<-done
				return ErrInputClosed
			}
			if line == "" {
				continue
			}
			cmd, isCmd := parseCommand(line)
			if !isCmd {
				g.console.Println(notYourTurn)
				continue
			}
			if err := g.runCommand(sess, cmd); err != nil {
				return err
			}
		}
	}
}

// runCommand handles a slash command. It only returns an error that should
// end the prompt.
func (g *Game) runCommand(sess battleSession, cmd command) error {
	switch cmd.name {
	case cmdChat:
		if cmd.arg == "" {
			g.console.Println("Usage: /chat <text>")
			return nil
		}
		if err := sess.SendChat(g.player, cmd.arg); err != nil {
			g.console.Printf("Chat not sent: %v\n", err)
		}
	case cmdSticker:
		if cmd.arg == "" {
			g.console.Println("Usage: /sticker <file>")
			return nil
		}
		encoded, err := chat.EncodeFile(cmd.arg)
		if err != nil {
			g.console.Printf("Sticker not sent: %v\n", err)
			return nil
		}
		if err := sess.SendSticker(g.player, encoded); err != nil {
			g.console.Printf("Sticker not sent: %v\n", err)
			return nil
		}
		g.console.Println("Sticker sent.")
	case cmdStatus:
		renderCards(g.console, sess.Local(), sess.Opponent())
	case cmdForfeit:
		if err := sess.Forfeit(); err != nil && !errors.Is(err, session.ErrGameOver) {
			g.logger.Warn().Err(err).Msg("forfeit message not sent")
		}
		return session.ErrGameOver
	case cmdHelp:
		printBattleHelp(g.console)
	default:
		g.console.Printf("Unknown command %s, type /help for commands.\n", cmd.name)
	}
	return nil
}

func (g *Game) printResult(r *session.TurnResult) {
	if r == nil {
		return
	}
	g.console.Println()
	if r.StatusMessage != "" {
		g.console.Println(r.StatusMessage)
	}
	if r.BoostedStat == "" {
		if r.Initiator {
			g.console.Printf("Dealt %d damage, opponent has %d HP left.\n", r.Damage, max(r.DefenderHP, 0))
		} else {
			g.console.Printf("Took %d damage, %d HP left.\n", r.Damage, max(r.DefenderHP, 0))
		}
	}
}

// printChat prints incoming chat until ctx is done, then flushes what is
// already buffered.
func (g *Game) printChat(ctx context.Context, sess battleSession) {
	for {
		select {
		case msg := <-sess.Chat():
			g.showChat(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-sess.Chat():
					g.showChat(msg)
				default:
					return
				}
			}
		}
	}
}

func (g *Game) showChat(msg session.ChatMessage) {
	if msg.Type != protocol.ChatSticker {
		g.console.Printf("\n[%s]: %s\n", msg.Sender, msg.Content)
		return
	}
	path, err := chat.SaveSticker(g.stickerDir, msg.Sender, msg.Content, g.now())
	if err != nil {
		g.logger.Warn().Err(err).Str("sender", msg.Sender).Msg("failed to save sticker")
		g.console.Printf("\n[%s] sent a sticker that could not be saved.\n", msg.Sender)
		return
	}
	g.console.Printf("\n[%s] sent a sticker: %s\n", msg.Sender, path)
}
