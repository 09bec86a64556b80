package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pokelink/duelnet/internal/battle"
	"github.com/pokelink/duelnet/internal/config"
	"github.com/pokelink/duelnet/internal/db"
	"github.com/pokelink/duelnet/internal/events"
	"github.com/pokelink/duelnet/internal/gamedata"
	"github.com/pokelink/duelnet/internal/metrics"
	"github.com/pokelink/duelnet/internal/network"
	"github.com/pokelink/duelnet/internal/session"
	"github.com/pokelink/duelnet/internal/util"
)

// ErrNoHosts is returned by Join when a scan finds nobody to battle.
var ErrNoHosts = errors.New("no hosts found on the LAN")

// App wires the link, discovery and session layers to the console for the
// host, join and scan commands.
type App struct {
	cfg     *config.Config
	dex     *gamedata.Dex
	bus     *events.EventBus
	metrics *metrics.Registry
	console *Console
	logger  zerolog.Logger

	mu      sync.Mutex
	current *session.Session
}

// NewApp creates the console application. bus and reg may be nil.
func NewApp(cfg *config.Config, dex *gamedata.Dex, bus *events.EventBus, reg *metrics.Registry, console *Console) *App {
	return &App{
		cfg:     cfg,
		dex:     dex,
		bus:     bus,
		metrics: reg,
		console: console,
		logger:  util.ComponentLogger("cli"),
	}
}

// Status reports the live session for the status API.
func (a *App) Status() (session.Status, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return session.Status{}, false
	}
	return a.current.Status(), true
}

func (a *App) linkMetrics() *metrics.Link {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Link
}

func (a *App) battleMetrics() *metrics.Battle {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Battle
}

func (a *App) newDiscovery() *network.Discovery {
	n := a.cfg.GetNetwork()
	return network.NewDiscovery(network.DiscoveryOptions{
		Port:             n.DiscoveryPort,
		BroadcastAddress: n.BroadcastAddress,
		Interval:         n.BroadcastInterval(),
		Bus:              a.bus,
	})
}

// openSession binds the game socket and starts a session on it. The
// returned cleanup closes the link and waits for its goroutines.
func (a *App) openSession(ctx context.Context, role session.Role) (*session.Session, *network.Channel, func(), error) {
	n := a.cfg.GetNetwork()
	// The host answers whatever port the joiner sends from, so only the host
	// needs the well-known one.
	port := n.GamePort
	if role == session.RoleJoin {
		port = 0
	}
	ch, err := network.NewChannel(network.ChannelOptions{
		BindAddress:   n.BindAddress,
		Port:          port,
		RetryDelay:    n.RetryDelay(),
		MaxRetries:    n.MaxRetries,
		SweepInterval: n.SweepInterval(),
		Metrics:       a.linkMetrics(),
		Bus:           a.bus,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	sess := session.New(ch, session.Options{
		Role:      role,
		QueueSize: n.QueueSize,
		Bus:       a.bus,
		Metrics:   a.battleMetrics(),
	})
	ch.Start(ctx, sess.HandleDelivery)

	a.mu.Lock()
	a.current = sess
	a.mu.Unlock()

	cleanup := func() {
		ch.Close()
		ch.Wait()
	}
	return sess, ch, cleanup, nil
}

// Host advertises a game on the LAN and battles the first challenger.
func (a *App) Host(ctx context.Context) error {
	local, err := a.choosePokemon(ctx)
	if err != nil {
		return err
	}

	sess, ch, cleanup, err := a.openSession(ctx, session.RoleHost)
	if err != nil {
		return err
	}
	defer cleanup()

	disc := a.newDiscovery()
	if err := disc.StartBroadcast(ctx, ch.Port()); err != nil {
		a.logger.Warn().Err(err).Msg("LAN broadcast unavailable, join by address instead")
	}
	defer disc.StopBroadcast()

	a.console.Printf("Hosting on UDP port %d. Waiting for a challenger...\n", ch.Port())
	if err := sess.WaitForPeer(ctx); err != nil {
		return err
	}
	disc.StopBroadcast()
	a.console.Printf("Challenger connected from %s.\n", ch.Peer())

	return a.fight(ctx, sess, local)
}

// Join connects to target ("ip" or "ip:port"), or to a host found by a LAN
// scan when target is empty.
func (a *App) Join(ctx context.Context, target string) error {
	var (
		addr *net.UDPAddr
		err  error
	)
	if target == "" {
		addr, err = a.pickHost(ctx)
	} else {
		addr, err = resolveTarget(target, a.cfg.GetNetwork().GamePort)
	}
	if err != nil {
		return err
	}

	local, err := a.choosePokemon(ctx)
	if err != nil {
		return err
	}

	sess, _, cleanup, err := a.openSession(ctx, session.RoleJoin)
	if err != nil {
		return err
	}
	defer cleanup()

	a.console.Printf("Connecting to %s...\n", addr)
	if err := sess.Connect(ctx, addr); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	a.console.Println("Connected.")

	return a.fight(ctx, sess, local)
}

// Scan listens for host announcements and prints what it found.
func (a *App) Scan(ctx context.Context) network.DiscoveredHosts {
	timeout := a.cfg.GetNetwork().ScanTimeout()
	a.console.Printf("Scanning the LAN for %s...\n", timeout)
	hosts := a.newDiscovery().Scan(ctx, timeout)
	if len(hosts) == 0 {
		a.console.Println("No hosts found.")
		return hosts
	}
	renderHosts(a.console, hosts)
	return hosts
}

func (a *App) pickHost(ctx context.Context) (*net.UDPAddr, error) {
	hosts := a.Scan(ctx)
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}

	ips := sortedHosts(hosts)
	choice := 0
	if len(ips) > 1 {
		for {
			line, err := a.console.ReadLine(ctx, "Join which host? ")
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(line)
			if err == nil && n >= 1 && n <= len(ips) {
				choice = n - 1
				break
			}
			a.console.Printf("Choose a number between 1 and %d.\n", len(ips))
		}
	}
	ip := ips[choice]
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: hosts[ip]}, nil
}

// resolveTarget parses "ip" or "ip:port".
func resolveTarget(target string, defaultPort int) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		host, portStr = target, strconv.Itoa(defaultPort)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid port in %q", target)
	}
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", target, err)
	}
	return addr, nil
}

// choosePokemon uses the configured favourite or asks for one.
func (a *App) choosePokemon(ctx context.Context) (*battle.Pokemon, error) {
	if name := a.cfg.GetPlayer().Pokemon; name != "" {
		if p, ok := a.dex.Get(name); ok {
			a.console.Printf("You chose %s!\n", p.Name)
			return p, nil
		}
		a.logger.Warn().Str("pokemon", name).Msg("configured pokemon not in the dex")
	}

	names := a.dex.Names()
	mons := make([]*battle.Pokemon, 0, len(names))
	for _, n := range names {
		p, _ := a.dex.Get(n)
		mons = append(mons, p)
	}
	renderDex(a.console, mons)

	for {
		line, err := a.console.ReadLine(ctx, "Choose your pokemon: ")
		if err != nil {
			return nil, err
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(mons) {
			a.console.Printf("You chose %s!\n", mons[n-1].Name)
			return mons[n-1], nil
		}
		if p, ok := a.dex.Get(strings.TrimSpace(line)); ok {
			a.console.Printf("You chose %s!\n", p.Name)
			return p, nil
		}
		a.console.Println("Unknown pokemon, pick a number or a name from the list.")
	}
}

func (a *App) fight(ctx context.Context, sess *session.Session, local *battle.Pokemon) error {
	first, err := sess.Setup(ctx, local)
	if err != nil {
		return err
	}

	opponent := sess.Opponent()
	a.console.Printf("\n%s vs %s!\n", local.Name, opponent.Name)
	if first == session.OwnerSelf {
		a.console.Println("You move first.")
	} else {
		a.console.Println("Your opponent moves first.")
	}
	a.console.Println("Type /help for commands.")

	game := NewGame(a.console, a.cfg.GetPlayer().Name, a.cfg.GetChat().StickerDirectory)
	_, err = game.Play(ctx, sess)
	return err
}

// ShowHistory prints the most recent battles and the overall tally.
func (a *App) ShowHistory(h *db.History, limit int) error {
	battles, err := h.ListBattles(limit)
	if err != nil {
		return err
	}
	if len(battles) == 0 {
		a.console.Println("No battles recorded yet.")
		return nil
	}
	renderHistory(a.console, battles)

	tally, err := h.Tally()
	if err != nil {
		return err
	}
	a.console.Printf("%d battles: %d won, %d lost, %d unfinished\n",
		tally.Battles, tally.Wins, tally.Losses, tally.Open)
	return nil
}
