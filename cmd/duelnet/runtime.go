package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pokelink/duelnet/internal/api"
	"github.com/pokelink/duelnet/internal/cli"
	"github.com/pokelink/duelnet/internal/config"
	"github.com/pokelink/duelnet/internal/db"
	"github.com/pokelink/duelnet/internal/events"
	"github.com/pokelink/duelnet/internal/gamedata"
	"github.com/pokelink/duelnet/internal/metrics"
	"github.com/pokelink/duelnet/internal/telemetry"
	"github.com/pokelink/duelnet/internal/util"
)

// runtime holds what a command needs once configuration is settled.
type runtime struct {
	cfg     *config.Config
	dex     *gamedata.Dex
	bus     *events.EventBus
	reg     *metrics.Registry
	history *db.History
	logFile *os.File

	appOnce sync.Once
	cliApp  *cli.App
}

// newRuntime loads configuration in order of precedence: file, .env and
// environment, then flags. withDex also loads the game data.
func newRuntime(flags *rootFlags, withDex bool) (*runtime, error) {
	if err := config.LoadEnvFile(flags.envFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", flags.envFile, err)
	}

	cfg, err := config.Load(flags.configDir)
	if err != nil {
		return nil, err
	}
	if applied := cfg.ApplyEnv(os.LookupEnv); len(applied) > 0 {
		log.Debug().Strs("vars", applied).Msg("applied environment overrides")
	}

	player := cfg.GetPlayer()
	if flags.name != "" {
		player.Name = flags.name
	}
	if flags.pokemon != "" {
		player.Pokemon = flags.pokemon
	}
	if player.Name == "" {
		player.Name = util.DefaultPlayerName()
	}
	cfg.SetPlayer(player)

	if flags.logLevel != "" {
		cfg.SetLogLevel(flags.logLevel)
	}
	if flags.verbose {
		cfg.SetLogLevel("debug")
	}

	result := config.Validate(cfg)
	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !result.IsValid() {
		for _, e := range result.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return nil, fmt.Errorf("configuration in %s is invalid, run 'duelnet setup' or fix the errors above", cfg.Path())
	}

	logCfg := cfg.GetLogging()
	logFile, err := util.InitLogger(util.LogConfig{
		Level:         logCfg.Level,
		Directory:     logCfg.Directory,
		RetentionDays: logCfg.RetentionDays,
		Console:       flags.verbose,
	})
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:     cfg,
		bus:     events.NewEventBus(),
		reg:     metrics.New(),
		logFile: logFile,
	}

	if withDex {
		data := cfg.GetData()
		rt.dex, err = gamedata.Load(data.PokemonFile, data.MovesFile)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("failed to load game data: %w", err)
		}
		log.Debug().Int("pokemon", rt.dex.Len()).Msg("game data loaded")
	}

	return rt, nil
}

func (rt *runtime) app() *cli.App {
	rt.appOnce.Do(func() {
		rt.cliApp = cli.NewApp(rt.cfg, rt.dex, rt.bus, rt.reg, cli.NewConsole(os.Stdin, os.Stdout))
	})
	return rt.cliApp
}

// openHistory opens the history database once. It returns nil when storage
// is disabled.
func (rt *runtime) openHistory() (*db.History, error) {
	if rt.history != nil {
		return rt.history, nil
	}
	storage := rt.cfg.GetStorage()
	if !storage.Enabled {
		return nil, nil
	}
	h, err := db.NewHistory(storage.Path)
	if err != nil {
		return nil, err
	}
	rt.history = h
	return h, nil
}

// play starts the optional services, runs fn and shuts everything down.
func (rt *runtime) play(parent context.Context, fn func(context.Context, *cli.App) error) error {
	defer rt.close()

	ctx, stop := signalContext(parent)
	defer stop()

	log.Info().
		Str("version", AppVersion).
		Str("player", rt.cfg.GetPlayer().Name).
		Msg("starting duelnet")

	servicesCtx, stopServices := context.WithCancel(ctx)
	var wg sync.WaitGroup
	rt.startServices(servicesCtx, &wg)

	err := fn(ctx, rt.app())

	stopServices()
	rt.bus.Emit(context.Background(), events.Event{Type: events.EventShutdown, Source: "main"})
	rt.bus.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("services did not stop in time")
	}

	if errors.Is(err, context.Canceled) {
		fmt.Println("\nInterrupted.")
		return nil
	}
	return err
}

// checkGamePort fails when the host's game port is already bound locally.
func (rt *runtime) checkGamePort() error {
	if port := rt.cfg.GetNetwork().GamePort; !config.IsUDPPortAvailable(port) {
		return fmt.Errorf("game port %d is already in use, pick another with DUELNET_GAME_PORT or 'duelnet setup'", port)
	}
	return nil
}

func (rt *runtime) startServices(ctx context.Context, wg *sync.WaitGroup) {
	history, err := rt.openHistory()
	if err != nil {
		log.Warn().Err(err).Msg("battle history unavailable")
	}
	if history != nil {
		history.Subscribe(rt.bus)
	}

	if mqttCfg := rt.cfg.GetMQTT(); mqttCfg.Enabled {
		handler, err := telemetry.NewMQTTHandler(mqttCfg, util.GetHostInfo(), rt.cfg.GetPlayer().Name)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := handler.Start(ctx, rt.bus); err != nil {
					log.Warn().Err(err).Msg("MQTT telemetry failed")
				}
			}()
		}
	}

	if apiCfg := rt.cfg.GetAPI(); apiCfg.Enabled {
		opts := api.Options{
			Config:   apiCfg,
			Player:   rt.cfg.GetPlayer().Name,
			Version:  AppVersion,
			Status:   rt.app().Status,
			Gatherer: rt.reg.Registry,
		}
		// A nil *db.History must not become a non-nil interface.
		if history != nil {
			opts.History = history
		}
		server := api.NewServer(opts)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("status API failed")
			}
		}()
	}
}

func (rt *runtime) setupWizard() error {
	return config.RunSetupWizard(rt.cfg, os.Stdin, os.Stdout, rt.cfg.GetPlayer().Name)
}

func (rt *runtime) close() {
	if rt.history != nil {
		if err := rt.history.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close history database")
		}
		rt.history = nil
	}
	if rt.logFile != nil {
		rt.logFile.Close()
		rt.logFile = nil
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
