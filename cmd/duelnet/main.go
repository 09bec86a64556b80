// duelnet - two-player turn-based monster battles over a LAN.
//
// One player hosts and advertises the game by UDP broadcast, the other scans
// for it or joins by address. Both sides then run the same turn-sync
// protocol over a reliable UDP channel, with chat and stickers on the side.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pokelink/duelnet/internal/cli"
)

// AppVersion is overridden at build time with -ldflags "-X main.AppVersion=...".
var AppVersion = "dev"

const banner = `
     _            _            _
  __| |_   _  ___| |_ __   ___| |_
 / _' | | | |/ _ \ | '_ \ / _ \ __|
| (_| | |_| |  __/ | | | |  __/ |_
 \__,_|\__,_|\___|_|_| |_|\___|\__|  v%s
`

type rootFlags struct {
	configDir string
	envFile   string
	logLevel  string
	name      string
	pokemon   string
	verbose   bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("duelnet exited with an error")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "duelnet",
		Short:         "Turn-based monster battles over a LAN",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configDir, "config", "config", "configuration directory")
	pf.StringVar(&flags.envFile, "env-file", ".env", "optional file of DUELNET_* overrides")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&flags.name, "name", "", "player name shown to the opponent")
	pf.StringVar(&flags.pokemon, "pokemon", "", "pokemon to battle with")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log every packet (debug level)")

	root.AddCommand(
		newHostCommand(flags),
		newJoinCommand(flags),
		newScanCommand(flags),
		newHistoryCommand(flags),
		newSetupCommand(flags),
		newVersionCommand(),
	)
	return root
}

func newHostCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Host a battle and advertise it on the LAN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(flags, true)
			if err != nil {
				return err
			}
			if err := rt.checkGamePort(); err != nil {
				rt.close()
				return err
			}
			return rt.play(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				return app.Host(ctx)
			})
		},
	}
}

func newJoinCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "join [address]",
		Short: "Join a battle by address (ip or ip:port), or scan the LAN for one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			rt, err := newRuntime(flags, true)
			if err != nil {
				return err
			}
			return rt.play(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				return app.Join(ctx, target)
			})
		},
	}
}

func newScanCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List hosts advertising a battle on the LAN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(flags, false)
			if err != nil {
				return err
			}
			defer rt.close()
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			rt.app().Scan(ctx)
			return nil
		},
	}
}

func newHistoryCommand(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded battles",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := newRuntime(flags, false)
			if err != nil {
				return err
			}
			defer rt.close()
			h, err := rt.openHistory()
			if err != nil {
				return err
			}
			if h == nil {
				return fmt.Errorf("battle history is disabled (storage.enabled=false)")
			}
			return rt.app().ShowHistory(h, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of battles to show")
	return cmd
}

func newSetupCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Run the interactive configuration wizard",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := newRuntime(flags, false)
			if err != nil {
				return err
			}
			defer rt.close()
			return rt.setupWizard()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the duelnet version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), banner, AppVersion)
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
