package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/soypat/wl12xx/config"
)

type app struct {
	file   config.File
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	var (
		a          app
		configPath string
		logLevel   string
	)
	rootCmd := &cobra.Command{
		Use:          "wlctl",
		Short:        "wl12xx control-plane toolbox",
		Long:         "wlctl decodes wl12xx event mailbox records, replays mailbox traces through the event dispatcher and simulates traffic through the tx queueing engine.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			f, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				f.Log.Level = logLevel
			}
			lvl, err := f.Level()
			if err != nil {
				return err
			}
			a.file = f
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the TOML configuration file (default: search for wlctl.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn or error")

	rootCmd.AddCommand(
		newDecodeCmd(),
		newReplayCmd(&a),
		newTxsimCmd(&a),
		newConfigCmd(&a),
	)
	return rootCmd
}
