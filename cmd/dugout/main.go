package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dugoutlabs/dugout-client/internal/config"
	"github.com/dugoutlabs/dugout-client/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "dugout",
		Short:         "Dugout ticket marketplace client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newLoginCmd(flags))
	cmd.AddCommand(newChatCmd(flags))
	return cmd
}

// loadConfig resolves configuration and builds the logger for a command run.
func loadConfig(flags *rootFlags) (config.Config, *zerolog.Logger, error) {
	bootLog := log.New("info", true)
	cfg, path, err := config.Load(bootLog, flags.configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, log.New(cfg.LogLevel, true), nil
}
