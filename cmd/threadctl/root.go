package main

import (
	"github.com/spf13/cobra"

	"github.com/vinayprograms/threadkit/bus"
	"github.com/vinayprograms/threadkit/config"
	"github.com/vinayprograms/threadkit/errors"
	"github.com/vinayprograms/threadkit/logging"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "threadctl",
		Short:         "Inspect named threads of running processes",
		Long:          `threadctl reads thread snapshots over HTTP or a message bus and reports stalled threads and silent processes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Config file (TOML or YAML); default searches standard paths")
	root.PersistentFlags().String("bus", "", "Bus backend: nats, redis (overrides config)")
	root.PersistentFlags().String("nats-url", "", "NATS server URL (overrides config)")
	root.PersistentFlags().String("redis-addr", "", "Redis address (overrides config)")
	root.PersistentFlags().String("log-level", "", "Log level (overrides config)")

	root.AddCommand(newListCmd(), newQueryCmd(), newWatchCmd(), newVersionCmd())
	return root
}

// loadConfig reads the config file and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("bus"); v != "" {
		cfg.Introspect.Bus = v
	}
	if v, _ := cmd.Flags().GetString("nats-url"); v != "" {
		cfg.NATS.URL = v
	}
	if v, _ := cmd.Flags().GetString("redis-addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openBus(cfg *config.Config) (bus.MessageBus, error) {
	b, err := cfg.OpenBus()
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.InvalidInput("no bus configured; pass --bus nats or --bus redis")
	}
	return b, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *logging.Logger {
	l := logging.New().WithComponent("threadctl")
	l.SetOutput(cmd.ErrOrStderr())
	l.SetLevel(cfg.LogLevel())
	return l
}
