package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sand-blocks/tripco-hashicorp-cluster/internal/logger"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/config"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/opener"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/responder"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/server"
	"github.com/sand-blocks/tripco-hashicorp-cluster/version"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		openPage   bool
		address    string
		network    string
		hostname   string
		pidFile    string
		systemd    bool
	)

	cmd := &cobra.Command{
		Use:   "cachecheckd",
		Short: "Serve a page showing this host and the current time",
		Long: `cachecheckd answers every HTTP request with a small HTML page naming
the host that served it and the server time. Put a cache in front of it:
if caching works, reloading the page shows the same time.`,
		Version:       version.GetFullVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			flags := cmd.Flags()
			if flags.Changed("address") {
				cfg.Address = address
			}
			if flags.Changed("network") {
				cfg.Network = network
			}
			if flags.Changed("hostname") {
				cfg.Hostname = hostname
			}
			if flags.Changed("pid-file") {
				cfg.PIDFile = pidFile
			}
			if flags.Changed("systemd") {
				cfg.Systemd = systemd
			}
			if debug {
				cfg.LogLevel = "debug"
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
			slog.SetDefault(log)

			log.Info("Starting cachecheckd",
				"version", version.GetVersion(),
				"commit", version.Commit,
				"date", version.Date,
			)

			opts := []responder.Option{responder.WithLogger(log)}
			if cfg.Hostname != "" {
				opts = append(opts, responder.WithHostname(responder.StaticHostname(cfg.Hostname)))
			}
			handler := responder.Engine(responder.New(opts...), log)

			serverOpts := []server.Option{server.WithOutput(cmd.OutOrStdout())}
			if openPage {
				serverOpts = append(serverOpts, server.WithReadyHook(opener.New(log).OpenServed))
			}

			srv, err := server.New(cfg, handler, log, serverOpts...)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return srv.Run(ctx)
		},
	}

	defaults := config.DefaultConfig()
	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file (default: "+config.DefaultPath+")")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&openPage, "open", false, "Open the served page in the local browser once listening")
	cmd.Flags().StringVar(&address, "address", defaults.Address, "Address to listen on (host:port or socket path)")
	cmd.Flags().StringVar(&network, "network", defaults.Network, "Listener network: tcp or unix")
	cmd.Flags().StringVar(&hostname, "hostname", "", "Report this host identity instead of the system hostname")
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process ID to this file while running")
	cmd.Flags().BoolVar(&systemd, "systemd", false, "Enable systemd notify, watchdog and socket activation")

	return cmd
}
