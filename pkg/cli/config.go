package cli

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Display daemon configuration",
		Long:  `Displays the configuration cachecheckd would run with, and where it looks for it.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "cachecheck Configuration:")
			fmt.Fprintf(out, "  Network: %s\n", cfg.Network)
			fmt.Fprintf(out, "  Address: %s\n", cfg.Address)
			fmt.Fprintf(out, "  Log Level: %s\n", cfg.LogLevel)
			fmt.Fprintf(out, "  Log Format: %s\n", cfg.LogFormat)
			if cfg.Hostname != "" {
				fmt.Fprintf(out, "  Hostname Override: %s\n", cfg.Hostname)
			}
			if cfg.PIDFile != "" {
				fmt.Fprintf(out, "  PID File: %s\n", cfg.PIDFile)
			}
			fmt.Fprintf(out, "  Systemd: %t\n", cfg.Systemd)

			timeouts, _ := cfg.Timeouts()
			fmt.Fprintf(out, "  Timeouts: read-header=%s read=%s write=%s idle=%s shutdown=%s\n",
				timeouts.ReadHeader, timeouts.Read, timeouts.Write, timeouts.Idle, timeouts.Shutdown)

			if cfg.Network == "unix" {
				if _, err := os.Stat(cfg.Address); err == nil {
					fmt.Fprintf(out, "  Socket Status: Active\n")
				} else if os.IsNotExist(err) {
					fmt.Fprintf(out, "  Socket Status: Not found (daemon may not be running)\n")
				}
			} else if url, err := configURL(cfg); err == nil {
				fmt.Fprintf(out, "  Page URL: %s\n", url)
			}

			searchPaths := []string{config.DefaultPath}
			if configPath != "" {
				searchPaths = []string{configPath}
			}

			fmt.Fprintf(out, "\nConfig Search Paths:\n")
			for _, path := range searchPaths {
				expanded, _ := homedir.Expand(path)
				if _, err := os.Stat(expanded); err == nil {
					fmt.Fprintf(out, "  %s (found)\n", path)
				} else {
					fmt.Fprintf(out, "  %s\n", path)
				}
			}

			return nil
		},
	}
}
