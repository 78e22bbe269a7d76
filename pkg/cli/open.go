package cli

import (
	"fmt"
	"log/slog"

	"github.com/sand-blocks/tripco-hashicorp-cluster/internal/logger"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/opener"
	"github.com/spf13/cobra"
)

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open [url]",
		Short: "Open the page in the local browser",
		Long:  `Opens the given URL, or the configured daemon address, in the default browser.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := targetURL(args)
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			log := logger.New(level, "text", cmd.ErrOrStderr())

			if err := opener.New(log).OpenURL(url); err != nil {
				return err
			}

			if verbose {
				fmt.Fprintln(cmd.OutOrStdout(), "URL opened successfully")
			}
			return nil
		},
	}
}
