package cli

import (
	"github.com/sand-blocks/tripco-hashicorp-cluster/version"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cachecheck",
		Short: "cachecheck client - checks whether a cache sits in front of cachecheckd",
		Long: `cachecheck talks to a cachecheckd page, directly or through a cache:
- Probe a URL and report whether the server time stays frozen
- Show the effective daemon configuration
- Open the page in your local browser`,
		Version:       version.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newOpenCmd())

	return rootCmd
}
