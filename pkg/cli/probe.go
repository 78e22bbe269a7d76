package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sand-blocks/tripco-hashicorp-cluster/internal/logger"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/probe"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/snapshot"
	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	var (
		count    int
		interval time.Duration
		timeout  time.Duration
		asJSON   bool
		expect   string
	)

	cmd := &cobra.Command{
		Use:   "probe [url]",
		Short: "Fetch the page repeatedly and report whether it is cached",
		Long: `Fetches the page several times and compares the server time in each
response. A frozen time means a cache answered; an advancing time means
every request reached cachecheckd.

Without a URL, the address from the daemon configuration is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Server times have millisecond resolution
			if interval < time.Millisecond {
				return fmt.Errorf("interval must be at least 1ms, got %s", interval)
			}

			var want probe.Verdict
			if expect != "" {
				v, err := probe.ParseVerdict(expect)
				if err != nil {
					return err
				}
				want = v
			}

			url, err := targetURL(args)
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			log := logger.New(level, "text", cmd.ErrOrStderr())

			p := probe.New(&http.Client{Timeout: timeout}, log, count, interval)
			report, err := p.Run(cmd.Context(), url)
			if err != nil {
				return fmt.Errorf("probe failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := snapshot.Marshal(report)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprintf(out, "Probe of %s:\n", report.URL)
				for i, s := range report.Snapshots {
					fmt.Fprintf(out, "  #%d host=%s time=%s\n", i+1, s.Host, s.Time)
				}
				fmt.Fprintf(out, "Hosts: %s\n", strings.Join(report.Hosts, ", "))
				fmt.Fprintf(out, "Verdict: %s\n", report.Verdict)
			}

			if want != "" && want != report.Verdict {
				return fmt.Errorf("expected %s, got %s", want, report.Verdict)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 3, "Number of requests (minimum 2)")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 1100*time.Millisecond, "Delay between requests (1s or more for a reliable verdict)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&expect, "expect", "", "Fail unless the verdict matches (cached, uncached, partial, inconsistent)")

	return cmd
}
