package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/zkfocil/zkfocil/node"
)

func newSimulateCmd(c *cli) *cobra.Command {
	var (
		attempts   int
		showLog    int
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run production attempts back to back and report election statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if attempts <= 0 {
				return fmt.Errorf("--attempts must be positive, got %d", attempts)
			}
			cfg := *c.config
			cfg.API.Enabled = false
			cfg.Producer.BroadcastDelay = 0

			n, err := node.New(&cfg, c.logger)
			if err != nil {
				return err
			}
			defer n.Close()

			var bar *progressbar.ProgressBar
			var progress func()
			if !noProgress {
				bar = progressbar.NewOptions(
					attempts,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionClearOnFinish(),
					progressbar.OptionSetDescription("Producing blocks..."),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "=",
						SaucerHead:    ">",
						SaucerPadding: " ",
						BarStart:      "[",
						BarEnd:        "]",
					}),
				)
				if err := bar.RenderBlank(); err != nil {
					return fmt.Errorf("failed to render progress bar: %w", err)
				}
				progress = func() { _ = bar.Add(1) }
			}

			stats, err := n.Simulate(cmd.Context(), attempts, progress)
			if bar != nil {
				if ferr := bar.Finish(); ferr != nil && err == nil {
					err = fmt.Errorf("failed to finish progress bar: %w", ferr)
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printStats(out, &cfg, stats)
			if showLog > 0 {
				fmt.Fprintln(out)
				for _, line := range n.Producer().Events().Lines(showLog) {
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.IntVar(&attempts, "attempts", 100, "number of production attempts")
	fs.IntVar(&showLog, "show-log", 0, "print the last N activity log lines")
	fs.BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func printStats(w io.Writer, cfg *node.Config, s *node.SimulationStats) {
	fmt.Fprintf(w, "Policy:         %s (force home: %v)\n", cfg.Election.Policy, cfg.Election.ForceHome)
	fmt.Fprintf(w, "Validators:     %d\n", cfg.Identities.Count)
	fmt.Fprintf(w, "Attempts:       %d\n", s.Attempts)
	fmt.Fprintf(w, "Blocks:         %d (%.1f%%)\n", s.Produced, s.ElectionRate()*100)
	fmt.Fprintf(w, "Not elected:    %d\n", s.Rejected)
	fmt.Fprintf(w, "Failed:         %d\n", s.Failed)
	fmt.Fprintf(w, "Home blocks:    %d (%d forced)\n", s.Home, s.Forced)
	fmt.Fprintf(w, "Synthesized tx: %d\n", s.Synthesized)
	fmt.Fprintf(w, "Chain height:   %d (verified)\n", s.Height)
}
