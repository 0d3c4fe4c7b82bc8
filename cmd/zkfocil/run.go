package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zkfocil/zkfocil/node"
)

func newRunCmd(c *cli) *cobra.Command {
	defaults := node.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the block producer with the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := c.config
			c.logger.Info("Starting zkfocil",
				"version", version,
				"identities", cfg.Identities.Count,
				"policy", cfg.Election.Policy,
				"intervalMs", cfg.Producer.IntervalMs,
				"oracle", cfg.Oracle.URL,
				"api", cfg.API.Enabled,
				"addr", cfg.API.Addr)

			n, err := node.New(cfg, c.logger)
			if err != nil {
				return err
			}
			defer n.Close()

			if err := n.Run(ctx); err != nil {
				return err
			}
			c.logger.Info("Shutdown complete")
			return nil
		},
	}

	fs := cmd.Flags()
	fs.Int64("interval", defaults.Producer.IntervalMs, "block interval in milliseconds")
	fs.Duration("broadcast-delay", defaults.Producer.BroadcastDelay, "simulated gossip latency per block")
	fs.String("api.addr", defaults.API.Addr, "control API listen address")
	fs.Bool("api", defaults.API.Enabled, "serve the control API")
	fs.Bool("metrics", defaults.API.Metrics, "expose /metrics on the control API")

	bind(c.v, fs, "interval", "producer.interval_ms")
	bind(c.v, fs, "broadcast-delay", "producer.broadcast_delay")
	bind(c.v, fs, "api.addr", "api.addr")
	bind(c.v, fs, "api", "api.enabled")
	bind(c.v, fs, "metrics", "api.metrics")
	return cmd
}
