package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zkfocil/zkfocil/consensus"
	"github.com/zkfocil/zkfocil/rpc"
)

// defaultOracleAddr is where the proof oracle listens by default.
const defaultOracleAddr = ":3001"

func newOracleCmd(c *cli) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Serve the mock zero-knowledge proof oracle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			local, err := consensus.NewLocalOracle(c.config.Election.Threshold)
			if err != nil {
				return err
			}
			c.logger.Info("Starting proof oracle", "addr", listen, "threshold", local.Threshold())
			svc := rpc.NewOracleService(local, nil, c.logger)
			return rpc.NewServer(listen, svc.NewRouter(), c.logger).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", defaultOracleAddr, "listen address")
	return cmd
}
