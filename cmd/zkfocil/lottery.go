package main

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zkfocil/zkfocil/consensus"
	"github.com/zkfocil/zkfocil/identity"
)

func newLotteryCmd(c *cli) *cobra.Command {
	var (
		validators int
		slot       uint64
		target     int
	)
	cmd := &cobra.Command{
		Use:   "lottery",
		Short: "Run the key-image includer lottery for one slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if validators <= 0 {
				return fmt.Errorf("--validators must be positive, got %d", validators)
			}
			var (
				ids *identity.Pool
				err error
			)
			if seed := c.config.Identities.Seed; seed != "" {
				ids, err = identity.FromSeed([]byte(seed), validators)
			} else {
				ids, err = identity.Generate(validators)
			}
			if err != nil {
				return err
			}
			keys := make([]*ecdsa.PrivateKey, ids.Len())
			for i := range keys {
				keys[i] = ids.At(i).Key
			}

			lottery := consensus.NewLottery(target)
			res, err := lottery.Run(keys, slot)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Slot %d: %d of %d validators selected as includers (%.2f%%, modulus %d)\n",
				res.Slot, len(res.Winners), res.Validators, res.Percentage(), lottery.Modulus(validators))
			for _, i := range res.Winners {
				fmt.Fprintf(out, "  #%-5d %s\n", i, ids.At(i).Address.Hex())
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.IntVar(&validators, "validators", 1000, "number of validators")
	fs.Uint64Var(&slot, "slot", 0, "slot number")
	fs.IntVar(&target, "target", consensus.DefaultTargetIncluders, "expected number of includers")
	return cmd
}
