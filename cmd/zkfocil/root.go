package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zkfocil/zkfocil/log"
	"github.com/zkfocil/zkfocil/node"
)

// cli carries state shared by the subcommands.
type cli struct {
	v       *viper.Viper
	cfgFile string

	config *node.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: node.NewViper()}
	defaults := node.DefaultConfig()

	root := &cobra.Command{
		Use:           "zkfocil",
		Short:         "zk-FOCIL proof-of-stake block production simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (yaml, toml or json)")
	pf.Int("verbosity", defaults.Log.Verbosity, "log level 0-5 (0=errors, 5=trace)")
	pf.String("log.format", defaults.Log.Format, "log format (terminal, json)")
	pf.Int("identities", defaults.Identities.Count, "number of validators")
	pf.String("seed", defaults.Identities.Seed, "derive validator keys from this seed (random when empty)")
	pf.String("policy", defaults.Election.Policy, "election policy (threshold, modulo, lottery)")
	pf.String("home", defaults.Election.Home, "home validator address (modulo rule when empty)")
	pf.Bool("force-home", defaults.Election.ForceHome, "always elect the home validator")
	pf.Float64("threshold", defaults.Election.Threshold, "eligibility threshold of the local oracle")
	pf.String("oracle.url", defaults.Oracle.URL, "remote proof oracle base URL (local oracle when empty)")

	bind(c.v, pf, "verbosity", "log.verbosity")
	bind(c.v, pf, "log.format", "log.format")
	bind(c.v, pf, "identities", "identities.count")
	bind(c.v, pf, "seed", "identities.seed")
	bind(c.v, pf, "policy", "election.policy")
	bind(c.v, pf, "home", "election.home")
	bind(c.v, pf, "force-home", "election.force_home")
	bind(c.v, pf, "threshold", "election.threshold")
	bind(c.v, pf, "oracle.url", "oracle.url")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return c.load(cmd)
	}

	root.AddCommand(
		newRunCmd(c),
		newOracleCmd(c),
		newSimulateCmd(c),
		newLotteryCmd(c),
		newVersionCmd(),
	)
	return root
}

// load resolves the configuration and installs the default logger.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := node.LoadConfig(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	logger, err := log.NewWithFormat(cmd.ErrOrStderr(), cfg.Log.Format, log.VerbosityToLevel(cfg.Log.Verbosity))
	if err != nil {
		return err
	}
	log.SetDefault(logger)
	c.config = cfg
	c.logger = logger
	return nil
}

// bind maps flag name in fs to a viper key. A missing flag is a programming
// error.
func bind(v *viper.Viper, fs *pflag.FlagSet, name, key string) {
	if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
		panic(err)
	}
}
