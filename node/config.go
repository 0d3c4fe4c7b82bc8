// Package node wires the identity pool, transaction pool, election oracle,
// inclusion-list assembler, gossip, producer and control API into one
// runnable simulator.
package node

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/zkfocil/zkfocil/consensus"
	"github.com/zkfocil/zkfocil/eventlog"
	"github.com/zkfocil/zkfocil/focil"
	"github.com/zkfocil/zkfocil/log"
	"github.com/zkfocil/zkfocil/p2p"
	"github.com/zkfocil/zkfocil/producer"
	"github.com/zkfocil/zkfocil/txpool"
)

// EnvPrefix prefixes environment overrides, e.g. ZKFOCIL_PRODUCER_INTERVAL_MS.
const EnvPrefix = "ZKFOCIL"

// Defaults not owned by a component package.
const (
	DefaultIdentityCount = 50
	DefaultAPIAddr       = "127.0.0.1:8080"
	DefaultVerbosity     = 3
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("node: invalid config")

// Config holds all configuration for a simulator node.
type Config struct {
	Identities IdentityConfig `mapstructure:"identities"`
	Producer   ProducerConfig `mapstructure:"producer"`
	Pool       PoolConfig     `mapstructure:"pool"`
	Election   ElectionConfig `mapstructure:"election"`
	Oracle     OracleConfig   `mapstructure:"oracle"`
	API        APIConfig      `mapstructure:"api"`
	Log        LogConfig      `mapstructure:"log"`
}

// IdentityConfig controls the validator set.
type IdentityConfig struct {
	// Count is the number of validators.
	Count int `mapstructure:"count"`

	// Seed derives keys deterministically. Empty generates fresh keys.
	Seed string `mapstructure:"seed"`
}

// ProducerConfig controls scheduling and block layout.
type ProducerConfig struct {
	IntervalMs      int64 `mapstructure:"interval_ms"`
	InitialPoolSize int   `mapstructure:"initial_pool_size"`
	ReplenishBatch  int   `mapstructure:"replenish_batch"`
	TxPerBlock      int   `mapstructure:"tx_per_block"`
	HomeIncluded    int   `mapstructure:"home_included"`

	// BroadcastDelay is the simulated gossip latency per block.
	BroadcastDelay time.Duration `mapstructure:"broadcast_delay"`
}

// PoolConfig controls the transaction pool and generator.
type PoolConfig struct {
	MaxSize int `mapstructure:"max_size"`

	// Seed seeds the transaction generator. Zero picks a random seed.
	Seed uint64 `mapstructure:"seed"`
}

// ElectionConfig selects the election policy and home validator.
type ElectionConfig struct {
	Policy          string  `mapstructure:"policy"`
	Home            string  `mapstructure:"home"`
	ForceHome       bool    `mapstructure:"force_home"`
	Threshold       float64 `mapstructure:"threshold"`
	TargetIncluders int     `mapstructure:"target_includers"`
}

// OracleConfig points at an optional remote proof oracle. With an empty URL
// only the local oracle is used.
type OracleConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// APIConfig controls the HTTP control API.
type APIConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Addr           string `mapstructure:"addr"`
	Metrics        bool   `mapstructure:"metrics"`
	RuntimeMetrics bool   `mapstructure:"runtime_metrics"`
}

// LogConfig controls structured logging and the activity log.
type LogConfig struct {
	// Verbosity is 0 (errors only) to 5 (trace).
	Verbosity int    `mapstructure:"verbosity"`
	Format    string `mapstructure:"format"`

	// History is the number of activity log entries retained.
	History int `mapstructure:"history"`

	// Window is the number of activity log entries in a status snapshot.
	Window int `mapstructure:"window"`
}

// DefaultConfig returns a 50 validator network producing a block every 12
// seconds with the control API on DefaultAPIAddr.
func DefaultConfig() Config {
	prod := producer.DefaultConfig()
	layout := focil.DefaultConfig()
	election := consensus.DefaultElectionConfig()
	return Config{
		Identities: IdentityConfig{Count: DefaultIdentityCount},
		Producer: ProducerConfig{
			IntervalMs:      prod.IntervalMs,
			InitialPoolSize: prod.InitialPoolSize,
			ReplenishBatch:  prod.ReplenishBatch,
			TxPerBlock:      layout.TxPerBlock,
			HomeIncluded:    layout.HomeIncluded,
			BroadcastDelay:  p2p.DefaultDelay,
		},
		Pool: PoolConfig{MaxSize: txpool.MaxPoolSize},
		Election: ElectionConfig{
			Policy:          string(election.Policy),
			ForceHome:       election.ForceHome,
			Threshold:       consensus.DefaultThreshold,
			TargetIncluders: election.TargetIncluders,
		},
		Oracle: OracleConfig{Timeout: consensus.DefaultRemoteTimeout},
		API: APIConfig{
			Enabled: true,
			Addr:    DefaultAPIAddr,
			Metrics: true,
		},
		Log: LogConfig{
			Verbosity: DefaultVerbosity,
			Format:    log.FormatTerminal,
			History:   eventlog.DefaultCapacity,
			Window:    prod.LogWindow,
		},
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Identities.Count < 2 {
		return fmt.Errorf("%w: identities.count must be at least 2, got %d", ErrInvalidConfig, c.Identities.Count)
	}
	if err := c.producerConfig().Validate(); err != nil {
		return err
	}
	if err := c.assemblerConfig().Validate(); err != nil {
		return err
	}
	if c.Producer.BroadcastDelay < 0 {
		return fmt.Errorf("%w: producer.broadcast_delay %v", ErrInvalidConfig, c.Producer.BroadcastDelay)
	}
	if c.Pool.MaxSize <= 0 {
		return fmt.Errorf("%w: pool.max_size %d", ErrInvalidConfig, c.Pool.MaxSize)
	}
	if c.Producer.InitialPoolSize > c.Pool.MaxSize {
		return fmt.Errorf("%w: producer.initial_pool_size %d exceeds pool.max_size %d",
			ErrInvalidConfig, c.Producer.InitialPoolSize, c.Pool.MaxSize)
	}
	if _, err := c.electionConfig(); err != nil {
		return err
	}
	if c.Election.Threshold < 0 || c.Election.Threshold >= 1 {
		return fmt.Errorf("%w: election.threshold %v", ErrInvalidConfig, c.Election.Threshold)
	}
	if c.Election.TargetIncluders <= 0 {
		return fmt.Errorf("%w: election.target_includers %d", ErrInvalidConfig, c.Election.TargetIncluders)
	}
	if c.Oracle.URL != "" {
		u, err := url.Parse(c.Oracle.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: oracle.url %q", ErrInvalidConfig, c.Oracle.URL)
		}
	}
	if c.Oracle.Timeout < 0 {
		return fmt.Errorf("%w: oracle.timeout %v", ErrInvalidConfig, c.Oracle.Timeout)
	}
	if c.API.Enabled && c.API.Addr == "" {
		return fmt.Errorf("%w: api.addr must not be empty", ErrInvalidConfig)
	}
	if c.Log.Verbosity < 0 || c.Log.Verbosity > 5 {
		return fmt.Errorf("%w: log.verbosity %d", ErrInvalidConfig, c.Log.Verbosity)
	}
	switch c.Log.Format {
	case log.FormatJSON, log.FormatTerminal, "text":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	if c.Log.History < 0 {
		return fmt.Errorf("%w: log.history %d", ErrInvalidConfig, c.Log.History)
	}
	return nil
}

func (c *Config) producerConfig() producer.Config {
	return producer.Config{
		IntervalMs:      c.Producer.IntervalMs,
		InitialPoolSize: c.Producer.InitialPoolSize,
		ReplenishBatch:  c.Producer.ReplenishBatch,
		LogWindow:       c.Log.Window,
	}
}

func (c *Config) assemblerConfig() focil.Config {
	return focil.Config{
		TxPerBlock:   c.Producer.TxPerBlock,
		HomeIncluded: c.Producer.HomeIncluded,
	}
}

func (c *Config) electionConfig() (consensus.ElectionConfig, error) {
	policy, err := consensus.ParsePolicy(c.Election.Policy)
	if err != nil {
		return consensus.ElectionConfig{}, err
	}
	var home common.Address
	if c.Election.Home != "" {
		if !common.IsHexAddress(c.Election.Home) {
			return consensus.ElectionConfig{}, fmt.Errorf("%w: election.home %q", ErrInvalidConfig, c.Election.Home)
		}
		home = common.HexToAddress(c.Election.Home)
	}
	return consensus.ElectionConfig{
		Policy:          policy,
		Home:            home,
		ForceHome:       c.Election.ForceHome,
		TargetIncluders: c.Election.TargetIncluders,
	}, nil
}

func (c *Config) gossipConfig() p2p.GossipConfig {
	return p2p.GossipConfig{Delay: c.Producer.BroadcastDelay, Topic: p2p.DefaultBlockTopic}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// NewViper returns a viper instance with every key defaulted from
// DefaultConfig and environment overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("identities.count", c.Identities.Count)
	v.SetDefault("identities.seed", c.Identities.Seed)

	v.SetDefault("producer.interval_ms", c.Producer.IntervalMs)
	v.SetDefault("producer.initial_pool_size", c.Producer.InitialPoolSize)
	v.SetDefault("producer.replenish_batch", c.Producer.ReplenishBatch)
	v.SetDefault("producer.tx_per_block", c.Producer.TxPerBlock)
	v.SetDefault("producer.home_included", c.Producer.HomeIncluded)
	v.SetDefault("producer.broadcast_delay", c.Producer.BroadcastDelay)

	v.SetDefault("pool.max_size", c.Pool.MaxSize)
	v.SetDefault("pool.seed", c.Pool.Seed)

	v.SetDefault("election.policy", c.Election.Policy)
	v.SetDefault("election.home", c.Election.Home)
	v.SetDefault("election.force_home", c.Election.ForceHome)
	v.SetDefault("election.threshold", c.Election.Threshold)
	v.SetDefault("election.target_includers", c.Election.TargetIncluders)

	v.SetDefault("oracle.url", c.Oracle.URL)
	v.SetDefault("oracle.timeout", c.Oracle.Timeout)

	v.SetDefault("api.enabled", c.API.Enabled)
	v.SetDefault("api.addr", c.API.Addr)
	v.SetDefault("api.metrics", c.API.Metrics)
	v.SetDefault("api.runtime_metrics", c.API.RuntimeMetrics)

	v.SetDefault("log.verbosity", c.Log.Verbosity)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.history", c.Log.History)
	v.SetDefault("log.window", c.Log.Window)
}

// LoadConfig reads the optional config file at path (YAML, TOML or JSON by
// extension), applies environment overrides and validates the result.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithMessage(err, "error reading config file")
		}
	}
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WithMessage(err, "error decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid config")
	}
	return &cfg, nil
}
