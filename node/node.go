package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zkfocil/zkfocil/consensus"
	"github.com/zkfocil/zkfocil/eventlog"
	"github.com/zkfocil/zkfocil/focil"
	"github.com/zkfocil/zkfocil/identity"
	"github.com/zkfocil/zkfocil/log"
	"github.com/zkfocil/zkfocil/metrics"
	"github.com/zkfocil/zkfocil/p2p"
	"github.com/zkfocil/zkfocil/producer"
	"github.com/zkfocil/zkfocil/rpc"
	"github.com/zkfocil/zkfocil/txpool"
)

// ErrNodeRunning is returned by Run when the node is already running.
var ErrNodeRunning = errors.New("node: already running")

// Node owns every subsystem of one simulator instance.
type Node struct {
	config *Config
	log    *log.Logger

	// Subsystems.
	identities *identity.Pool
	generator  *txpool.Generator
	pool       *txpool.Pool
	local      *consensus.LocalOracle
	oracle     consensus.Oracle
	elector    *consensus.Elector
	assembler  *focil.Assembler
	gossip     *p2p.Gossip
	events     *eventlog.Log
	metrics    *metrics.Metrics
	producer   *producer.Producer
	api        *rpc.API
	server     *rpc.Server

	mu      sync.Mutex
	running bool
}

// New creates a Node with the given configuration. It builds all
// subsystems but starts nothing; the chain is created on Run or Simulate.
func New(config *Config, logger *log.Logger) (*Node, error) {
	if config == nil {
		c := DefaultConfig()
		config = &c
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	n := &Node{config: config, log: logger.Module("node")}

	var err error
	if config.Identities.Seed != "" {
		n.identities, err = identity.FromSeed([]byte(config.Identities.Seed), config.Identities.Count)
	} else {
		n.identities, err = identity.Generate(config.Identities.Count)
	}
	if err != nil {
		return nil, fmt.Errorf("init identities: %w", err)
	}

	n.generator = txpool.NewGenerator(config.Pool.Seed)
	n.pool = txpool.New(txpool.Config{MaxSize: config.Pool.MaxSize})

	n.local, err = consensus.NewLocalOracle(config.Election.Threshold)
	if err != nil {
		return nil, fmt.Errorf("init oracle: %w", err)
	}
	n.oracle = n.local
	if config.Oracle.URL != "" {
		remote := consensus.NewRemoteOracle(config.Oracle.URL, config.Oracle.Timeout)
		n.oracle = consensus.NewFallbackOracle(remote, n.local, logger)
	}

	electionConfig, err := config.electionConfig()
	if err != nil {
		return nil, err
	}
	n.elector, err = consensus.NewElector(electionConfig, n.oracle, n.identities, logger)
	if err != nil {
		return nil, fmt.Errorf("init elector: %w", err)
	}
	n.assembler, err = focil.NewAssembler(config.assemblerConfig(), n.generator)
	if err != nil {
		return nil, fmt.Errorf("init assembler: %w", err)
	}

	n.gossip = p2p.NewGossip(config.gossipConfig(), logger)
	n.events = eventlog.New(config.Log.History)
	n.metrics = metrics.New(config.API.RuntimeMetrics)

	n.producer, err = producer.New(config.producerConfig(), producer.Deps{
		Identities:  n.identities,
		Elector:     n.elector,
		Assembler:   n.assembler,
		Synthesizer: n.generator,
		Pool:        n.pool,
		Broadcaster: n.gossip,
		Events:      n.events,
		Metrics:     n.metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init producer: %w", err)
	}

	var metricsHandler http.Handler
	if config.API.Metrics {
		metricsHandler = n.metrics.Handler()
	}
	n.api = rpc.NewAPI(n.producer, n.gossip, metricsHandler, logger)
	if config.API.Enabled {
		n.server = rpc.NewServer(config.API.Addr, n.api.NewRouter(), logger)
	}
	return n, nil
}

// Run starts the producer and, if enabled, the control API, and blocks
// until ctx is canceled or the API server fails.
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrNodeRunning
	}
	n.running = true
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
	}()

	g, ctx := errgroup.WithContext(ctx)
	if err := n.producer.Start(ctx); err != nil {
		return fmt.Errorf("start producer: %w", err)
	}
	n.log.Info("Node started",
		"identities", n.identities.Len(),
		"policy", n.elector.Policy(),
		"interval", n.config.Producer.IntervalMs,
		"remoteOracle", n.config.Oracle.URL != "",
		"api", n.server != nil)

	g.Go(func() error {
		<-ctx.Done()
		n.producer.Stop()
		return nil
	})
	if n.server != nil {
		g.Go(func() error {
			return n.server.Run(ctx)
		})
	}
	err := g.Wait()
	n.log.Info("Node stopped", "height", n.producer.Snapshot().Height())
	return err
}

// Close releases the gossip network. The node cannot be run afterwards.
func (n *Node) Close() error {
	return n.gossip.Close()
}

// ---------------------------------------------------------------------------
// Simulation
// ---------------------------------------------------------------------------

// SimulationStats summarizes a Simulate run.
type SimulationStats struct {
	Attempts    int
	Produced    int
	Rejected    int
	Failed      int
	Forced      int
	Home        int
	Synthesized int
	Height      int
}

// ElectionRate returns the share of attempts that produced a block.
func (s *SimulationStats) ElectionRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Produced) / float64(s.Attempts)
}

// Simulate runs attempts synchronous production attempts without the timer
// and verifies the chain afterwards. progress, if set, is called after each
// attempt.
func (n *Node) Simulate(ctx context.Context, attempts int, progress func()) (*SimulationStats, error) {
	if err := n.producer.Initialize(); err != nil {
		return nil, err
	}
	stats := &SimulationStats{}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		a, err := n.producer.Tick(ctx)
		stats.Attempts++
		switch {
		case err != nil:
			stats.Failed++
		case a.Block != nil:
			stats.Produced++
			stats.Synthesized += a.List.Synthesized()
			if a.Decision.Forced {
				stats.Forced++
			}
			if a.Decision.Home {
				stats.Home++
			}
		default:
			stats.Rejected++
		}
		if progress != nil {
			progress()
		}
	}

	chain := n.producer.Chain()
	stats.Height = chain.Len()
	if err := chain.Verify(); err != nil {
		return stats, err
	}
	return stats, nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Config returns the node configuration.
func (n *Node) Config() *Config { return n.config }

// Producer returns the block producer.
func (n *Node) Producer() *producer.Producer { return n.producer }

// Identities returns the validator set.
func (n *Node) Identities() *identity.Pool { return n.identities }

// Elector returns the election policy in use.
func (n *Node) Elector() *consensus.Elector { return n.elector }

// Metrics returns the node's instruments.
func (n *Node) Metrics() *metrics.Metrics { return n.metrics }

// Handler returns the control API router, regardless of whether the API
// server is enabled.
func (n *Node) Handler() http.Handler { return n.api.NewRouter() }

// Running reports whether Run is in progress.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}
