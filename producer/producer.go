// Package producer drives block production. A timer fires every interval;
// each fire rotates to the next identity, asks the elector whether it may
// propose and, if so, assembles, broadcasts and appends a block. At most
// one attempt runs at a time.
package producer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zkfocil/zkfocil/consensus"
	"github.com/zkfocil/zkfocil/core"
	"github.com/zkfocil/zkfocil/core/types"
	"github.com/zkfocil/zkfocil/eventlog"
	"github.com/zkfocil/zkfocil/focil"
	"github.com/zkfocil/zkfocil/identity"
	"github.com/zkfocil/zkfocil/log"
	"github.com/zkfocil/zkfocil/metrics"
	"github.com/zkfocil/zkfocil/txpool"
)

// Producer errors.
var (
	ErrNotInitialized  = errors.New("producer: not initialized")
	ErrBusy            = errors.New("producer: attempt already in progress")
	ErrHalted          = errors.New("producer: halted")
	ErrInvalidInterval = errors.New("producer: interval out of range")
	ErrAlreadyRunning  = errors.New("producer: already running")
	ErrMissingDep      = errors.New("producer: missing dependency")
)

// Skip reasons reported to metrics.
const (
	skipUninitialized = "uninitialized"
	skipBusy          = "busy"
	skipHalted        = "halted"
)

// Elector decides whether a candidate may propose.
type Elector interface {
	Elect(ctx context.Context, addr common.Address, nonce uint64) (*consensus.Decision, error)
}

// Broadcaster announces a block to the network. It may block for the
// simulated latency and must honour ctx.
type Broadcaster interface {
	Broadcast(ctx context.Context, block *types.Block) error
}

// Deps are the collaborators a Producer drives.
type Deps struct {
	Identities  *identity.Pool
	Elector     Elector
	Assembler   *focil.Assembler
	Synthesizer focil.Synthesizer
	Pool        *txpool.Pool
	Broadcaster Broadcaster

	// Optional.
	Events  *eventlog.Log
	Metrics *metrics.Metrics
	Logger  *log.Logger
	Clock   func() time.Time
}

// Attempt summarizes one production attempt.
type Attempt struct {
	BlockID        uint64
	Candidate      common.Address
	CandidateIndex int
	Decision       *consensus.Decision
	List           *focil.InclusionList
	Block          *types.Block
}

// Producer owns the chain and the pool and mutates them only from
// attempts.
type Producer struct {
	deps   Deps
	events *eventlog.Log
	m      *metrics.Metrics
	log    *log.Logger
	now    func() time.Time

	mu         sync.Mutex
	chain      *core.Chain
	producing  bool
	halted     bool
	running    bool
	intervalMs int64
	nodeIndex  int
	logWindow  int

	initialPoolSize int
	replenishBatch  int

	cancel   context.CancelFunc
	done     chan struct{}
	attempts sync.WaitGroup
}

// New creates a Producer in the Uninitialized state.
func New(config Config, deps Deps) (*Producer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Identities == nil:
		return nil, fmt.Errorf("%w: identities", ErrMissingDep)
	case deps.Elector == nil:
		return nil, fmt.Errorf("%w: elector", ErrMissingDep)
	case deps.Assembler == nil:
		return nil, fmt.Errorf("%w: assembler", ErrMissingDep)
	case deps.Pool == nil:
		return nil, fmt.Errorf("%w: pool", ErrMissingDep)
	case deps.Broadcaster == nil:
		return nil, fmt.Errorf("%w: broadcaster", ErrMissingDep)
	}
	if deps.Synthesizer == nil && (config.InitialPoolSize > 0 || config.ReplenishBatch > 0) {
		return nil, fmt.Errorf("%w: synthesizer", ErrMissingDep)
	}

	p := &Producer{
		deps:            deps,
		events:          deps.Events,
		m:               deps.Metrics,
		log:             deps.Logger,
		now:             deps.Clock,
		intervalMs:      config.IntervalMs,
		logWindow:       config.LogWindow,
		initialPoolSize: config.InitialPoolSize,
		replenishBatch:  config.ReplenishBatch,
	}
	if p.events == nil {
		p.events = eventlog.New(0)
	}
	if p.m == nil {
		p.m = metrics.New(false)
	}
	if p.log == nil {
		p.log = log.Default()
	}
	p.log = p.log.Module("producer")
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Initialize creates the genesis block, owned by the first identity, and
// seeds the pool. Calling it again is a no-op.
func (p *Producer) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chain != nil {
		return nil
	}

	genesis, err := (&core.Genesis{
		Creator:   p.deps.Identities.At(0).Address,
		Timestamp: p.now(),
	}).ToBlock()
	if err != nil {
		return err
	}
	chain, err := core.NewChain(genesis)
	if err != nil {
		return err
	}
	if free := p.deps.Pool.Free(); p.initialPoolSize > free {
		return fmt.Errorf("producer: seed pool: %w: %d initial transactions, room for %d",
			txpool.ErrTxPoolFull, p.initialPoolSize, free)
	}
	if p.initialPoolSize > 0 {
		txs, err := p.deps.Synthesizer.Generate(p.deps.Identities.Addresses(), p.initialPoolSize)
		if err != nil {
			return fmt.Errorf("producer: seed pool: %w", err)
		}
		if _, err := p.deps.Pool.Add(txs...); err != nil {
			return fmt.Errorf("producer: seed pool: %w", err)
		}
	}
	p.chain = chain

	p.events.Addf("Blockchain initialized with genesis block %s", shortHash(genesis.Hash))
	if p.initialPoolSize > 0 {
		p.events.Addf("Generated %d initial transactions", p.initialPoolSize)
	}
	p.m.ChainHeight.Set(1)
	p.m.PoolSize.Set(float64(p.deps.Pool.Len()))
	p.log.Info("Chain initialized", "genesis", genesis.Hash, "creator", genesis.Creator,
		"identities", p.deps.Identities.Len(), "pool", p.deps.Pool.Len())
	return nil
}

// Tick runs one attempt synchronously unless the producer is not
// initialized, halted or already producing.
func (p *Producer) Tick(ctx context.Context) (*Attempt, error) {
	p.mu.Lock()
	var skip string
	var err error
	switch {
	case p.chain == nil:
		skip, err = skipUninitialized, ErrNotInitialized
	case p.halted:
		skip, err = skipHalted, ErrHalted
	case p.producing:
		skip, err = skipBusy, ErrBusy
	}
	if err != nil {
		p.mu.Unlock()
		p.m.TicksSkipped.WithLabelValues(skip).Inc()
		return nil, err
	}
	p.producing = true
	p.nodeIndex = (p.nodeIndex + 1) % p.deps.Identities.Len()
	candidate := p.deps.Identities.At(p.nodeIndex)
	chain := p.chain
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.producing = false
		p.mu.Unlock()
	}()

	start := time.Now()
	defer p.m.ObserveAttempt(start)

	a := &Attempt{
		BlockID:        uint64(chain.Len()),
		Candidate:      candidate.Address,
		CandidateIndex: candidate.Index,
	}
	if err := p.attempt(ctx, chain, a); err != nil {
		p.events.Addf("Error creating block: %v", err)
		p.log.Warn("Block production failed", "id", a.BlockID, "candidate", a.Candidate, "err", err)
		return a, err
	}
	return a, nil
}

func (p *Producer) attempt(ctx context.Context, chain *core.Chain, a *Attempt) error {
	node := shortAddr(a.Candidate)
	p.events.Addf("Node %s... attempting to create block #%d", node, a.BlockID)
	p.events.Add("Requesting ZK proof from oracle...")

	d, err := p.deps.Elector.Elect(ctx, a.Candidate, uint64(p.now().Unix()))
	if err != nil {
		return fmt.Errorf("election: %w", err)
	}
	a.Decision = d

	if d.Home && d.Elected() {
		p.events.Add("This is your validator - ensuring election for inclusion list creation")
	}
	if !d.Elected() {
		p.m.ElectionAttempts.WithLabelValues(metrics.ResultRejected).Inc()
		p.events.Addf("Node %s... was not elected by ZK proof", node)
		p.logScore(d)
		p.log.Debug("Candidate not elected", "id", a.BlockID, "candidate", a.Candidate)
		return nil
	}
	result := metrics.ResultElected
	if d.Forced {
		result = metrics.ResultForced
	}
	p.m.ElectionAttempts.WithLabelValues(result).Inc()
	p.events.Addf("Node %s... was elected! Creating inclusion list...", node)
	p.logScore(d)

	if err := p.replenish(); err != nil {
		return err
	}

	addrs := p.deps.Identities.Addresses()
	il, err := p.deps.Assembler.Assemble(p.deps.Pool, addrs, d.Home)
	if err != nil {
		return err
	}
	a.List = il
	p.m.PoolSize.Set(float64(p.deps.Pool.Len()))
	p.logSynthesis(il)

	block, err := p.seal(chain, a, il)
	if err != nil {
		p.m.TxBurned.Add(float64(il.FromPool()))
		return err
	}

	p.events.Addf("Broadcasting block #%d to the network...", block.ID)
	if err := p.deps.Broadcaster.Broadcast(ctx, block); err != nil {
		p.m.TxBurned.Add(float64(il.FromPool()))
		return fmt.Errorf("broadcast: %w", err)
	}
	if err := chain.Append(block); err != nil {
		p.m.TxBurned.Add(float64(il.FromPool()))
		return err
	}
	a.Block = block

	p.m.BlocksProduced.Inc()
	p.m.ChainHeight.Set(float64(chain.Len()))
	p.m.TxIncluded.WithLabelValues(metrics.OriginPool).Add(float64(il.FromPool()))
	p.m.TxIncluded.WithLabelValues(metrics.OriginSynthesized).Add(float64(il.Synthesized()))

	p.events.Addf("Block #%d created successfully with %d transactions", block.ID, len(block.Transactions))
	if d.Home {
		p.events.Addf("Your validator successfully included %d transactions in the block", len(block.Transactions))
	}
	p.log.Info("Block produced", "id", block.ID, "hash", block.Hash, "creator", block.Creator,
		"txs", len(block.Transactions), "tagged", block.TaggedCount(), "home", d.Home, "forced", d.Forced)
	return nil
}

// seal validates the list, builds the block on top of the current head and
// checks the block against the list.
func (p *Producer) seal(chain *core.Chain, a *Attempt, il *focil.InclusionList) (*types.Block, error) {
	if err := focil.ValidateInclusionList(p.deps.Assembler.Config(), il); err != nil {
		return nil, err
	}
	block, err := types.NewBlock(
		a.BlockID,
		p.now(),
		il.Transactions,
		chain.Head().Hash,
		a.Candidate,
		a.Decision.Outcome.Proof,
		a.Decision.Outcome.Record,
	)
	if err != nil {
		return nil, err
	}
	if err := focil.CheckInclusionCompliance(block, il); err != nil {
		return nil, err
	}
	return block, nil
}

func (p *Producer) replenish() error {
	if p.replenishBatch == 0 {
		return nil
	}
	if p.deps.Pool.Len() >= 2*p.deps.Assembler.Config().TxPerBlock {
		return nil
	}
	txs, err := p.deps.Synthesizer.Generate(p.deps.Identities.Addresses(), p.replenishBatch)
	if err != nil {
		return fmt.Errorf("replenish pool: %w", err)
	}
	n, err := p.deps.Pool.Add(txs...)
	if err != nil {
		p.log.Warn("Pool replenishment truncated", "added", n, "err", err)
	}
	if n > 0 {
		p.events.Addf("Generated %d new transactions", n)
	}
	return nil
}

func (p *Producer) logScore(d *consensus.Decision) {
	r := d.Outcome.Record
	if r == nil {
		return
	}
	p.events.Addf("Eligibility score: %.6f, Threshold: %.6f, Weight: %.2f",
		r.EligibilityScore, r.Threshold, r.ValidatorWeight)
}

func (p *Producer) logSynthesis(il *focil.InclusionList) {
	for _, seg := range il.Segments {
		if seg.Synthesized == 0 {
			continue
		}
		p.events.Addf("Generated %d additional transactions to reach %d", seg.Synthesized, seg.Size)
	}
	if il.Home {
		home := il.TaggedCount()
		p.events.Addf("Your validator created an inclusion list with exactly %d transactions + %d from other validators",
			home, il.Len()-home)
	}
}

// Start initializes the producer if needed and runs the timer loop until
// ctx ends or Stop is called.
func (p *Producer) Start(ctx context.Context) error {
	if err := p.Initialize(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	p.log.Info("Producer started", "interval", time.Duration(p.intervalMs)*time.Millisecond)
	return nil
}

func (p *Producer) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		p.attempts.Wait()
		p.mu.Lock()
		p.running = false
		p.cancel = nil
		p.mu.Unlock()
		close(done)
	}()
	for {
		timer := time.NewTimer(p.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		p.attempts.Add(1)
		go func() {
			defer p.attempts.Done()
			if _, err := p.Tick(ctx); err != nil {
				p.log.Debug("Tick finished with error", "err", err)
			}
		}()
	}
}

// Stop ends the timer loop and waits for in-flight attempts. The context
// passed to those attempts is cancelled.
func (p *Producer) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.log.Info("Producer stopped")
}

// Halt suppresses future attempts. An attempt in flight completes.
func (p *Producer) Halt() {
	p.mu.Lock()
	if p.halted {
		p.mu.Unlock()
		return
	}
	p.halted = true
	p.mu.Unlock()
	p.events.Add("Blockchain halted")
	p.log.Info("Blockchain halted")
}

// Resume re-enables attempts after Halt.
func (p *Producer) Resume() {
	p.mu.Lock()
	if !p.halted {
		p.mu.Unlock()
		return
	}
	p.halted = false
	p.mu.Unlock()
	p.events.Add("Blockchain resumed")
	p.log.Info("Blockchain resumed")
}

// SetInterval changes the time between attempts. The value must lie in
// (0, MaxIntervalMs] and applies when the timer is next armed.
func (p *Producer) SetInterval(ms int64) error {
	if ms <= 0 || ms > MaxIntervalMs {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, ms)
	}
	p.mu.Lock()
	p.intervalMs = ms
	p.mu.Unlock()
	p.events.Addf("Block time updated to %s seconds", strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64))
	return nil
}

func (p *Producer) interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.intervalMs) * time.Millisecond
}

// Chain returns the chain, or nil before Initialize.
func (p *Producer) Chain() *core.Chain {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chain
}

// Pool returns the transaction pool.
func (p *Producer) Pool() *txpool.Pool { return p.deps.Pool }

// Events returns the activity log.
func (p *Producer) Events() *eventlog.Log { return p.events }

// Metrics returns the instruments the producer updates.
func (p *Producer) Metrics() *metrics.Metrics { return p.m }

func shortAddr(addr common.Address) string {
	return addr.Hex()[:8]
}

func shortHash(h common.Hash) string {
	return h.Hex()[:10]
}
