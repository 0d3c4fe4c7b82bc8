package producer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zkfocil/zkfocil/consensus"
	"github.com/zkfocil/zkfocil/core/types"
	"github.com/zkfocil/zkfocil/focil"
	"github.com/zkfocil/zkfocil/identity"
	"github.com/zkfocil/zkfocil/log"
	"github.com/zkfocil/zkfocil/metrics"
	"github.com/zkfocil/zkfocil/txpool"
)

// script is one scripted election result.
type script struct {
	home, elected bool
}

// scriptedElector replays a fixed sequence of decisions, then rejects.
type scriptedElector struct {
	mu    sync.Mutex
	steps []script
	calls []common.Address
}

func (e *scriptedElector) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func electAll(n int) *scriptedElector {
	steps := make([]script, n)
	for i := range steps {
		steps[i] = script{elected: true}
	}
	return &scriptedElector{steps: steps}
}

// waitFor polls cond every millisecond until it holds or timeout passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

func (e *scriptedElector) Elect(_ context.Context, addr common.Address, nonce uint64) (*consensus.Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, addr)
	step := script{}
	if len(e.steps) > 0 {
		step, e.steps = e.steps[0], e.steps[1:]
	}
	return &consensus.Decision{
		Address: addr,
		Home:    step.home,
		Policy:  consensus.PolicyThreshold,
		Outcome: &consensus.Outcome{
			Proof:   consensus.LocalProof(addr, nonce),
			Elected: step.elected,
			Record:  &types.ElectionRecord{EligibilityScore: 0.5, Threshold: 0.3, ValidatorWeight: 1.5},
			Source:  consensus.SourceLocal,
		},
	}, nil
}

type instantBroadcaster struct{}

func (instantBroadcaster) Broadcast(context.Context, *types.Block) error { return nil }

type failingBroadcaster struct{}

func (failingBroadcaster) Broadcast(context.Context, *types.Block) error {
	return errors.New("network down")
}

// blockingBroadcaster holds each broadcast until release is closed.
type blockingBroadcaster struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBroadcaster) Broadcast(ctx context.Context, _ *types.Block) error {
	b.entered <- struct{}{}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type testEnv struct {
	ids  *identity.Pool
	pool *txpool.Pool
	m    *metrics.Metrics
	p    *Producer
}

func newTestEnv(t *testing.T, cfg Config, elector Elector, b Broadcaster) *testEnv {
	t.Helper()
	return newTestEnvWithPool(t, cfg, txpool.DefaultConfig(), elector, b)
}

func newTestEnvWithPool(t *testing.T, cfg Config, poolCfg txpool.Config, elector Elector, b Broadcaster) *testEnv {
	t.Helper()
	ids, err := identity.FromSeed([]byte("producer-test"), 50)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	gen := txpool.NewGenerator(42)
	asm, err := focil.NewAssembler(focil.DefaultConfig(), gen)
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	env := &testEnv{ids: ids, pool: txpool.New(poolCfg), m: metrics.New(false)}
	env.p, err = New(cfg, Deps{
		Identities:  ids,
		Elector:     elector,
		Assembler:   asm,
		Synthesizer: gen,
		Pool:        env.pool,
		Broadcaster: b,
		Metrics:     env.m,
		Logger:      log.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return env
}

func scenarioConfig() Config {
	cfg := DefaultConfig()
	cfg.ReplenishBatch = 0
	return cfg
}

func hasLog(p *Producer, substr string) bool {
	for _, e := range p.Events().Tail(0) {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestNewMissingDeps(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}); !errors.Is(err, ErrMissingDep) {
		t.Fatalf("err = %v, want ErrMissingDep", err)
	}
	cfg := DefaultConfig()
	cfg.IntervalMs = 0
	if _, err := New(cfg, Deps{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestTickBeforeInitialize(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), &scriptedElector{}, instantBroadcaster{})
	if _, err := env.p.Tick(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
	if env.p.State() != Uninitialized {
		t.Fatalf("state = %v, want uninitialized", env.p.State())
	}
	if got := testutil.ToFloat64(env.m.TicksSkipped.WithLabelValues(skipUninitialized)); got != 1 {
		t.Fatalf("skipped = %v, want 1", got)
	}
}

func TestInitialize(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), &scriptedElector{}, instantBroadcaster{})
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	chain := env.p.Chain()
	if chain.Len() != 1 {
		t.Fatalf("chain len = %d, want 1", chain.Len())
	}
	genesis := chain.Head()
	if genesis.ID != 0 || len(genesis.Transactions) != 0 || genesis.PreviousHash != (common.Hash{}) {
		t.Fatalf("bad genesis %+v", genesis)
	}
	if genesis.Creator != env.ids.At(0).Address {
		t.Fatalf("genesis creator = %s, want first identity", genesis.Creator)
	}
	if env.pool.Len() != DefaultInitialPoolSize {
		t.Fatalf("pool = %d, want %d", env.pool.Len(), DefaultInitialPoolSize)
	}
	if env.p.State() != Idle {
		t.Fatalf("state = %v, want idle", env.p.State())
	}
}

func TestInitializePoolTooSmall(t *testing.T) {
	env := newTestEnvWithPool(t, DefaultConfig(), txpool.Config{MaxSize: 10}, &scriptedElector{}, instantBroadcaster{})
	for i := 0; i < 2; i++ {
		if err := env.p.Initialize(); !errors.Is(err, txpool.ErrTxPoolFull) {
			t.Fatalf("Initialize #%d = %v, want ErrTxPoolFull", i, err)
		}
		if env.pool.Len() != 0 {
			t.Fatalf("pool = %d after failed Initialize, want 0", env.pool.Len())
		}
	}
	if env.p.Chain() != nil || env.p.State() != Uninitialized {
		t.Fatal("failed Initialize left a chain behind")
	}
}

func TestReplenishFullPool(t *testing.T) {
	poolCfg := txpool.Config{MaxSize: DefaultInitialPoolSize}
	env := newTestEnvWithPool(t, DefaultConfig(), poolCfg, &scriptedElector{steps: []script{{elected: true}}}, instantBroadcaster{})
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	a, err := env.p.Tick(context.Background())
	if err != nil || a.Block == nil {
		t.Fatalf("Tick: %v", err)
	}
	if hasLog(env.p, "Generated 0 new transactions") {
		t.Fatal("empty replenishment was logged")
	}
	if env.pool.Len() != DefaultInitialPoolSize-10 {
		t.Fatalf("pool = %d, want %d", env.pool.Len(), DefaultInitialPoolSize-10)
	}
}

func TestScenarioHomeThenOther(t *testing.T) {
	elector := &scriptedElector{steps: []script{
		{home: true, elected: true},
		{home: false, elected: true},
	}}
	env := newTestEnv(t, scenarioConfig(), elector, instantBroadcaster{})
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	initial := env.pool.Pending()

	// Home election: 4 tagged then 6 untagged, all from the pool.
	a, err := env.p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick 1: %v", err)
	}
	if a.Block == nil || a.Block.ID != 1 {
		t.Fatalf("attempt 1 block = %+v", a.Block)
	}
	if a.CandidateIndex != 1 || a.Candidate != env.ids.At(1).Address {
		t.Fatalf("first candidate index = %d, want 1", a.CandidateIndex)
	}
	txs := a.Block.Transactions
	if len(txs) != focil.TxPerBlock {
		t.Fatalf("block 1 has %d txs, want %d", len(txs), focil.TxPerBlock)
	}
	for i, tx := range txs {
		if want := i < focil.HomeIncluded; tx.IncludedByValidator != want {
			t.Fatalf("block 1 tx %d tagged = %v, want %v", i, tx.IncludedByValidator, want)
		}
		if tx.ID != initial[i].ID {
			t.Fatalf("block 1 tx %d = %s, want pool entry %s", i, tx.ID, initial[i].ID)
		}
	}
	if env.pool.Len() != 5 {
		t.Fatalf("pool after home block = %d, want 5", env.pool.Len())
	}

	// Other election: the 5 remaining plus 5 synthesized, none tagged.
	a, err = env.p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick 2: %v", err)
	}
	txs = a.Block.Transactions
	if len(txs) != focil.TxPerBlock || a.Block.TaggedCount() != 0 {
		t.Fatalf("block 2: %d txs, %d tagged", len(txs), a.Block.TaggedCount())
	}
	for i := 0; i < 5; i++ {
		if txs[i].ID != initial[10+i].ID {
			t.Fatalf("block 2 tx %d = %s, want %s", i, txs[i].ID, initial[10+i].ID)
		}
	}
	if a.List.FromPool() != 5 || a.List.Synthesized() != 5 {
		t.Fatalf("fromPool=%d synthesized=%d, want 5/5", a.List.FromPool(), a.List.Synthesized())
	}
	if env.pool.Len() != 0 {
		t.Fatalf("pool after other block = %d, want 0", env.pool.Len())
	}

	chain := env.p.Chain()
	if chain.Len() != 3 {
		t.Fatalf("chain len = %d, want 3", chain.Len())
	}
	if err := chain.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !hasLog(env.p, "Generated 5 additional transactions to reach 10") {
		t.Fatal("missing synthesis log entry")
	}
	if !hasLog(env.p, "Block #2 created successfully with 10 transactions") {
		t.Fatal("missing success log entry")
	}
	if got := testutil.ToFloat64(env.m.BlocksProduced); got != 2 {
		t.Fatalf("blocks produced = %v, want 2", got)
	}
	if got := testutil.ToFloat64(env.m.TxIncluded.WithLabelValues(metrics.OriginSynthesized)); got != 5 {
		t.Fatalf("synthesized metric = %v, want 5", got)
	}
}

func TestNotElectedLeavesChainAlone(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), &scriptedElector{}, instantBroadcaster{})
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	a, err := env.p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if a.Block != nil || a.Decision.Elected() {
		t.Fatalf("unexpected block for rejected candidate")
	}
	if env.p.Chain().Len() != 1 || env.pool.Len() != DefaultInitialPoolSize {
		t.Fatalf("chain=%d pool=%d after rejection", env.p.Chain().Len(), env.pool.Len())
	}
	if !hasLog(env.p, "was not elected by ZK proof") || !hasLog(env.p, "Eligibility score: 0.500000, Threshold: 0.300000, Weight: 1.50") {
		t.Fatal("missing rejection log entries")
	}
	if env.p.State() != Idle {
		t.Fatalf("state = %v, want idle", env.p.State())
	}
}

func TestRotation(t *testing.T) {
	elector := &scriptedElector{}
	env := newTestEnv(t, DefaultConfig(), elector, instantBroadcaster{})
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for i := 0; i < 52; i++ {
		if _, err := env.p.Tick(context.Background()); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	for i, addr := range elector.calls {
		if want := env.ids.At(i + 1).Address; addr != want {
			t.Fatalf("call %d candidate = %s, want %s", i, addr, want)
		}
	}
	if idx := env.p.Snapshot().CurrentNodeIndex; idx != 52%50 {
		t.Fatalf("node index = %d, want %d", idx, 52%50)
	}
}

func TestBurnedTransactions(t *testing.T) {
	elector := &scriptedElector{steps: []script{{elected: true}}}
	env := newTestEnv(t, scenarioConfig(), elector, failingBroadcaster{})
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := env.p.Tick(context.Background())
	if err == nil || !strings.Contains(err.Error(), "network down") {
		t.Fatalf("err = %v, want broadcast failure", err)
	}
	if env.p.Chain().Len() != 1 {
		t.Fatalf("chain len = %d, want 1", env.p.Chain().Len())
	}
	if env.pool.Len() != DefaultInitialPoolSize-focil.TxPerBlock {
		t.Fatalf("pool = %d, want %d (no rollback)", env.pool.Len(), DefaultInitialPoolSize-focil.TxPerBlock)
	}
	if !hasLog(env.p, "Error creating block: broadcast: network down") {
		t.Fatal("missing error log entry")
	}
	if got := testutil.ToFloat64(env.m.TxBurned); got != focil.TxPerBlock {
		t.Fatalf("burned = %v, want %d", got, focil.TxPerBlock)
	}
	if env.p.State() != Idle {
		t.Fatalf("state = %v, want idle after failure", env.p.State())
	}
}

func TestExclusivity(t *testing.T) {
	b := &blockingBroadcaster{entered: make(chan struct{}, 1), release: make(chan struct{})}
	elector := &scriptedElector{steps: []script{{elected: true}}}
	env := newTestEnv(t, DefaultConfig(), elector, b)
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := env.p.Tick(context.Background())
		done <- err
	}()
	<-b.entered

	if s := env.p.Snapshot(); !s.IsProducing || s.State != Producing {
		t.Fatalf("snapshot during attempt: producing=%v state=%v", s.IsProducing, s.State)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.p.Tick(context.Background()); !errors.Is(err, ErrBusy) {
				t.Errorf("concurrent tick err = %v, want ErrBusy", err)
			}
		}()
	}
	wg.Wait()

	close(b.release)
	if err := <-done; err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if env.p.Chain().Len() != 2 {
		t.Fatalf("chain len = %d, want 2", env.p.Chain().Len())
	}
	if len(elector.calls) != 1 {
		t.Fatalf("elector called %d times, want 1", len(elector.calls))
	}
}

func TestHaltResume(t *testing.T) {
	elector := &scriptedElector{steps: []script{{elected: true}}}
	env := newTestEnv(t, DefaultConfig(), elector, instantBroadcaster{})
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	env.p.Halt()
	if env.p.State() != Halted {
		t.Fatalf("state = %v, want halted", env.p.State())
	}
	if _, err := env.p.Tick(context.Background()); !errors.Is(err, ErrHalted) {
		t.Fatalf("err = %v, want ErrHalted", err)
	}
	if !hasLog(env.p, "Blockchain halted") {
		t.Fatal("missing halt log entry")
	}

	env.p.Resume()
	if !hasLog(env.p, "Blockchain resumed") {
		t.Fatal("missing resume log entry")
	}
	a, err := env.p.Tick(context.Background())
	if err != nil || a.Block == nil {
		t.Fatalf("tick after resume: %v", err)
	}
}

func TestHaltDoesNotAbortInFlight(t *testing.T) {
	b := &blockingBroadcaster{entered: make(chan struct{}, 1), release: make(chan struct{})}
	env := newTestEnv(t, DefaultConfig(), &scriptedElector{steps: []script{{elected: true}}}, b)
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := env.p.Tick(context.Background())
		done <- err
	}()
	<-b.entered
	env.p.Halt()
	close(b.release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight attempt: %v", err)
	}
	if env.p.Chain().Len() != 2 {
		t.Fatal("in-flight block was not appended")
	}
	if env.p.State() != Halted {
		t.Fatalf("state = %v, want halted", env.p.State())
	}
}

func TestSetInterval(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), &scriptedElector{}, instantBroadcaster{})
	before := env.p.Events().Len()

	for _, ms := range []int64{0, -5, MaxIntervalMs + 1, 9_223_372_036_855} {
		if err := env.p.SetInterval(ms); !errors.Is(err, ErrInvalidInterval) {
			t.Fatalf("SetInterval(%d) = %v, want ErrInvalidInterval", ms, err)
		}
	}
	if env.p.Snapshot().IntervalMs != DefaultIntervalMs {
		t.Fatal("invalid interval replaced the previous value")
	}
	if env.p.Events().Len() != before {
		t.Fatal("invalid interval was logged")
	}

	if err := env.p.SetInterval(3000); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	if env.p.Snapshot().IntervalMs != 3000 {
		t.Fatalf("interval = %d, want 3000", env.p.Snapshot().IntervalMs)
	}
	if !hasLog(env.p, "Block time updated to 3 seconds") {
		t.Fatal("missing interval log entry")
	}
	if err := env.p.SetInterval(1500); err != nil || !hasLog(env.p, "Block time updated to 1.5 seconds") {
		t.Fatalf("fractional interval: %v", err)
	}
}

func TestSetIntervalMaximum(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), &scriptedElector{}, instantBroadcaster{})
	if err := env.p.SetInterval(MaxIntervalMs); err != nil {
		t.Fatalf("SetInterval(max): %v", err)
	}
	if got, want := env.p.interval(), 24*time.Hour; got != want {
		t.Fatalf("interval = %v, want %v", got, want)
	}

	cfg := DefaultConfig()
	cfg.IntervalMs = MaxIntervalMs + 1
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
	}
}

func TestRejectedIntervalKeepsLoopPaced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntervalMs = 40
	elector := &scriptedElector{}
	env := newTestEnv(t, cfg, elector, instantBroadcaster{})

	if err := env.p.SetInterval(9_223_372_036_855); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("SetInterval = %v, want ErrInvalidInterval", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	env.p.Stop()

	// Two or three fires fit in 100ms at 40ms.
	if n := elector.count(); n > 5 {
		t.Fatalf("%d attempts in 100ms at a 40ms interval", n)
	}
}

func TestHaltResumeWhileRunning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntervalMs = 5
	env := newTestEnv(t, cfg, electAll(1000), instantBroadcaster{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer env.p.Stop()

	if !waitFor(5*time.Second, func() bool { return env.p.Chain().Len() >= 3 }) {
		t.Fatalf("only %d blocks after 5s", env.p.Chain().Len())
	}

	env.p.Halt()
	if !waitFor(5*time.Second, func() bool { return !env.p.Snapshot().IsProducing }) {
		t.Fatal("attempt still in flight 5s after Halt")
	}
	height := env.p.Chain().Len()
	skipped := testutil.ToFloat64(env.m.TicksSkipped.WithLabelValues(skipHalted))

	// Roughly 24 intervals pass while halted.
	time.Sleep(120 * time.Millisecond)
	if got := env.p.Chain().Len(); got != height {
		t.Fatalf("height = %d while halted, want %d", got, height)
	}
	if got := testutil.ToFloat64(env.m.TicksSkipped.WithLabelValues(skipHalted)); got <= skipped {
		t.Fatal("timer loop did not fire while halted")
	}
	s := env.p.Snapshot()
	if s.IsRunning || s.State != Halted {
		t.Fatalf("halted snapshot: running=%v state=%v", s.IsRunning, s.State)
	}

	env.p.Resume()
	if !env.p.Snapshot().IsRunning {
		t.Fatal("snapshot reports not running after Resume")
	}
	if !waitFor(5*time.Second, func() bool { return env.p.Chain().Len() > height+1 }) {
		t.Fatalf("height = %d 5s after Resume, want more than %d", env.p.Chain().Len(), height+1)
	}
	env.p.Stop()
	if err := env.p.Chain().Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestSetIntervalAppliesOnNextArm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntervalMs = 300
	elector := &scriptedElector{}
	env := newTestEnv(t, cfg, elector, instantBroadcaster{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := time.Now()
	if err := env.p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer env.p.Stop()

	// Let the loop arm its first 300ms timer before shortening the interval.
	time.Sleep(20 * time.Millisecond)
	if err := env.p.SetInterval(5); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}

	time.Sleep(130 * time.Millisecond)
	if n := elector.count(); n != 0 {
		t.Fatalf("%d attempts before the pending 300ms wait elapsed", n)
	}

	if !waitFor(5*time.Second, func() bool { return elector.count() >= 1 }) {
		t.Fatal("pending timer never fired")
	}
	if elapsed := time.Since(started); elapsed < 300*time.Millisecond {
		t.Fatalf("first attempt after %v, want at least 300ms", elapsed)
	}
	first := time.Now()

	// The following timers use the new 5ms interval.
	if !waitFor(time.Second, func() bool { return elector.count() >= 3 }) {
		t.Fatalf("%d attempts 1s after the first, want at least 3", elector.count())
	}
	if since := time.Since(first); since >= 300*time.Millisecond {
		t.Fatalf("two more attempts took %v, new interval not applied", since)
	}
}

func TestSetIntervalDoesNotExtendPendingWait(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntervalMs = 30
	elector := &scriptedElector{}
	env := newTestEnv(t, cfg, elector, instantBroadcaster{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer env.p.Stop()

	time.Sleep(10 * time.Millisecond)
	if err := env.p.SetInterval(MaxIntervalMs); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	if !waitFor(5*time.Second, func() bool { return elector.count() >= 1 }) {
		t.Fatal("pending 30ms timer did not fire after the interval grew")
	}
	time.Sleep(100 * time.Millisecond)
	if n := elector.count(); n != 1 {
		t.Fatalf("attempts = %d, want exactly 1 before the one-day timer", n)
	}
}

func TestNoTransactionInTwoBlocks(t *testing.T) {
	ids, err := identity.FromSeed([]byte("producer-test"), 50)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	local, _ := consensus.NewLocalOracle(consensus.DefaultThreshold)
	elector, err := consensus.NewElector(consensus.DefaultElectionConfig(), local, ids, log.Discard())
	if err != nil {
		t.Fatalf("NewElector: %v", err)
	}
	env := newTestEnv(t, DefaultConfig(), elector, instantBroadcaster{})
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for i := 0; i < 40; i++ {
		if _, err := env.p.Tick(context.Background()); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}

	chain := env.p.Chain()
	if err := chain.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if chain.Len() < 2 {
		t.Fatalf("no blocks produced in 40 ticks")
	}
	seen := make(map[string]bool)
	for _, b := range chain.Blocks()[1:] {
		if len(b.Transactions) != focil.TxPerBlock {
			t.Fatalf("block %d has %d txs", b.ID, len(b.Transactions))
		}
		for _, tx := range b.Transactions {
			if seen[tx.ID] {
				t.Fatalf("tx %s in two blocks", tx.ID)
			}
			seen[tx.ID] = true
			if env.pool.Has(tx.ID) {
				t.Fatalf("included tx %s still pending", tx.ID)
			}
		}
	}
}

func TestStartStop(t *testing.T) {
	steps := make([]script, 100)
	for i := range steps {
		steps[i] = script{elected: true}
	}
	cfg := DefaultConfig()
	cfg.IntervalMs = 5
	env := newTestEnv(t, cfg, &scriptedElector{steps: steps}, instantBroadcaster{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := env.p.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
	if !env.p.Snapshot().IsRunning {
		t.Fatal("snapshot reports not running")
	}

	deadline := time.Now().Add(5 * time.Second)
	for env.p.Chain().Len() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d blocks after 5s", env.p.Chain().Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
	env.p.Stop()

	s := env.p.Snapshot()
	if s.IsRunning || s.IsProducing {
		t.Fatalf("after Stop: running=%v producing=%v", s.IsRunning, s.IsProducing)
	}
	height := env.p.Chain().Len()
	time.Sleep(30 * time.Millisecond)
	if env.p.Chain().Len() != height {
		t.Fatal("blocks produced after Stop")
	}
	if err := env.p.Chain().Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	env.p.Stop()
}

func TestSnapshotDuringAttempt(t *testing.T) {
	b := &blockingBroadcaster{entered: make(chan struct{}, 1), release: make(chan struct{})}
	env := newTestEnv(t, scenarioConfig(), &scriptedElector{steps: []script{{elected: true}}}, b)
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := env.p.Tick(context.Background())
		done <- err
	}()
	<-b.entered

	// The ten dequeued transactions are held by the attempt.
	s := env.p.Snapshot()
	if !s.IsProducing || s.State != Producing {
		t.Fatalf("producing=%v state=%v, want producing", s.IsProducing, s.State)
	}
	if s.Height() != 1 || len(s.Pool) != DefaultInitialPoolSize-10 {
		t.Fatalf("mid-attempt snapshot: height %d pool %d", s.Height(), len(s.Pool))
	}

	close(b.release)
	if err := <-done; err != nil {
		t.Fatalf("Tick: %v", err)
	}
	s = env.p.Snapshot()
	if s.IsProducing || s.Height() != 2 || len(s.Chain[1].Transactions) != 10 {
		t.Fatalf("after attempt: producing=%v height %d", s.IsProducing, s.Height())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), &scriptedElector{}, instantBroadcaster{})
	if err := env.p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s := env.p.Snapshot()
	if s.Height() != 1 || len(s.Pool) != DefaultInitialPoolSize || len(s.Logs) == 0 {
		t.Fatalf("snapshot = height %d pool %d logs %d", s.Height(), len(s.Pool), len(s.Logs))
	}
	s.Pool[0] = nil
	s.Chain[0] = nil
	if env.pool.Pending()[0] == nil || env.p.Chain().Blocks()[0] == nil {
		t.Fatal("snapshot shares storage with the producer")
	}
}
