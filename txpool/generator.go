package txpool

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/zkfocil/zkfocil/core/types"
)

// Generated values range from 0.001 to 10 ether with six decimals.
const (
	minValueMicroEther = 1_000
	maxValueMicroEther = 10_000_000
	weiPerMicroEther   = 1_000_000_000_000
)

// ErrTooFewAddresses is returned when fewer than two addresses are supplied,
// since sender and recipient must differ.
var ErrTooFewAddresses = errors.New("txpool: generator needs at least two addresses")

// Generator produces synthetic transfers between random pairs of distinct
// addresses. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	seq uint64
	now func() time.Time
}

// NewGenerator returns a generator seeded with seed. A zero seed picks a
// random one.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// WithClock replaces the generator's time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	return g
}

// Generate returns n new transactions. Ids are unique for the lifetime of
// the generator.
func (g *Generator) Generate(addrs []common.Address, n int) ([]*types.Transaction, error) {
	if n <= 0 {
		return nil, nil
	}
	if len(addrs) < 2 {
		return nil, ErrTooFewAddresses
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	txs := make([]*types.Transaction, n)
	for i := range txs {
		from := g.rng.IntN(len(addrs))
		to := g.rng.IntN(len(addrs) - 1)
		if to >= from {
			to++
		}
		micro := minValueMicroEther + g.rng.Uint64N(maxValueMicroEther-minValueMicroEther+1)
		value := new(uint256.Int).Mul(uint256.NewInt(micro), uint256.NewInt(weiPerMicroEther))

		now := g.now()
		g.seq++
		id := fmt.Sprintf("tx-%d-%d", g.seq, now.UnixMilli())
		txs[i] = types.NewTransaction(id, addrs[from], addrs[to], value, now)
	}
	return txs, nil
}
