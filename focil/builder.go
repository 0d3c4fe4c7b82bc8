package focil

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zkfocil/zkfocil/core/types"
)

// ErrInsufficientPool is returned when the pool is short and no
// Synthesizer is configured.
var ErrInsufficientPool = errors.New("focil: not enough pending transactions")

// TxSource hands out pending transactions front first. Dequeued
// transactions are gone from the source.
type TxSource interface {
	Dequeue(n int) []*types.Transaction
}

// Synthesizer creates fresh transactions between the given addresses.
type Synthesizer interface {
	Generate(addrs []common.Address, n int) ([]*types.Transaction, error)
}

// Assembler builds inclusion lists. It keeps no state between calls.
type Assembler struct {
	config Config
	synth  Synthesizer
}

// NewAssembler returns an Assembler. synth may be nil, in which case a
// short pool fails with ErrInsufficientPool.
func NewAssembler(config Config, synth Synthesizer) (*Assembler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Assembler{config: config, synth: synth}, nil
}

// Config returns the layout the assembler builds.
func (a *Assembler) Config() Config { return a.config }

// Assemble removes the transactions it selects from pool. On error the
// transactions dequeued so far are not returned to the pool.
func (a *Assembler) Assemble(pool TxSource, addrs []common.Address, home bool) (*InclusionList, error) {
	il := &InclusionList{
		Home:         home,
		Transactions: make([]*types.Transaction, 0, a.config.TxPerBlock),
	}
	untagged := a.config.TxPerBlock
	if home {
		untagged -= a.config.HomeIncluded
		if err := a.fill(il, pool, addrs, a.config.HomeIncluded, true); err != nil {
			return nil, err
		}
	}
	if err := a.fill(il, pool, addrs, untagged, false); err != nil {
		return nil, err
	}
	return il, nil
}

func (a *Assembler) fill(il *InclusionList, pool TxSource, addrs []common.Address, n int, tagged bool) error {
	seg := Segment{Tagged: tagged, Size: n}
	txs := pool.Dequeue(n)
	seg.FromPool = len(txs)

	if short := n - len(txs); short > 0 {
		if a.synth == nil {
			return fmt.Errorf("%w: need %d, have %d", ErrInsufficientPool, n, len(txs))
		}
		extra, err := a.synth.Generate(addrs, short)
		if err != nil {
			return fmt.Errorf("focil: synthesize %d transactions: %w", short, err)
		}
		if len(extra) != short {
			return fmt.Errorf("%w: synthesized %d of %d", ErrInsufficientPool, len(extra), short)
		}
		txs = append(txs, extra...)
		seg.Synthesized = short
	}

	for _, tx := range txs {
		if tagged {
			tx = tx.Tagged()
		}
		il.Transactions = append(il.Transactions, tx)
	}
	il.Segments = append(il.Segments, seg)
	return nil
}
