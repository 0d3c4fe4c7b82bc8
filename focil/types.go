// Package focil assembles the per-block inclusion list.
//
// A home validator fills the first HomeIncluded slots with transactions it
// tags as its own and the rest with untagged ones; any other proposer fills
// all TxPerBlock slots untagged. Shortfalls in the pool are topped up by
// synthesis so every list has exactly TxPerBlock entries.
package focil

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zkfocil/zkfocil/core/types"
)

// Inclusion list sizes.
const (
	// TxPerBlock is the number of transactions in every produced block.
	TxPerBlock = 10

	// HomeIncluded is the number of tagged transactions a home validator
	// places at the front of its list.
	HomeIncluded = 4
)

// Config fixes the list layout.
type Config struct {
	TxPerBlock   int
	HomeIncluded int
}

// DefaultConfig returns the 10/4 layout.
func DefaultConfig() Config {
	return Config{TxPerBlock: TxPerBlock, HomeIncluded: HomeIncluded}
}

// ErrInvalidLayout is returned by Config.Validate.
var ErrInvalidLayout = errors.New("focil: invalid inclusion list layout")

// Validate checks 0 <= HomeIncluded <= TxPerBlock and TxPerBlock > 0.
func (c Config) Validate() error {
	if c.TxPerBlock <= 0 {
		return fmt.Errorf("%w: tx per block %d", ErrInvalidLayout, c.TxPerBlock)
	}
	if c.HomeIncluded < 0 || c.HomeIncluded > c.TxPerBlock {
		return fmt.Errorf("%w: home included %d of %d", ErrInvalidLayout, c.HomeIncluded, c.TxPerBlock)
	}
	return nil
}

// Segment describes one contiguous part of an inclusion list.
type Segment struct {
	Tagged      bool
	Size        int
	FromPool    int
	Synthesized int
}

// InclusionList is the ordered set of transactions a proposer must put in
// its block.
type InclusionList struct {
	Home         bool
	Transactions []*types.Transaction
	Segments     []Segment
}

// Len returns the number of transactions.
func (il *InclusionList) Len() int { return len(il.Transactions) }

// FromPool returns how many transactions were taken from the pool.
func (il *InclusionList) FromPool() int {
	n := 0
	for _, s := range il.Segments {
		n += s.FromPool
	}
	return n
}

// Synthesized returns how many transactions were generated on shortfall.
func (il *InclusionList) Synthesized() int {
	n := 0
	for _, s := range il.Segments {
		n += s.Synthesized
	}
	return n
}

// TaggedCount returns the number of tagged transactions.
func (il *InclusionList) TaggedCount() int {
	n := 0
	for _, tx := range il.Transactions {
		if tx.IncludedByValidator {
			n++
		}
	}
	return n
}

// TransactionHashes returns the hashes of all listed transactions in order.
func (il *InclusionList) TransactionHashes() []common.Hash {
	hashes := make([]common.Hash, len(il.Transactions))
	for i, tx := range il.Transactions {
		hashes[i] = tx.Hash
	}
	return hashes
}
