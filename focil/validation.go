package focil

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zkfocil/zkfocil/core/types"
)

var (
	ErrInvalidInclusionList = errors.New("focil: invalid inclusion list")
	ErrNonCompliantBlock    = errors.New("focil: block does not satisfy inclusion list")
)

// ValidateInclusionList checks il against the layout in config: the exact
// size, a tagged prefix of exactly HomeIncluded for home lists, no tags
// otherwise, and no repeated ids or hashes.
func ValidateInclusionList(config Config, il *InclusionList) error {
	if il == nil {
		return fmt.Errorf("%w: nil list", ErrInvalidInclusionList)
	}
	if len(il.Transactions) != config.TxPerBlock {
		return fmt.Errorf("%w: %d transactions, want %d", ErrInvalidInclusionList, len(il.Transactions), config.TxPerBlock)
	}

	tagged := 0
	if il.Home {
		tagged = config.HomeIncluded
	}
	ids := make(map[string]struct{}, len(il.Transactions))
	hashes := make(map[common.Hash]struct{}, len(il.Transactions))
	for i, tx := range il.Transactions {
		if tx == nil {
			return fmt.Errorf("%w: nil transaction at %d", ErrInvalidInclusionList, i)
		}
		if want := i < tagged; tx.IncludedByValidator != want {
			return fmt.Errorf("%w: transaction %d tagged=%v, want %v", ErrInvalidInclusionList, i, tx.IncludedByValidator, want)
		}
		if _, ok := ids[tx.ID]; ok {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidInclusionList, tx.ID)
		}
		if _, ok := hashes[tx.Hash]; ok {
			return fmt.Errorf("%w: duplicate hash %s", ErrInvalidInclusionList, tx.Hash)
		}
		ids[tx.ID] = struct{}{}
		hashes[tx.Hash] = struct{}{}
	}
	return nil
}

// CheckInclusionCompliance verifies that every transaction in il is present
// in block, matched by hash.
func CheckInclusionCompliance(block *types.Block, il *InclusionList) error {
	if block == nil || il == nil {
		return fmt.Errorf("%w: missing block or list", ErrNonCompliantBlock)
	}
	present := make(map[common.Hash]bool, len(block.Transactions))
	for _, tx := range block.Transactions {
		present[tx.Hash] = true
	}
	for _, h := range il.TransactionHashes() {
		if !present[h] {
			return fmt.Errorf("%w: block %d missing %s", ErrNonCompliantBlock, block.ID, h)
		}
	}
	return nil
}
