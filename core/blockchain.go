// Package core holds the append-only chain of produced blocks.
package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zkfocil/zkfocil/core/types"
)

var (
	ErrNoGenesis      = errors.New("genesis block not provided")
	ErrChainIntegrity = errors.New("chain integrity violated")
	ErrBlockNotFound  = errors.New("block not found")
)

// Chain is an append-only, hash-linked sequence of blocks. Block ids are
// contiguous from 0. Forks and reorgs are not possible: a block is accepted
// only if it extends the current head.
type Chain struct {
	mu     sync.RWMutex
	blocks []*types.Block
}

// NewChain creates a chain whose first block is genesis.
func NewChain(genesis *types.Block) (*Chain, error) {
	if genesis == nil {
		return nil, ErrNoGenesis
	}
	if genesis.ID != 0 {
		return nil, fmt.Errorf("%w: genesis id %d, want 0", ErrChainIntegrity, genesis.ID)
	}
	if genesis.PreviousHash != (common.Hash{}) {
		return nil, fmt.Errorf("%w: genesis previous hash %s is not zero", ErrChainIntegrity, genesis.PreviousHash.Hex())
	}
	if err := checkHash(genesis); err != nil {
		return nil, err
	}
	return &Chain{blocks: []*types.Block{genesis}}, nil
}

// Append adds block to the head of the chain. The block must carry the next
// id and link to the current head's hash; otherwise ErrChainIntegrity is
// returned and the chain is left unchanged.
func (c *Chain) Append(block *types.Block) error {
	if block == nil {
		return fmt.Errorf("%w: nil block", ErrChainIntegrity)
	}
	if err := checkHash(block); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if want := uint64(len(c.blocks)); block.ID != want {
		return fmt.Errorf("%w: block id %d, want %d", ErrChainIntegrity, block.ID, want)
	}
	head := c.blocks[len(c.blocks)-1]
	if block.PreviousHash != head.Hash {
		return fmt.Errorf("%w: block %d previous hash %s, head is %s",
			ErrChainIntegrity, block.ID, block.PreviousHash.Hex(), head.Hash.Hex())
	}
	c.blocks = append(c.blocks, block)
	return nil
}

// checkHash recomputes the block's content hash.
func checkHash(block *types.Block) error {
	hash, err := block.ComputeHash()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChainIntegrity, err)
	}
	if hash != block.Hash {
		return fmt.Errorf("%w: block %d hash %s, computed %s",
			ErrChainIntegrity, block.ID, block.Hash.Hex(), hash.Hex())
	}
	return nil
}

// Len returns the number of blocks, genesis included.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Head returns the most recently appended block.
func (c *Chain) Head() *types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// BlockByID returns the block with the given id.
func (c *Chain) BlockByID(id uint64) (*types.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id >= uint64(len(c.blocks)) {
		return nil, fmt.Errorf("%w: id %d", ErrBlockNotFound, id)
	}
	return c.blocks[id], nil
}

// Blocks returns a copy of the block list. Blocks themselves are immutable
// and shared.
func (c *Chain) Blocks() []*types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Verify walks the whole chain and checks ids, hashes and links. It also
// checks that no transaction id appears in two blocks.
func (c *Chain) Verify() error {
	blocks := c.Blocks()
	seen := make(map[string]uint64)
	for i, b := range blocks {
		if b.ID != uint64(i) {
			return fmt.Errorf("%w: position %d holds id %d", ErrChainIntegrity, i, b.ID)
		}
		if err := checkHash(b); err != nil {
			return err
		}
		if i > 0 && b.PreviousHash != blocks[i-1].Hash {
			return fmt.Errorf("%w: block %d is not linked to block %d", ErrChainIntegrity, i, i-1)
		}
		for _, tx := range b.Transactions {
			if prev, dup := seen[tx.ID]; dup {
				return fmt.Errorf("%w: transaction %s in blocks %d and %d", ErrChainIntegrity, tx.ID, prev, b.ID)
			}
			seen[tx.ID] = b.ID
		}
	}
	return nil
}
