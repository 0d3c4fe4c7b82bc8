// Package txpool holds the queue of pending transactions and the random
// transaction generator that keeps it supplied.
package txpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zkfocil/zkfocil/core/types"
)

// MaxPoolSize is the default maximum number of pending transactions.
const MaxPoolSize = 4096

var (
	ErrAlreadyKnown = errors.New("already known")
	ErrTxPoolFull   = errors.New("transaction pool is full")
	ErrNilTx        = errors.New("nil transaction")
)

// Config holds TxPool configuration.
type Config struct {
	MaxSize int // Maximum number of transactions in pool
}

// DefaultConfig returns sensible defaults for the pool.
func DefaultConfig() Config {
	return Config{MaxSize: MaxPoolSize}
}

// Pool is a FIFO queue of transactions that are not part of any block.
// Dequeue removes transactions for good: callers that fail to include them
// do not put them back.
type Pool struct {
	mu     sync.Mutex
	config Config
	queue  []*types.Transaction
	known  map[string]struct{}
}

// New creates an empty pool.
func New(config Config) *Pool {
	if config.MaxSize <= 0 {
		config.MaxSize = MaxPoolSize
	}
	return &Pool{
		config: config,
		known:  make(map[string]struct{}),
	}
}

// Add appends transactions to the back of the queue in order. It stops at
// the first rejected transaction and returns how many were added.
func (p *Pool) Add(txs ...*types.Transaction) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, tx := range txs {
		if tx == nil {
			return i, ErrNilTx
		}
		if _, ok := p.known[tx.ID]; ok {
			return i, fmt.Errorf("%w: %s", ErrAlreadyKnown, tx.ID)
		}
		if len(p.queue) >= p.config.MaxSize {
			return i, fmt.Errorf("%w: %d pending", ErrTxPoolFull, len(p.queue))
		}
		p.queue = append(p.queue, tx)
		p.known[tx.ID] = struct{}{}
	}
	return len(txs), nil
}

// Dequeue removes and returns up to n transactions from the front of the
// queue.
func (p *Pool) Dequeue(n int) []*types.Transaction {
	if n <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if n > len(p.queue) {
		n = len(p.queue)
	}
	out := make([]*types.Transaction, n)
	copy(out, p.queue[:n])
	for _, tx := range out {
		delete(p.known, tx.ID)
	}
	// Copy the tail so the backing array does not pin dequeued entries.
	p.queue = append([]*types.Transaction(nil), p.queue[n:]...)
	return out
}

// Len returns the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Free returns how many more transactions fit before the pool is full.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config.MaxSize - len(p.queue)
}

// Pending returns a copy of the queue in order.
func (p *Pool) Pending() []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*types.Transaction, len(p.queue))
	copy(out, p.queue)
	return out
}

// Has reports whether a transaction with the given id is pending.
func (p *Pool) Has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.known[id]
	return ok
}
