package producer

import (
	"github.com/zkfocil/zkfocil/core/types"
	"github.com/zkfocil/zkfocil/eventlog"
)

// State is the scheduler state.
type State int

const (
	Uninitialized State = iota
	Idle
	Producing
	Halted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Idle:
		return "idle"
	case Producing:
		return "producing"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a consistent, copied view of the producer. IsRunning reports
// that the timer loop is active and not halted.
type Snapshot struct {
	State            State
	Chain            []*types.Block
	Pool             []*types.Transaction
	Logs             []eventlog.Entry
	IsProducing      bool
	IsRunning        bool
	IntervalMs       int64
	CurrentNodeIndex int
}

// Height returns the number of blocks, genesis included.
func (s *Snapshot) Height() int { return len(s.Chain) }

// State returns the current state. An attempt in flight reports Producing
// even when the producer has been halted meanwhile.
func (p *Producer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Producer) stateLocked() State {
	switch {
	case p.chain == nil:
		return Uninitialized
	case p.producing:
		return Producing
	case p.halted:
		return Halted
	default:
		return Idle
	}
}

// Snapshot copies the producer's observable state. While an attempt is in
// flight (IsProducing) the transactions it dequeued are in neither Chain
// nor Pool until the block is appended or the attempt fails.
func (p *Producer) Snapshot() *Snapshot {
	p.mu.Lock()
	s := &Snapshot{
		State:            p.stateLocked(),
		IsProducing:      p.producing,
		IsRunning:        p.running && !p.halted,
		IntervalMs:       p.intervalMs,
		CurrentNodeIndex: p.nodeIndex,
	}
	chain := p.chain
	window := p.logWindow
	p.mu.Unlock()

	if chain != nil {
		s.Chain = chain.Blocks()
	}
	s.Pool = p.deps.Pool.Pending()
	s.Logs = p.events.Tail(window)
	return s
}
