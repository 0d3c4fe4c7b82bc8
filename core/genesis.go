package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zkfocil/zkfocil/core/types"
)

// GenesisProof is the proof literal carried by every genesis block.
const GenesisProof = "genesis-zk-proof"

// Genesis specifies the fields of the first block. The genesis block does
// not pass through an election.
type Genesis struct {
	Creator   common.Address
	Timestamp time.Time
}

// ToBlock creates the genesis block: id 0, no transactions, the all-zero
// previous hash and the sentinel proof.
func (g *Genesis) ToBlock() (*types.Block, error) {
	ts := g.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return types.NewBlock(0, ts, nil, common.Hash{}, g.Creator, GenesisProof, nil)
}
