package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/zkfocil/zkfocil/crypto"
)

// Block is an immutable, hash-linked bundle of transactions produced by an
// elected validator.
type Block struct {
	ID           uint64
	CreatedAt    time.Time
	Hash         common.Hash
	PreviousHash common.Hash
	Creator      common.Address
	Proof        string
	Transactions []*Transaction
	Election     *ElectionRecord
}

// blockRLP is the canonical encoding hashed into Block.Hash.
type blockRLP struct {
	ID           uint64
	CreatedAt    uint64
	PreviousHash common.Hash
	Creator      common.Address
	Proof        string
	Transactions []txRLP
}

// NewBlock builds a block and computes its content hash. createdAt is
// truncated to millisecond precision so the hash survives JSON round trips.
func NewBlock(
	id uint64,
	createdAt time.Time,
	txs []*Transaction,
	previousHash common.Hash,
	creator common.Address,
	proof string,
	record *ElectionRecord,
) (*Block, error) {
	b := &Block{
		ID:           id,
		CreatedAt:    createdAt.Truncate(time.Millisecond),
		PreviousHash: previousHash,
		Creator:      creator,
		Proof:        proof,
		Transactions: make([]*Transaction, len(txs)),
		Election:     record.Copy(),
	}
	copy(b.Transactions, txs)

	hash, err := b.ComputeHash()
	if err != nil {
		return nil, err
	}
	b.Hash = hash
	return b, nil
}

// ComputeHash returns Keccak-256 over the RLP encoding of the id, creation
// time, previous hash, creator, proof and transaction tuples.
func (b *Block) ComputeHash() (common.Hash, error) {
	enc := blockRLP{
		ID:           b.ID,
		CreatedAt:    uint64(b.CreatedAt.UnixMilli()),
		PreviousHash: b.PreviousHash,
		Creator:      b.Creator,
		Proof:        b.Proof,
		Transactions: make([]txRLP, len(b.Transactions)),
	}
	for i, tx := range b.Transactions {
		enc.Transactions[i] = tx.canonical()
	}
	data, err := rlp.EncodeToBytes(&enc)
	if err != nil {
		return common.Hash{}, fmt.Errorf("types: encode block %d: %w", b.ID, err)
	}
	return crypto.Keccak256Hash(data), nil
}

// TaggedCount returns how many transactions carry IncludedByValidator.
func (b *Block) TaggedCount() int {
	n := 0
	for _, tx := range b.Transactions {
		if tx.IncludedByValidator {
			n++
		}
	}
	return n
}

type blockJSON struct {
	ID           uint64          `json:"id"`
	Timestamp    int64           `json:"timestamp"`
	Hash         common.Hash     `json:"hash"`
	PreviousHash common.Hash     `json:"previousHash"`
	Creator      common.Address  `json:"creator"`
	Proof        string          `json:"proof"`
	Transactions []*Transaction  `json:"transactions"`
	Election     *ElectionRecord `json:"election,omitempty"`
}

// MarshalJSON encodes the block with the creation time in unix milliseconds.
func (b *Block) MarshalJSON() ([]byte, error) {
	txs := b.Transactions
	if txs == nil {
		txs = []*Transaction{}
	}
	return json.Marshal(blockJSON{
		ID:           b.ID,
		Timestamp:    b.CreatedAt.UnixMilli(),
		Hash:         b.Hash,
		PreviousHash: b.PreviousHash,
		Creator:      b.Creator,
		Proof:        b.Proof,
		Transactions: txs,
		Election:     b.Election,
	})
}

// UnmarshalJSON decodes the format produced by MarshalJSON.
func (b *Block) UnmarshalJSON(data []byte) error {
	var dec blockJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	*b = Block{
		ID:           dec.ID,
		CreatedAt:    time.UnixMilli(dec.Timestamp),
		Hash:         dec.Hash,
		PreviousHash: dec.PreviousHash,
		Creator:      dec.Creator,
		Proof:        dec.Proof,
		Transactions: dec.Transactions,
		Election:     dec.Election,
	}
	return nil
}
