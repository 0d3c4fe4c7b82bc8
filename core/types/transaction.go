// Package types defines the transaction, block and election record values
// that flow between the oracle, the assembler and the chain.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/zkfocil/zkfocil/crypto"
)

// ErrInvalidValue is returned when a transaction value cannot be decoded.
var ErrInvalidValue = errors.New("types: invalid transaction value")

// Transaction is a synthetic transfer waiting in the pool or included in a
// block. Values are denominated in wei.
type Transaction struct {
	ID        string
	From      common.Address
	To        common.Address
	Value     *uint256.Int
	CreatedAt time.Time
	Hash      common.Hash

	// IncludedByValidator marks transactions picked by the home validator
	// for its own part of the inclusion list.
	IncludedByValidator bool
}

// NewTransaction creates a transaction and computes its content hash.
// createdAt is truncated to millisecond precision.
func NewTransaction(id string, from, to common.Address, value *uint256.Int, createdAt time.Time) *Transaction {
	if value == nil {
		value = new(uint256.Int)
	}
	tx := &Transaction{
		ID:        id,
		From:      from,
		To:        to,
		Value:     new(uint256.Int).Set(value),
		CreatedAt: createdAt.Truncate(time.Millisecond),
	}
	tx.Hash = tx.ComputeHash()
	return tx
}

// ComputeHash returns the Keccak-256 content hash over the sender, recipient,
// value, creation time and id.
func (tx *Transaction) ComputeHash() common.Hash {
	data := tx.From.Hex() + tx.To.Hex() + tx.valueDec() +
		strconv.FormatInt(tx.CreatedAt.UnixMilli(), 10) + tx.ID
	return crypto.Keccak256Hash([]byte(data))
}

// Tagged returns a copy of tx with IncludedByValidator set. The receiver is
// not modified, so snapshots holding the original stay unchanged.
func (tx *Transaction) Tagged() *Transaction {
	cpy := *tx
	cpy.Value = new(uint256.Int).Set(tx.valueOrZero())
	cpy.IncludedByValidator = true
	return &cpy
}

func (tx *Transaction) valueOrZero() *uint256.Int {
	if tx.Value == nil {
		return new(uint256.Int)
	}
	return tx.Value
}

func (tx *Transaction) valueDec() string {
	return tx.valueOrZero().Dec()
}

// txRLP is the canonical tuple used when a transaction is hashed as part of
// a block.
type txRLP struct {
	ID                  string
	From                common.Address
	To                  common.Address
	Value               *big.Int
	CreatedAt           uint64
	Hash                common.Hash
	IncludedByValidator bool
}

func (tx *Transaction) canonical() txRLP {
	return txRLP{
		ID:                  tx.ID,
		From:                tx.From,
		To:                  tx.To,
		Value:               tx.valueOrZero().ToBig(),
		CreatedAt:           uint64(tx.CreatedAt.UnixMilli()),
		Hash:                tx.Hash,
		IncludedByValidator: tx.IncludedByValidator,
	}
}

type txJSON struct {
	ID                  string         `json:"id"`
	From                common.Address `json:"from"`
	To                  common.Address `json:"to"`
	Value               string         `json:"value"`
	Timestamp           int64          `json:"timestamp"`
	Hash                common.Hash    `json:"hash"`
	IncludedByValidator bool           `json:"includedByValidator,omitempty"`
}

// MarshalJSON encodes the value as a decimal string and the creation time as
// unix milliseconds.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(txJSON{
		ID:                  tx.ID,
		From:                tx.From,
		To:                  tx.To,
		Value:               tx.valueDec(),
		Timestamp:           tx.CreatedAt.UnixMilli(),
		Hash:                tx.Hash,
		IncludedByValidator: tx.IncludedByValidator,
	})
}

// UnmarshalJSON decodes the format produced by MarshalJSON.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var dec txJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	value, err := uint256.FromDecimal(dec.Value)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidValue, dec.Value, err)
	}
	*tx = Transaction{
		ID:                  dec.ID,
		From:                dec.From,
		To:                  dec.To,
		Value:               value,
		CreatedAt:           time.UnixMilli(dec.Timestamp),
		Hash:                dec.Hash,
		IncludedByValidator: dec.IncludedByValidator,
	}
	return nil
}
