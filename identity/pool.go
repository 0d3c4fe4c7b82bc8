// Package identity generates the fixed, ordered set of validator identities
// used by the producer. The set is created once at startup.
package identity

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/zkfocil/zkfocil/crypto"
)

var (
	ErrEmptyPool = errors.New("identity: pool size must be > 0")
	ErrKeyGen    = errors.New("identity: key generation failed")
)

// Identity is one validator: its position in the pool, its secp256k1 key
// and the address derived from it.
type Identity struct {
	Index   int
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// Pool is an immutable ordered set of identities.
type Pool struct {
	ids    []Identity
	byAddr map[common.Address]int
}

// Generate creates n identities from fresh random keys.
func Generate(n int) (*Pool, error) {
	if n <= 0 {
		return nil, ErrEmptyPool
	}
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		key, err := gethcrypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyGen, err)
		}
		keys[i] = key
	}
	return newPool(keys), nil
}

// FromSeed derives n identities deterministically from seed. Key i is
// Keccak-256(seed || uint64(i) || counter), bumping the counter in the
// unlikely case the digest is not a valid secp256k1 scalar.
func FromSeed(seed []byte, n int) (*Pool, error) {
	if n <= 0 {
		return nil, ErrEmptyPool
	}
	keys := make([]*ecdsa.PrivateKey, n)
	var buf [16]byte
	for i := range keys {
		binary.BigEndian.PutUint64(buf[:8], uint64(i))
		for ctr := uint64(0); ; ctr++ {
			if ctr > 16 {
				return nil, fmt.Errorf("%w: no valid scalar for index %d", ErrKeyGen, i)
			}
			binary.BigEndian.PutUint64(buf[8:], ctr)
			key, err := gethcrypto.ToECDSA(crypto.Keccak256(seed, buf[:]))
			if err == nil {
				keys[i] = key
				break
			}
		}
	}
	return newPool(keys), nil
}

func newPool(keys []*ecdsa.PrivateKey) *Pool {
	p := &Pool{
		ids:    make([]Identity, len(keys)),
		byAddr: make(map[common.Address]int, len(keys)),
	}
	for i, key := range keys {
		addr := gethcrypto.PubkeyToAddress(key.PublicKey)
		p.ids[i] = Identity{Index: i, Address: addr, Key: key}
		p.byAddr[addr] = i
	}
	return p
}

// Len returns the number of identities.
func (p *Pool) Len() int { return len(p.ids) }

// At returns the identity at position i, wrapping modulo the pool size.
func (p *Pool) At(i int) Identity {
	n := len(p.ids)
	return p.ids[((i%n)+n)%n]
}

// Addresses returns the ordered address list.
func (p *Pool) Addresses() []common.Address {
	out := make([]common.Address, len(p.ids))
	for i, id := range p.ids {
		out[i] = id.Address
	}
	return out
}

// IndexOf returns the position of addr in the pool.
func (p *Pool) IndexOf(addr common.Address) (int, bool) {
	i, ok := p.byAddr[addr]
	return i, ok
}

// Key returns the private key for addr, if it belongs to the pool.
func (p *Pool) Key(addr common.Address) (*ecdsa.PrivateKey, bool) {
	i, ok := p.byAddr[addr]
	if !ok {
		return nil, false
	}
	return p.ids[i].Key, true
}
