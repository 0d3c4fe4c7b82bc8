// Package crypto holds the hashing and key helpers shared by the election,
// block and identity code.
package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a common.Hash.
func Keccak256Hash(data ...[]byte) common.Hash {
	return common.BytesToHash(Keccak256(data...))
}

// ByteSum returns the sum of all bytes in b. The election paths reduce a
// digest to an integer this way before taking a modulus.
func ByteSum(b []byte) uint64 {
	var sum uint64
	for _, v := range b {
		sum += uint64(v)
	}
	return sum
}

// AddressDigest hashes the checksummed hex form of addr. Election scoring
// and the home-rotation bias both start from this digest.
func AddressDigest(addr common.Address) []byte {
	return Keccak256([]byte(addr.Hex()))
}
