package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrKeyImage is returned when a key image cannot be derived from a key.
var ErrKeyImage = errors.New("crypto: cannot derive key image")

// KeyImage derives the uncompressed point H(sk)*G for key, with H = SHA-256
// over the 32-byte big-endian secret. The image is stable per key and
// reveals nothing about sk beyond what the public key already does.
func KeyImage(key *ecdsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil key", ErrKeyImage)
	}
	h := sha256.Sum256(gethcrypto.FromECDSA(key))
	derived, err := gethcrypto.ToECDSA(h[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyImage, err)
	}
	return gethcrypto.FromECDSAPub(&derived.PublicKey), nil
}

// KeyImageValue reduces a key image to a uint64: the little-endian value of
// the first eight bytes of SHA-256(image).
func KeyImageValue(image []byte) uint64 {
	h := sha256.Sum256(image)
	return binary.LittleEndian.Uint64(h[:8])
}
