// Package consensus decides which identity may propose the next block.
//
// An Oracle evaluates a single candidate and returns a mock proof together
// with the private election record. The Elector layers the configured
// election policy and the home-validator override on top of an Oracle.
package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/zkfocil/zkfocil/core/types"
	"github.com/zkfocil/zkfocil/crypto"
)

// Oracle errors.
var (
	ErrOracleUnavailable = errors.New("consensus: proof oracle unavailable")
	ErrInvalidThreshold  = errors.New("consensus: threshold must be in [0, 1)")
	ErrUnknownPolicy     = errors.New("consensus: unknown election policy")
)

// ProofPrefix starts every proof issued by the local oracle.
const ProofPrefix = "mock-zk-proof-"

// DefaultThreshold is the eligibility threshold used when none is configured.
// About 70% of addresses score above it.
const DefaultThreshold = 0.3

// Outcome sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Oracle evaluates whether addr may propose in the time bucket nonce.
type Oracle interface {
	Evaluate(ctx context.Context, addr common.Address, nonce uint64) (*Outcome, error)
}

// Outcome is an oracle answer. Record may be nil when a remote oracle did
// not return private data.
type Outcome struct {
	Proof   string
	Elected bool
	Record  *types.ElectionRecord
	Source  string
}

// LocalOracle is the deterministic in-process oracle. The score depends on
// the address only; proof and randomness also depend on the nonce.
type LocalOracle struct {
	threshold float64
}

// NewLocalOracle returns a LocalOracle using threshold.
func NewLocalOracle(threshold float64) (*LocalOracle, error) {
	if threshold < 0 || threshold >= 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return &LocalOracle{threshold: threshold}, nil
}

// Threshold returns the configured eligibility threshold.
func (o *LocalOracle) Threshold() float64 { return o.threshold }

// Evaluate never fails. The context is accepted to satisfy Oracle.
func (o *LocalOracle) Evaluate(_ context.Context, addr common.Address, nonce uint64) (*Outcome, error) {
	sum := crypto.ByteSum(crypto.AddressDigest(addr))
	score := float64(sum%100) / 100
	record := &types.ElectionRecord{
		EligibilityScore: score,
		Threshold:        o.threshold,
		ValidatorWeight:  1 + float64(sum%10)/10,
		Randomness:       hexutil.Bytes(randomness(addr, nonce)),
		EvaluatedAt:      time.Unix(int64(nonce), 0),
	}
	return &Outcome{
		Proof:   LocalProof(addr, nonce),
		Elected: score > o.threshold,
		Record:  record,
		Source:  SourceLocal,
	}, nil
}

// LocalProof returns the proof string the local oracle issues for addr at
// nonce.
func LocalProof(addr common.Address, nonce uint64) string {
	digest := crypto.Keccak256([]byte(addr.Hex() + strconv.FormatUint(nonce, 10)))
	return ProofPrefix + common.Bytes2Hex(digest)
}

func randomness(addr common.Address, nonce uint64) []byte {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return crypto.Keccak256(addr.Bytes(), n[:])[:16]
}

// ModuloSelected reports the modulo bias path: the keccak byte sum of the
// checksummed address modulo 7 is below 5, which holds for about 5 in 7
// addresses.
func ModuloSelected(addr common.Address) bool {
	return crypto.ByteSum(crypto.AddressDigest(addr))%7 < 5
}
