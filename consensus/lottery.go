package consensus

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/zkfocil/zkfocil/crypto"
)

// DefaultTargetIncluders is the expected number of lottery winners per slot.
const DefaultTargetIncluders = 64

// Lottery selects includers from key images so that, in expectation,
// TargetIncluders of N validators win.
type Lottery struct {
	TargetIncluders int
}

// NewLottery returns a Lottery. A non-positive target selects
// DefaultTargetIncluders.
func NewLottery(target int) *Lottery {
	if target <= 0 {
		target = DefaultTargetIncluders
	}
	return &Lottery{TargetIncluders: target}
}

// Modulus returns max(1, validators/TargetIncluders).
func (l *Lottery) Modulus(validators int) uint64 {
	m := validators / l.TargetIncluders
	if m < 1 {
		m = 1
	}
	return uint64(m)
}

// IsIncluder reports whether the holder of key wins among validators.
func (l *Lottery) IsIncluder(key *ecdsa.PrivateKey, validators int) (bool, error) {
	image, err := crypto.KeyImage(key)
	if err != nil {
		return false, err
	}
	return crypto.KeyImageValue(image)%l.Modulus(validators) == 0, nil
}

// LotteryResult summarizes one lottery run.
type LotteryResult struct {
	Slot       uint64
	Validators int
	Winners    []int
}

// Percentage returns the share of winning validators in percent.
func (r *LotteryResult) Percentage() float64 {
	if r.Validators == 0 {
		return 0
	}
	return float64(len(r.Winners)) / float64(r.Validators) * 100
}

// Run evaluates every key for slot. Key images do not depend on the slot,
// which is recorded for reporting only.
func (l *Lottery) Run(keys []*ecdsa.PrivateKey, slot uint64) (*LotteryResult, error) {
	res := &LotteryResult{Slot: slot, Validators: len(keys)}
	for i, key := range keys {
		ok, err := l.IsIncluder(key, len(keys))
		if err != nil {
			return nil, fmt.Errorf("validator %d: %w", i, err)
		}
		if ok {
			res.Winners = append(res.Winners, i)
		}
	}
	return res, nil
}
