package consensus

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zkfocil/zkfocil/log"
)

// FallbackOracle answers from primary and, when primary fails for any
// reason, from local. Callers never see the primary's error.
type FallbackOracle struct {
	primary Oracle
	local   *LocalOracle
	log     *log.Logger
}

// NewFallbackOracle composes primary with local. A nil primary makes the
// fallback a plain local oracle.
func NewFallbackOracle(primary Oracle, local *LocalOracle, logger *log.Logger) *FallbackOracle {
	if logger == nil {
		logger = log.Default()
	}
	return &FallbackOracle{primary: primary, local: local, log: logger.Module("oracle")}
}

// Evaluate implements Oracle.
func (o *FallbackOracle) Evaluate(ctx context.Context, addr common.Address, nonce uint64) (*Outcome, error) {
	if o.primary != nil {
		out, err := o.primary.Evaluate(ctx, addr, nonce)
		if err == nil {
			return out, nil
		}
		o.log.Debug("Proof oracle unavailable, using local evaluation", "address", addr, "err", err)
	}
	return o.local.Evaluate(ctx, addr, nonce)
}
