package consensus

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zkfocil/zkfocil/log"
)

// Policy names the rule that turns an oracle outcome into an election.
type Policy string

const (
	// PolicyThreshold elects when the oracle does (score > threshold).
	PolicyThreshold Policy = "threshold"
	// PolicyModulo elects when the address digest sum mod 7 is below 5.
	PolicyModulo Policy = "modulo"
	// PolicyLottery elects key-image lottery winners.
	PolicyLottery Policy = "lottery"
)

// ParsePolicy maps a configuration string to a Policy. The empty string
// selects PolicyThreshold.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyThreshold, nil
	case PolicyThreshold, PolicyModulo, PolicyLottery:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// forcedScoreMargin is added to the threshold when a home validator is
// forced through.
const forcedScoreMargin = 0.1

// ElectionConfig configures an Elector.
type ElectionConfig struct {
	Policy Policy

	// Home fixes the home validator. When zero, the modulo path decides
	// whether a candidate is home.
	Home common.Address

	// ForceHome elects a home candidate that evaluation rejected.
	ForceHome bool

	// TargetIncluders feeds the lottery policy.
	TargetIncluders int
}

// DefaultElectionConfig returns the threshold policy with home forcing on.
func DefaultElectionConfig() ElectionConfig {
	return ElectionConfig{
		Policy:          PolicyThreshold,
		ForceHome:       true,
		TargetIncluders: DefaultTargetIncluders,
	}
}

// KeySource resolves identity keys for the lottery policy.
type KeySource interface {
	Key(addr common.Address) (*ecdsa.PrivateKey, bool)
	Len() int
}

// Decision is the result of one election.
type Decision struct {
	Address common.Address
	Outcome *Outcome
	Home    bool
	Forced  bool
	Policy  Policy
}

// Elected reports whether the candidate may propose.
func (d *Decision) Elected() bool { return d.Outcome != nil && d.Outcome.Elected }

// Elector applies an election policy to oracle outcomes.
type Elector struct {
	config  ElectionConfig
	oracle  Oracle
	keys    KeySource
	lottery *Lottery
	log     *log.Logger
}

// NewElector creates an Elector. keys may be nil unless the lottery policy
// is selected.
func NewElector(config ElectionConfig, oracle Oracle, keys KeySource, logger *log.Logger) (*Elector, error) {
	policy, err := ParsePolicy(string(config.Policy))
	if err != nil {
		return nil, err
	}
	config.Policy = policy
	if policy == PolicyLottery && keys == nil {
		return nil, fmt.Errorf("%w: lottery policy needs identity keys", ErrUnknownPolicy)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Elector{
		config:  config,
		oracle:  oracle,
		keys:    keys,
		lottery: NewLottery(config.TargetIncluders),
		log:     logger.Module("consensus"),
	}, nil
}

// Policy returns the active policy.
func (e *Elector) Policy() Policy { return e.config.Policy }

// IsHome reports whether addr is treated as the home validator.
func (e *Elector) IsHome(addr common.Address) bool {
	if e.config.Home != (common.Address{}) {
		return addr == e.config.Home
	}
	return ModuloSelected(addr)
}

// Elect evaluates addr at nonce. The returned Outcome is owned by the
// Decision; the oracle's record is not modified.
func (e *Elector) Elect(ctx context.Context, addr common.Address, nonce uint64) (*Decision, error) {
	out, err := e.oracle.Evaluate(ctx, addr, nonce)
	if err != nil {
		return nil, err
	}
	result := *out
	result.Record = out.Record.Copy()

	switch e.config.Policy {
	case PolicyModulo:
		result.Elected = ModuloSelected(addr)
	case PolicyLottery:
		key, ok := e.keys.Key(addr)
		if !ok {
			return nil, fmt.Errorf("consensus: no key for %s", addr)
		}
		won, err := e.lottery.IsIncluder(key, e.keys.Len())
		if err != nil {
			return nil, err
		}
		result.Elected = won
	}

	d := &Decision{
		Address: addr,
		Outcome: &result,
		Home:    e.IsHome(addr),
		Policy:  e.config.Policy,
	}
	if d.Home && !result.Elected && e.config.ForceHome {
		result.Elected = true
		d.Forced = true
		if r := result.Record; r != nil {
			r.EligibilityScore = math.Max(r.EligibilityScore, r.Threshold+forcedScoreMargin)
		}
	}
	e.log.Debug("Election evaluated", "address", addr, "policy", d.Policy,
		"elected", result.Elected, "home", d.Home, "forced", d.Forced, "source", result.Source)
	return d, nil
}
