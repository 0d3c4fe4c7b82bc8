package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"

	"github.com/zkfocil/zkfocil/core/types"
)

// ProofPath is the proof oracle endpoint.
const ProofPath = "/zk-proof"

// DefaultRemoteTimeout bounds a single remote oracle request.
const DefaultRemoteTimeout = 2 * time.Second

// ProofResponse is the wire format of the proof oracle.
type ProofResponse struct {
	Proof       string                `json:"proof"`
	Elected     bool                  `json:"elected"`
	PrivateData *types.ElectionRecord `json:"privateData,omitempty"`
}

// RemoteOracle asks an HTTP proof oracle for each evaluation. Every failure
// is reported as ErrOracleUnavailable.
type RemoteOracle struct {
	client *resty.Client
}

// NewRemoteOracle creates a client for the oracle at baseURL. A zero timeout
// selects DefaultRemoteTimeout.
func NewRemoteOracle(baseURL string, timeout time.Duration) *RemoteOracle {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &RemoteOracle{client: client}
}

// Evaluate performs GET /zk-proof?address=<addr>. The remote picks its own
// time bucket, so nonce is not sent.
func (o *RemoteOracle) Evaluate(ctx context.Context, addr common.Address, _ uint64) (*Outcome, error) {
	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParam("address", addr.Hex()).
		Get(ProofPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrOracleUnavailable, resp.StatusCode())
	}

	var body ProofResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrOracleUnavailable, err)
	}
	if body.Proof == "" {
		return nil, fmt.Errorf("%w: empty proof", ErrOracleUnavailable)
	}
	return &Outcome{
		Proof:   body.Proof,
		Elected: body.Elected,
		Record:  body.PrivateData,
		Source:  SourceRemote,
	}, nil
}
