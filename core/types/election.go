package types

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ElectionRecord is the private data an oracle returns alongside its proof.
// It is produced fresh for every election attempt and only kept when the
// attempt produced a block.
type ElectionRecord struct {
	EligibilityScore float64
	Threshold        float64
	ValidatorWeight  float64
	Randomness       hexutil.Bytes
	EvaluatedAt      time.Time
}

// Copy returns a deep copy of r. A nil record copies to nil.
func (r *ElectionRecord) Copy() *ElectionRecord {
	if r == nil {
		return nil
	}
	cpy := *r
	cpy.Randomness = append(hexutil.Bytes(nil), r.Randomness...)
	return &cpy
}

type electionJSON struct {
	Randomness       hexutil.Bytes `json:"randomness"`
	Threshold        float64       `json:"threshold"`
	EligibilityScore float64       `json:"eligibilityScore"`
	ValidatorWeight  float64       `json:"validatorWeight"`
	Timestamp        int64         `json:"timestamp"`
}

// MarshalJSON uses the oracle wire names; the timestamp is in unix seconds.
func (r ElectionRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(electionJSON{
		Randomness:       r.Randomness,
		Threshold:        r.Threshold,
		EligibilityScore: r.EligibilityScore,
		ValidatorWeight:  r.ValidatorWeight,
		Timestamp:        r.EvaluatedAt.Unix(),
	})
}

// UnmarshalJSON decodes the oracle wire format.
func (r *ElectionRecord) UnmarshalJSON(data []byte) error {
	var dec electionJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	*r = ElectionRecord{
		EligibilityScore: dec.EligibilityScore,
		Threshold:        dec.Threshold,
		ValidatorWeight:  dec.ValidatorWeight,
		Randomness:       dec.Randomness,
		EvaluatedAt:      time.Unix(dec.Timestamp, 0),
	}
	return nil
}
