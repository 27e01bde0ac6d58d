package dtocommon

import (
	"zk-tax-system/pkg/utilities"
	"zk-tax-system/pkg/utilities/timeutil"
)

type ProofStatusChangedDto struct {
	ProofId    string           `json:"proof_id"`
	Owner      string           `json:"owner"`
	FromStatus string           `json:"from_status"`
	Status     string           `json:"status"`
	Provenance string           `json:"provenance,omitempty"`
	TxHash     string           `json:"tx_hash,omitempty"`
	OccurredAt timeutil.TimeUTC `json:"occurred_at"`
}

func (d ProofStatusChangedDto) Serialize() ([]byte, error) {
	return utilities.Serialize(d)
}

// ProofRevocationRequestDto is consumed from the revocation queue.
type ProofRevocationRequestDto struct {
	ProofId string `json:"proof_id"`
	Reason  string `json:"reason"`
}

func (d ProofRevocationRequestDto) Serialize() ([]byte, error) {
	return utilities.Serialize(d)
}
