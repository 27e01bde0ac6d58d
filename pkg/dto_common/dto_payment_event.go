package dtocommon

import (
	"zk-tax-system/pkg/utilities"
	"zk-tax-system/pkg/utilities/timeutil"
)

type PaymentStatusChangedDto struct {
	PaymentId  string           `json:"payment_id"`
	ProofId    string           `json:"proof_id"`
	Owner      string           `json:"owner"`
	Status     string           `json:"status"`
	Amount     int64            `json:"amount"`
	FiscalYear int              `json:"fiscal_year"`
	TxHash     string           `json:"tx_hash,omitempty"`
	ReceiptId  string           `json:"receipt_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	OccurredAt timeutil.TimeUTC `json:"occurred_at"`
}

func (d PaymentStatusChangedDto) Serialize() ([]byte, error) {
	return utilities.Serialize(d)
}
