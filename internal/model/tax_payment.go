package model

import "time"

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// BlockingStatuses occupy the (proof, fiscal year) slot.
var BlockingStatuses = []PaymentStatus{PaymentPending, PaymentProcessing, PaymentCompleted}

type TaxPayment struct {
	Id           string `gorm:"primaryKey;size:36" json:"id"`
	Owner        string `gorm:"index;not null" json:"owner"`
	ProofId      string `gorm:"index;not null" json:"proof_id"`
	Amount       int64  `gorm:"not null" json:"amount"`
	FiscalYear   int    `gorm:"index;not null" json:"fiscal_year"`
	ChainAddress string `json:"chain_address"`

	TransactionHash string     `json:"transaction_hash,omitempty"`
	TransactionDate *time.Time `json:"transaction_date,omitempty"`
	TxProvenance    string     `json:"tx_provenance,omitempty"`

	Status        PaymentStatus `gorm:"index;not null" json:"status"`
	ReceiptId     *string       `gorm:"uniqueIndex" json:"receipt_id,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	RefundReason  string        `json:"refund_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
