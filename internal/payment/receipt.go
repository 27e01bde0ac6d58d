package payment

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

var (
	receiptSuffixSpace = big.NewInt(1000000)
	receiptIdPattern   = regexp.MustCompile(`^RCPT-\d+-\d{6}$`)
)

// NewReceiptId returns RCPT-<unix millis>-<6 random digits>.
func NewReceiptId(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, receiptSuffixSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("RCPT-%d-%06d", now.UnixMilli(), n.Int64()), nil
}

func IsReceiptId(s string) bool {
	return receiptIdPattern.MatchString(s)
}

type Receipt struct {
	ReceiptId       string     `json:"receipt_id,omitempty"`
	PaymentId       string     `json:"payment_id"`
	ProofId         string     `json:"proof_id"`
	Owner           string     `json:"owner"`
	Amount          int64      `json:"amount"`
	FiscalYear      int        `json:"fiscal_year"`
	Status          string     `json:"status"`
	IncomeRange     string     `json:"income_range,omitempty"`
	ChainAddress    string     `json:"chain_address,omitempty"`
	TransactionHash string     `json:"transaction_hash,omitempty"`
	TransactionDate *time.Time `json:"transaction_date,omitempty"`
	TxProvenance    string     `json:"tx_provenance,omitempty"`
	IssuedAt        time.Time  `json:"issued_at"`
	// LedgerVerified is set when the stored transaction was found confirmed on the ledger.
	LedgerVerified    bool   `json:"ledger_verified"`
	VerificationError string `json:"verification_error,omitempty"`
}
