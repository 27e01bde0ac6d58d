// Package chain talks to the verifier and payment contracts.
package chain

import (
	"context"
	"math/big"
	"time"

	"zk-tax-system/internal/zkp"
)

// TxProvenance tags where a transaction reference came from.
type TxProvenance string

const (
	ProvenanceLedger    TxProvenance = "ledger"
	ProvenanceSynthetic TxProvenance = "synthetic"
)

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TxRef identifies a submitted transaction. A failed submission carries Error instead of Hash.
type TxRef struct {
	Hash       string       `json:"hash,omitempty"`
	Provenance TxProvenance `json:"provenance,omitempty"`
	Error      string       `json:"error,omitempty"`
}

func (r TxRef) Failed() bool { return r.Error != "" }

type VerificationOutcome struct {
	IsValid bool
	Tx      TxRef
}

type TransactionRecord struct {
	Hash        string       `json:"hash"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Value       string       `json:"value"`
	Status      TxStatus     `json:"status"`
	BlockNumber uint64       `json:"block_number,omitempty"`
	BlockTime   *time.Time   `json:"block_time,omitempty"`
	Provenance  TxProvenance `json:"provenance"`
}

// PaymentCall is the fully prepared processPayment invocation.
type PaymentCall struct {
	Amount   *big.Int
	Calldata Calldata
}

// Gateway is implemented by EthGateway and SimulatedGateway. Every call is bounded by
// the gateway's timeout and never retried.
type Gateway interface {
	SubmitCommitment(ctx context.Context, address string, commitment [32]byte) (TxRef, error)
	CallVerifier(ctx context.Context, calldata Calldata) (bool, error)
	SubmitVerification(ctx context.Context, address string, proof zkp.ProofObject, publicSignals []string) (VerificationOutcome, error)
	SubmitPayment(ctx context.Context, address string, call PaymentCall) (TxRef, error)
	ReadTransaction(ctx context.Context, hash string) (TransactionRecord, error)
	GetTreasuryBalance(ctx context.Context) (TreasuryBalance, error)
}
