package model

import (
	"time"

	"zk-tax-system/internal/zkp"
)

type ProofStatus string

const (
	StatusCommitmentGenerated  ProofStatus = "commitment_generated"
	StatusProofGenerated       ProofStatus = "proof_generated"
	StatusProofVerified        ProofStatus = "proof_verified"
	StatusProofVerifiedOnChain ProofStatus = "proof_verified_on_chain"
	StatusExpired              ProofStatus = "expired"
	StatusRevoked              ProofStatus = "revoked"
)

func (s ProofStatus) IsTerminal() bool {
	return s == StatusExpired || s == StatusRevoked
}

// IsVerified reports whether a payment may be built on the proof.
func (s ProofStatus) IsVerified() bool {
	return s == StatusProofVerified || s == StatusProofVerifiedOnChain
}

type VerificationProvenance string

const (
	VerifiedByLedgerTx       VerificationProvenance = "ledger-tx"
	VerifiedByLedgerReadOnly VerificationProvenance = "ledger-readonly"
	VerifiedSynthetic        VerificationProvenance = "synthetic"
)

type IncomeProof struct {
	Id         string `gorm:"primaryKey;size:36"`
	Owner      string `gorm:"index;not null"`
	Commitment string `gorm:"size:66;not null"`

	RangeLabel string
	Threshold  uint64

	Proof           *zkp.ProofObject `gorm:"type:text;serializer:json"`
	PublicSignals   []string         `gorm:"type:text;serializer:json"`
	ProofProvenance zkp.Provenance
	ProofBlob       []byte

	Status ProofStatus `gorm:"index;not null"`

	VerificationMethod     zkp.VerificationMethod
	VerificationTxHash     string
	VerificationProvenance VerificationProvenance
	CommitmentTxHash       string
	// OnChainClaim holds the token of the process currently submitting the ledger verification.
	OnChainClaim     string
	OnChainClaimedAt *time.Time
	RevocationReason string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	VerifiedAt *time.Time
	ExpiresAt  time.Time `gorm:"index"`
}

func (p *IncomeProof) HasProof() bool {
	return p.Proof != nil && len(p.PublicSignals) > 0
}
