// Package zkp proves and verifies "income > threshold" statements bound to a commitment.
package zkp

import (
	"context"

	"github.com/consensys/gnark-crypto/ecc"
)

const (
	ElipticalCurveID = ecc.BN254
	ProtocolGroth16  = "groth16"
	CurveName        = "bn128"
	publicSignalsLen = 3
)

// Provenance records which backend produced an artifact.
type Provenance string

const (
	ProvenanceSound     Provenance = "sound"
	ProvenanceSimulated Provenance = "simulated"
)

type VerificationMethod string

const (
	MethodPairing    VerificationMethod = "pairing"
	MethodStructural VerificationMethod = "structural"
)

type ProofArtifact struct {
	Proof         ProofObject
	PublicSignals []string
	// Blob is the borsh archive of the native proof and public witness. Sound proofs only.
	Blob          []byte
}

type VerificationResult struct {
	Valid  bool
	Method VerificationMethod
	// Weak is set when no cryptographic check was possible.
	Weak   bool
	Detail string
}

// Backend is selected once at startup, see Select.
type Backend interface {
	Provenance() Provenance
	GenerateProof(ctx context.Context, income uint64, secret string, threshold uint64) (*ProofArtifact, error)
	VerifyProofData(ctx context.Context, proof ProofObject, publicSignals []string) (VerificationResult, error)
	// VerifyingKey is nil for the simulated backend.
	VerifyingKey() *VerificationKeyDocument
}

// ArchiveVerifier is implemented by backends whose proofs carry a native archive.
type ArchiveVerifier interface {
	VerifyArchive(blob []byte, stored ProofObject, publicSignals []string) error
}
