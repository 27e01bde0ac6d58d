package zkp

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"strconv"

	"zk-tax-system/internal/commitment"
	"zk-tax-system/pkg/logger"
	reasoncodes "zk-tax-system/pkg/reason_codes"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
)

// SimulatedBackend stands in when no proving artifacts exist. Its proofs have the
// shape of a Groth16 proof and no cryptographic meaning.
type SimulatedBackend struct {
	logger *logger.Logger
}

func NewSimulatedBackend(l *logger.Logger) *SimulatedBackend {
	return &SimulatedBackend{logger: l}
}

func (b *SimulatedBackend) Provenance() Provenance { return ProvenanceSimulated }

func (b *SimulatedBackend) VerifyingKey() *VerificationKeyDocument { return nil }

func (b *SimulatedBackend) GenerateProof(ctx context.Context, income uint64, secret string, threshold uint64) (*ProofArtifact, error) {
	if income <= threshold {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "income does not exceed threshold %d", threshold)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := commitment.Commit(income, secret)
	seed := sha256.Sum256(append(digest[:], []byte("|"+strconv.FormatUint(threshold, 10))...))
	next := elementStream(seed)

	b.logger.Warnf("issuing simulated proof for threshold %d", threshold)

	return &ProofArtifact{
		Proof: ProofObject{
			PiA:        []string{next(), next(), "1"},
			PiB:        [][]string{{next(), next()}, {next(), next()}, {"1", "0"}},
			PiC:        []string{next(), next(), "1"},
			Protocol:   ProtocolGroth16,
			Curve:      CurveName,
			Provenance: ProvenanceSimulated,
		},
		PublicSignals: []string{digest.Decimal(), strconv.FormatUint(threshold, 10), "1"},
	}, nil
}

// VerifyProofData only checks cardinalities and field membership.
func (b *SimulatedBackend) VerifyProofData(ctx context.Context, proof ProofObject, publicSignals []string) (VerificationResult, error) {
	result := VerificationResult{Method: MethodStructural, Weak: true}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if err := proof.Validate(); err != nil {
		result.Detail = reasoncodes.MessageOf(err)
		return result, nil
	}
	signals, err := ParseSignals(publicSignals)
	if err != nil {
		result.Detail = reasoncodes.MessageOf(err)
		return result, nil
	}
	if signals[2].Cmp(big.NewInt(1)) != 0 {
		result.Detail = "result signal must be 1"
		return result, nil
	}

	result.Valid = true
	result.Detail = string(reasoncodes.StructuralVerification)
	return result, nil
}

func elementStream(seed [32]byte) func() string {
	var counter uint64
	return func() string {
		var buf [40]byte
		copy(buf[:32], seed[:])
		binary.BigEndian.PutUint64(buf[32:], counter)
		counter++
		sum := sha256.Sum256(buf[:])
		v := new(big.Int).SetBytes(sum[:])
		return v.Mod(v, fp.Modulus()).String()
	}
}
