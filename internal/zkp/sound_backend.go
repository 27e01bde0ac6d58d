package zkp

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strconv"

	"zk-tax-system/internal/commitment"
	"zk-tax-system/pkg/logger"
	reasoncodes "zk-tax-system/pkg/reason_codes"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	gnarklogger "github.com/consensys/gnark/logger"
	lru "github.com/hashicorp/golang-lru"
)

type SoundBackend struct {
	ccs    constraint.ConstraintSystem
	pk     groth16.ProvingKey
	vk     groth16.VerifyingKey
	vkDoc  *VerificationKeyDocument
	cache  *lru.Cache
	logger *logger.Logger
}

func NewSoundBackend(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, vk groth16.VerifyingKey, cacheSize int, l *logger.Logger) (*SoundBackend, error) {
	gnarklogger.Disable()

	bnVk, ok := vk.(*groth16_bn254.VerifyingKey)
	if !ok {
		return nil, fmt.Errorf("verifying key is not on %s", ElipticalCurveID)
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	return &SoundBackend{
		ccs:    ccs,
		pk:     pk,
		vk:     vk,
		vkDoc:  NewVerificationKeyDocument(bnVk),
		cache:  cache,
		logger: l,
	}, nil
}

// NewDevelopmentBackend compiles the circuit and runs an in-memory setup.
// The keys are toxic-waste insecure and must not leave the process.
func NewDevelopmentBackend(l *logger.Logger) (*SoundBackend, error) {
	ccs, err := CompileCircuit()
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, err
	}
	return NewSoundBackend(ccs, pk, vk, 128, l)
}

func (b *SoundBackend) Provenance() Provenance { return ProvenanceSound }

func (b *SoundBackend) VerifyingKey() *VerificationKeyDocument { return b.vkDoc }

func (b *SoundBackend) GenerateProof(ctx context.Context, income uint64, secret string, threshold uint64) (*ProofArtifact, error) {
	if income <= threshold {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "income does not exceed threshold %d", threshold)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := commitment.Commit(income, secret)
	secretElement := commitment.SecretElement(secret)
	secretValue := secretElement.BigInt(new(big.Int))

	assignment := IncomeThresholdCircuit{
		Commitment: digest.BigInt(),
		Threshold:  threshold,
		Result:     1,
		Income:     income,
		Secret:     secretValue,
	}

	fullWitness, err := frontend.NewWitness(&assignment, ElipticalCurveID.ScalarField())
	if err != nil {
		return nil, reasoncodes.Wrap(reasoncodes.ErrProofGeneration, err, "build witness")
	}

	proof, err := groth16.Prove(b.ccs, b.pk, fullWitness)
	if err != nil {
		return nil, reasoncodes.Wrap(reasoncodes.ErrProofGeneration, err, "prove")
	}

	publicWitness, err := fullWitness.Public()
	if err != nil {
		return nil, reasoncodes.Wrap(reasoncodes.ErrProofGeneration, err, "extract public witness")
	}

	bnProof, ok := proof.(*groth16_bn254.Proof)
	if !ok {
		return nil, reasoncodes.New(reasoncodes.ErrProofGeneration, "unexpected proof type %T", proof)
	}
	obj, err := FromGnarkProof(bnProof)
	if err != nil {
		return nil, reasoncodes.Wrap(reasoncodes.ErrProofGeneration, err, "convert proof")
	}

	blob, err := ArchiveProof(proof, publicWitness)
	if err != nil {
		return nil, reasoncodes.Wrap(reasoncodes.ErrProofGeneration, err, "archive proof")
	}

	return &ProofArtifact{
		Proof:         obj,
		PublicSignals: []string{digest.Decimal(), strconv.FormatUint(threshold, 10), "1"},
		Blob:          blob,
	}, nil
}

func (b *SoundBackend) VerifyProofData(ctx context.Context, proof ProofObject, publicSignals []string) (VerificationResult, error) {
	result := VerificationResult{Method: MethodPairing}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if proof.Provenance == ProvenanceSimulated {
		result.Detail = "simulated proofs carry no cryptographic evidence"
		return result, nil
	}

	key := ProofDigest(proof, publicSignals)
	if cached, ok := b.cache.Get(key); ok {
		return cached.(VerificationResult), nil
	}

	result = b.verify(proof, publicSignals)
	b.cache.Add(key, result)
	return result, nil
}

func (b *SoundBackend) verify(proof ProofObject, publicSignals []string) VerificationResult {
	result := VerificationResult{Method: MethodPairing}

	nativeProof, err := proof.ToGnarkProof()
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	signals, err := ParseSignals(publicSignals)
	if err != nil {
		result.Detail = err.Error()
		return result
	}

	assignment := IncomeThresholdCircuit{
		Commitment: signals[0],
		Threshold:  signals[1],
		Result:     signals[2],
	}
	publicWitness, err := frontend.NewWitness(&assignment, ElipticalCurveID.ScalarField(), frontend.PublicOnly())
	if err != nil {
		result.Detail = err.Error()
		return result
	}

	if err := groth16.Verify(nativeProof, b.vk, publicWitness); err != nil {
		b.logger.Debugf("pairing check failed: %v", err)
		result.Detail = "pairing check failed"
		return result
	}

	result.Valid = true
	return result
}

// VerifyArchive re-verifies a borsh archive produced by GenerateProof and
// checks that it carries the same proof points and public inputs as the
// stored JSON form.
func (b *SoundBackend) VerifyArchive(blob []byte, stored ProofObject, publicSignals []string) error {
	proof, publicWitness, err := RestoreProof(blob)
	if err != nil {
		return reasoncodes.Wrap(reasoncodes.ErrCryptoVerification, err, "restore archive")
	}

	bnProof, ok := proof.(*groth16_bn254.Proof)
	if !ok {
		return reasoncodes.New(reasoncodes.ErrCryptoVerification, "unexpected archived proof type %T", proof)
	}
	archived, err := FromGnarkProof(bnProof)
	if err != nil {
		return reasoncodes.Wrap(reasoncodes.ErrCryptoVerification, err, "convert archived proof")
	}
	if err := stored.Validate(); err != nil {
		return err
	}
	if !slices.Equal(archived.coordinates(), stored.coordinates()) {
		return reasoncodes.New(reasoncodes.ErrCryptoVerification, "archived proof differs from the stored proof")
	}

	vector, ok := publicWitness.Vector().(fr.Vector)
	if !ok {
		return reasoncodes.New(reasoncodes.ErrCryptoVerification, "unexpected archived witness type")
	}
	signals, err := ParseSignals(publicSignals)
	if err != nil {
		return err
	}
	if len(vector) != len(signals) {
		return reasoncodes.New(reasoncodes.ErrCryptoVerification, "archived witness has %d inputs, stored %d", len(vector), len(signals))
	}
	for i := range vector {
		if vector[i].BigInt(new(big.Int)).Cmp(signals[i]) != 0 {
			return reasoncodes.New(reasoncodes.ErrCryptoVerification, "archived public input %d differs from the stored signal", i)
		}
	}

	if err := groth16.Verify(proof, b.vk, publicWitness); err != nil {
		return reasoncodes.Wrap(reasoncodes.ErrCryptoVerification, err, "archived pairing check")
	}
	return nil
}
