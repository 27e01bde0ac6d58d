package zkp

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	reasoncodes "zk-tax-system/pkg/reason_codes"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
)

// ProofObject is the snarkjs-compatible JSON form of a Groth16 proof.
// PiB coordinates are in prover-native order [x.A0, x.A1], [y.A0, y.A1].
type ProofObject struct {
	PiA        []string   `json:"pi_a"`
	PiB        [][]string `json:"pi_b"`
	PiC        []string   `json:"pi_c"`
	Protocol   string     `json:"protocol"`
	Curve      string     `json:"curve"`
	Provenance Provenance `json:"provenance"`
}

func FromGnarkProof(p *groth16_bn254.Proof) (ProofObject, error) {
	if len(p.Commitments) > 0 {
		return ProofObject{}, fmt.Errorf("proofs with commitments are not supported on the ledger verifier")
	}
	return ProofObject{
		PiA:        g1Strings(&p.Ar),
		PiB:        g2Strings(&p.Bs),
		PiC:        g1Strings(&p.Krs),
		Protocol:   ProtocolGroth16,
		Curve:      CurveName,
		Provenance: ProvenanceSound,
	}, nil
}

// ToGnarkProof parses and curve-checks the points.
func (po ProofObject) ToGnarkProof() (*groth16_bn254.Proof, error) {
	if err := po.Validate(); err != nil {
		return nil, err
	}
	a, err := ParseG1(po.PiA)
	if err != nil {
		return nil, fmt.Errorf("pi_a: %w", err)
	}
	b, err := ParseG2(po.PiB)
	if err != nil {
		return nil, fmt.Errorf("pi_b: %w", err)
	}
	c, err := ParseG1(po.PiC)
	if err != nil {
		return nil, fmt.Errorf("pi_c: %w", err)
	}
	return &groth16_bn254.Proof{Ar: a, Bs: b, Krs: c}, nil
}

// Validate checks shape and that every coordinate is a base field element.
func (po ProofObject) Validate() error {
	if po.Protocol != ProtocolGroth16 {
		return reasoncodes.New(reasoncodes.ErrValidation, "unsupported protocol %q", po.Protocol)
	}
	if len(po.PiA) != 3 || len(po.PiC) != 3 {
		return reasoncodes.New(reasoncodes.ErrValidation, "pi_a and pi_c must have 3 coordinates")
	}
	if len(po.PiB) != 3 {
		return reasoncodes.New(reasoncodes.ErrValidation, "pi_b must have 3 rows")
	}
	for i, row := range po.PiB {
		if len(row) != 2 {
			return reasoncodes.New(reasoncodes.ErrValidation, "pi_b row %d must have 2 coordinates", i)
		}
	}
	if po.PiA[2] != "1" || po.PiC[2] != "1" || po.PiB[2][0] != "1" || po.PiB[2][1] != "0" {
		return reasoncodes.New(reasoncodes.ErrValidation, "points must be affine")
	}
	for _, s := range po.coordinates() {
		if _, err := ParseFp(s); err != nil {
			return err
		}
	}
	return nil
}

func (po ProofObject) coordinates() []string {
	out := []string{po.PiA[0], po.PiA[1], po.PiC[0], po.PiC[1]}
	for _, row := range po.PiB[:2] {
		out = append(out, row...)
	}
	return out
}

// ProofDigest identifies a (proof, public signals) pair for caching.
func ProofDigest(po ProofObject, publicSignals []string) [32]byte {
	var sb strings.Builder
	for _, part := range [][]string{po.PiA, po.PiC, publicSignals} {
		sb.WriteString(strings.Join(part, ","))
		sb.WriteByte('|')
	}
	for _, row := range po.PiB {
		sb.WriteString(strings.Join(row, ","))
		sb.WriteByte(';')
	}
	sb.WriteString(string(po.Provenance))
	return sha256.Sum256([]byte(sb.String()))
}

func ParseFp(s string) (fp.Element, error) {
	var e fp.Element
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 || b.Cmp(fp.Modulus()) >= 0 {
		return e, reasoncodes.New(reasoncodes.ErrValidation, "%q is not a base field element", s)
	}
	e.SetBigInt(b)
	return e, nil
}

// ParseSignal parses a public signal as a scalar field element.
func ParseSignal(s string) (*big.Int, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 || b.Cmp(fr.Modulus()) >= 0 {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "public signal %q is not a scalar field element", s)
	}
	return b, nil
}

func ParseSignals(signals []string) ([]*big.Int, error) {
	if len(signals) != publicSignalsLen {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "expected %d public signals, got %d", publicSignalsLen, len(signals))
	}
	out := make([]*big.Int, len(signals))
	for i, s := range signals {
		v, err := ParseSignal(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func ParseG1(coords []string) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	if len(coords) < 2 {
		return p, reasoncodes.New(reasoncodes.ErrValidation, "G1 point needs 2 coordinates")
	}
	var err error
	if p.X, err = ParseFp(coords[0]); err != nil {
		return p, err
	}
	if p.Y, err = ParseFp(coords[1]); err != nil {
		return p, err
	}
	if !p.IsOnCurve() || !p.IsInSubGroup() {
		return p, reasoncodes.New(reasoncodes.ErrValidation, "G1 point is not on the curve")
	}
	return p, nil
}

// ParseG2 expects prover-native order [[x.A0, x.A1], [y.A0, y.A1], ...].
func ParseG2(rows [][]string) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	if len(rows) < 2 || len(rows[0]) != 2 || len(rows[1]) != 2 {
		return p, reasoncodes.New(reasoncodes.ErrValidation, "G2 point needs 2x2 coordinates")
	}
	var err error
	if p.X.A0, err = ParseFp(rows[0][0]); err != nil {
		return p, err
	}
	if p.X.A1, err = ParseFp(rows[0][1]); err != nil {
		return p, err
	}
	if p.Y.A0, err = ParseFp(rows[1][0]); err != nil {
		return p, err
	}
	if p.Y.A1, err = ParseFp(rows[1][1]); err != nil {
		return p, err
	}
	if !p.IsOnCurve() || !p.IsInSubGroup() {
		return p, reasoncodes.New(reasoncodes.ErrValidation, "G2 point is not on the curve")
	}
	return p, nil
}

func fpString(e *fp.Element) string {
	return e.BigInt(new(big.Int)).String()
}

func g1Strings(p *bn254.G1Affine) []string {
	return []string{fpString(&p.X), fpString(&p.Y), "1"}
}

func g2Strings(p *bn254.G2Affine) [][]string {
	return [][]string{
		{fpString(&p.X.A0), fpString(&p.X.A1)},
		{fpString(&p.Y.A0), fpString(&p.Y.A1)},
		{"1", "0"},
	}
}
