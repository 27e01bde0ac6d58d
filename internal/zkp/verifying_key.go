package zkp

import (
	reasoncodes "zk-tax-system/pkg/reason_codes"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
)

// VerificationKeyDocument is the snarkjs-style export of a BN254 Groth16 verifying key.
// G2 points are in prover-native order, like ProofObject.PiB.
type VerificationKeyDocument struct {
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
	NPublic  int        `json:"nPublic"`
	VkAlpha1 []string   `json:"vk_alpha_1"`
	VkBeta2  [][]string `json:"vk_beta_2"`
	VkGamma2 [][]string `json:"vk_gamma_2"`
	VkDelta2 [][]string `json:"vk_delta_2"`
	IC       [][]string `json:"IC"`
}

func NewVerificationKeyDocument(vk *groth16_bn254.VerifyingKey) *VerificationKeyDocument {
	ic := make([][]string, len(vk.G1.K))
	for i := range vk.G1.K {
		ic[i] = g1Strings(&vk.G1.K[i])
	}
	return &VerificationKeyDocument{
		Protocol: ProtocolGroth16,
		Curve:    CurveName,
		NPublic:  len(vk.G1.K) - 1,
		VkAlpha1: g1Strings(&vk.G1.Alpha),
		VkBeta2:  g2Strings(&vk.G2.Beta),
		VkGamma2: g2Strings(&vk.G2.Gamma),
		VkDelta2: g2Strings(&vk.G2.Delta),
		IC:       ic,
	}
}

// ParsedVerificationKey holds the curve points of a VerificationKeyDocument.
type ParsedVerificationKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	IC    []bn254.G1Affine
}

func (d *VerificationKeyDocument) Parse() (*ParsedVerificationKey, error) {
	if d == nil {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "no verifying key")
	}
	if len(d.IC) != d.NPublic+1 {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "IC has %d points for %d public inputs", len(d.IC), d.NPublic)
	}
	var (
		out ParsedVerificationKey
		err error
	)
	if out.Alpha, err = ParseG1(d.VkAlpha1); err != nil {
		return nil, err
	}
	if out.Beta, err = ParseG2(d.VkBeta2); err != nil {
		return nil, err
	}
	if out.Gamma, err = ParseG2(d.VkGamma2); err != nil {
		return nil, err
	}
	if out.Delta, err = ParseG2(d.VkDelta2); err != nil {
		return nil, err
	}
	out.IC = make([]bn254.G1Affine, len(d.IC))
	for i, p := range d.IC {
		if out.IC[i], err = ParseG1(p); err != nil {
			return nil, err
		}
	}
	return &out, nil
}
