package chain

import (
	"math/big"

	"zk-tax-system/internal/zkp"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	bn256 "github.com/ethereum/go-ethereum/crypto/bn256/cloudflare"
)

// EVMVerifier evaluates the Groth16 pairing equation over EVM-ordered calldata using
// the same point encoding as the BN254 precompiles.
type EVMVerifier struct {
	alpha *bn256.G1
	beta  *bn256.G2
	gamma *bn256.G2
	delta *bn256.G2
	ic    []*bn256.G1
}

func NewEVMVerifier(doc *zkp.VerificationKeyDocument) (*EVMVerifier, error) {
	if _, err := doc.Parse(); err != nil {
		return nil, err
	}

	v := &EVMVerifier{ic: make([]*bn256.G1, len(doc.IC))}
	var err error
	if v.alpha, err = g1FromStrings(doc.VkAlpha1); err != nil {
		return nil, err
	}
	for _, target := range []struct {
		dst **bn256.G2
		src [][]string
	}{
		{&v.beta, doc.VkBeta2},
		{&v.gamma, doc.VkGamma2},
		{&v.delta, doc.VkDelta2},
	} {
		swapped := SwapG2(target.src)
		if *target.dst, err = g2FromStrings(swapped); err != nil {
			return nil, err
		}
	}
	for i, p := range doc.IC {
		if v.ic[i], err = g1FromStrings(p); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Verify mirrors the contract's verifyProof: malformed points or out-of-field inputs yield false.
func (v *EVMVerifier) Verify(cd Calldata) bool {
	if len(v.ic) != len(cd.Input)+1 {
		return false
	}
	a, err := g1FromInts(cd.A)
	if err != nil {
		return false
	}
	b, err := g2FromInts(cd.B)
	if err != nil {
		return false
	}
	c, err := g1FromInts(cd.C)
	if err != nil {
		return false
	}

	acc := new(bn256.G1).ScalarMult(v.ic[0], big.NewInt(1))
	for i, in := range cd.Input {
		if in == nil || in.Sign() < 0 || in.Cmp(fr.Modulus()) >= 0 {
			return false
		}
		acc = new(bn256.G1).Add(acc, new(bn256.G1).ScalarMult(v.ic[i+1], in))
	}

	return bn256.PairingCheck(
		[]*bn256.G1{new(bn256.G1).Neg(a), v.alpha, acc, c},
		[]*bn256.G2{b, v.beta, v.gamma, v.delta},
	)
}

const wordSize = 32

func word(v *big.Int) ([]byte, bool) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 8*wordSize {
		return nil, false
	}
	return v.FillBytes(make([]byte, wordSize)), true
}

func g1FromInts(p [2]*big.Int) (*bn256.G1, error) {
	buf := make([]byte, 0, 2*wordSize)
	for _, c := range p {
		w, ok := word(c)
		if !ok {
			return nil, errMalformedPoint
		}
		buf = append(buf, w...)
	}
	g := new(bn256.G1)
	if _, err := g.Unmarshal(buf); err != nil {
		return nil, err
	}
	return g, nil
}

// g2FromInts expects EVM order, imaginary part first.
func g2FromInts(p [2][2]*big.Int) (*bn256.G2, error) {
	buf := make([]byte, 0, 4*wordSize)
	for _, row := range p {
		for _, c := range row {
			w, ok := word(c)
			if !ok {
				return nil, errMalformedPoint
			}
			buf = append(buf, w...)
		}
	}
	g := new(bn256.G2)
	if _, err := g.Unmarshal(buf); err != nil {
		return nil, err
	}
	return g, nil
}

func g1FromStrings(coords []string) (*bn256.G1, error) {
	var p [2]*big.Int
	var err error
	for i := 0; i < 2; i++ {
		if p[i], err = decimal(coords[i]); err != nil {
			return nil, err
		}
	}
	return g1FromInts(p)
}

func g2FromStrings(rows [2][2]string) (*bn256.G2, error) {
	var p [2][2]*big.Int
	var err error
	for i := range rows {
		for j := range rows[i] {
			if p[i][j], err = decimal(rows[i][j]); err != nil {
				return nil, err
			}
		}
	}
	return g2FromInts(p)
}
