package chain

import (
	"math/big"

	"zk-tax-system/internal/zkp"
	reasoncodes "zk-tax-system/pkg/reason_codes"
)

// Calldata holds proof components in the verifier contract's layout.
// B is in EVM order: [[x.A1, x.A0], [y.A1, y.A0]].
type Calldata struct {
	A     [2]*big.Int
	B     [2][2]*big.Int
	C     [2]*big.Int
	Input [3]*big.Int
}

// SwapG2 reorders a prover-native G2 point [[x.A0, x.A1], [y.A0, y.A1], ...] into EVM order.
func SwapG2(native [][]string) [2][2]string {
	return [2][2]string{
		{native[0][1], native[0][0]},
		{native[1][1], native[1][0]},
	}
}

// ToCalldata is the only way proof components reach a contract.
func ToCalldata(proof zkp.ProofObject, publicSignals []string) (Calldata, error) {
	var cd Calldata
	if err := proof.Validate(); err != nil {
		return cd, err
	}
	signals, err := zkp.ParseSignals(publicSignals)
	if err != nil {
		return cd, err
	}

	if cd.A, err = g1Pair(proof.PiA); err != nil {
		return cd, err
	}
	if cd.C, err = g1Pair(proof.PiC); err != nil {
		return cd, err
	}
	swapped := SwapG2(proof.PiB)
	for i := range swapped {
		for j := range swapped[i] {
			if cd.B[i][j], err = decimal(swapped[i][j]); err != nil {
				return cd, err
			}
		}
	}
	copy(cd.Input[:], signals)
	return cd, nil
}

func NewPaymentCall(amount int64, proof zkp.ProofObject, publicSignals []string) (PaymentCall, error) {
	if amount <= 0 {
		return PaymentCall{}, reasoncodes.New(reasoncodes.ErrValidation, "amount must be positive")
	}
	cd, err := ToCalldata(proof, publicSignals)
	if err != nil {
		return PaymentCall{}, err
	}
	return PaymentCall{Amount: big.NewInt(amount), Calldata: cd}, nil
}

func g1Pair(coords []string) ([2]*big.Int, error) {
	var out [2]*big.Int
	for i := 0; i < 2; i++ {
		v, err := decimal(coords[i])
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

func decimal(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "%q is not a decimal integer", s)
	}
	return v, nil
}
