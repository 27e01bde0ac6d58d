package zkp

import (
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/mimc"
)

const valueBits = 64

// IncomeThresholdCircuit proves Income > Threshold and MiMC(Income, Secret) == Commitment.
// Public inputs appear in field order: Commitment, Threshold, Result.
type IncomeThresholdCircuit struct {
	Commitment frontend.Variable `gnark:",public"`
	Threshold  frontend.Variable `gnark:",public"`
	Result     frontend.Variable `gnark:",public"`

	Income frontend.Variable
	Secret frontend.Variable
}

func (c *IncomeThresholdCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Result, 1)

	api.ToBinary(c.Income, valueBits)
	api.ToBinary(c.Threshold, valueBits)
	// wraps around the field unless Income >= Threshold+1
	api.ToBinary(api.Sub(c.Income, c.Threshold, 1), valueBits)

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Income, c.Secret)
	api.AssertIsEqual(h.Sum(), c.Commitment)

	return nil
}

func CompileCircuit() (constraint.ConstraintSystem, error) {
	return frontend.Compile(ElipticalCurveID.ScalarField(), r1cs.NewBuilder, &IncomeThresholdCircuit{})
}
