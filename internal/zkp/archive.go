package zkp

import (
	"bytes"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/near/borsh-go"
)

type proofArchive struct {
	Proof         []byte `borsh:"proof"`
	PublicWitness []byte `borsh:"public_witness"`
}

// ArchiveProof serializes the native proof and public witness for later re-verification.
func ArchiveProof(proof groth16.Proof, publicWitness witness.Witness) ([]byte, error) {
	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, err
	}

	var witnessBuf bytes.Buffer
	if _, err := publicWitness.WriteTo(&witnessBuf); err != nil {
		return nil, err
	}

	return borsh.Serialize(proofArchive{
		Proof:         proofBuf.Bytes(),
		PublicWitness: witnessBuf.Bytes(),
	})
}

func RestoreProof(blob []byte) (groth16.Proof, witness.Witness, error) {
	var archive proofArchive
	if err := borsh.Deserialize(&archive, blob); err != nil {
		return nil, nil, err
	}

	proof := groth16.NewProof(ElipticalCurveID)
	if _, err := proof.ReadFrom(bytes.NewReader(archive.Proof)); err != nil {
		return nil, nil, err
	}

	publicWitness, err := witness.New(ElipticalCurveID.ScalarField())
	if err != nil {
		return nil, nil, err
	}
	if _, err := publicWitness.ReadFrom(bytes.NewReader(archive.PublicWitness)); err != nil {
		return nil, nil, err
	}

	return proof, publicWitness, nil
}
