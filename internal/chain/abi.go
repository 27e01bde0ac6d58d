package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const verifierABIJson = `[
	{"type":"function","name":"verifyProof","stateMutability":"view",
	 "inputs":[{"name":"_pA","type":"uint256[2]"},{"name":"_pB","type":"uint256[2][2]"},{"name":"_pC","type":"uint256[2]"},{"name":"_pubSignals","type":"uint256[3]"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"verifyAndRecord","stateMutability":"nonpayable",
	 "inputs":[{"name":"_pA","type":"uint256[2]"},{"name":"_pB","type":"uint256[2][2]"},{"name":"_pC","type":"uint256[2]"},{"name":"_pubSignals","type":"uint256[3]"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"storeCommitment","stateMutability":"nonpayable",
	 "inputs":[{"name":"commitment","type":"bytes32"}],"outputs":[]},
	{"type":"event","name":"ProofVerified","anonymous":false,
	 "inputs":[{"name":"prover","type":"address","indexed":true},{"name":"commitment","type":"uint256","indexed":false},{"name":"valid","type":"bool","indexed":false}]}
]`

const paymentABIJson = `[
	{"type":"function","name":"processPayment","stateMutability":"nonpayable",
	 "inputs":[{"name":"amount","type":"uint256"},{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},{"name":"input","type":"uint256[3]"}],
	 "outputs":[]},
	{"type":"function","name":"getTreasuryBalance","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const (
	methodVerifyProof        = "verifyProof"
	methodVerifyAndRecord    = "verifyAndRecord"
	methodStoreCommitment    = "storeCommitment"
	methodProcessPayment     = "processPayment"
	methodGetTreasuryBalance = "getTreasuryBalance"
	eventProofVerified       = "ProofVerified"
)

var (
	VerifierABI = mustParseABI(verifierABIJson)
	PaymentABI  = mustParseABI(paymentABIJson)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// PackVerifyProof encodes a verifyProof call.
func PackVerifyProof(cd Calldata) ([]byte, error) {
	return VerifierABI.Pack(methodVerifyProof, cd.A, cd.B, cd.C, cd.Input)
}

func PackProcessPayment(call PaymentCall) ([]byte, error) {
	cd := call.Calldata
	return PaymentABI.Pack(methodProcessPayment, call.Amount, cd.A, cd.B, cd.C, cd.Input)
}
