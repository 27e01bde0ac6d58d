package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"zk-tax-system/internal/config"
	"zk-tax-system/internal/zkp"
	"zk-tax-system/pkg/logger"
	reasoncodes "zk-tax-system/pkg/reason_codes"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	errMalformedPoint = errors.New("malformed curve point")
	errNoSigner       = errors.New("gateway has no signing key")
)

// Backend is the subset of an ethclient the gateway needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

type EthGateway struct {
	backend      Backend
	verifier     *bind.BoundContract
	payment      *bind.BoundContract
	verifierAddr common.Address
	paymentAddr  common.Address
	signer       *bind.TransactOpts
	timeout      time.Duration
	decimals     int
	fiatRate     float64
	fiatCurrency string
	logger       *logger.Logger
}

// DialEthGateway connects to the configured RPC endpoint. The signing key is read
// from the environment variable named in the config; without it the gateway is read-only.
func DialEthGateway(ctx context.Context, cfg config.ChainConfig, signerKeyHex string, l *logger.Logger) (*EthGateway, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, cfg.RpcUrl)
	if err != nil {
		return nil, reasoncodes.Wrap(reasoncodes.ErrChain, err, "dial %s", cfg.RpcUrl)
	}

	var key *ecdsa.PrivateKey
	if signerKeyHex != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(signerKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signer key: %w", err)
		}
	}

	chainID := big.NewInt(cfg.ChainId)
	if cfg.ChainId == 0 {
		if chainID, err = client.ChainID(dialCtx); err != nil {
			return nil, reasoncodes.Wrap(reasoncodes.ErrChain, err, "read chain id")
		}
	}
	return NewEthGateway(client, cfg, chainID, key, l)
}

func NewEthGateway(backend Backend, cfg config.ChainConfig, chainID *big.Int, key *ecdsa.PrivateKey, l *logger.Logger) (*EthGateway, error) {
	if !common.IsHexAddress(cfg.VerifierAddress) || !common.IsHexAddress(cfg.PaymentAddress) {
		return nil, fmt.Errorf("verifier and payment contract addresses must be hex addresses")
	}

	g := &EthGateway{
		backend:      backend,
		verifierAddr: common.HexToAddress(cfg.VerifierAddress),
		paymentAddr:  common.HexToAddress(cfg.PaymentAddress),
		timeout:      cfg.CallTimeout,
		decimals:     cfg.TokenDecimals,
		fiatRate:     cfg.FiatRate,
		fiatCurrency: cfg.FiatCurrency,
		logger:       l,
	}
	g.verifier = bind.NewBoundContract(g.verifierAddr, VerifierABI, backend, backend, backend)
	g.payment = bind.NewBoundContract(g.paymentAddr, PaymentABI, backend, backend, backend)

	if key != nil {
		opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return nil, err
		}
		g.signer = opts
	} else {
		l.Warn("No signing key configured, ledger submissions will fail")
	}
	return g, nil
}

func (g *EthGateway) SubmitCommitment(ctx context.Context, address string, commitment [32]byte) (TxRef, error) {
	if err := validateAddress(address); err != nil {
		return TxRef{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	receipt, err := g.transact(ctx, g.verifier, methodStoreCommitment, commitment)
	if err != nil {
		return TxRef{}, chainError(err, "store commitment")
	}
	return TxRef{Hash: receipt.TxHash.Hex(), Provenance: ProvenanceLedger}, nil
}

func (g *EthGateway) CallVerifier(ctx context.Context, cd Calldata) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var out []interface{}
	err := g.verifier.Call(&bind.CallOpts{Context: ctx}, &out, methodVerifyProof, cd.A, cd.B, cd.C, cd.Input)
	if err != nil {
		return false, chainError(err, "call verifyProof")
	}
	if len(out) != 1 {
		return false, reasoncodes.New(reasoncodes.ErrChain, "verifyProof returned %d values", len(out))
	}
	valid, ok := out[0].(bool)
	if !ok {
		return false, reasoncodes.New(reasoncodes.ErrChain, "verifyProof returned %T", out[0])
	}
	return valid, nil
}

func (g *EthGateway) SubmitVerification(ctx context.Context, address string, proof zkp.ProofObject, publicSignals []string) (VerificationOutcome, error) {
	if err := validateAddress(address); err != nil {
		return VerificationOutcome{}, err
	}
	cd, err := ToCalldata(proof, publicSignals)
	if err != nil {
		return VerificationOutcome{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	receipt, err := g.transact(ctx, g.verifier, methodVerifyAndRecord, cd.A, cd.B, cd.C, cd.Input)
	if err != nil {
		return VerificationOutcome{}, chainError(err, "submit verification")
	}

	outcome := VerificationOutcome{
		IsValid: receipt.Status == types.ReceiptStatusSuccessful,
		Tx:      TxRef{Hash: receipt.TxHash.Hex(), Provenance: ProvenanceLedger},
	}
	if valid, found := proofVerifiedEvent(receipt); found {
		outcome.IsValid = outcome.IsValid && valid
	}
	return outcome, nil
}

func (g *EthGateway) SubmitPayment(ctx context.Context, address string, call PaymentCall) (TxRef, error) {
	if call.Amount == nil || call.Amount.Sign() <= 0 {
		return TxRef{}, reasoncodes.New(reasoncodes.ErrValidation, "amount must be positive")
	}
	if err := validateAddress(address); err != nil {
		return TxRef{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cd := call.Calldata
	receipt, err := g.transact(ctx, g.payment, methodProcessPayment, call.Amount, cd.A, cd.B, cd.C, cd.Input)
	if err != nil {
		return TxRef{}, chainError(err, "submit payment")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return TxRef{Hash: receipt.TxHash.Hex(), Provenance: ProvenanceLedger},
			reasoncodes.New(reasoncodes.ErrChain, "payment transaction %s reverted", receipt.TxHash.Hex())
	}
	return TxRef{Hash: receipt.TxHash.Hex(), Provenance: ProvenanceLedger}, nil
}

func (g *EthGateway) ReadTransaction(ctx context.Context, hash string) (TransactionRecord, error) {
	txHash, err := parseTxHash(hash)
	if err != nil {
		return TransactionRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	tx, pending, err := g.backend.TransactionByHash(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return TransactionRecord{}, reasoncodes.New(reasoncodes.ErrNotFound, "transaction %s not found", hash)
	}
	if err != nil {
		return TransactionRecord{}, chainError(err, "read transaction")
	}

	record := TransactionRecord{
		Hash:       tx.Hash().Hex(),
		Value:      tx.Value().String(),
		Status:     TxPending,
		Provenance: ProvenanceLedger,
	}
	if to := tx.To(); to != nil {
		record.To = to.Hex()
	}
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		record.From = from.Hex()
	}
	if pending {
		return record, nil
	}

	receipt, err := g.backend.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return record, nil
	}
	if err != nil {
		return TransactionRecord{}, chainError(err, "read receipt")
	}

	record.Status = TxFailed
	if receipt.Status == types.ReceiptStatusSuccessful {
		record.Status = TxConfirmed
	}
	if receipt.BlockNumber != nil {
		record.BlockNumber = receipt.BlockNumber.Uint64()
		if header, err := g.backend.HeaderByNumber(ctx, receipt.BlockNumber); err == nil {
			blockTime := time.Unix(int64(header.Time), 0).UTC()
			record.BlockTime = &blockTime
		}
	}
	return record, nil
}

func (g *EthGateway) GetTreasuryBalance(ctx context.Context) (TreasuryBalance, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var out []interface{}
	if err := g.payment.Call(&bind.CallOpts{Context: ctx}, &out, methodGetTreasuryBalance); err != nil {
		return TreasuryBalance{}, chainError(err, "read treasury balance")
	}
	if len(out) != 1 {
		return TreasuryBalance{}, reasoncodes.New(reasoncodes.ErrChain, "getTreasuryBalance returned %d values", len(out))
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return TreasuryBalance{}, reasoncodes.New(reasoncodes.ErrChain, "getTreasuryBalance returned %T", out[0])
	}
	return NewTreasuryBalance(raw, g.decimals, g.fiatRate, g.fiatCurrency), nil
}

func (g *EthGateway) transact(ctx context.Context, contract *bind.BoundContract, method string, params ...interface{}) (*types.Receipt, error) {
	if g.signer == nil {
		return nil, errNoSigner
	}
	opts := *g.signer
	opts.Context = ctx

	tx, err := contract.Transact(&opts, method, params...)
	if err != nil {
		return nil, err
	}
	g.logger.Infof("Submitted %s in tx %s, waiting for inclusion", method, tx.Hash().Hex())

	return bind.WaitMined(ctx, g.backend, tx)
}

func proofVerifiedEvent(receipt *types.Receipt) (bool, bool) {
	event := VerifierABI.Events[eventProofVerified]
	for _, entry := range receipt.Logs {
		if len(entry.Topics) == 0 || entry.Topics[0] != event.ID {
			continue
		}
		values, err := VerifierABI.Unpack(eventProofVerified, entry.Data)
		if err != nil || len(values) != 2 {
			continue
		}
		if valid, ok := values[1].(bool); ok {
			return valid, true
		}
	}
	return false, false
}

func validateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return reasoncodes.New(reasoncodes.ErrValidation, "%q is not a ledger address", address)
	}
	return nil
}

func parseTxHash(hash string) (common.Hash, error) {
	b, err := hexutil.Decode(hash)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, reasoncodes.New(reasoncodes.ErrValidation, "%q is not a transaction hash", hash)
	}
	return common.BytesToHash(b), nil
}

func chainError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return reasoncodes.Wrap(reasoncodes.ErrChain, err, "%s timed out", op)
	}
	return reasoncodes.Wrap(reasoncodes.ErrChain, err, "%s", op)
}
