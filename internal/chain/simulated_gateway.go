package chain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"zk-tax-system/internal/zkp"
	"zk-tax-system/pkg/logger"
	reasoncodes "zk-tax-system/pkg/reason_codes"
	"zk-tax-system/pkg/utilities/timeutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const simulatedTreasury = "0x00000000000000000000000000000000000074a5"

// SimulatedGateway keeps ledger state in memory. Every hash it returns is tagged
// ProvenanceSynthetic. With a verifier it evaluates proofs like the deployed contract,
// without one it accepts any well-formed calldata.
type SimulatedGateway struct {
	mu           sync.Mutex
	verifier     *EVMVerifier
	txs          map[common.Hash]TransactionRecord
	commitments  map[[32]byte]bool
	treasury     *big.Int
	counter      uint64
	calls        int
	submissions  int
	failCalls    bool
	failSubmits  bool
	clock        timeutil.Clock
	decimals     int
	fiatRate     float64
	fiatCurrency string
	logger       *logger.Logger
}

type SimulatedOption func(*SimulatedGateway)

func WithVerifier(v *EVMVerifier) SimulatedOption {
	return func(g *SimulatedGateway) { g.verifier = v }
}

func WithClock(c timeutil.Clock) SimulatedOption {
	return func(g *SimulatedGateway) { g.clock = c }
}

// WithFailures makes read-only calls and/or submissions return ChainError.
func WithFailures(calls, submissions bool) SimulatedOption {
	return func(g *SimulatedGateway) {
		g.failCalls = calls
		g.failSubmits = submissions
	}
}

func WithFiat(decimals int, rate float64, currency string) SimulatedOption {
	return func(g *SimulatedGateway) {
		g.decimals = decimals
		g.fiatRate = rate
		g.fiatCurrency = currency
	}
}

func NewSimulatedGateway(l *logger.Logger, opts ...SimulatedOption) *SimulatedGateway {
	g := &SimulatedGateway{
		txs:          make(map[common.Hash]TransactionRecord),
		commitments:  make(map[[32]byte]bool),
		treasury:     new(big.Int),
		clock:        timeutil.SystemClock,
		decimals:     18,
		fiatCurrency: "USD",
		logger:       l,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SimulatedGateway) SubmitCommitment(ctx context.Context, address string, commitment [32]byte) (TxRef, error) {
	if err := validateAddress(address); err != nil {
		return TxRef{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.submitAllowed(ctx); err != nil {
		return TxRef{}, err
	}

	g.commitments[commitment] = true
	return g.record(address, simulatedTreasury, new(big.Int), TxConfirmed, commitment[:]), nil
}

func (g *SimulatedGateway) CallVerifier(ctx context.Context, cd Calldata) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	if err := ctx.Err(); err != nil {
		return false, chainError(err, "call verifyProof")
	}
	if g.failCalls {
		return false, reasoncodes.New(reasoncodes.ErrChain, "simulated verifier call failure")
	}
	if g.verifier == nil {
		return false, reasoncodes.New(reasoncodes.ErrChain, "no verifier contract in simulation")
	}
	return g.verifier.Verify(cd), nil
}

func (g *SimulatedGateway) SubmitVerification(ctx context.Context, address string, proof zkp.ProofObject, publicSignals []string) (VerificationOutcome, error) {
	if err := validateAddress(address); err != nil {
		return VerificationOutcome{}, err
	}
	cd, err := ToCalldata(proof, publicSignals)
	if err != nil {
		return VerificationOutcome{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.submitAllowed(ctx); err != nil {
		return VerificationOutcome{}, err
	}

	valid := g.verifier == nil || g.verifier.Verify(cd)
	payload := append(cd.Input[0].Bytes(), byte(len(g.txs)))
	return VerificationOutcome{
		IsValid: valid,
		Tx:      g.record(address, simulatedTreasury, new(big.Int), TxConfirmed, payload),
	}, nil
}

func (g *SimulatedGateway) SubmitPayment(ctx context.Context, address string, call PaymentCall) (TxRef, error) {
	if call.Amount == nil || call.Amount.Sign() <= 0 {
		return TxRef{}, reasoncodes.New(reasoncodes.ErrValidation, "amount must be positive")
	}
	if err := validateAddress(address); err != nil {
		return TxRef{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.submitAllowed(ctx); err != nil {
		return TxRef{}, err
	}

	if g.verifier != nil && !g.verifier.Verify(call.Calldata) {
		ref := g.record(address, simulatedTreasury, call.Amount, TxFailed, call.Amount.Bytes())
		return ref, reasoncodes.New(reasoncodes.ErrChain, "payment transaction %s reverted: invalid proof", ref.Hash)
	}

	g.treasury.Add(g.treasury, call.Amount)
	return g.record(address, simulatedTreasury, call.Amount, TxConfirmed, call.Amount.Bytes()), nil
}

func (g *SimulatedGateway) ReadTransaction(ctx context.Context, hash string) (TransactionRecord, error) {
	txHash, err := parseTxHash(hash)
	if err != nil {
		return TransactionRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return TransactionRecord{}, chainError(err, "read transaction")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	record, ok := g.txs[txHash]
	if !ok {
		return TransactionRecord{}, reasoncodes.New(reasoncodes.ErrNotFound, "transaction %s not found", hash)
	}
	return record, nil
}

func (g *SimulatedGateway) GetTreasuryBalance(ctx context.Context) (TreasuryBalance, error) {
	if err := ctx.Err(); err != nil {
		return TreasuryBalance{}, chainError(err, "read treasury balance")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return NewTreasuryBalance(new(big.Int).Set(g.treasury), g.decimals, g.fiatRate, g.fiatCurrency), nil
}

// Submissions counts state-changing calls, including failed ones.
func (g *SimulatedGateway) Submissions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submissions
}

func (g *SimulatedGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *SimulatedGateway) HasCommitment(c [32]byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commitments[c]
}

// SetStatus rewrites a recorded transaction's status, for exercising confirmation paths.
func (g *SimulatedGateway) SetStatus(hash string, status TxStatus) bool {
	txHash, err := parseTxHash(hash)
	if err != nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	record, ok := g.txs[txHash]
	if ok {
		record.Status = status
		g.txs[txHash] = record
	}
	return ok
}

// submitAllowed must be called with mu held.
func (g *SimulatedGateway) submitAllowed(ctx context.Context) error {
	g.submissions++
	if err := ctx.Err(); err != nil {
		return chainError(err, "submit")
	}
	if g.failSubmits {
		return reasoncodes.New(reasoncodes.ErrChain, "simulated submission failure")
	}
	return nil
}

// record must be called with mu held.
func (g *SimulatedGateway) record(from, to string, value *big.Int, status TxStatus, payload []byte) TxRef {
	g.counter++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], g.counter)
	hash := common.Hash(sha256.Sum256(append(buf[:], payload...)))

	now := g.clock().UTC()
	var blockTime *time.Time
	if status != TxPending {
		blockTime = &now
	}
	g.txs[hash] = TransactionRecord{
		Hash:        hexutil.Encode(hash[:]),
		From:        common.HexToAddress(from).Hex(),
		To:          common.HexToAddress(to).Hex(),
		Value:       value.String(),
		Status:      status,
		BlockNumber: g.counter,
		BlockTime:   blockTime,
		Provenance:  ProvenanceSynthetic,
	}
	g.logger.Debugf("simulated tx %s recorded", hash.Hex())
	return TxRef{Hash: hexutil.Encode(hash[:]), Provenance: ProvenanceSynthetic}
}
