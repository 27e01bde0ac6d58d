// Package payment builds tax payments on top of verified income proofs.
package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"zk-tax-system/internal/chain"
	"zk-tax-system/internal/model"
	"zk-tax-system/internal/store"
	dtocommon "zk-tax-system/pkg/dto_common"
	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"
	reasoncodes "zk-tax-system/pkg/reason_codes"
	"zk-tax-system/pkg/utilities"
	"zk-tax-system/pkg/utilities/timeutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

const receiptIdAttempts = 3

// ProofSource is satisfied by lifecycle.Service.
type ProofSource interface {
	Get(ctx context.Context, owner, id string) (*model.IncomeProof, error)
	Verified(ctx context.Context, owner, id string) (*model.IncomeProof, error)
}

type Coordinator struct {
	Payments  store.PaymentRepository
	Proofs    ProofSource
	Gateway   chain.Gateway
	Publisher rabbitmq.IRabbitmqPublisher
	Clock     timeutil.Clock

	logger *logger.Logger
}

func NewCoordinator(payments store.PaymentRepository, proofs ProofSource, gateway chain.Gateway, publisher rabbitmq.IRabbitmqPublisher, l *logger.Logger) *Coordinator {
	if publisher == nil {
		publisher = rabbitmq.NopPublisher{}
	}
	return &Coordinator{
		Payments:  payments,
		Proofs:    proofs,
		Gateway:   gateway,
		Publisher: publisher,
		Clock:     timeutil.SystemClock,
		logger:    l.Named("payment"),
	}
}

// CalldataView is the decimal form of a prepared processPayment call.
type CalldataView struct {
	Amount  string       `json:"amount"`
	A       [2]string    `json:"a"`
	B       [2][2]string `json:"b"`
	C       [2]string    `json:"c"`
	Input   [3]string    `json:"input"`
	Encoded string       `json:"encoded"`
}

type PaymentIntent struct {
	Payment  *model.TaxPayment `json:"payment"`
	Calldata CalldataView      `json:"calldata"`
}

func (c *Coordinator) PreparePayment(ctx context.Context, owner, proofId string, amount int64, fiscalYear int, chainAddress string) (*PaymentIntent, error) {
	if amount <= 0 {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "amount must be positive")
	}
	if fiscalYear <= 0 {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "fiscal year is required")
	}
	if !common.IsHexAddress(chainAddress) {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "%q is not a ledger address", chainAddress)
	}

	proof, err := c.Proofs.Verified(ctx, owner, proofId)
	if err != nil {
		return nil, err
	}
	call, err := chain.NewPaymentCall(amount, *proof.Proof, proof.PublicSignals)
	if err != nil {
		return nil, err
	}
	view, err := newCalldataView(call)
	if err != nil {
		return nil, reasoncodes.Wrap(reasoncodes.ErrInternal, err, "encode payment call")
	}

	now := c.now()
	payment := &model.TaxPayment{
		Id:           uuid.NewString(),
		Owner:        owner,
		ProofId:      proof.Id,
		Amount:       amount,
		FiscalYear:   fiscalYear,
		ChainAddress: common.HexToAddress(chainAddress).Hex(),
		Status:       model.PaymentPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.Payments.CreateInOpenSlot(ctx, payment); err != nil {
		if reasoncodes.Is(err, reasoncodes.ErrStateConflict) {
			return nil, err
		}
		return nil, reasoncodes.Wrap(reasoncodes.ErrInternal, err, "store payment")
	}
	c.logger.Infof("Payment %s prepared on proof %s for fiscal year %d", payment.Id, proof.Id, fiscalYear)
	c.publish(payment, "")

	return &PaymentIntent{Payment: payment, Calldata: view}, nil
}

// SubmitPayment sends the prepared payment with the service signer. A ledger failure is
// reported in the returned TxRef, not as an error.
func (c *Coordinator) SubmitPayment(ctx context.Context, owner, paymentId string) (chain.TxRef, error) {
	payment, err := c.Payments.Get(ctx, paymentId, owner)
	if err != nil {
		return chain.TxRef{}, err
	}
	if payment.Status != model.PaymentPending {
		return chain.TxRef{}, reasoncodes.New(reasoncodes.ErrStateConflict, "payment %s is %s", paymentId, payment.Status)
	}

	proof, err := c.Proofs.Verified(ctx, owner, payment.ProofId)
	if err != nil {
		if reasoncodes.Is(err, reasoncodes.ErrStateConflict) {
			c.fail(ctx, payment, []model.PaymentStatus{model.PaymentPending}, reasoncodes.MessageOf(err))
		}
		return chain.TxRef{}, err
	}
	call, err := chain.NewPaymentCall(payment.Amount, *proof.Proof, proof.PublicSignals)
	if err != nil {
		return chain.TxRef{}, err
	}

	if err := c.transition(ctx, payment, []model.PaymentStatus{model.PaymentPending}, model.PaymentProcessing, nil); err != nil {
		return chain.TxRef{}, err
	}

	ref, err := c.Gateway.SubmitPayment(ctx, payment.ChainAddress, call)
	if err != nil {
		c.logger.Errorf(err, "Submitting payment %s failed", paymentId)
		// a mined but reverted transaction still has a hash worth keeping
		if ref.Hash != "" {
			c.recordTx(ctx, payment, ref)
		}
		return chain.TxRef{Hash: ref.Hash, Provenance: ref.Provenance, Error: err.Error()}, nil
	}

	c.recordTx(ctx, payment, ref)
	c.logger.Infof("Payment %s submitted in tx %s (%s)", paymentId, ref.Hash, ref.Provenance)
	return ref, nil
}

func (c *Coordinator) recordTx(ctx context.Context, payment *model.TaxPayment, ref chain.TxRef) {
	recorded := &model.TaxPayment{TransactionHash: ref.Hash, TxProvenance: string(ref.Provenance)}
	if err := c.transition(ctx, payment, []model.PaymentStatus{model.PaymentProcessing}, model.PaymentProcessing, recorded,
		"transaction_hash", "tx_provenance"); err != nil {
		c.logger.Errorf(err, "Recording transaction of payment %s failed", payment.Id)
	}
}

// PaymentsOfProof lists the payments backed by one of the owner's proofs, oldest first.
func (c *Coordinator) PaymentsOfProof(ctx context.Context, owner, proofId string) ([]model.TaxPayment, error) {
	proof, err := c.Proofs.Get(ctx, owner, proofId)
	if err != nil {
		return nil, err
	}
	payments, err := c.Payments.ListByProof(ctx, proof.Id)
	if err != nil {
		return nil, reasoncodes.Wrap(reasoncodes.ErrInternal, err, "list payments of proof %s", proofId)
	}
	return payments, nil
}

// ConfirmPayment settles a processing payment from the outcome of its submission.
func (c *Coordinator) ConfirmPayment(ctx context.Context, owner, paymentId string, ref chain.TxRef) (*model.TaxPayment, error) {
	payment, err := c.Payments.Get(ctx, paymentId, owner)
	if err != nil {
		return nil, err
	}
	if payment.Status == model.PaymentCompleted && ref.Hash != "" && strings.EqualFold(ref.Hash, payment.TransactionHash) {
		return payment, nil
	}
	if payment.Status != model.PaymentProcessing {
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "payment %s is %s", paymentId, payment.Status)
	}
	processing := []model.PaymentStatus{model.PaymentProcessing}

	if ref.Failed() {
		return c.fail(ctx, payment, processing, ref.Error)
	}
	if ref.Hash == "" {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "transaction hash is required")
	}
	if payment.TransactionHash != "" && !strings.EqualFold(ref.Hash, payment.TransactionHash) {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "transaction %s does not belong to payment %s", ref.Hash, paymentId)
	}

	record, err := c.Gateway.ReadTransaction(ctx, ref.Hash)
	switch {
	case reasoncodes.Is(err, reasoncodes.ErrNotFound):
		return c.fail(ctx, payment, processing, "transaction "+ref.Hash+" not found on the ledger")
	case err != nil:
		return nil, err
	}

	switch record.Status {
	case chain.TxFailed:
		return c.fail(ctx, payment, processing, "transaction "+ref.Hash+" reverted")
	case chain.TxPending:
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "transaction %s is not yet included", ref.Hash)
	}

	when := c.now()
	if record.BlockTime != nil {
		when = record.BlockTime.UTC()
	}
	for attempt := 0; ; attempt++ {
		receiptId, err := NewReceiptId(c.now())
		if err != nil {
			return nil, reasoncodes.Wrap(reasoncodes.ErrInternal, err, "generate receipt id")
		}
		changes := &model.TaxPayment{
			TransactionHash: record.Hash,
			TransactionDate: &when,
			TxProvenance:    string(record.Provenance),
			ReceiptId:       &receiptId,
		}
		err = c.transition(ctx, payment, processing, model.PaymentCompleted, changes,
			"transaction_hash", "transaction_date", "tx_provenance", "receipt_id")
		if errors.Is(err, store.ErrDuplicate) && attempt+1 < receiptIdAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	c.logger.Infof("Payment %s completed", paymentId)
	return c.Payments.Get(ctx, paymentId, owner)
}

// Refund is bookkeeping for a completed payment; no ledger call is made.
func (c *Coordinator) Refund(ctx context.Context, owner, paymentId, reason string) (*model.TaxPayment, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "refund reason is required")
	}
	payment, err := c.Payments.Get(ctx, paymentId, owner)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentCompleted {
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "payment %s is %s, only completed payments can be refunded", paymentId, payment.Status)
	}
	err = c.transition(ctx, payment, []model.PaymentStatus{model.PaymentCompleted}, model.PaymentRefunded,
		&model.TaxPayment{RefundReason: reason}, "refund_reason")
	if err != nil {
		return nil, err
	}
	return c.Payments.Get(ctx, paymentId, owner)
}

// GenerateReceipt always returns a receipt; whether the ledger confirms the stored
// transaction is reported in LedgerVerified and VerificationError.
func (c *Coordinator) GenerateReceipt(ctx context.Context, owner, paymentId string) (*Receipt, error) {
	payment, err := c.Payments.Get(ctx, paymentId, owner)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		PaymentId:       payment.Id,
		ProofId:         payment.ProofId,
		Owner:           payment.Owner,
		Amount:          payment.Amount,
		FiscalYear:      payment.FiscalYear,
		Status:          string(payment.Status),
		ChainAddress:    payment.ChainAddress,
		TransactionHash: payment.TransactionHash,
		TransactionDate: payment.TransactionDate,
		TxProvenance:    payment.TxProvenance,
		IssuedAt:        c.now(),
	}
	if payment.ReceiptId != nil {
		receipt.ReceiptId = *payment.ReceiptId
	}
	if proof, err := c.Proofs.Get(ctx, owner, payment.ProofId); err == nil {
		receipt.IncomeRange = proof.RangeLabel
	}

	if payment.TransactionHash == "" {
		receipt.VerificationError = "no transaction recorded for this payment"
		return receipt, nil
	}
	record, err := c.Gateway.ReadTransaction(ctx, payment.TransactionHash)
	switch {
	case err != nil:
		receipt.VerificationError = reasoncodes.MessageOf(err)
	case record.Status != chain.TxConfirmed:
		receipt.VerificationError = "transaction is " + string(record.Status)
	default:
		receipt.LedgerVerified = true
	}
	return receipt, nil
}

func (c *Coordinator) fail(ctx context.Context, payment *model.TaxPayment, from []model.PaymentStatus, reason string) (*model.TaxPayment, error) {
	if err := c.transition(ctx, payment, from, model.PaymentFailed, &model.TaxPayment{FailureReason: reason}, "failure_reason"); err != nil {
		return nil, err
	}
	c.logger.Warnf("Payment %s failed: %s", payment.Id, reason)
	return c.Payments.Get(ctx, payment.Id, payment.Owner)
}

func (c *Coordinator) transition(ctx context.Context, payment *model.TaxPayment, from []model.PaymentStatus, to model.PaymentStatus, changes *model.TaxPayment, columns ...string) error {
	if changes == nil {
		changes = &model.TaxPayment{}
	}
	changes.UpdatedAt = c.now()
	ok, err := c.Payments.Transition(ctx, payment.Id, from, to, changes, append(columns, "updated_at")...)
	if errors.Is(err, store.ErrDuplicate) {
		return err
	}
	if err != nil {
		return reasoncodes.Wrap(reasoncodes.ErrInternal, err, "update payment %s", payment.Id)
	}
	if !ok {
		return reasoncodes.New(reasoncodes.ErrStateConflict, "payment %s changed concurrently", payment.Id)
	}

	if to != payment.Status {
		event := *payment
		event.Status = to
		event.TransactionHash = utilities.Ternary(changes.TransactionHash != "", changes.TransactionHash, payment.TransactionHash)
		event.ReceiptId = changes.ReceiptId
		event.FailureReason = utilities.Ternary(changes.FailureReason != "", changes.FailureReason, changes.RefundReason)
		c.publish(&event, payment.Status)
	}
	payment.Status = to
	return nil
}

func (c *Coordinator) publish(payment *model.TaxPayment, from model.PaymentStatus) {
	dto := dtocommon.PaymentStatusChangedDto{
		PaymentId:  payment.Id,
		ProofId:    payment.ProofId,
		Owner:      payment.Owner,
		Status:     string(payment.Status),
		Amount:     payment.Amount,
		FiscalYear: payment.FiscalYear,
		TxHash:     payment.TransactionHash,
		Reason:     payment.FailureReason,
		OccurredAt: timeutil.FromTime(c.now()),
	}
	if payment.ReceiptId != nil {
		dto.ReceiptId = *payment.ReceiptId
	}
	if err := c.Publisher.Publish(dto); err != nil {
		c.logger.Errorf(err, "Publishing %s -> %s of payment %s failed", from, payment.Status, payment.Id)
	}
}

func (c *Coordinator) now() time.Time {
	if c.Clock == nil {
		return time.Now().UTC()
	}
	return c.Clock().UTC()
}

func newCalldataView(call chain.PaymentCall) (CalldataView, error) {
	encoded, err := chain.PackProcessPayment(call)
	if err != nil {
		return CalldataView{}, err
	}
	cd := call.Calldata
	view := CalldataView{Amount: call.Amount.String(), Encoded: hexutil.Encode(encoded)}
	for i := 0; i < 2; i++ {
		view.A[i] = cd.A[i].String()
		view.C[i] = cd.C[i].String()
		for j := 0; j < 2; j++ {
			view.B[i][j] = cd.B[i][j].String()
		}
	}
	for i, in := range cd.Input {
		view.Input[i] = in.String()
	}
	return view, nil
}
