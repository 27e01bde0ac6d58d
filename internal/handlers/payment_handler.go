package handlers

import (
	"net/http"

	"zk-tax-system/internal/chain"
	"zk-tax-system/internal/payment"
	"zk-tax-system/pkg/rest"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	Payments *payment.Coordinator
}

func NewPaymentHandler(payments *payment.Coordinator) *PaymentHandler {
	return &PaymentHandler{Payments: payments}
}

// PreparePayment godoc
// @Summary      Create a pending tax payment backed by a verified proof
// @Tags         Payments
// @Router       /v1/payments/prepare [post]
func (h *PaymentHandler) PreparePayment(c *gin.Context) {
	var req struct {
		ProofId      string `json:"proof_id" binding:"required"`
		Amount       int64  `json:"amount"`
		FiscalYear   int    `json:"fiscal_year"`
		ChainAddress string `json:"chain_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	intent, err := h.Payments.PreparePayment(c.Request.Context(), rest.Principal(c), req.ProofId, req.Amount, req.FiscalYear, req.ChainAddress)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, intent)
}

// SubmitPayment godoc
// @Summary      Send the prepared payment to the payment contract
// @Description  A ledger failure is reported in the returned transaction reference.
// @Tags         Payments
// @Param        id   path      string  true  "Payment ID"
// @Router       /v1/payments/{id}/submit [post]
func (h *PaymentHandler) SubmitPayment(c *gin.Context) {
	ref, err := h.Payments.SubmitPayment(c.Request.Context(), rest.Principal(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, ref)
}

// ConfirmPayment godoc
// @Summary      Settle a submitted payment from its transaction reference
// @Tags         Payments
// @Param        id   path      string  true  "Payment ID"
// @Router       /v1/payments/{id}/confirm [post]
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	var ref chain.TxRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		badRequest(c, err)
		return
	}

	paid, err := h.Payments.ConfirmPayment(c.Request.Context(), rest.Principal(c), c.Param("id"), ref)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, paid)
}

// ListProofPayments godoc
// @Summary      List the payments a proof backs
// @Tags         Payments
// @Param        id   path      string  true  "Proof ID"
// @Router       /v1/proofs/{id}/payments [get]
func (h *PaymentHandler) ListProofPayments(c *gin.Context) {
	payments, err := h.Payments.PaymentsOfProof(c.Request.Context(), rest.Principal(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, payments)
}

func (h *PaymentHandler) GetReceipt(c *gin.Context) {
	receipt, err := h.Payments.GenerateReceipt(c.Request.Context(), rest.Principal(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, receipt)
}

// RefundPayment is mounted on the internal group only. The caller names the payer.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req struct {
		Owner  string `json:"owner" binding:"required"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	refunded, err := h.Payments.Refund(c.Request.Context(), req.Owner, c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, refunded)
}
