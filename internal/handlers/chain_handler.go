package handlers

import (
	"net/http"

	"zk-tax-system/internal/chain"

	"github.com/gin-gonic/gin"
)

type ChainHandler struct {
	Gateway chain.Gateway
}

func NewChainHandler(gateway chain.Gateway) *ChainHandler {
	return &ChainHandler{Gateway: gateway}
}

// GetTreasuryBalance godoc
// @Summary      Treasury balance of the payment contract, for display
// @Tags         Ledger
// @Router       /v1/treasury/balance [get]
func (h *ChainHandler) GetTreasuryBalance(c *gin.Context) {
	balance, err := h.Gateway.GetTreasuryBalance(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, balance)
}

// GetTransaction godoc
// @Summary      Read a ledger transaction
// @Tags         Ledger
// @Param        hash   path      string  true  "Transaction hash"
// @Router       /v1/transactions/{hash} [get]
func (h *ChainHandler) GetTransaction(c *gin.Context) {
	record, err := h.Gateway.ReadTransaction(c.Request.Context(), c.Param("hash"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, record)
}
