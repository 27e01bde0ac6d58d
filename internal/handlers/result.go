// Package handlers exposes the proof, payment and ledger operations over gin.
package handlers

import (
	"net/http"

	reasoncodes "zk-tax-system/pkg/reason_codes"

	"github.com/gin-gonic/gin"
)

type ErrorBody struct {
	Kind    reasoncodes.ReasonCode `json:"kind"`
	Message string                 `json:"message"`
}

// Result is the envelope of every response.
type Result struct {
	Ok    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, Result{Ok: true, Data: data})
}

func fail(c *gin.Context, err error) {
	code := reasoncodes.CodeOf(err)
	c.JSON(statusOf(code), Result{Error: &ErrorBody{Kind: code, Message: reasoncodes.MessageOf(err)}})
}

func badRequest(c *gin.Context, err error) {
	fail(c, reasoncodes.Wrap(reasoncodes.ErrValidation, err, "malformed request body"))
}

func statusOf(code reasoncodes.ReasonCode) int {
	switch code {
	case reasoncodes.ErrValidation:
		return http.StatusBadRequest
	case reasoncodes.ErrNotFound:
		return http.StatusNotFound
	case reasoncodes.ErrStateConflict:
		return http.StatusConflict
	case reasoncodes.ErrCommitmentMismatch, reasoncodes.ErrCryptoVerification:
		return http.StatusUnprocessableEntity
	case reasoncodes.ErrChain:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
