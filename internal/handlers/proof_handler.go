package handlers

import (
	"net/http"
	"time"

	"zk-tax-system/internal/chain"
	"zk-tax-system/internal/lifecycle"
	"zk-tax-system/internal/model"
	"zk-tax-system/internal/zkp"
	"zk-tax-system/pkg/rest"
	reasoncodes "zk-tax-system/pkg/reason_codes"

	"github.com/gin-gonic/gin"
)

type ProofHandler struct {
	Proofs *lifecycle.Service
}

func NewProofHandler(proofs *lifecycle.Service) *ProofHandler {
	return &ProofHandler{Proofs: proofs}
}

// ProofView omits the proof archive.
type ProofView struct {
	Id                     string                       `json:"id"`
	Owner                  string                       `json:"owner"`
	Commitment             string                       `json:"commitment"`
	Range                  string                       `json:"range,omitempty"`
	Threshold              uint64                       `json:"threshold,omitempty"`
	Status                 model.ProofStatus            `json:"status"`
	Proof                  *zkp.ProofObject             `json:"proof,omitempty"`
	PublicSignals          []string                     `json:"public_signals,omitempty"`
	ProofProvenance        zkp.Provenance               `json:"proof_provenance,omitempty"`
	HasArchive             bool                         `json:"has_archive"`
	VerificationMethod     zkp.VerificationMethod       `json:"verification_method,omitempty"`
	VerificationTxHash     string                       `json:"verification_tx_hash,omitempty"`
	VerificationProvenance model.VerificationProvenance `json:"verification_provenance,omitempty"`
	CommitmentTxHash       string                       `json:"commitment_tx_hash,omitempty"`
	RevocationReason       string                       `json:"revocation_reason,omitempty"`
	CreatedAt              time.Time                    `json:"created_at"`
	VerifiedAt             *time.Time                   `json:"verified_at,omitempty"`
	ExpiresAt              time.Time                    `json:"expires_at"`
}

func NewProofView(p *model.IncomeProof) ProofView {
	return ProofView{
		Id:                     p.Id,
		Owner:                  p.Owner,
		Commitment:             p.Commitment,
		Range:                  p.RangeLabel,
		Threshold:              p.Threshold,
		Status:                 p.Status,
		Proof:                  p.Proof,
		PublicSignals:          p.PublicSignals,
		ProofProvenance:        p.ProofProvenance,
		HasArchive:             len(p.ProofBlob) > 0,
		VerificationMethod:     p.VerificationMethod,
		VerificationTxHash:     p.VerificationTxHash,
		VerificationProvenance: p.VerificationProvenance,
		CommitmentTxHash:       p.CommitmentTxHash,
		RevocationReason:       p.RevocationReason,
		CreatedAt:              p.CreatedAt,
		VerifiedAt:             p.VerifiedAt,
		ExpiresAt:              p.ExpiresAt,
	}
}

// CreateCommitment godoc
// @Summary      Create a proof record from a commitment
// @Description  Either a precomputed commitment or the income (and optional secret) is required.
// @Tags         Proofs
// @Router       /v1/commitments [post]
func (h *ProofHandler) CreateCommitment(c *gin.Context) {
	var req struct {
		Income       *uint64 `json:"income"`
		Secret       string  `json:"secret"`
		Commitment   string  `json:"commitment"`
		ChainAddress string  `json:"chain_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var (
		res *lifecycle.CreateResult
		err error
	)
	switch {
	case req.Commitment != "":
		res, err = h.Proofs.Create(c.Request.Context(), rest.Principal(c), req.Commitment, req.ChainAddress)
	case req.Income != nil:
		res, err = h.Proofs.GenerateCommitment(c.Request.Context(), rest.Principal(c), *req.Income, req.Secret, req.ChainAddress)
	default:
		err = reasoncodes.New(reasoncodes.ErrValidation, "commitment or income is required")
	}
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusCreated, struct {
		Proof        ProofView    `json:"proof"`
		Secret       string       `json:"secret,omitempty"`
		CommitmentTx *chain.TxRef `json:"commitment_tx,omitempty"`
	}{NewProofView(res.Proof), res.Secret, res.CommitmentTx})
}

// GenerateProof godoc
// @Summary      Prove that the committed income exceeds a range threshold
// @Tags         Proofs
// @Param        id   path      string  true  "Proof ID"
// @Router       /v1/proofs/{id}/generate [post]
func (h *ProofHandler) GenerateProof(c *gin.Context) {
	var req struct {
		Income uint64 `json:"income"`
		Secret string `json:"secret" binding:"required"`
		Range  string `json:"range" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	proof, err := h.Proofs.GenerateProof(c.Request.Context(), rest.Principal(c), c.Param("id"), req.Income, req.Secret, req.Range)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, NewProofView(proof))
}

// VerifyProof godoc
// @Summary      Verify a generated proof with the configured backend
// @Tags         Proofs
// @Param        id   path      string  true  "Proof ID"
// @Router       /v1/proofs/{id}/verify [post]
func (h *ProofHandler) VerifyProof(c *gin.Context) {
	res, err := h.Proofs.VerifyLocally(c.Request.Context(), rest.Principal(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, struct {
		Proof  ProofView              `json:"proof"`
		Method zkp.VerificationMethod `json:"method"`
		Weak   bool                   `json:"weak"`
		Detail string                 `json:"detail,omitempty"`
	}{NewProofView(res.Proof), res.Method, res.Weak, res.Detail})
}

// VerifyOnChain godoc
// @Summary      Record the verification on the ledger
// @Tags         Proofs
// @Param        id   path      string  true  "Proof ID"
// @Router       /v1/proofs/{id}/verify-on-chain [post]
func (h *ProofHandler) VerifyOnChain(c *gin.Context) {
	var req struct {
		ChainAddress string `json:"chain_address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	proof, err := h.Proofs.VerifyOnChain(c.Request.Context(), rest.Principal(c), c.Param("id"), req.ChainAddress)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, NewProofView(proof))
}

func (h *ProofHandler) GetProof(c *gin.Context) {
	proof, err := h.Proofs.Get(c.Request.Context(), rest.Principal(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, NewProofView(proof))
}

// GetParameters godoc
// @Summary      Verification key and the offered income ranges
// @Tags         Proofs
// @Router       /v1/parameters [get]
func (h *ProofHandler) GetParameters(c *gin.Context) {
	respond(c, http.StatusOK, h.Proofs.Parameters())
}

// RevokeProof is mounted on the internal group only.
func (h *ProofHandler) RevokeProof(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	proof, err := h.Proofs.Revoke(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, NewProofView(proof))
}
