package handlers

import (
	"zk-tax-system/pkg/rest"
)

const (
	PublicGroup   = "v1"
	InternalGroup = "v1/internal"
)

func Middlewares(internalToken string) []rest.Middleware {
	return []rest.Middleware{
		rest.NewMiddleware(PublicGroup, rest.PrincipalMiddleware()),
		rest.NewMiddleware(InternalGroup, rest.InternalAuthMiddleware(internalToken)),
	}
}

func Routes(proofs *ProofHandler, payments *PaymentHandler, ledger *ChainHandler) []rest.Route {
	return []rest.Route{
		rest.NewRoute(rest.POST, PublicGroup, "/commitments", proofs.CreateCommitment),
		rest.NewRoute(rest.POST, PublicGroup, "/proofs/:id/generate", proofs.GenerateProof),
		rest.NewRoute(rest.POST, PublicGroup, "/proofs/:id/verify", proofs.VerifyProof),
		rest.NewRoute(rest.POST, PublicGroup, "/proofs/:id/verify-on-chain", proofs.VerifyOnChain),
		rest.NewRoute(rest.GET, PublicGroup, "/proofs/:id", proofs.GetProof),
		rest.NewRoute(rest.GET, PublicGroup, "/parameters", proofs.GetParameters),

		rest.NewRoute(rest.POST, PublicGroup, "/payments/prepare", payments.PreparePayment),
		rest.NewRoute(rest.POST, PublicGroup, "/payments/:id/submit", payments.SubmitPayment),
		rest.NewRoute(rest.POST, PublicGroup, "/payments/:id/confirm", payments.ConfirmPayment),
		rest.NewRoute(rest.GET, PublicGroup, "/payments/:id/receipt", payments.GetReceipt),
		rest.NewRoute(rest.GET, PublicGroup, "/proofs/:id/payments", payments.ListProofPayments),

		rest.NewRoute(rest.GET, PublicGroup, "/treasury/balance", ledger.GetTreasuryBalance),
		rest.NewRoute(rest.GET, PublicGroup, "/transactions/:hash", ledger.GetTransaction),

		rest.NewRoute(rest.POST, InternalGroup, "/proofs/:id/revoke", proofs.RevokeProof),
		rest.NewRoute(rest.POST, InternalGroup, "/payments/:id/refund", payments.RefundPayment),
	}
}
