// Package lifecycle drives an income proof from commitment to ledger verification.
package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"zk-tax-system/internal/chain"
	"zk-tax-system/internal/commitment"
	"zk-tax-system/internal/config"
	"zk-tax-system/internal/model"
	"zk-tax-system/internal/store"
	"zk-tax-system/internal/zkp"
	dtocommon "zk-tax-system/pkg/dto_common"
	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"
	reasoncodes "zk-tax-system/pkg/reason_codes"
	"zk-tax-system/pkg/utilities/timeutil"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const expirySweepBatch = 100

var activeStatuses = []model.ProofStatus{
	model.StatusCommitmentGenerated,
	model.StatusProofGenerated,
	model.StatusProofVerified,
	model.StatusProofVerifiedOnChain,
}

type Service struct {
	Proofs    store.ProofRepository
	Backend   zkp.Backend
	Gateway   chain.Gateway
	Publisher rabbitmq.IRabbitmqPublisher
	Mode      config.DeploymentMode
	TTL       time.Duration
	Clock     timeutil.Clock

	// LedgerTimeout bounds one on-chain verification. A claim older than three
	// timeouts is considered abandoned.
	LedgerTimeout time.Duration

	logger *logger.Logger
	flight singleflight.Group
}

func NewService(
	proofs store.ProofRepository,
	backend zkp.Backend,
	gateway chain.Gateway,
	publisher rabbitmq.IRabbitmqPublisher,
	mode config.DeploymentMode,
	cfg config.LifecycleConfig,
	l *logger.Logger,
) *Service {
	if publisher == nil {
		publisher = rabbitmq.NopPublisher{}
	}
	return &Service{
		Proofs:    proofs,
		Backend:   backend,
		Gateway:   gateway,
		Publisher: publisher,
		Mode:      mode,
		TTL:       cfg.ProofTTL,
		Clock:     timeutil.SystemClock,
		logger:    l.Named("lifecycle"),
	}
}

type CreateResult struct {
	Proof *model.IncomeProof
	// CommitmentTx is set when a ledger address was supplied. Its Error carries the
	// ChainError message when recording failed; the proof record is kept regardless.
	CommitmentTx *chain.TxRef
	// Secret is only returned when it was generated server side.
	Secret string
}

// GenerateCommitment commits to income under secret, drawing a fresh secret when none is given.
func (s *Service) GenerateCommitment(ctx context.Context, owner string, income uint64, secret, chainAddress string) (*CreateResult, error) {
	generated := ""
	if secret == "" {
		var err error
		if secret, err = commitment.NewSecret(); err != nil {
			return nil, err
		}
		generated = secret
	}

	res, err := s.Create(ctx, owner, commitment.Commit(income, secret).Hex(), chainAddress)
	if err != nil {
		return nil, err
	}
	res.Secret = generated
	return res, nil
}

func (s *Service) Create(ctx context.Context, owner, commitmentHex, chainAddress string) (*CreateResult, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "owner is required")
	}
	digest, err := commitment.ParseDigest(commitmentHex)
	if err != nil {
		return nil, err
	}

	now := s.now()
	proof := &model.IncomeProof{
		Id:         uuid.NewString(),
		Owner:      owner,
		Commitment: digest.Hex(),
		Status:     model.StatusCommitmentGenerated,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(s.ttl()),
	}
	if err := s.Proofs.Create(ctx, proof); err != nil {
		return nil, reasoncodes.Wrap(reasoncodes.ErrInternal, err, "store proof record")
	}
	s.logger.Infof("Proof %s created for owner %s", proof.Id, owner)
	s.publish(dtocommon.ProofStatusChangedDto{ProofId: proof.Id, Owner: owner, Status: string(proof.Status)})

	res := &CreateResult{Proof: proof}
	if chainAddress == "" {
		return res, nil
	}

	ref, err := s.Gateway.SubmitCommitment(ctx, chainAddress, digest)
	if err != nil {
		s.logger.Errorf(err, "Recording commitment of proof %s on the ledger failed", proof.Id)
		res.CommitmentTx = &chain.TxRef{Error: err.Error()}
		return res, nil
	}
	res.CommitmentTx = &ref
	proof.CommitmentTxHash = ref.Hash
	if err := s.Proofs.Update(ctx, proof.Id, proof, "commitment_tx_hash"); err != nil {
		s.logger.Errorf(err, "Storing commitment tx of proof %s failed", proof.Id)
	}
	return res, nil
}

func (s *Service) GenerateProof(ctx context.Context, owner, id string, income uint64, secret, rangeLabel string) (*model.IncomeProof, error) {
	r, err := ParseRange(rangeLabel)
	if err != nil {
		return nil, err
	}
	if !r.Admits(income) {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "income does not satisfy range %s", r.Label)
	}

	proof, err := s.active(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if proof.Status != model.StatusCommitmentGenerated {
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s is %s, a proof can only be generated once", id, proof.Status)
	}
	if err := commitment.Open(income, secret, proof.Commitment); err != nil {
		return nil, err
	}

	artifact, err := s.Backend.GenerateProof(ctx, income, secret, r.Threshold)
	if err != nil {
		return nil, err
	}

	changes := &model.IncomeProof{
		RangeLabel:      r.Label,
		Threshold:       r.Threshold,
		Proof:           &artifact.Proof,
		PublicSignals:   artifact.PublicSignals,
		ProofProvenance: artifact.Proof.Provenance,
		ProofBlob:       artifact.Blob,
	}
	if err := s.transition(ctx, proof, []model.ProofStatus{model.StatusCommitmentGenerated}, model.StatusProofGenerated, changes,
		"range_label", "threshold", "proof", "public_signals", "proof_provenance", "proof_blob"); err != nil {
		return nil, err
	}
	s.logger.Infof("Proof %s generated for range %s (%s)", id, r.Label, artifact.Proof.Provenance)
	return s.Proofs.GetById(ctx, id)
}

type LocalVerification struct {
	Proof  *model.IncomeProof
	Method zkp.VerificationMethod
	Weak   bool
	Detail string
}

func (s *Service) VerifyLocally(ctx context.Context, owner, id string) (*LocalVerification, error) {
	proof, err := s.active(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if proof.Status.IsVerified() {
		return &LocalVerification{Proof: proof, Method: proof.VerificationMethod, Weak: proof.VerificationMethod == zkp.MethodStructural}, nil
	}
	if proof.Status != model.StatusProofGenerated || !proof.HasProof() {
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s is %s, nothing to verify", id, proof.Status)
	}

	result, err := s.Backend.VerifyProofData(ctx, *proof.Proof, proof.PublicSignals)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, reasoncodes.New(reasoncodes.ErrCryptoVerification, "proof %s did not verify: %s", id, result.Detail)
	}
	if archive, ok := s.Backend.(zkp.ArchiveVerifier); ok && len(proof.ProofBlob) > 0 {
		if err := archive.VerifyArchive(proof.ProofBlob, *proof.Proof, proof.PublicSignals); err != nil {
			return nil, reasoncodes.Wrap(reasoncodes.ErrCryptoVerification, err, "proof %s does not match its archive", id)
		}
	}

	now := s.now()
	changes := &model.IncomeProof{VerificationMethod: result.Method, VerifiedAt: &now}
	err = s.transition(ctx, proof, []model.ProofStatus{model.StatusProofGenerated}, model.StatusProofVerified, changes,
		"verification_method", "verified_at")
	if err != nil {
		current, getErr := s.Proofs.Get(ctx, id, owner)
		if getErr == nil && current.Status.IsVerified() {
			return &LocalVerification{Proof: current, Method: current.VerificationMethod}, nil
		}
		return nil, err
	}

	updated, err := s.Proofs.GetById(ctx, id)
	if err != nil {
		return nil, err
	}
	return &LocalVerification{Proof: updated, Method: result.Method, Weak: result.Weak, Detail: result.Detail}, nil
}

// VerifyOnChain records the verification on the ledger. Concurrent callers for the same
// proof share one execution; across processes the store claim admits a single submitter.
// The shared execution does not inherit the cancellation of whichever caller started it.
func (s *Service) VerifyOnChain(ctx context.Context, owner, id, chainAddress string) (*model.IncomeProof, error) {
	results := s.flight.DoChan(owner+"/"+id, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.ledgerTimeout())
		defer cancel()
		return s.verifyOnChain(shared, owner, id, chainAddress)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		proof := *res.Val.(*model.IncomeProof)
		return &proof, nil
	}
}

func (s *Service) verifyOnChain(ctx context.Context, owner, id, chainAddress string) (*model.IncomeProof, error) {
	proof, err := s.active(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if proof.Status == model.StatusProofVerifiedOnChain {
		return proof, nil
	}
	if !proof.HasProof() || (proof.Status != model.StatusProofGenerated && proof.Status != model.StatusProofVerified) {
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s is %s, nothing to verify on chain", id, proof.Status)
	}
	calldata, err := chain.ToCalldata(*proof.Proof, proof.PublicSignals)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	claimed, err := s.Proofs.ClaimOnChain(ctx, id, token, s.now(), s.claimLease())
	if err != nil {
		return nil, reasoncodes.Wrap(reasoncodes.ErrInternal, err, "claim proof %s", id)
	}
	if !claimed {
		current, err := s.Proofs.Get(ctx, id, owner)
		if err != nil {
			return nil, err
		}
		if current.Status == model.StatusProofVerifiedOnChain {
			return current, nil
		}
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s is being verified on chain by another process", id)
	}
	defer func() {
		if err := s.Proofs.ReleaseOnChainClaim(context.WithoutCancel(ctx), id, token); err != nil {
			s.logger.Errorf(err, "Releasing on-chain claim of proof %s failed", id)
		}
	}()

	changes, err := s.ledgerVerification(ctx, proof, calldata, chainAddress)
	if err != nil {
		return nil, err
	}
	if proof.VerifiedAt == nil {
		now := s.now()
		changes.VerifiedAt = &now
	} else {
		changes.VerifiedAt = proof.VerifiedAt
	}
	if proof.VerificationMethod != "" && changes.VerificationMethod == "" {
		changes.VerificationMethod = proof.VerificationMethod
	}

	err = s.transition(ctx, proof, []model.ProofStatus{model.StatusProofGenerated, model.StatusProofVerified}, model.StatusProofVerifiedOnChain, changes,
		"verification_tx_hash", "verification_provenance", "verification_method", "verified_at", "on_chain_claim", "on_chain_claimed_at")
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Proof %s verified on chain (%s)", id, changes.VerificationProvenance)
	return s.Proofs.GetById(ctx, id)
}

// ledgerVerification tries the read-only verifier call, then a recorded transaction, and
// outside production falls back to a synthetic marker when both are unreachable.
func (s *Service) ledgerVerification(ctx context.Context, proof *model.IncomeProof, calldata chain.Calldata, chainAddress string) (*model.IncomeProof, error) {
	valid, callErr := s.Gateway.CallVerifier(ctx, calldata)
	if callErr == nil && valid {
		return &model.IncomeProof{
			VerificationTxHash:     marker(model.VerifiedByLedgerReadOnly, proof),
			VerificationProvenance: model.VerifiedByLedgerReadOnly,
			VerificationMethod:     zkp.MethodPairing,
		}, nil
	}
	if callErr != nil {
		s.logger.Warnf("Read-only verifier call for proof %s failed: %v", proof.Id, callErr)
	}

	outcome, submitErr := s.Gateway.SubmitVerification(ctx, chainAddress, *proof.Proof, proof.PublicSignals)
	if submitErr == nil {
		if !outcome.IsValid {
			return nil, reasoncodes.New(reasoncodes.ErrCryptoVerification, "ledger verifier rejected proof %s in tx %s", proof.Id, outcome.Tx.Hash)
		}
		provenance := model.VerifiedByLedgerTx
		if outcome.Tx.Provenance == chain.ProvenanceSynthetic {
			provenance = model.VerifiedSynthetic
		}
		return &model.IncomeProof{
			VerificationTxHash:     outcome.Tx.Hash,
			VerificationProvenance: provenance,
			VerificationMethod:     zkp.MethodPairing,
		}, nil
	}
	if !reasoncodes.Is(submitErr, reasoncodes.ErrChain) || callErr == nil || s.Mode.IsProduction() {
		return nil, submitErr
	}

	s.logger.Warnf("Ledger unreachable for proof %s, recording a synthetic verification marker: %v", proof.Id, submitErr)
	return &model.IncomeProof{
		VerificationTxHash:     marker(model.VerifiedSynthetic, proof),
		VerificationProvenance: model.VerifiedSynthetic,
	}, nil
}

// Expire moves an overdue proof to expired.
func (s *Service) Expire(ctx context.Context, id string) (*model.IncomeProof, error) {
	proof, err := s.Proofs.GetById(ctx, id)
	if err != nil {
		return nil, err
	}
	if proof.Status.IsTerminal() {
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s is %s", id, proof.Status)
	}
	if !s.now().After(proof.ExpiresAt) {
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s is valid until %s", id, proof.ExpiresAt.Format(time.RFC3339))
	}
	if err := s.expire(ctx, proof); err != nil {
		return nil, err
	}
	return s.Proofs.GetById(ctx, id)
}

// ExpireOverdue expires every active proof whose validity ended before now.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for {
		batch, err := s.Proofs.ListExpirable(ctx, now, expirySweepBatch)
		if err != nil {
			return expired, err
		}
		moved := 0
		for i := range batch {
			if err := s.expire(ctx, &batch[i]); err != nil {
				if reasoncodes.Is(err, reasoncodes.ErrStateConflict) {
					continue
				}
				return expired, err
			}
			moved++
		}
		expired += moved
		if len(batch) < expirySweepBatch || moved == 0 {
			return expired, nil
		}
	}
}

// Revoke is administrative and allowed from any active state.
func (s *Service) Revoke(ctx context.Context, id, reason string) (*model.IncomeProof, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, reasoncodes.New(reasoncodes.ErrValidation, "revocation reason is required")
	}
	proof, err := s.Proofs.GetById(ctx, id)
	if err != nil {
		return nil, err
	}
	if proof.Status.IsTerminal() {
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s is already %s", id, proof.Status)
	}

	changes := &model.IncomeProof{RevocationReason: reason}
	if err := s.transition(ctx, proof, activeStatuses, model.StatusRevoked, changes, "revocation_reason"); err != nil {
		return nil, err
	}
	s.logger.Infof("Proof %s revoked", id)
	return s.Proofs.GetById(ctx, id)
}

// Get returns the owner's proof, expiring it first when its validity has ended.
func (s *Service) Get(ctx context.Context, owner, id string) (*model.IncomeProof, error) {
	proof, err := s.Proofs.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if s.overdue(proof) {
		if err := s.expire(ctx, proof); err != nil && !reasoncodes.Is(err, reasoncodes.ErrStateConflict) {
			return nil, err
		}
		return s.Proofs.Get(ctx, id, owner)
	}
	return proof, nil
}

// Verified returns the owner's proof if a payment may be built on it.
func (s *Service) Verified(ctx context.Context, owner, id string) (*model.IncomeProof, error) {
	proof, err := s.active(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if !proof.Status.IsVerified() {
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s is %s, verification is required", id, proof.Status)
	}
	return proof, nil
}

type PublicParameters struct {
	Protocol        string                       `json:"protocol"`
	Curve           string                       `json:"curve"`
	Provenance      zkp.Provenance               `json:"provenance"`
	VerificationKey *zkp.VerificationKeyDocument `json:"verification_key,omitempty"`
	Ranges          []Range                      `json:"ranges"`
}

func (s *Service) Parameters() PublicParameters {
	return PublicParameters{
		Protocol:        zkp.ProtocolGroth16,
		Curve:           zkp.CurveName,
		Provenance:      s.Backend.Provenance(),
		VerificationKey: s.Backend.VerifyingKey(),
		Ranges:          Ranges(),
	}
}

// active loads a proof for a transition. Terminal and overdue proofs are a StateConflict.
func (s *Service) active(ctx context.Context, owner, id string) (*model.IncomeProof, error) {
	proof, err := s.Proofs.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if proof.Status.IsTerminal() {
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s is %s", id, proof.Status)
	}
	if s.overdue(proof) {
		if err := s.expire(ctx, proof); err != nil && !reasoncodes.Is(err, reasoncodes.ErrStateConflict) {
			return nil, err
		}
		return nil, reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s is expired", id)
	}
	return proof, nil
}

func (s *Service) overdue(proof *model.IncomeProof) bool {
	return !proof.Status.IsTerminal() && s.now().After(proof.ExpiresAt)
}

func (s *Service) expire(ctx context.Context, proof *model.IncomeProof) error {
	if err := s.transition(ctx, proof, activeStatuses, model.StatusExpired, nil); err != nil {
		return err
	}
	s.logger.Infof("Proof %s expired", proof.Id)
	return nil
}

func (s *Service) transition(ctx context.Context, proof *model.IncomeProof, from []model.ProofStatus, to model.ProofStatus, changes *model.IncomeProof, columns ...string) error {
	if changes == nil {
		changes = &model.IncomeProof{}
	}
	changes.UpdatedAt = s.now()
	ok, err := s.Proofs.Transition(ctx, proof.Id, from, to, changes, append(columns, "updated_at")...)
	if err != nil {
		return reasoncodes.Wrap(reasoncodes.ErrInternal, err, "update proof %s", proof.Id)
	}
	if !ok {
		return reasoncodes.New(reasoncodes.ErrStateConflict, "proof %s changed concurrently", proof.Id)
	}

	provenance := string(changes.VerificationProvenance)
	if provenance == "" {
		provenance = string(changes.ProofProvenance)
	}
	s.publish(dtocommon.ProofStatusChangedDto{
		ProofId:    proof.Id,
		Owner:      proof.Owner,
		FromStatus: string(proof.Status),
		Status:     string(to),
		Provenance: provenance,
		TxHash:     changes.VerificationTxHash,
	})
	return nil
}

func (s *Service) publish(event dtocommon.ProofStatusChangedDto) {
	event.OccurredAt = timeutil.FromTime(s.now())
	if err := s.Publisher.Publish(event); err != nil {
		s.logger.Errorf(err, "Publishing status change of proof %s failed", event.ProofId)
	}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

func (s *Service) ledgerTimeout() time.Duration {
	if s.LedgerTimeout <= 0 {
		return time.Minute
	}
	return s.LedgerTimeout
}

func (s *Service) claimLease() time.Duration {
	return 3 * s.ledgerTimeout()
}

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return 365 * 24 * time.Hour
	}
	return s.TTL
}

// marker derives a locally synthesized verification reference. It is shaped like a
// transaction hash and always stored next to its provenance.
func marker(provenance model.VerificationProvenance, proof *model.IncomeProof) string {
	digest := zkp.ProofDigest(*proof.Proof, proof.PublicSignals)
	sum := sha256.Sum256(append([]byte(string(provenance)+"|"+proof.Id+"|"), digest[:]...))
	return "0x" + hex.EncodeToString(sum[:])
}
