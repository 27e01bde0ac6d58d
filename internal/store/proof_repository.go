package store

import (
	"context"
	"errors"
	"time"

	"zk-tax-system/internal/model"
	reasoncodes "zk-tax-system/pkg/reason_codes"

	"gorm.io/gorm"
)

type ProofRepository interface {
	Create(ctx context.Context, proof *model.IncomeProof) error
	// Get is scoped to the owner; foreign ids are reported as not found.
	Get(ctx context.Context, id, owner string) (*model.IncomeProof, error)
	GetById(ctx context.Context, id string) (*model.IncomeProof, error)
	// Transition writes the named columns of changes and the new status, only if the
	// current status is one of from.
	Transition(ctx context.Context, id string, from []model.ProofStatus, to model.ProofStatus, changes *model.IncomeProof, columns ...string) (bool, error)
	Update(ctx context.Context, id string, changes *model.IncomeProof, columns ...string) error
	ClaimOnChain(ctx context.Context, id, token string, now time.Time, lease time.Duration) (bool, error)
	ReleaseOnChainClaim(ctx context.Context, id, token string) error
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]model.IncomeProof, error)
}

type proofRepository struct {
	db *gorm.DB
}

func NewProofRepository(db *gorm.DB) ProofRepository {
	return &proofRepository{db: db}
}

func (r *proofRepository) Create(ctx context.Context, proof *model.IncomeProof) error {
	return r.db.WithContext(ctx).Create(proof).Error
}

func (r *proofRepository) Get(ctx context.Context, id, owner string) (*model.IncomeProof, error) {
	var proof model.IncomeProof
	err := r.db.WithContext(ctx).Where("id = ? AND owner = ?", id, owner).First(&proof).Error
	return notFound(&proof, err, "proof %s", id)
}

func (r *proofRepository) GetById(ctx context.Context, id string) (*model.IncomeProof, error) {
	var proof model.IncomeProof
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&proof).Error
	return notFound(&proof, err, "proof %s", id)
}

func (r *proofRepository) Transition(ctx context.Context, id string, from []model.ProofStatus, to model.ProofStatus, changes *model.IncomeProof, columns ...string) (bool, error) {
	if changes == nil {
		changes = &model.IncomeProof{}
	}
	changes.Status = to

	result := r.db.WithContext(ctx).
		Model(&model.IncomeProof{}).
		Where("id = ? AND status IN ?", id, from).
		Select(append(columns, "status")).
		Updates(changes)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *proofRepository) Update(ctx context.Context, id string, changes *model.IncomeProof, columns ...string) error {
	return r.db.WithContext(ctx).
		Model(&model.IncomeProof{}).
		Where("id = ?", id).
		Select(columns).
		Updates(changes).Error
}

// ClaimOnChain takes the on-chain claim of a proof unless another token holds it
// and was taken less than lease before now.
func (r *proofRepository) ClaimOnChain(ctx context.Context, id, token string, now time.Time, lease time.Duration) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.IncomeProof{}).
		Where("id = ? AND status IN ?", id, []model.ProofStatus{model.StatusProofGenerated, model.StatusProofVerified}).
		Where("on_chain_claim = ? OR on_chain_claimed_at IS NULL OR on_chain_claimed_at < ?", "", now.Add(-lease)).
		Updates(map[string]any{"on_chain_claim": token, "on_chain_claimed_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *proofRepository) ReleaseOnChainClaim(ctx context.Context, id, token string) error {
	return r.db.WithContext(ctx).
		Model(&model.IncomeProof{}).
		Where("id = ? AND on_chain_claim = ?", id, token).
		Updates(map[string]any{"on_chain_claim": "", "on_chain_claimed_at": nil}).Error
}

func (r *proofRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]model.IncomeProof, error) {
	var proofs []model.IncomeProof
	err := r.db.WithContext(ctx).
		Where("status NOT IN ? AND expires_at < ?",
			[]model.ProofStatus{model.StatusExpired, model.StatusRevoked}, now).
		Order("expires_at").
		Limit(limit).
		Find(&proofs).Error
	return proofs, err
}

func notFound[T any](v *T, err error, format string, args ...any) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reasoncodes.New(reasoncodes.ErrNotFound, format+" not found", args...)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
