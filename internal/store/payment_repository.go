package store

import (
	"context"
	"errors"

	"zk-tax-system/internal/model"
	reasoncodes "zk-tax-system/pkg/reason_codes"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicate reports a unique index violation, such as a reused receipt id.
var ErrDuplicate = errors.New("duplicate key")

type PaymentRepository interface {
	// CreateInOpenSlot inserts the payment unless the (proof, fiscal year) pair already
	// has a pending, processing or completed payment.
	CreateInOpenSlot(ctx context.Context, payment *model.TaxPayment) error
	Get(ctx context.Context, id, owner string) (*model.TaxPayment, error)
	Transition(ctx context.Context, id string, from []model.PaymentStatus, to model.PaymentStatus, changes *model.TaxPayment, columns ...string) (bool, error)
	ListByProof(ctx context.Context, proofId string) ([]model.TaxPayment, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// CreateInOpenSlot locks the backing proof row so concurrent inserts for the same
// proof serialize on it before counting.
func (r *paymentRepository) CreateInOpenSlot(ctx context.Context, payment *model.TaxPayment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var proof model.IncomeProof
		err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
			Select("id").
			Where("id = ?", payment.ProofId).
			First(&proof).Error
		if _, err := notFound(&proof, err, "proof %s", payment.ProofId); err != nil {
			return err
		}

		var existing int64
		err = tx.Model(&model.TaxPayment{}).
			Where("proof_id = ? AND fiscal_year = ? AND status IN ?", payment.ProofId, payment.FiscalYear, model.BlockingStatuses).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return reasoncodes.New(reasoncodes.ErrStateConflict,
				"proof %s already backs a payment for fiscal year %d", payment.ProofId, payment.FiscalYear)
		}
		return tx.Create(payment).Error
	})
}

func (r *paymentRepository) Get(ctx context.Context, id, owner string) (*model.TaxPayment, error) {
	var payment model.TaxPayment
	err := r.db.WithContext(ctx).Where("id = ? AND owner = ?", id, owner).First(&payment).Error
	return notFound(&payment, err, "payment %s", id)
}

func (r *paymentRepository) Transition(ctx context.Context, id string, from []model.PaymentStatus, to model.PaymentStatus, changes *model.TaxPayment, columns ...string) (bool, error) {
	if changes == nil {
		changes = &model.TaxPayment{}
	}
	changes.Status = to

	result := r.db.WithContext(ctx).
		Model(&model.TaxPayment{}).
		Where("id = ? AND status IN ?", id, from).
		Select(append(columns, "status")).
		Updates(changes)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return false, ErrDuplicate
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *paymentRepository) ListByProof(ctx context.Context, proofId string) ([]model.TaxPayment, error) {
	var payments []model.TaxPayment
	err := r.db.WithContext(ctx).Where("proof_id = ?", proofId).Order("created_at").Find(&payments).Error
	return payments, err
}
