package store

import (
	"context"
	"time"

	"zk-tax-system/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MaxOutboxRetries = 5

type OutboxRepository interface {
	Add(ctx context.Context, publisher string, payload []byte) (string, error)
	// Pending lists unpublished events under the retry limit, oldest first.
	Pending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uint, at time.Time) error
	RecordFailure(ctx context.Context, id uint, cause error) error
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Add(ctx context.Context, publisher string, payload []byte) (string, error) {
	eventId := uuid.NewString()
	err := r.db.WithContext(ctx).Create(&model.OutboxEvent{
		EventId:   eventId,
		Publisher: publisher,
		Payload:   string(payload),
	}).Error
	return eventId, err
}

func (r *outboxRepository) Pending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL AND retry < ?", MaxOutboxRetries).
		Order("id").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Update("published_at", at).Error
}

func (r *outboxRepository) RecordFailure(ctx context.Context, id uint, cause error) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry":      gorm.Expr("retry + 1"),
			"last_error": cause.Error(),
		}).Error
}
