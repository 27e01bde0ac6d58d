package outbox

import (
	"context"
	"fmt"

	"zk-tax-system/internal/store"
	"zk-tax-system/pkg/rabbitmq"
	"zk-tax-system/pkg/utilities"
)

// Publisher stores events in the outbox table; OutboxWorker forwards them to the
// broker publisher with the same alias.
type Publisher struct {
	alias rabbitmq.PublisherAlias
	repo  store.OutboxRepository
}

func NewPublisher(alias rabbitmq.PublisherAlias, repo store.OutboxRepository) *Publisher {
	return &Publisher{alias: alias, repo: repo}
}

var _ rabbitmq.IRabbitmqPublisher = (*Publisher)(nil)

func (p *Publisher) Publish(body utilities.Serializable) error {
	payload, err := body.Serialize()
	if err != nil {
		return fmt.Errorf("serialize outbox event: %w", err)
	}
	_, err = p.repo.Add(context.Background(), string(p.alias), payload)
	return err
}

// RawMessage republishes stored payloads unchanged.
type RawMessage []byte

func (m RawMessage) Serialize() ([]byte, error) {
	return m, nil
}
