package rabbitmq

import (
	"sync"
	"time"

	"zk-tax-system/pkg/utilities"

	amqp "github.com/rabbitmq/amqp091-go"
)

type PublisherAlias string

type IRabbitmqPublisher interface {
	Publish(body utilities.Serializable) error
}

type RabbitmqPublisher struct {
	mu         sync.Mutex
	Channel    *amqp.Channel
	Exchange   string
	RoutingKey string
}

func NewPublisher(ch *amqp.Channel, exchange, routingKey string) *RabbitmqPublisher {
	return &RabbitmqPublisher{
		Channel:    ch,
		Exchange:   exchange,
		RoutingKey: routingKey,
	}
}

// Publish is safe for concurrent use; amqp channels are not.
func (rp *RabbitmqPublisher) Publish(body utilities.Serializable) error {
	json, err := body.Serialize()
	if err != nil {
		return err
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	return rp.Channel.Publish(
		rp.Exchange,
		rp.RoutingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         json,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
}

// NopPublisher is used when messaging is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(utilities.Serializable) error { return nil }

// MemoryPublisher records serialized messages in order.
type MemoryPublisher struct {
	mu       sync.Mutex
	Messages [][]byte
}

func (mp *MemoryPublisher) Publish(body utilities.Serializable) error {
	b, err := body.Serialize()
	if err != nil {
		return err
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.Messages = append(mp.Messages, b)
	return nil
}

func (mp *MemoryPublisher) Count() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.Messages)
}
