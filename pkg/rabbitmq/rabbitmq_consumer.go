package rabbitmq

import (
	"context"
	"fmt"

	"zk-tax-system/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

type ConsumerAlias string

type IRabbitmqConsumer interface {
	StartConsuming(ctx context.Context, handler func(amqp.Delivery) error) error
}

type RabbitmqConsumer struct {
	Channel     *amqp.Channel
	QueueName   string
	ConsumerTag string
	logger      *logger.Logger
}

func NewConsumer(ch *amqp.Channel, queueName, consumerTag string, l *logger.Logger) *RabbitmqConsumer {
	return &RabbitmqConsumer{
		Channel:     ch,
		QueueName:   queueName,
		ConsumerTag: consumerTag,
		logger:      l,
	}
}

// StartConsuming blocks until ctx is done or the delivery channel closes.
// Deliveries are settled with Settle.
func (rc *RabbitmqConsumer) StartConsuming(ctx context.Context, handler func(amqp.Delivery) error) error {
	msgs, err := rc.Channel.Consume(
		rc.QueueName,   // queue
		rc.ConsumerTag, // consumer
		false,          // auto-ack
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return fmt.Errorf("register consumer %s: %w", rc.ConsumerTag, err)
	}

	rc.logger.Infof("Waiting for messages in queue: %s", rc.QueueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("queue %s: delivery channel closed", rc.QueueName)
			}
			rc.handle(d, handler)
		}
	}
}

func (rc *RabbitmqConsumer) handle(d amqp.Delivery, handler func(amqp.Delivery) error) {
	defer func() {
		if r := recover(); r != nil {
			rc.logger.Errorf(nil, "[%s] Recovered from panic for consumer: %s, %v", rc.QueueName, rc.ConsumerTag, r)
			_ = d.Nack(false, false)
		}
	}()

	err := handler(d)
	if err != nil {
		rc.logger.Errorf(err, "[%s] Message handling failed (redelivered: %t)", rc.QueueName, d.Redelivered)
	}
	if settleErr := Settle(d, err); settleErr != nil {
		rc.logger.Errorf(settleErr, "[%s] Settling delivery %d failed", rc.QueueName, d.DeliveryTag)
	}
}

// Settle acks a delivery its handler accepted. A failed delivery is requeued once and
// dropped when it fails again after redelivery.
func Settle(d amqp.Delivery, handlerErr error) error {
	if handlerErr == nil {
		return d.Ack(false)
	}
	return d.Nack(false, !d.Redelivered)
}
