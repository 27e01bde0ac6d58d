package rabbitmq

import (
	"fmt"

	"zk-tax-system/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Registry owns one channel per configured publisher and consumer.
type Registry struct {
	publishers map[PublisherAlias]IRabbitmqPublisher
	consumers  map[ConsumerAlias]IRabbitmqConsumer
}

func NewRegistry(conn *amqp.Connection, cfg RabbitmqConfig, l *logger.Logger) (*Registry, error) {
	r := &Registry{
		publishers: make(map[PublisherAlias]IRabbitmqPublisher),
		consumers:  make(map[ConsumerAlias]IRabbitmqConsumer),
	}

	for _, p := range cfg.PublishersConfig {
		channel, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open channel for publisher %s: %w", p.PublisherAlias, err)
		}
		r.publishers[p.PublisherAlias] = NewPublisher(channel, p.Exchange, p.RoutingKey)
	}

	for _, c := range cfg.ConsumersConfig {
		channel, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open channel for consumer %s: %w", c.ConsumerAlias, err)
		}
		r.consumers[c.ConsumerAlias] = NewConsumer(channel, c.QueueName, c.ConsumerTag, l)
	}

	return r, nil
}

// Publisher falls back to NopPublisher for unknown aliases and a nil registry.
func (r *Registry) Publisher(alias PublisherAlias) IRabbitmqPublisher {
	if r == nil {
		return NopPublisher{}
	}
	if p, ok := r.publishers[alias]; ok {
		return p
	}
	return NopPublisher{}
}

func (r *Registry) Consumer(alias ConsumerAlias) (IRabbitmqConsumer, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.consumers[alias]
	return c, ok
}
