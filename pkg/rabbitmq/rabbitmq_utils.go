package rabbitmq

import (
	"fmt"
	"time"

	"zk-tax-system/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const maxConnectRetries = 7

func ConnectToRabbitmq(cfg RabbitmqConfig, l *logger.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	waitTime := 1 * time.Second

	connectionString := fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Password, cfg.Host, cfg.Port)
	for i := 0; i < maxConnectRetries; i++ {
		conn, err = amqp.Dial(connectionString)
		if err == nil {
			return conn, nil
		}
		l.Warnf("Attempt %d failed: %v. Retrying in %v...", i+1, err, waitTime)
		time.Sleep(waitTime)
		waitTime *= 2
	}
	return nil, err
}
