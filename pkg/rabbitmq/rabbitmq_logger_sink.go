package rabbitmq

import (
	"fmt"
	"os"

	dtocommon "zk-tax-system/pkg/dto_common"
	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/utilities/timeutil"

	"github.com/rs/zerolog"
)

func CreateRabbitmqLoggerSink(publisher IRabbitmqPublisher) logger.SinkFunc {
	return func(msg string, level zerolog.Level, timestamp timeutil.TimeUTC) {
		err := publisher.Publish(dtocommon.LoggerMessageDto{
			Level:     level.String(),
			Message:   msg,
			Timestamp: timestamp,
		})
		if err != nil {
			// the logger would recurse into this sink
			fmt.Fprintf(os.Stderr, "Failed to publish log message to RabbitMQ: %v\n", err)
		}
	}
}
