package dtocommon

import (
	"zk-tax-system/pkg/utilities"
	"zk-tax-system/pkg/utilities/timeutil"
)

type LoggerMessageDto struct {
	Level     string           `json:"level"`
	Message   string           `json:"message"`
	Timestamp timeutil.TimeUTC `json:"timestamp"`
}

func (lm LoggerMessageDto) Serialize() ([]byte, error) {
	return utilities.Serialize(lm)
}
