package logger

import "github.com/rs/zerolog"

type LoggerConfigJson struct {
	LogLevel int8   `json:"log_level"`
	Service  string `json:"service"`
}

type LoggerConfig struct {
	LogLevel zerolog.Level
	Service  string
}

func (lcj LoggerConfigJson) ConvertToDomain() LoggerConfig {
	return LoggerConfig{
		LogLevel: zerolog.Level(lcj.LogLevel),
		Service:  lcj.Service,
	}
}
