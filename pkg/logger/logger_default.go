package logger

import "sync"

type LoggerArg struct {
	Key   string
	Value string
}

type GlobalLoggerConfig struct {
	Args []LoggerArg
}

var (
	defaultLogger     *Logger
	onceLogger        sync.Once
	initializedLogger bool
)

func InitDefaultLogger(config GlobalLoggerConfig) {
	onceLogger.Do(func() {
		base := New()
		ctx := base.zl.With()
		for _, arg := range config.Args {
			ctx = ctx.Str(arg.Key, arg.Value)
		}
		base.zl = ctx.Logger()

		defaultLogger = base
		initializedLogger = true
	})
}

func Default() *Logger {
	if !initializedLogger {
		panic("default logger not initialized: call InitDefaultLogger() first")
	}
	return defaultLogger
}
