package handler

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unihttp/unihttp-go/api"
)

// ZapLogger adapts a zap logger to the guest "log" functions.
func ZapLogger(logger *zap.Logger) api.Logger {
	return zapLogger{logger}
}

type zapLogger struct {
	l *zap.Logger
}

func (z zapLogger) IsEnabled(level api.LogLevel) bool {
	lvl, ok := zapLevel(level)
	return ok && z.l.Core().Enabled(lvl)
}

func (z zapLogger) Log(_ context.Context, level api.LogLevel, message string) {
	if lvl, ok := zapLevel(level); ok {
		z.l.Log(lvl, message)
	}
}

func zapLevel(level api.LogLevel) (zapcore.Level, bool) {
	switch level {
	case api.LogLevelDebug:
		return zapcore.DebugLevel, true
	case api.LogLevelInfo:
		return zapcore.InfoLevel, true
	case api.LogLevelWarn:
		return zapcore.WarnLevel, true
	case api.LogLevelError:
		return zapcore.ErrorLevel, true
	}
	return 0, false
}
