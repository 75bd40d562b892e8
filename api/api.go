// Package api holds types shared by wasm guests and the hosts that run them.
package api

import (
	"context"
)

// Memory is the name of the memory a guest must export.
const Memory = "memory"

// LogLevel is the severity of a guest log message.
type LogLevel int32

const (
	LogLevelDebug LogLevel = -1
	LogLevelInfo  LogLevel = 0
	LogLevelWarn  LogLevel = 1
	LogLevelError LogLevel = 2
	LogLevelNone  LogLevel = 3
)

// String implements fmt.Stringer
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	case LogLevelNone:
		return "none"
	}
	return "unknown"
}

// Logger is the host side of the guest functions "log_enabled" and "log".
type Logger interface {
	// IsEnabled returns true when messages at level are logged. Guests call
	// this to avoid formatting messages nobody reads.
	IsEnabled(level LogLevel) bool

	// Log logs message at level.
	Log(ctx context.Context, level LogLevel, message string)
}

// NoopLogger discards all messages.
type NoopLogger struct{}

var _ Logger = NoopLogger{}

// IsEnabled implements Logger.IsEnabled
func (NoopLogger) IsEnabled(LogLevel) bool { return false }

// Log implements Logger.Log
func (NoopLogger) Log(context.Context, LogLevel, string) {}

type Closer interface {
	// Close releases resources such as any Wasm modules, compiled code, and
	// the runtime.
	Close(context.Context) error
}
