package reqflow

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the leveled key/value logger used for pipeline diagnostics.
// Arguments after msg are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

// NewSimpleLogger returns a console logger on stderr at debug level.
func NewSimpleLogger() *ZerologLogger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	return &ZerologLogger{logger: logger}
}

// Debug logs a debug-level message.
func (z *ZerologLogger) Debug(msg string, args ...interface{}) {
	addFields(z.logger.Debug(), args).Msg(msg)
}

// Info logs an info-level message.
func (z *ZerologLogger) Info(msg string, args ...interface{}) {
	addFields(z.logger.Info(), args).Msg(msg)
}

// Warn logs a warning-level message.
func (z *ZerologLogger) Warn(msg string, args ...interface{}) {
	addFields(z.logger.Warn(), args).Msg(msg)
}

// Error logs an error-level message.
func (z *ZerologLogger) Error(msg string, args ...interface{}) {
	addFields(z.logger.Error(), args).Msg(msg)
}

// Zerolog returns the underlying zerolog.Logger.
func (z *ZerologLogger) Zerolog() zerolog.Logger {
	return z.logger
}

// addFields attaches alternating key/value pairs to an event. A trailing key
// without a value is logged under "!BADKEY".
func addFields(event *zerolog.Event, args []interface{}) *zerolog.Event {
	if event == nil {
		return event
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			event = event.Interface("!BADKEY", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case string:
			event = event.Str(key, v)
		case int:
			event = event.Int(key, v)
		case int64:
			event = event.Int64(key, v)
		case float64:
			event = event.Float64(key, v)
		case bool:
			event = event.Bool(key, v)
		case time.Duration:
			event = event.Dur(key, v)
		case error:
			event = event.AnErr(key, v)
		default:
			event = event.Interface(key, v)
		}
	}
	return event
}

// ParseLogLevel maps a level name onto a zerolog level, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
