package sls

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel controls how chatty a session is. Each level includes the ones
// before it.
type LogLevel int

const (
	// LogLevelOff disables logging.
	LogLevelOff LogLevel = iota

	// LogLevelError logs repeated ill-conditioning only.
	LogLevelError

	// LogLevelWarn adds recovered fit and acquisition failures.
	LogLevelWarn

	// LogLevelInfo adds one line per completed round.
	LogLevelInfo

	// LogLevelDebug adds session creation and fitted hyperparameters.
	LogLevelDebug
)

// slogLevelOff is above every level slog emits.
const slogLevelOff = slog.LevelError + 4

var logLevelNames = [...]string{"OFF", "ERROR", "WARN", "INFO", "DEBUG"}

// String returns the level name used by UnmarshalText.
func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(logLevelNames) {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}

	return logLevelNames[l]
}

// UnmarshalText parses a level name, case-insensitively. It lets LogLevel be
// read from SLS_LOG_LEVEL.
func (l *LogLevel) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))

	for i, n := range logLevelNames {
		if n == name {
			*l = LogLevel(i)

			return nil
		}
	}

	return fmt.Errorf("invalid log level: %s", string(text))
}

// slogLevel is the lowest slog level emitted at level.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slogLevelOff
	}
}

// Logger is the logging surface used by a Session. Key/value pairs follow the
// log/slog convention.
//
// Usage example:
//
//	session, err := New(3, WithLogger(myLogger))
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	SetLevel(level LogLevel)
}

// DefaultLogger writes text records through log/slog. Its level can be
// changed at any time with SetLevel.
type DefaultLogger struct {
	logger   *slog.Logger
	levelVar *slog.LevelVar
	level    LogLevel
}

// NewLogger returns a DefaultLogger writing to stderr at the given level.
func NewLogger(level LogLevel) *DefaultLogger {
	return newLogger(os.Stderr, level)
}

func newLogger(w io.Writer, level LogLevel) *DefaultLogger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	return &DefaultLogger{
		logger:   slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar})),
		levelVar: levelVar,
		level:    level,
	}
}

// SetLevel changes the level of every later record.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level = level
	l.levelVar.Set(level.slogLevel())
}

// Level returns the current level.
func (l *DefaultLogger) Level() LogLevel { return l.level }

// Debug logs at LogLevelDebug.
func (l *DefaultLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

// Info logs at LogLevelInfo.
func (l *DefaultLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

// Warn logs at LogLevelWarn.
func (l *DefaultLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn(msg, keysAndValues...)
}

// Error logs at LogLevelError.
func (l *DefaultLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, keysAndValues...)
}
