package sls

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevelText(t *testing.T) {
	for _, level := range []LogLevel{LogLevelOff, LogLevelError, LogLevelWarn, LogLevelInfo, LogLevelDebug} {
		var got LogLevel
		require.NoError(t, got.UnmarshalText([]byte(level.String())))
		assert.Equal(t, level, got)
	}

	var l LogLevel
	require.NoError(t, l.UnmarshalText([]byte(" info ")))
	assert.Equal(t, LogLevelInfo, l)

	assert.Error(t, l.UnmarshalText([]byte("verbose")))
	assert.Equal(t, "LogLevel(7)", LogLevel(7).String())
}

// recordingLogger keeps messages per level.
type recordingLogger struct {
	level    LogLevel
	messages map[string][]string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{level: LogLevelDebug, messages: map[string][]string{}}
}

func (r *recordingLogger) Debug(msg string, _ ...any) { r.messages["debug"] = append(r.messages["debug"], msg) }
func (r *recordingLogger) Info(msg string, _ ...any) { r.messages["info"] = append(r.messages["info"], msg) }
func (r *recordingLogger) Warn(msg string, _ ...any) { r.messages["warn"] = append(r.messages["warn"], msg) }
func (r *recordingLogger) Error(msg string, _ ...any) { r.messages["error"] = append(r.messages["error"], msg) }
func (r *recordingLogger) SetLevel(level LogLevel) { r.level = level }

func TestSessionLogsRounds(t *testing.T) {
	logger := newRecordingLogger()

	s, err := New(2, WithConfig(testConfig()), WithSeed(1), WithLogger(logger))
	require.NoError(t, err)

	simulateRound(t, s, Point{0.4, 0.4})

	assert.Contains(t, logger.messages["debug"], "session created")
	assert.Contains(t, logger.messages["info"], "round completed")
}

func TestSessionLogsProminentFailures(t *testing.T) {
	logger := newRecordingLogger()

	s, err := New(2, WithConfig(testConfig()), WithSeed(1), WithLogger(logger))
	require.NoError(t, err)

	for i := 0; i < s.cfg.IllConditionedAlert; i++ {
		s.recordFitFailure(ErrIllConditionedCovariance)
	}

	assert.Len(t, logger.messages["warn"], s.cfg.IllConditionedAlert-1)
	assert.Len(t, logger.messages["error"], 1)
}

func TestDefaultLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(&buf, LogLevelOff)
	assert.Equal(t, LogLevelOff, logger.Level())

	logger.Error("hidden")
	assert.Empty(t, buf.String())

	logger.SetLevel(LogLevelWarn)
	logger.Info("skipped")
	logger.Warn("shown", "round", 3)

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "round=3")

	logger.SetLevel(LogLevelDebug)
	logger.Debug("details")
	assert.Contains(t, buf.String(), "msg=details")
	assert.Equal(t, LogLevelDebug, logger.Level())
}
