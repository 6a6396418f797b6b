package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{" Error ", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"panic", zapcore.PanicLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestNew(t *testing.T) {
	log, err := New(Options{Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, log.Logger)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New(Options{Level: "error"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_JSONEntriesCarryServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Service: "syncstats", Environment: "production", Output: zapcore.AddSync(&buf)})
	require.NoError(t, err)

	log.Named("sync").WithField("date", "2024-01-14").Info("Visitor stats synced")
	log.Debug("not written")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Visitor stats synced", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "sync", entry["logger"])
	assert.Equal(t, "syncstats", entry["service"])
	assert.Equal(t, "production", entry["environment"])
	assert.Equal(t, "2024-01-14", entry["date"])
}

func TestNew_RepeatedWarningsAreSampled(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Output: zapcore.AddSync(&buf)})
	require.NoError(t, err)

	const repeats = 3 * samplingFirst
	for i := 0; i < repeats; i++ {
		log.Warn("Failed to record visit")
	}

	written := strings.Count(buf.String(), "\n")
	assert.GreaterOrEqual(t, written, samplingFirst)
	assert.Less(t, written, repeats)
}

func TestNew_DevelopmentIsConsoleAndUnsampled(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Environment: "development", Output: zapcore.AddSync(&buf)})
	require.NoError(t, err)

	const repeats = 3 * samplingFirst
	for i := 0; i < repeats; i++ {
		log.Warn("Failed to record visit")
	}

	assert.Equal(t, repeats, strings.Count(buf.String(), "\n"))
	assert.False(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), "Failed to record visit")
}

func TestLogger_With(t *testing.T) {
	log := NewNop()

	assert.NotNil(t, log.WithField("date", "2024-01-14"))
	assert.NotNil(t, log.WithFields(map[string]interface{}{"a": 1, "b": "two"}))
	assert.NotNil(t, log.WithError(errors.New("boom")))
	assert.NotNil(t, log.Named("sync"))
}
