package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return FromZap(zap.New(core)), logs
}

func TestNew(t *testing.T) {
	t.Run("development", func(t *testing.T) {
		l, err := New("dev", "debug")
		require.NoError(t, err)
		assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("production", func(t *testing.T) {
		l, err := New("production", "warn")
		require.NoError(t, err)
		assert.False(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.InfoLevel))
		assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := New("dev", "loud")
		assert.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_Levels(t *testing.T) {
	l, logs := newObserved(zapcore.DebugLevel)

	l.Debug("d", "stream_id", "Account-1")
	l.Info("i")
	l.Warn("w")
	l.Error("e", "error", "boom")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "Account-1", entries[0].ContextMap()["stream_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestLogger_Redaction(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)

	l.Info("config", "database_password", "hunter2", "adapter", "postgres")
	l.With("api_key", "abc").Info("publisher")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "[REDACTED]", entries[0].ContextMap()["database_password"])
	assert.Equal(t, "postgres", entries[0].ContextMap()["adapter"])
	assert.Equal(t, "[REDACTED]", entries[1].ContextMap()["api_key"])
}

func TestLogger_OddKeyValues(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)

	assert.NotPanics(t, func() { l.Info("odd", "dangling") })
	assert.Equal(t, 1, logs.FilterMessage("odd").Len())
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.Info("ignored")
		l.Sync()
	})
}
