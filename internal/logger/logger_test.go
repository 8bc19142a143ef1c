package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Development(t *testing.T) {
	l := New("development")
	require.NotNil(t, l)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_Production(t *testing.T) {
	l := New("production")
	require.NotNil(t, l)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_LogLevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	l := New("development")

	assert.False(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, l.Core().Enabled(zapcore.ErrorLevel))
}

func TestNew_InvalidLogLevelIgnored(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")

	l := New("production")

	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_StacktraceOnlyFromError(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		t.Run(env, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			l := New(env).WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))

			l.Warn("client error")
			l.Error("server error")

			entries := logs.All()
			require.Len(t, entries, 2)
			assert.Empty(t, entries[0].Stack)
			assert.NotEmpty(t, entries[1].Stack)
		})
	}
}

func TestSetRoutesPackageHelpers(t *testing.T) {
	original := Get()
	defer Set(original)

	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))

	Info("booked", zap.String("event_id", "e1"))
	Warn("retrying")
	Error("storage down")
	Debug("gap")
	With(zap.Int("attempt", 2)).Info("child")

	require.Equal(t, 5, logs.Len())
	entries := logs.All()
	assert.Equal(t, "booked", entries[0].Message)
	assert.Equal(t, "e1", entries[0].ContextMap()["event_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, int64(2), entries[4].ContextMap()["attempt"])
}

func TestSync(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = Sync()
	})
}
