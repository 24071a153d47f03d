package logging

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/assessd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_ValidatesConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")

	cfg = NewDefaultConfig()
	cfg.Output.Stdout = false
	_, err = NewLogger(cfg, nil)
	require.Error(t, err)
}

func TestNewLogger_Default(t *testing.T) {
	l, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	assert.True(t, l.Enabled(zapcore.InfoLevel))
	assert.False(t, l.Enabled(zapcore.DebugLevel))
	assert.NotNil(t, l.Underlying())
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "trace", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestContextFields_RequestID(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithRequestID(context.Background(), "req-123")

	tl.Info(ctx, "answered query")

	entries := tl.FilterMessage("answered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-123", entries[0].ContextMap()["request.id"])
}

func TestWithRequestID_DropsInvalid(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(WithRequestID(ctx, "")))
	assert.Empty(t, RequestIDFromContext(WithRequestID(ctx, "bad id\n")))
	assert.Equal(t, "ok_1", RequestIDFromContext(WithRequestID(ctx, "ok_1")))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "index missing")
	tl.AssertLogged(t, zapcore.WarnLevel, "index missing")
}

func TestTraceLevel(t *testing.T) {
	tl := NewTestLogger()
	tl.Trace(context.Background(), "prompt body", zap.String("prompt", "..."))
	tl.AssertLogged(t, TraceLevel, "prompt body")
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "calling model"}, []zapcore.Field{
		zap.String("api_key", "co-123"),
		zap.String("header", "Bearer abc.def"),
		zap.String("model", "command-a-03-2025"),
	})
	require.NoError(t, err)
	defer buf.Free()

	out := buf.String()
	assert.NotContains(t, out, "co-123")
	assert.NotContains(t, out, "abc.def")
	assert.Contains(t, out, "command-a-03-2025")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	child := enc.Clone()
	child.AddString("token", "t-1")
	var buf *buffer.Buffer
	buf, err = child.EncodeEntry(zapcore.Entry{Message: "x"}, nil)
	require.NoError(t, err)
	defer buf.Free()
	assert.NotContains(t, buf.String(), "t-1")
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("abcd"))
	assert.Equal(t, "[REDACTED:4]", f.String)
}
