package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/ragdocs/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(t *testing.T, cfg *Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := newLogger(cfg, nil, zapcore.AddSync(&buf))
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger_WritesJSON(t *testing.T) {
	logger, buf := newBufferLogger(t, NewDefaultConfig())

	logger.Info(context.Background(), "collections listed", zap.Int("count", 2))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "collections listed", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "ragdocs", lines[0]["service"])
	assert.EqualValues(t, 2, lines[0]["count"])
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = zapcore.WarnLevel
	logger, buf := newBufferLogger(t, cfg)
	ctx := context.Background()

	logger.Debug(ctx, "dropped")
	logger.Info(ctx, "dropped")
	logger.Warn(ctx, "kept")
	logger.Error(ctx, "kept")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.Equal(t, "kept", l["msg"])
	}
}

func TestNewLogger_TraceLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Sampling.Enabled = false
	logger, buf := newBufferLogger(t, cfg)

	logger.Trace(context.Background(), "wire detail")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "trace", lines[0]["level"])
}

func TestNewLogger_Redaction(t *testing.T) {
	logger, buf := newBufferLogger(t, NewDefaultConfig())

	logger.Info(context.Background(), "calling embedder",
		zap.String("api_key", "sk-live-123"),
		zap.String("header", "Bearer abc.def"),
		Secret("token", config.Secret("hunter2")),
		zap.String("model", "nomic-embed-text"),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk-live-123")
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "nomic-embed-text")
}

type stringer string

func (s stringer) String() string { return string(s) }

func TestNewLogger_RedactsCallSiteFields(t *testing.T) {
	testCases := []struct {
		name   string
		field  zap.Field
		secret string
		want   string
	}{
		{name: "sensitive key", field: zap.String("api_key", "sk-live-123"), secret: "sk-live-123", want: "[REDACTED]"},
		{name: "sensitive key any case", field: zap.String("Authorization", "xyz-789"), secret: "xyz-789", want: "[REDACTED]"},
		{name: "sensitive non-string", field: zap.Int("token", 424242), secret: "424242", want: "[REDACTED]"},
		{name: "pattern in string", field: zap.String("header", "Bearer abc.def"), secret: "abc.def", want: "[REDACTED:pattern]"},
		{name: "pattern in bytes", field: zap.ByteString("raw", []byte("api_key=s3cr3t")), secret: "s3cr3t", want: "[REDACTED:pattern]"},
		{name: "pattern in stringer", field: zap.Stringer("url", stringer("apikey: q1w2e3")), secret: "q1w2e3", want: "[REDACTED:pattern]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger, buf := newBufferLogger(t, NewDefaultConfig())
			logger.Info(context.Background(), "request", tc.field)

			assert.NotContains(t, buf.String(), tc.secret)
			lines := decodeLines(t, buf)
			require.Len(t, lines, 1)
			assert.Equal(t, tc.want, lines[0][tc.field.Key])
		})
	}
}

func TestNewLogger_RedactsWithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, NewDefaultConfig())

	logger.With(zap.String("password", "pa55")).Info(context.Background(), "connecting")

	assert.NotContains(t, buf.String(), "pa55")
}

func TestNewLogger_RedactionDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Redaction.Enabled = false
	logger, buf := newBufferLogger(t, cfg)

	logger.Info(context.Background(), "debugging", zap.String("api_key", "sk-visible"))

	assert.Contains(t, buf.String(), "sk-visible")
}

func TestNewLogger_ErrorsBypassSampling(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Initial = 1
	cfg.Sampling.Thereafter = 0
	logger, buf := newBufferLogger(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		logger.Info(ctx, "repeated")
		logger.Error(ctx, "failure")
	}

	var infos, errs int
	for _, l := range decodeLines(t, buf) {
		switch l["level"] {
		case "info":
			infos++
		case "error":
			errs++
		}
	}
	assert.Equal(t, 1, infos)
	assert.Equal(t, 5, errs)
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad format", mutate: func(c *Config) { c.Format = "xml" }, wantErr: "format"},
		{name: "no outputs", mutate: func(c *Config) { c.Output.Stderr = false }, wantErr: "at least one output"},
		{name: "zero tick", mutate: func(c *Config) { c.Sampling.Tick = 0 }, wantErr: "sampling tick"},
		{name: "bad pattern", mutate: func(c *Config) { c.Redaction.Patterns = []string{"("} }, wantErr: "invalid redaction pattern"},
		{name: "empty field value", mutate: func(c *Config) { c.Fields["env"] = "" }, wantErr: "empty value"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.LogConfig{Level: "debug", Format: "console"})
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	cfg = FromConfig(config.LogConfig{Level: "loud"})
	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	cfg = FromConfig(config.LogConfig{Level: "trace"})
	assert.Equal(t, TraceLevel, cfg.Level)
}

func TestContextFields(t *testing.T) {
	tl := NewTestLogger()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithRequestID(ctx, "call-7")

	tl.Info(ctx, "tool invoked")

	tl.AssertLogged(t, zapcore.InfoLevel, "tool invoked")
	tl.AssertField(t, "tool invoked", "trace_id", "4bf92f3577b34da6a3ce929d0e0e4736")
	tl.AssertField(t, "tool invoked", "request.id", "call-7")
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "from context")
	tl.AssertLogged(t, zapcore.InfoLevel, "from context")

	assert.Empty(t, RequestIDFromContext(WithRequestID(context.Background(), "")))
}
