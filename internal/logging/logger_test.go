package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferLogger builds a logger whose stdout output lands in a buffer.
func bufferLogger(t *testing.T, cfg *Config, provider log.LoggerProvider) (*Logger, *bytes.Buffer) {
	t.Helper()
	require.NoError(t, cfg.Validate())
	var buf bytes.Buffer
	core, err := buildCore(cfg, zapcore.AddSync(&buf), provider)
	require.NoError(t, err)
	return &Logger{zap: zap.New(core, loggerOptions(cfg)...)}, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), sc.Text())
		out = append(out, m)
	}
	return out
}

type recordingProvider struct {
	embedded.LoggerProvider

	mu      sync.Mutex
	records []log.Record
}

func (p *recordingProvider) Logger(string, ...log.LoggerOption) log.Logger {
	return &recordingLogger{p: p}
}

func (p *recordingProvider) attr(i int, key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var val string
	var found bool
	p.records[i].WalkAttributes(func(kv log.KeyValue) bool {
		if kv.Key == key {
			val, found = kv.Value.AsString(), true
			return false
		}
		return true
	})
	return val, found
}

type recordingLogger struct {
	embedded.Logger
	p *recordingProvider
}

func (l *recordingLogger) Emit(_ context.Context, r log.Record) {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	l.p.records = append(l.p.records, r.Clone())
}

func (l *recordingLogger) Enabled(context.Context, log.EnabledParameters) bool {
	return true
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid logging config")
}

func TestNewLogger_NoAvailableOutput(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Stdout = false
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log output available")
}

func TestLogger_LevelGate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = zapcore.WarnLevel
	logger, buf := bufferLogger(t, cfg, nil)

	ctx := context.Background()
	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["msg"])
	assert.Equal(t, "error", lines[1]["msg"])
	assert.Contains(t, lines[1], "stacktrace")
}

func TestLogger_ContextAndConstantFields(t *testing.T) {
	logger, buf := bufferLogger(t, NewDefaultConfig(), nil)

	ctx := WithUserID(context.Background(), "u-7")
	ctx = WithRequestID(ctx, "req_1")
	logger.With(zap.String("component", "recorder")).Info(ctx, "recorded", zap.Int("count", 2))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "insightd", line["service"])
	assert.Equal(t, "recorder", line["component"])
	assert.Equal(t, "u-7", line["user.id"])
	assert.Equal(t, "req_1", line["request.id"])
	assert.EqualValues(t, 2, line["count"])
}

func TestLogger_CallerPointsAtCallSite(t *testing.T) {
	logger, buf := bufferLogger(t, NewDefaultConfig(), nil)

	logger.Info(context.Background(), "wrapped")
	logger.Underlying().Info("direct")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line["caller"], "logging/logger_test.go", line["msg"])
	}
}

func TestLogger_RedactsEveryOutput(t *testing.T) {
	provider := &recordingProvider{}
	logger, buf := bufferLogger(t, NewDefaultConfig(), provider)

	logger.Info(context.Background(), "stored",
		zap.String("evidence", "I always mess things up"),
		zap.String("backend", "postgres://app:hunter2@db:5432/insights"),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, redacted, lines[0]["evidence"])
	assert.NotContains(t, lines[0]["backend"], "hunter2")

	require.Len(t, provider.records, 1)
	evidence, ok := provider.attr(0, "evidence")
	require.True(t, ok)
	assert.Equal(t, redacted, evidence)
	backend, ok := provider.attr(0, "backend")
	require.True(t, ok)
	assert.NotContains(t, backend, "hunter2")
}

func TestLogger_OTELDisabled(t *testing.T) {
	provider := &recordingProvider{}
	cfg := NewDefaultConfig()
	cfg.OTEL = false
	logger, buf := bufferLogger(t, cfg, provider)

	logger.Info(context.Background(), "stdout only")

	assert.Len(t, decodeLines(t, buf), 1)
	assert.Empty(t, provider.records)
}

func TestLogger_ConsoleFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "console"
	logger, buf := bufferLogger(t, cfg, nil)

	logger.Info(context.Background(), "plain text")
	assert.Contains(t, buf.String(), "plain text")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestLogger_Sync(t *testing.T) {
	logger, _ := bufferLogger(t, NewDefaultConfig(), nil)
	assert.NoError(t, logger.Sync())
}
