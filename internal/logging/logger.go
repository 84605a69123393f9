package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"syscall"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// instrumentationName names the otelzap logger scope.
const instrumentationName = "github.com/fyrsmithlabs/insightd"

const callerSkip = 2

// Logger is a zap logger whose methods take a context and prepend the
// correlation fields found in it.
type Logger struct {
	zap *zap.Logger
}

// NewLogger builds a logger writing to stdout and, when provider is non-nil
// and cfg.OTEL is set, to the OpenTelemetry log pipeline.
func NewLogger(cfg *Config, provider log.LoggerProvider) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	core, err := buildCore(cfg, zapcore.AddSync(os.Stdout), provider)
	if err != nil {
		return nil, err
	}
	return &Logger{zap: zap.New(core, loggerOptions(cfg)...)}, nil
}

// buildCore tees the enabled outputs, each behind its own redacting gate,
// and samples the result.
func buildCore(cfg *Config, stdout zapcore.WriteSyncer, provider log.LoggerProvider) (zapcore.Core, error) {
	r := newRedactor(cfg.Redaction)

	var outputs []zapcore.Core
	if cfg.Stdout {
		outputs = append(outputs, newRedactingCore(zapcore.NewCore(newEncoder(cfg.Format), stdout, cfg.Level), cfg.Level, r))
	}
	if cfg.OTEL && provider != nil {
		otelCore := otelzap.NewCore(instrumentationName, otelzap.WithLoggerProvider(provider))
		outputs = append(outputs, newRedactingCore(otelCore, cfg.Level, r))
	}
	if len(outputs) == 0 {
		return nil, errors.New("no log output available: stdout disabled and no OpenTelemetry provider")
	}
	return newSampledCore(zapcore.NewTee(outputs...), cfg.Sampling), nil
}

func loggerOptions(cfg *Config) []zap.Option {
	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Caller {
		// Skip Logger.log and the exported method.
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(callerSkip))
	}
	if len(cfg.Fields) > 0 {
		keys := make([]string, 0, len(cfg.Fields))
		for k := range cfg.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]zap.Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, zap.String(k, cfg.Fields[k]))
		}
		opts = append(opts, zap.Fields(fields...))
	}
	return opts
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if ce := l.zap.Check(level, msg); ce != nil {
		ce.Write(append(ContextFields(ctx), fields...)...)
	}
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// Sync flushes buffered entries. EINVAL and ENOTTY from syncing a terminal
// or pipe are ignored.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}

// Underlying returns the zap logger for packages that take a *zap.Logger.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap.WithOptions(zap.AddCallerSkip(-callerSkip))
}
