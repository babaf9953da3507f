package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marketdesk/admin/internal/platform/requestctx"
)

// Cloud Logging reads these names from the severity field.
var severityNames = map[zapcore.Level]string{
	zapcore.DebugLevel:  "DEBUG",
	zapcore.InfoLevel:   "INFO",
	zapcore.WarnLevel:   "WARNING",
	zapcore.ErrorLevel:  "ERROR",
	zapcore.DPanicLevel: "CRITICAL",
	zapcore.PanicLevel:  "ALERT",
	zapcore.FatalLevel:  "EMERGENCY",
}

func encodeSeverity(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	name, ok := severityNames[level]
	if !ok {
		name = "DEFAULT"
	}
	enc.AppendString(name)
}

// NewLogger returns a JSON logger on stdout whose records Cloud Logging ingests as structured
// entries. LOG_LEVEL overrides the info default.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stdout"}
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if level, err := zap.ParseAtomicLevel(strings.ToLower(raw)); err == nil {
			cfg.Level = level
		}
	}

	enc := &cfg.EncoderConfig
	enc.MessageKey = "message"
	enc.TimeKey = "timestamp"
	enc.LevelKey = "severity"
	enc.EncodeLevel = encodeSeverity
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	return cfg.Build()
}

// WithLogger attaches logger to ctx for code running outside an HTTP request.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// PrintfAdapter satisfies the Printf/Warnf loggers taken by the audit recorder and the
// idempotency middleware.
type PrintfAdapter struct {
	sugar *zap.SugaredLogger
}

func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a PrintfAdapter) Printf(format string, args ...any) { a.sugar.Infof(format, args...) }

func (a PrintfAdapter) Warnf(format string, args ...any) { a.sugar.Warnf(format, args...) }

// EventLogger adapts zap to the func(ctx, event, fields) logger the services take. Events ending
// in ".failed" log at warn. The request logger is preferred so records carry the trace.
func EventLogger(fallback *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.LoggerOr(ctx, fallback)
		zfields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zfields = append(zfields, zap.Any(key, value))
		}
		level := zapcore.InfoLevel
		if strings.HasSuffix(event, ".failed") {
			level = zapcore.WarnLevel
		}
		if ce := logger.Check(level, event); ce != nil {
			ce.Write(zfields...)
		}
	}
}
