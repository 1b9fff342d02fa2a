package logger

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger implements Logger on top of zap's sugared API.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger creates a Logger backed by zap. Format "text" selects the
// console encoder; anything else writes JSON.
func NewZapLogger(cfg Config) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.Format == "text" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(cfg.writer()), zap.NewAtomicLevelAt(toZapLevel(cfg.Level)))
	var opts []zap.Option
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &zapLogger{sugar: zap.New(core, opts...).Sugar()}
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fieldsToKVs(fields []Field) []any {
	kvs := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		if d, ok := f.Value.(time.Duration); ok {
			kvs = append(kvs, f.Key+"_ms", d.Milliseconds())
			continue
		}
		kvs = append(kvs, f.Key, f.Value)
	}
	return kvs
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.sugar.Debugw(msg, fieldsToKVs(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.sugar.Infow(msg, fieldsToKVs(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.sugar.Warnw(msg, fieldsToKVs(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.sugar.Errorw(msg, fieldsToKVs(fields)...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{sugar: l.sugar.With(fieldsToKVs(fields)...)}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	fields := extractContextFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// Sync flushes buffered entries.
func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}
