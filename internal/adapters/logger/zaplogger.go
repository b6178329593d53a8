package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements the ports.Logger interface on top of zap's sugared
// logger. Use it when structured JSON output is wanted, e.g. when log lines
// are shipped somewhere instead of read in a terminal.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a production-configured zap logger at the given level.
func NewZapLogger(level LogLevel) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &ZapLogger{sugar: base.Sugar()}, nil
}

// Sync flushes buffered log entries. Call it on shutdown.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
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

func flatten(fields []map[string]interface{}) []interface{} {
	if len(fields) == 0 || len(fields[0]) == 0 {
		return nil
	}
	kv := make([]interface{}, 0, len(fields[0])*2)
	for k, v := range fields[0] {
		if redactedKeys[k] {
			v = "[redacted]"
		}
		kv = append(kv, k, v)
	}
	return kv
}

func (l *ZapLogger) Debug(_ context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Debugw(msg, flatten(fields)...)
}

func (l *ZapLogger) Info(_ context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Infow(msg, flatten(fields)...)
}

func (l *ZapLogger) Warn(_ context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Warnw(msg, flatten(fields)...)
}

func (l *ZapLogger) Error(_ context.Context, err error, msg string, fields ...map[string]interface{}) {
	kv := flatten(fields)
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	l.sugar.Errorw(msg, kv...)
}
