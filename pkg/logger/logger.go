package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging surface used across the service. Fields
// are alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}

type sugared struct {
	sl *zap.SugaredLogger
}

// New builds a JSON logger at the given level. Unknown level strings fall
// back to info.
func New(level string) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	return &sugared{sl: base.Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *sugared) Debug(msg string, fields ...interface{}) { l.sl.Debugw(msg, fields...) }
func (l *sugared) Info(msg string, fields ...interface{})  { l.sl.Infow(msg, fields...) }
func (l *sugared) Warn(msg string, fields ...interface{})  { l.sl.Warnw(msg, fields...) }
func (l *sugared) Error(msg string, fields ...interface{}) { l.sl.Errorw(msg, fields...) }
func (l *sugared) Fatal(msg string, fields ...interface{}) { l.sl.Fatalw(msg, fields...) }

// With returns a child logger carrying the given fields on every line.
func (l *sugared) With(fields ...interface{}) Logger {
	return &sugared{sl: l.sl.With(fields...)}
}
