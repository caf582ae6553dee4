package zap_engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	loggerwrapper "github.com/PavelAgarkov/lease-lock/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu          sync.RWMutex
	log         = zap.NewNop()
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel) // для динамического изменения уровня
)

func InitLoggerForStdout(level zapcore.Level, cloud bool, cfg *zapcore.EncoderConfig, option ...zap.Option) error {
	atomicLevel.SetLevel(level)

	var encCfg zapcore.EncoderConfig
	if cfg == nil {
		encCfg = zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			MessageKey:     "message",
			CallerKey:      "caller",
			StacktraceKey:  "stack",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	} else {
		encCfg = *cfg
	}

	var enc zapcore.Encoder
	if cloud {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), atomicLevel)

	opt := []zap.Option{
		zap.AddCaller(),
		zap.AddCallerSkip(2),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	opt = append(opt, option...)

	ReplaceLogger(zap.New(core, opt...))
	return nil
}

// ReplaceLogger подменяет глобальный логгер, например на zaptest/observer в тестах.
// Возвращает функцию восстановления предыдущего логгера.
func ReplaceLogger(l *zap.Logger) func() {
	mu.Lock()
	prev := log
	log = l
	mu.Unlock()
	return func() {
		mu.Lock()
		log = prev
		mu.Unlock()
	}
}

// SetLevel Позволяет менять уровень в рантайме
func SetLevel(level string) error {
	return atomicLevel.UnmarshalText([]byte(level))
}

func GetLevel() string {
	return atomicLevel.Level().String()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	current().Debug(msg, fields...)
}
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	current().Info(msg, fields...)
}
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	current().Warn(msg, fields...)
}
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	current().Error(msg, fields...)
}
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	current().Fatal(msg, fields...)
}

func Sync() {
	l := current()
	if l == nil {
		return
	}
	if err := l.Sync(); err != nil && !isIgnorableSyncError(err) {
		fmt.Fprintf(os.Stderr, "zap sync error: %v\n", err)
	}
}

func isIgnorableSyncError(err error) bool {
	if err == nil {
		return true
	}
	var pe *os.PathError
	if errors.As(err, &pe) {
		switch pe.Err {
		case syscall.EINVAL, syscall.ENOTSUP, syscall.ENOSYS, syscall.ENOTTY:
			return true
		}
	}
	return false
}

// unpack пустые поля не пишем, чтобы не засорять вывод.
func unpack(entry *loggerwrapper.LogEntry) []zap.Field {
	fields := make([]zap.Field, 0, 7)
	if entry.Component != "" {
		fields = append(fields, zap.String("component", entry.Component))
	}
	if entry.Method != "" {
		fields = append(fields, zap.String("method", entry.Method))
	}
	if entry.Key != "" {
		fields = append(fields, zap.String("key", entry.Key))
	}
	if entry.Args != nil {
		fields = append(fields, zap.Any("args", entry.Args))
	}
	if entry.Result != nil {
		fields = append(fields, zap.Any("result", entry.Result))
	}
	if entry.Start != nil {
		fields = append(fields, zap.Duration("latency", time.Since(*entry.Start)))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	return fields
}
