// Package logger provides the process-wide structured logger.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.SugaredLogger
	once sync.Once
)

// Initialize sets up the global logger. Safe to call more than once; only
// the first call takes effect.
func Initialize() {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Fall back to a no-op logger rather than failing startup
			l = zap.NewNop()
		}
		log = l.Sugar()
	})
}

func get() *zap.SugaredLogger {
	if log == nil {
		Initialize()
	}
	return log
}

// Debugf logs a formatted debug message
func Debugf(format string, args ...any) { get().Debugf(format, args...) }

// Infof logs a formatted info message
func Infof(format string, args ...any) { get().Infof(format, args...) }

// Warnf logs a formatted warning message
func Warnf(format string, args ...any) { get().Warnf(format, args...) }

// Errorf logs a formatted error message
func Errorf(format string, args ...any) { get().Errorf(format, args...) }

// Fatalf logs a formatted fatal message and exits
func Fatalf(format string, args ...any) { get().Fatalf(format, args...) }

// Info logs an info message
func Info(msg string) { get().Info(msg) }

// Warn logs a warning message
func Warn(msg string) { get().Warn(msg) }

// Sync flushes any buffered log entries
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
