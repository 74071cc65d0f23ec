package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
)

// Init builds the process logger for the given environment
func Init(env string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := config.Build()
	if err != nil {
		return err
	}

	Set(built)
	return nil
}

// Set replaces the process logger. Tests use it to install zap.NewNop().
func Set(l *zap.Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// Sync flushes any buffered log entries
func Sync() {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

// Get returns the process logger, falling back to a development logger
// when Init has not run yet.
func Get() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		fallback, _ := zap.NewDevelopment()
		return fallback
	}
	return l
}

// Named returns a child of the process logger scoped to a component
func Named(component string) *zap.Logger {
	return Get().Named(component)
}
