package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "sales-reconciler"

var logger *zap.Logger

// InitLogger initializes the global logger. level overrides the environment
// default when it parses as a zap level.
func InitLogger(env, level string) error {
	var err error
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		parsed, perr := zapcore.ParseLevel(level)
		if perr != nil {
			return perr
		}
		config.Level = zap.NewAtomicLevelAt(parsed)
	}

	logger, err = config.Build()
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("service", serviceName), zap.String("env", env))

	zap.ReplaceGlobals(logger)
	return nil
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
