package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder and level of the process logger.
type Config struct {
	// Format is "console" for the development encoder, anything else is JSON.
	Format string
	Level  string
}

// New builds the process logger. Callers own it and should Sync it on exit.
func New(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableCaller = true

	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}

	return zc.Build()
}

// NewDevLogger returns a console logger at debug level. It panics if the
// logger cannot be built, which only happens on a broken zap config.
func NewDevLogger() *zap.Logger {
	logger, err := New(Config{Format: "console", Level: "debug"})
	if err != nil {
		panic(err)
	}
	return logger
}
