// Package logging builds the zap loggers used across flagcache.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	// Debug lowers the level to debug; otherwise only warnings and errors
	// are written, so a host page is never flooded by cache chatter.
	Debug bool

	// Development switches to the human-readable console encoder
	Development bool

	// OutputPaths defaults to stderr
	OutputPaths []string
}

// New creates a logger from configuration
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	var config zap.Config
	if cfg.Development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.Sampling = nil
	}

	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stderr"}
	if len(cfg.OutputPaths) > 0 {
		config.OutputPaths = cfg.OutputPaths
	}

	return config.Build()
}

// Default returns a production logger, or a no-op logger if one cannot be built
func Default(debug bool) *zap.Logger {
	logger, err := New(Config{Debug: debug})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Component names a sub-logger the way every flagcache package expects
func Component(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.Named(name)
}
