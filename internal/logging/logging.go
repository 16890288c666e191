// Package logging builds the zap loggers used across pulse. Library
// constructors accept a nil *zap.Logger and fall back to a nop logger, so
// only the daemon entrypoint decides whether and how logs are emitted.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction for the daemon.
type Options struct {
	// Verbose lowers the level from info to debug.
	Verbose bool
	// Dev switches to the console encoder with human-readable timestamps.
	Dev bool
}

// New builds a production zap logger with the given options.
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if opts.Dev {
		config = zap.NewDevelopmentConfig()
	}
	if opts.Verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// OrNop returns the logger unchanged, or zap.NewNop() when it is nil.
// Component constructors call this so callers may pass nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
